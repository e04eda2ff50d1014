package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/weather-ar-overlay/internal/anchor"
	"github.com/i474232898/weather-ar-overlay/internal/sensor"
	"github.com/i474232898/weather-ar-overlay/internal/transform"
	"github.com/i474232898/weather-ar-overlay/internal/weather"
)

// Sensor sources.
const (
	SourcePush      = "push"
	SourceSynthetic = "synthetic"
)

var validate = validator.New()

type AppConfig struct {
	Port     string     `validate:"required,numeric"`
	LogLevel slog.Level `validate:"-"`

	// Platform selects how the settings screen is opened (ios or anything else).
	Platform string `validate:"required"`
	AppID    string

	Location weather.Location `validate:"-"`
	Lat      float64          `validate:"gte=-90,lte=90"`
	Lon      float64          `validate:"gte=-180,lte=180"`

	OpenWeatherAPIKey string
	WeatherAPIKey     string
	GeocoderAPIKey    string

	HTTPTimeout     time.Duration `validate:"gt=0"`
	RefreshInterval time.Duration `validate:"gt=0"`
	RefreshSettle   time.Duration `validate:"gte=0"`
	FetchTimeout    time.Duration `validate:"gt=0"`

	SensorSource   string        `validate:"oneof=push synthetic"`
	SensorInterval time.Duration `validate:"gt=0"`

	// In-memory store retention.
	StoreMaxHistory int           `validate:"gte=0"` // max number of snapshots per location (0 = unlimited)
	StoreMaxAge     time.Duration `validate:"gte=0"` // max age of snapshots (0 = unlimited)

	Tuning Tuning
}

// Tuning holds the sensor and transform constants that can be overridden from
// a YAML file.
type Tuning struct {
	Sensor      sensor.Config    `yaml:"sensor"`
	Transform   transform.Config `yaml:"transform"`
	Threshold   float64          `yaml:"threshold" validate:"gt=0,lte=180"`
	Extrapolate string           `yaml:"extrapolate" validate:"oneof=clamp extend"`
}

// DefaultTuning mirrors the package defaults.
func DefaultTuning() Tuning {
	return Tuning{
		Sensor:      sensor.DefaultConfig(),
		Transform:   transform.DefaultConfig(),
		Threshold:   anchor.DefaultThreshold,
		Extrapolate: "clamp",
	}
}

// TransformConfig returns the transform config with the extrapolation mode applied.
func (t Tuning) TransformConfig() transform.Config {
	cfg := t.Transform
	cfg.Extrapolate = transform.Clamp
	if t.Extrapolate == "extend" {
		cfg.Extrapolate = transform.Extend
	}
	return cfg
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	cfg := &AppConfig{}
	var errs []error

	cfg.Port = getenvDefault("PORT", "8080")
	if err := cfg.LogLevel.UnmarshalText([]byte(getenvDefault("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL: %w", err))
	}
	cfg.Platform = strings.ToLower(getenvDefault("PLATFORM", "android"))
	cfg.AppID = os.Getenv("APP_ID")

	cfg.Lat = getenvFloat("WEATHER_LAT", 40.4168)
	cfg.Lon = getenvFloat("WEATHER_LON", -3.7038)
	cfg.Location = weather.Location{
		Name: os.Getenv("WEATHER_LOCATION_NAME"),
		Lat:  cfg.Lat,
		Lon:  cfg.Lon,
	}

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"HTTP_TIMEOUT", "10s", &cfg.HTTPTimeout},
		{"REFRESH_INTERVAL", "10s", &cfg.RefreshInterval},
		{"REFRESH_SETTLE", "300ms", &cfg.RefreshSettle},
		{"FETCH_TIMEOUT", "15s", &cfg.FetchTimeout},
		{"STORE_MAX_AGE", "24h", &cfg.StoreMaxAge},
	}
	for _, d := range durations {
		v, err := getenvDuration(d.key, d.def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*d.dst = v
	}

	cfg.SensorSource = strings.ToLower(getenvDefault("SENSOR_SOURCE", SourcePush))
	// One snapshot every 10s for a day.
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 8640)

	tuning, err := LoadTuning(os.Getenv("TUNING_FILE"))
	if err != nil {
		errs = append(errs, err)
	}
	if os.Getenv("SENSOR_INTERVAL") != "" {
		d, err := getenvDuration("SENSOR_INTERVAL", "")
		if err != nil {
			errs = append(errs, err)
		} else {
			tuning.Sensor.Interval = d
		}
	}
	cfg.SensorInterval = tuning.Sensor.Interval
	cfg.Tuning = tuning

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and the tuning block.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadTuning reads a YAML tuning file over DefaultTuning. An empty path
// returns the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return DefaultTuning(), fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	t.Extrapolate = strings.ToLower(t.Extrapolate)
	if err := validate.Struct(t); err != nil {
		return DefaultTuning(), fmt.Errorf("invalid tuning file %s: %w", path, err)
	}
	return t, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
