package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/i474232898/weather-ar-overlay/internal/arview"
	"github.com/i474232898/weather-ar-overlay/internal/config"
	"github.com/i474232898/weather-ar-overlay/internal/metrics"
	"github.com/i474232898/weather-ar-overlay/internal/overlay"
	"github.com/i474232898/weather-ar-overlay/internal/refresher"
	"github.com/i474232898/weather-ar-overlay/internal/sensor"
	"github.com/i474232898/weather-ar-overlay/internal/store"
	"github.com/i474232898/weather-ar-overlay/internal/weather"
	"github.com/i474232898/weather-ar-overlay/internal/weather/providers"
)

// app holds the wired components shared by serve and simulate.
type app struct {
	cfg     *config.AppConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	store   *store.MemoryStore
	service *weather.Service
	screen  *arview.Controller

	// Set only when samples are pushed over HTTP.
	accelPush  *sensor.PushStream
	motionPush *sensor.PushStream
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildApp wires providers, store, service and the screen controller. A nil
// fetcher fetches through the provider service.
func buildApp(cfg *config.AppConfig, logger *slog.Logger, perm overlay.Permission, fetcher refresher.Fetcher) *app {
	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// In-memory store with configured retention.
	memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)

	// Providers with resilience (backoff + circuit breaker). Open-Meteo needs no key.
	provs := []weather.Provider{providers.NewOpenMeteoProvider(httpClient)}
	if cfg.OpenWeatherAPIKey != "" {
		provs = append(provs, providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey))
	}
	if cfg.WeatherAPIKey != "" {
		provs = append(provs, providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey))
	}

	opts := []weather.Option{weather.WithLogger(logger)}
	if cfg.GeocoderAPIKey != "" {
		opts = append(opts, weather.WithNamer(providers.NewGeocoderNamer(cfg.GeocoderAPIKey)))
	}
	service := weather.NewService(memStore, provs, opts...)
	if fetcher == nil {
		fetcher = service
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		store:   memStore,
		service: service,
	}

	var accel, motion sensor.Stream
	if cfg.SensorSource == config.SourceSynthetic {
		accel = sensor.NewSyntheticStream(sensor.SyntheticAccelerometer)
		motion = sensor.NewSyntheticStream(sensor.SyntheticMotion)
	} else {
		a.accelPush = sensor.NewPushStream("accelerometer", true)
		a.motionPush = sensor.NewPushStream("motion", true)
		accel, motion = a.accelPush, a.motionPush
	}

	initial, _ := memStore.GetLatest(cfg.Location)
	a.screen = arview.New(
		arview.Params{Initial: initial, Location: cfg.Location},
		arview.Deps{
			Accel:     accel,
			Motion:    motion,
			Fetcher:   fetcher,
			Haptics:   overlay.LogHaptics{Logger: logger},
			Navigator: overlay.NavigatorFunc(func(context.Context) error {
				logger.Info("left the AR screen")
				return nil
			}),
			Metrics: a.metrics,
			Logger:  logger,
		},
		arview.Options{
			Sensor:     cfg.Tuning.Sensor,
			Transform:  cfg.Tuning.TransformConfig(),
			Threshold:  cfg.Tuning.Threshold,
			Permission: perm,
			Platform:   cfg.Platform,
			AppID:      cfg.AppID,
			Refresh: refresher.Options{
				Interval: cfg.RefreshInterval,
				Settle:   settle(cfg.RefreshSettle),
				Timeout:  cfg.FetchTimeout,
			},
		},
	)
	return a
}

// settle maps a configured zero settle delay to "release immediately".
func settle(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}

// offlineFetcher serves a fixed snapshot, for simulating without network access.
func offlineFetcher() refresher.Fetcher {
	return refresher.FetcherFunc(func(_ context.Context, loc weather.Location) (weather.WeatherSnapshot, error) {
		name := loc.Name
		if name == "" {
			name = "Demo"
		}
		return weather.WeatherSnapshot{
			LocationName:  name,
			Location:      loc,
			Timestamp:     time.Now().UTC(),
			Condition:     weather.ConditionClear,
			Description:   "Cielo despejado",
			Temperature:   22,
			FeelsLike:     21.5,
			Humidity:      45,
			WindSpeed:     8,
			WindDirection: 270,
		}, nil
	})
}
