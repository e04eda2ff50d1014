package weather

import (
	"fmt"
	"time"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionFog     Condition = "fog"
)

// Location is the fixed place the overlay shows weather for.
// Lat/Lon are required; Name is optional and only used for display.
type Location struct {
	Name string  `json:"name,omitempty"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return fmt.Sprintf("%.4f:%.4f", l.Lat, l.Lon)
}

// WeatherSnapshot is the normalized, aggregated weather view at a point in time.
// A snapshot is never mutated after it has been produced; refreshes replace it wholesale.
type WeatherSnapshot struct {
	LocationName  string    `json:"locationName"`
	Location      Location  `json:"location"`
	Timestamp     time.Time `json:"timestamp"` // always UTC
	Condition     Condition `json:"condition"`
	Description   string    `json:"description,omitempty"`
	Temperature   float64   `json:"temperatureC"`
	FeelsLike     float64   `json:"feelsLikeC"`
	Humidity      float64   `json:"humidityPercent"`
	WindSpeed     float64   `json:"windSpeedKph"`
	WindDirection float64   `json:"windDirectionDeg"`
	Pressure      float64   `json:"pressureHpa"`
	PrecipMM      float64   `json:"precipMm"`

	// Providers contributing to this snapshot.
	Providers []ProviderContribution `json:"providers,omitempty"`
}

// IsZero reports whether the snapshot carries no data at all.
func (s WeatherSnapshot) IsZero() bool {
	return s.Timestamp.IsZero() && s.LocationName == "" && len(s.Providers) == 0
}

// ProviderContribution describes data coming from a single provider used in aggregation.
type ProviderContribution struct {
	ProviderName string    `json:"provider"`
	Timestamp    time.Time `json:"timestamp"`
}
