// Package overlay builds the presentation model of the AR weather panel: the
// text a renderer draws inside the transformed panel, plus the permission,
// settings, haptic and navigation collaborators around it.
package overlay

import (
	"fmt"
	"math"
	"time"

	"github.com/i474232898/weather-ar-overlay/internal/common"
	"github.com/i474232898/weather-ar-overlay/internal/weather"
)

// Panel is the text content of the floating panel.
type Panel struct {
	Header      string `json:"header"`
	Emoji       string `json:"emoji"`
	Condition   string `json:"condition"`
	Temperature string `json:"temperature"`
	FeelsLike   string `json:"feelsLike"`
	Humidity    string `json:"humidity"`
	Wind        string `json:"wind"`
	Coordinates string `json:"coordinates"`
	Updated     string `json:"updated"`
}

// NewPanel renders a snapshot for display. updatedAt is shown in tz (local time when nil);
// a zero updatedAt leaves the last-updated line empty.
func NewPanel(snap weather.WeatherSnapshot, place weather.Location, updatedAt time.Time, tz *time.Location) Panel {
	if tz == nil {
		tz = time.Local
	}
	name := snap.LocationName
	if name == "" {
		name = place.Name
	}
	condition := snap.Description
	if condition == "" {
		condition = string(snap.Condition)
	}

	p := Panel{
		Header:      name,
		Emoji:       ConditionEmoji(condition),
		Condition:   condition,
		Temperature: fmt.Sprintf("%s°C", formatNumber(snap.Temperature)),
		FeelsLike:   fmt.Sprintf("Sensación: %s°C", formatNumber(snap.FeelsLike)),
		Humidity:    fmt.Sprintf("%s%%", formatNumber(snap.Humidity)),
		Wind:        fmt.Sprintf("%s km/h - Dirección: %s°", formatNumber(snap.WindSpeed), formatNumber(snap.WindDirection)),
		Coordinates: Coordinates(place),
	}
	if !updatedAt.IsZero() {
		p.Updated = "Última actualización: " + updatedAt.In(tz).Format("15:04:05")
	}
	return p
}

// Coordinates formats the location with four decimals.
func Coordinates(loc weather.Location) string {
	return fmt.Sprintf("Lat: %.4f, Lon: %.4f", loc.Lat, loc.Lon)
}

// formatNumber drops the decimals of whole numbers and keeps one otherwise.
func formatNumber(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

// ConditionEmoji picks an icon for a condition text in Spanish or English.
// Keywords are checked in order, so "rain with thunder" is shown as rain and
// storms are matched before "sol" (which also occurs in "isolated").
func ConditionEmoji(condition string) string {
	switch {
	case common.HasAnyFold(condition, "lluvia", "llovizna", "rain", "drizzle"):
		return "🌧️"
	case common.HasAnyFold(condition, "nube", "nublado", "cloud", "overcast"):
		return "☁️"
	case common.HasAnyFold(condition, "tormenta", "thunder", "storm"):
		return "⛈️"
	case common.HasAnyFold(condition, "sol", "despejado", "clear", "sunny"):
		return "☀️"
	case common.HasAnyFold(condition, "nieve", "snow"):
		return "❄️"
	case common.HasAnyFold(condition, "niebla", "bruma", "fog", "mist"):
		return "🌫️"
	default:
		return "🌤️"
	}
}
