package weather

import (
	"math"
	"time"
)

// AggregateReadings combines multiple provider readings into a single WeatherSnapshot.
// Numeric fields are averaged, wind direction uses a circular mean, and the condition is
// selected by majority (earliest reading wins a tie). The location name and description
// come from the first reading that carries one.
func AggregateReadings(loc Location, readings []ProviderReading) WeatherSnapshot {
	if len(readings) == 0 {
		return WeatherSnapshot{
			LocationName: loc.Name,
			Location:     loc,
			Timestamp:    time.Now().UTC(),
			Condition:    ConditionUnknown,
		}
	}

	var (
		sumTemp     float64
		sumFeels    float64
		sumHumidity float64
		sumWind     float64
		sumPressure float64
		sumPrecip   float64
		sumSin      float64
		sumCos      float64
		name        string
		description string
	)

	conditionCounts := make(map[Condition]int)
	conditionOrder := make([]Condition, 0, len(readings))
	providers := make([]ProviderContribution, 0, len(readings))
	var newestTS time.Time

	for _, r := range readings {
		sumTemp += r.TemperatureC
		sumFeels += r.FeelsLikeC
		sumHumidity += r.HumidityPct
		sumWind += r.WindSpeedKph
		sumPressure += r.PressureHpa
		sumPrecip += r.PrecipMm

		rad := r.WindDirDeg * math.Pi / 180
		sumSin += math.Sin(rad)
		sumCos += math.Cos(rad)

		if _, seen := conditionCounts[r.Condition]; !seen {
			conditionOrder = append(conditionOrder, r.Condition)
		}
		conditionCounts[r.Condition]++

		if name == "" {
			name = r.LocationName
		}
		if description == "" {
			description = r.Description
		}

		if r.Timestamp.After(newestTS) {
			newestTS = r.Timestamp
		}

		providers = append(providers, ProviderContribution{
			ProviderName: r.ProviderName,
			Timestamp:    r.Timestamp,
		})
	}

	n := float64(len(readings))

	// Pick majority condition.
	bestCond := ConditionUnknown
	bestCount := 0
	for _, cond := range conditionOrder {
		if count := conditionCounts[cond]; count > bestCount {
			bestCount = count
			bestCond = cond
		}
	}

	if newestTS.IsZero() {
		newestTS = time.Now().UTC()
	}
	if name == "" {
		name = loc.Name
	}

	return WeatherSnapshot{
		LocationName:  name,
		Location:      loc,
		Timestamp:     newestTS,
		Condition:     bestCond,
		Description:   description,
		Temperature:   sumTemp / n,
		FeelsLike:     sumFeels / n,
		Humidity:      sumHumidity / n,
		WindSpeed:     sumWind / n,
		WindDirection: circularMeanDeg(sumSin, sumCos),
		Pressure:      sumPressure / n,
		PrecipMM:      sumPrecip / n,
		Providers:     providers,
	}
}

// circularMeanDeg returns the mean bearing in [0, 360) for summed unit vectors.
func circularMeanDeg(sumSin, sumCos float64) float64 {
	if math.Abs(sumSin) < 1e-9 && math.Abs(sumCos) < 1e-9 {
		return 0
	}
	deg := math.Round(math.Atan2(sumSin, sumCos)*180/math.Pi*10) / 10
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg -= 360
	}
	return deg
}
