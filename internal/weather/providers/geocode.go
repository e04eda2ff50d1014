package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-ar-overlay/internal/weather"
)

var errNoAddress = errors.New("geocoder returned no address")

// geocoderMu guards the package-level key of the geocoder library.
var geocoderMu sync.Mutex

// GeocoderNamer resolves a place name through Google reverse geocoding.
// Results are cached per location key since the overlay location never moves.
type GeocoderNamer struct {
	apiKey  string
	reverse func(geocoder.Location) ([]geocoder.Address, error)

	mu    sync.Mutex
	cache map[string]string
}

func NewGeocoderNamer(apiKey string) *GeocoderNamer {
	return &GeocoderNamer{
		apiKey:  apiKey,
		reverse: geocoder.GeocodingReverse,
		cache:   make(map[string]string),
	}
}

func (n *GeocoderNamer) PlaceName(ctx context.Context, loc weather.Location) (string, error) {
	if n.apiKey == "" {
		return "", fmt.Errorf("geocoder: %w", ErrMissingAPIKey)
	}

	key := loc.Key()
	n.mu.Lock()
	if name, ok := n.cache[key]; ok {
		n.mu.Unlock()
		return name, nil
	}
	n.mu.Unlock()

	type result struct {
		name string
		err  error
	}
	done := make(chan result, 1)

	// The library has no context support; run it aside and abandon it on cancellation.
	go func() {
		geocoderMu.Lock()
		geocoder.ApiKey = n.apiKey
		addresses, err := n.reverse(geocoder.Location{Latitude: loc.Lat, Longitude: loc.Lon})
		geocoderMu.Unlock()
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{name: pickPlaceName(addresses)}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("geocoder: %w", r.err)
		}
		if r.name == "" {
			return "", errNoAddress
		}
		n.mu.Lock()
		n.cache[key] = r.name
		n.mu.Unlock()
		return r.name, nil
	}
}

func pickPlaceName(addresses []geocoder.Address) string {
	for _, a := range addresses {
		if a.City != "" {
			return a.City
		}
	}
	for _, a := range addresses {
		if a.FormattedAddress != "" {
			return a.FormattedAddress
		}
	}
	return ""
}
