package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNoProviders is returned when the service has nothing to fetch from.
	ErrNoProviders = errors.New("no weather providers configured")
	// ErrNoReadings is returned when every provider failed for a fetch.
	ErrNoReadings = errors.New("no successful provider readings")
)

// Service orchestrates fetching from multiple providers and persisting snapshots.
type Service struct {
	store     Store
	providers []Provider
	namer     Namer
	logger    *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithNamer resolves place names for snapshots whose providers did not return one.
func WithNamer(n Namer) Option {
	return func(s *Service) { s.namer = n }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a new Service.
func NewService(store Store, providers []Provider, opts ...Option) *Service {
	s := &Service{
		store:     store,
		providers: providers,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch fetches data from all providers concurrently for the given location,
// aggregates successful readings, stores the snapshot and returns it.
// When no provider succeeds the last good snapshot is left in place and ErrNoReadings is returned.
func (s *Service) Fetch(ctx context.Context, loc Location) (WeatherSnapshot, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		readings = make([]ProviderReading, 0, len(s.providers))
		order    = make(map[string]int, len(s.providers))
	)

	if len(s.providers) == 0 {
		return WeatherSnapshot{}, ErrNoProviders
	}
	s.logger.Debug("fetching weather", "location", loc.Key(), "providers", len(s.providers))

	for i, p := range s.providers {
		order[p.Name()] = i
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()

			r, err := p.Fetch(ctx, loc)
			if err != nil {
				// Log and continue; we want partial success when possible.
				s.logger.Warn("provider fetch failed", "provider", p.Name(), "location", loc.Key(), "error", err)
				return
			}
			if r.ProviderName == "" {
				r.ProviderName = p.Name()
			}

			mu.Lock()
			readings = append(readings, r)
			mu.Unlock()
		}(p)
	}

	wg.Wait()

	if len(readings) == 0 {
		s.logger.Warn("no successful provider readings; keeping last good snapshot", "location", loc.Key())
		return WeatherSnapshot{}, fmt.Errorf("%s: %w", loc.Key(), ErrNoReadings)
	}

	// Keep configured provider order so the first-non-empty rules stay deterministic.
	sortReadings(readings, order)

	snapshot := AggregateReadings(loc, readings)
	if snapshot.LocationName == "" && s.namer != nil {
		name, err := s.namer.PlaceName(ctx, loc)
		if err != nil {
			s.logger.Debug("place name lookup failed", "location", loc.Key(), "error", err)
		} else {
			snapshot.LocationName = name
		}
	}
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now().UTC()
	}
	s.store.SaveSnapshot(loc, snapshot)
	return snapshot, nil
}

func sortReadings(readings []ProviderReading, order map[string]int) {
	sort.SliceStable(readings, func(i, j int) bool {
		return order[readings[i].ProviderName] < order[readings[j].ProviderName]
	})
}

// GetLatest delegates to the underlying store.
func (s *Service) GetLatest(loc Location) (WeatherSnapshot, error) {
	return s.store.GetLatest(loc)
}

// GetRange delegates to the underlying store.
func (s *Service) GetRange(loc Location, from, to time.Time) ([]WeatherSnapshot, error) {
	return s.store.GetRange(loc, from, to)
}
