package store

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/weather-ar-overlay/internal/weather"
)

var (
	// ErrNotFound is returned when no data is available for a given location.
	ErrNotFound = errors.New("no weather data for location")
)

// MemoryStore is a concurrency-safe in-memory history of refreshed snapshots.
// Every successful refresh appends one entry; the overlay itself only ever reads the latest.
type MemoryStore struct {
	mu sync.RWMutex

	// key: location key, value: snapshots ordered by insertion
	data map[string][]weather.WeatherSnapshot

	maxHistory int           // max number of snapshots per location (<= 0 unlimited)
	maxAge     time.Duration // max age of snapshots (<= 0 unlimited)

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string][]weather.WeatherSnapshot),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// SaveSnapshot appends a new snapshot for a location and enforces retention.
func (s *MemoryStore) SaveSnapshot(loc weather.Location, snapshot weather.WeatherSnapshot) {
	key := loc.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = s.prune(append(s.data[key], snapshot))
}

// prune drops entries beyond the count limit, then entries older than maxAge.
// The newest entry always survives so GetLatest keeps answering after long pauses.
func (s *MemoryStore) prune(history []weather.WeatherSnapshot) []weather.WeatherSnapshot {
	if s.maxHistory > 0 && len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}
	if s.maxAge <= 0 {
		return history
	}

	cutoff := s.now().Add(-s.maxAge)
	i := 0
	for i < len(history)-1 && history[i].Timestamp.Before(cutoff) {
		i++
	}
	return history[i:]
}

// GetLatest returns the most recent snapshot for a location.
func (s *MemoryStore) GetLatest(loc weather.Location) (weather.WeatherSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[loc.Key()]
	if len(history) == 0 {
		return weather.WeatherSnapshot{}, ErrNotFound
	}
	return history[len(history)-1], nil
}

// GetRange returns all snapshots for a location between from and to (inclusive).
func (s *MemoryStore) GetRange(loc weather.Location, from, to time.Time) ([]weather.WeatherSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []weather.WeatherSnapshot
	for _, snap := range s.data[loc.Key()] {
		if !snap.Timestamp.Before(from) && !snap.Timestamp.After(to) {
			result = append(result, snap)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// Len returns how many snapshots are retained for a location.
func (s *MemoryStore) Len(loc weather.Location) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[loc.Key()])
}
