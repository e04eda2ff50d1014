package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name    string
	reading ProviderReading
	err     error
}

func (f fakeProvider) Name() string { return f.name }

func (f fakeProvider) Fetch(ctx context.Context, loc Location) (ProviderReading, error) {
	if f.err != nil {
		return ProviderReading{}, f.err
	}
	r := f.reading
	r.ProviderName = f.name
	return r, nil
}

type fakeNamer struct {
	name  string
	calls int
}

func (n *fakeNamer) PlaceName(ctx context.Context, loc Location) (string, error) {
	n.calls++
	return n.name, nil
}

type memStore struct {
	saved []WeatherSnapshot
}

func (m *memStore) SaveSnapshot(loc Location, s WeatherSnapshot) { m.saved = append(m.saved, s) }

func (m *memStore) GetLatest(loc Location) (WeatherSnapshot, error) {
	if len(m.saved) == 0 {
		return WeatherSnapshot{}, errors.New("empty")
	}
	return m.saved[len(m.saved)-1], nil
}

func (m *memStore) GetRange(loc Location, from, to time.Time) ([]WeatherSnapshot, error) {
	return m.saved, nil
}

var madrid = Location{Lat: 40.4168, Lon: -3.7038}

func TestServiceFetchPartialSuccess(t *testing.T) {
	st := &memStore{}
	svc := NewService(st, []Provider{
		fakeProvider{name: "broken", err: errors.New("boom")},
		fakeProvider{name: "ok", reading: ProviderReading{TemperatureC: 18, LocationName: "Madrid", Condition: ConditionClear}},
	})

	snap, err := svc.Fetch(context.Background(), madrid)
	require.NoError(t, err)
	assert.Equal(t, 18.0, snap.Temperature)
	assert.Equal(t, "Madrid", snap.LocationName)
	require.Len(t, st.saved, 1)
}

func TestServiceFetchAllFailKeepsLastGood(t *testing.T) {
	st := &memStore{saved: []WeatherSnapshot{{LocationName: "previous"}}}
	svc := NewService(st, []Provider{fakeProvider{name: "broken", err: errors.New("boom")}})

	_, err := svc.Fetch(context.Background(), madrid)
	require.ErrorIs(t, err, ErrNoReadings)
	require.Len(t, st.saved, 1)

	latest, err := svc.GetLatest(madrid)
	require.NoError(t, err)
	assert.Equal(t, "previous", latest.LocationName)
}

func TestServiceFetchNoProviders(t *testing.T) {
	svc := NewService(&memStore{}, nil)
	_, err := svc.Fetch(context.Background(), madrid)
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestServiceFetchUsesNamerWhenProvidersLackName(t *testing.T) {
	namer := &fakeNamer{name: "Centro, Madrid"}
	svc := NewService(&memStore{}, []Provider{
		fakeProvider{name: "anon", reading: ProviderReading{TemperatureC: 5}},
	}, WithNamer(namer))

	snap, err := svc.Fetch(context.Background(), madrid)
	require.NoError(t, err)
	assert.Equal(t, "Centro, Madrid", snap.LocationName)
	assert.Equal(t, 1, namer.calls)
}

func TestServiceFetchProviderOrderIsStable(t *testing.T) {
	svc := NewService(&memStore{}, []Provider{
		fakeProvider{name: "first", reading: ProviderReading{LocationName: "First"}},
		fakeProvider{name: "second", reading: ProviderReading{LocationName: "Second"}},
	})

	for i := 0; i < 20; i++ {
		snap, err := svc.Fetch(context.Background(), madrid)
		require.NoError(t, err)
		require.Equal(t, "First", snap.LocationName)
	}
}
