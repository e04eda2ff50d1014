package refresher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/i474232898/weather-ar-overlay/internal/weather"
)

var madrid = weather.Location{Name: "Madrid", Lat: 40.4168, Lon: -3.7038}

// gatedFetcher blocks every fetch until release is closed.
type gatedFetcher struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{release: make(chan struct{})}
}

func (g *gatedFetcher) Fetch(ctx context.Context, loc weather.Location) (weather.WeatherSnapshot, error) {
	n := g.calls.Inc()
	select {
	case <-g.release:
	case <-ctx.Done():
		return weather.WeatherSnapshot{}, ctx.Err()
	}
	if g.err != nil {
		return weather.WeatherSnapshot{}, g.err
	}
	return weather.WeatherSnapshot{LocationName: loc.Name, Temperature: float64(n)}, nil
}

func TestRefreshIsSingleFlight(t *testing.T) {
	f := newGatedFetcher()
	r := New(f, madrid, Options{Settle: 10 * time.Millisecond}, Hooks{}, nil)

	assert.True(t, r.Refresh())
	assert.False(t, r.Refresh(), "second refresh is a no-op while the first is in flight")
	assert.True(t, r.InFlight())

	close(f.release)
	require.Eventually(t, func() bool { return !r.InFlight() }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, int64(1), r.Fetches())
}

func TestGuardReleasedOnlyAfterSettle(t *testing.T) {
	done := make(chan time.Time, 1)
	released := make(chan time.Time, 1)
	f := FetcherFunc(func(ctx context.Context, loc weather.Location) (weather.WeatherSnapshot, error) {
		return weather.WeatherSnapshot{Temperature: 20}, nil
	})
	r := New(f, madrid, DefaultOptions(), Hooks{
		OnUpdate:  func(weather.WeatherSnapshot, time.Time) { done <- time.Now() },
		OnRelease: func() { released <- time.Now() },
	}, nil)

	require.True(t, r.Refresh())
	completedAt := <-done

	assert.False(t, r.Refresh(), "guard is still held right after completion")

	releasedAt := <-released
	assert.GreaterOrEqual(t, releasedAt.Sub(completedAt), 300*time.Millisecond)
	assert.False(t, r.InFlight())
	assert.True(t, r.Refresh())
}

func TestFailureKeepsSnapshotAndReleasesGuard(t *testing.T) {
	var errs atomic.Int32
	var releases atomic.Int32
	f := FetcherFunc(func(ctx context.Context, loc weather.Location) (weather.WeatherSnapshot, error) {
		return weather.WeatherSnapshot{}, errors.New("upstream down")
	})
	r := New(f, madrid, Options{Settle: -1}, Hooks{
		OnError:   func(error) { errs.Inc() },
		OnRelease: func() { releases.Inc() },
	}, nil)
	r.Seed(weather.WeatherSnapshot{LocationName: "seeded"})

	require.True(t, r.Refresh())
	require.Eventually(t, func() bool { return releases.Load() == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, int32(1), errs.Load())
	snap, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, "seeded", snap.LocationName)
	assert.True(t, r.LastFetch().IsZero())
}

func TestSuccessReplacesSnapshot(t *testing.T) {
	var mu sync.Mutex
	var got weather.WeatherSnapshot
	f := FetcherFunc(func(ctx context.Context, loc weather.Location) (weather.WeatherSnapshot, error) {
		return weather.WeatherSnapshot{LocationName: "Madrid", Temperature: 23}, nil
	})
	r := New(f, madrid, Options{Settle: -1}, Hooks{
		OnUpdate: func(s weather.WeatherSnapshot, _ time.Time) {
			mu.Lock()
			got = s
			mu.Unlock()
		},
	}, nil)
	r.Seed(weather.WeatherSnapshot{LocationName: "old"})

	require.True(t, r.Refresh())
	require.Eventually(t, func() bool { return !r.InFlight() }, time.Second, time.Millisecond)

	snap, _ := r.Latest()
	assert.Equal(t, 23.0, snap.Temperature)
	assert.False(t, r.LastFetch().IsZero())
	mu.Lock()
	assert.Equal(t, snap, got)
	mu.Unlock()
}

func TestFetchTimeoutReleasesGuard(t *testing.T) {
	f := newGatedFetcher()
	r := New(f, madrid, Options{Settle: -1, Timeout: 20 * time.Millisecond}, Hooks{}, nil)

	require.True(t, r.Refresh())
	require.Eventually(t, func() bool { return !r.InFlight() }, time.Second, time.Millisecond)
	assert.True(t, r.Refresh(), "a stalled fetch does not hold the guard forever")
}

func TestStartRefreshesImmediatelyAndKeepsOneTimer(t *testing.T) {
	f := newGatedFetcher()
	close(f.release)
	r := New(f, madrid, Options{Interval: time.Hour, Settle: -1}, Hooks{}, nil)

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	assert.Equal(t, 1, r.TimerJobs())
	require.Eventually(t, func() bool { return f.calls.Load() >= 1 }, time.Second, time.Millisecond)
}

func TestTimerTriggersRefresh(t *testing.T) {
	f := newGatedFetcher()
	close(f.release)
	r := New(f, madrid, Options{Interval: 30 * time.Millisecond, Settle: -1}, Hooks{}, nil)

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return f.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	r.Stop()
	assert.Equal(t, 0, r.TimerJobs())
}

func TestStopCancelsInFlightFetchWithoutHooks(t *testing.T) {
	f := newGatedFetcher()
	var errs, updates, releases atomic.Int32
	r := New(f, madrid, Options{Interval: time.Hour, Settle: -1}, Hooks{
		OnError:   func(error) { errs.Inc() },
		OnUpdate:  func(weather.WeatherSnapshot, time.Time) { updates.Inc() },
		OnRelease: func() { releases.Inc() },
	}, nil)

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)

	r.Stop()
	require.Eventually(t, func() bool { return releases.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, r.InFlight())
	assert.Equal(t, int32(0), errs.Load(), "a fetch cancelled by Stop is not a failure")
	assert.Equal(t, int32(0), updates.Load())
}

func TestRestartWhileCancelledCycleSettles(t *testing.T) {
	f := newGatedFetcher()
	var starts atomic.Int32
	r := New(f, madrid, Options{Interval: time.Hour, Settle: 50 * time.Millisecond}, Hooks{
		OnStart: func() { starts.Inc() },
	}, nil)

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)

	r.Stop()
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	require.Eventually(t, func() bool { return f.calls.Load() == 2 }, time.Second, time.Millisecond,
		"restart fetches once the cancelled cycle releases the guard, without waiting for the timer")
	assert.Equal(t, int64(2), r.Fetches())
	assert.Equal(t, int32(2), starts.Load())
	assert.True(t, r.InFlight())
}

func TestStopDropsDeferredRefresh(t *testing.T) {
	f := newGatedFetcher()
	var releases atomic.Int32
	r := New(f, madrid, Options{Interval: time.Hour, Settle: 30 * time.Millisecond}, Hooks{
		OnRelease: func() { releases.Inc() },
	}, nil)

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	r.Stop()
	require.NoError(t, r.Start(context.Background()))
	r.Stop()

	require.Eventually(t, func() bool { return releases.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), f.calls.Load())
	assert.False(t, r.InFlight())
	assert.False(t, r.Running())
}

func TestRefreshAfterStopUsesFreshContext(t *testing.T) {
	var ctxErr error
	var mu sync.Mutex
	f := FetcherFunc(func(ctx context.Context, loc weather.Location) (weather.WeatherSnapshot, error) {
		mu.Lock()
		ctxErr = ctx.Err()
		mu.Unlock()
		return weather.WeatherSnapshot{Temperature: 19}, nil
	})
	var updates atomic.Int32
	r := New(f, madrid, Options{Interval: time.Hour, Settle: -1}, Hooks{
		OnUpdate: func(weather.WeatherSnapshot, time.Time) { updates.Inc() },
	}, nil)

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return updates.Load() == 1 && !r.InFlight() }, time.Second, time.Millisecond)
	r.Stop()

	require.True(t, r.Refresh())
	require.Eventually(t, func() bool { return updates.Load() == 2 }, time.Second, time.Millisecond)
	mu.Lock()
	assert.NoError(t, ctxErr)
	mu.Unlock()
}
