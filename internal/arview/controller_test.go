package arview

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/i474232898/weather-ar-overlay/internal/anchor"
	"github.com/i474232898/weather-ar-overlay/internal/metrics"
	"github.com/i474232898/weather-ar-overlay/internal/overlay"
	"github.com/i474232898/weather-ar-overlay/internal/refresher"
	"github.com/i474232898/weather-ar-overlay/internal/sensor"
	"github.com/i474232898/weather-ar-overlay/internal/weather"
)

var madrid = weather.Location{Name: "Madrid", Lat: 40.4168, Lon: -3.7038}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingHaptics struct {
	mu    sync.Mutex
	fired []overlay.Feedback
}

func (h *recordingHaptics) Play(_ context.Context, f overlay.Feedback) error {
	h.mu.Lock()
	h.fired = append(h.fired, f)
	h.mu.Unlock()
	return nil
}

func (h *recordingHaptics) has(f overlay.Feedback) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, got := range h.fired {
		if got == f {
			return true
		}
	}
	return false
}

// recordingMetrics keeps refresh results and the last visibility reported.
type recordingMetrics struct {
	mu      sync.Mutex
	results []string
	visible []bool
}

func (m *recordingMetrics) RecordRefresh(result string, _ time.Duration) {
	m.mu.Lock()
	m.results = append(m.results, result)
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordVisibility(v bool) {
	m.mu.Lock()
	m.visible = append(m.visible, v)
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordSample(string) {}

func (m *recordingMetrics) RecordRequest(string, string, int, time.Duration) {}

func (m *recordingMetrics) refreshResults() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.results...)
}

func (m *recordingMetrics) lastVisible() (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.visible) == 0 {
		return false, false
	}
	return m.visible[len(m.visible)-1], true
}

type harness struct {
	c       *Controller
	accel   *sensor.PushStream
	motion  *sensor.PushStream
	clock   *fakeClock
	haptics *recordingHaptics
	metrics *recordingMetrics
}

func newHarness(t *testing.T, fetcher refresher.Fetcher, perm overlay.Permission) *harness {
	t.Helper()
	return newHarnessWithRefresh(t, fetcher, perm, refresher.Options{Interval: time.Hour, Settle: -1})
}

func newHarnessWithRefresh(t *testing.T, fetcher refresher.Fetcher, perm overlay.Permission, refresh refresher.Options) *harness {
	t.Helper()
	h := &harness{
		accel:   sensor.NewPushStream("accelerometer", true),
		motion:  sensor.NewPushStream("motion", true),
		clock:   newFakeClock(),
		haptics: &recordingHaptics{},
		metrics: &recordingMetrics{},
	}
	h.c = New(
		Params{
			Initial:  weather.WeatherSnapshot{LocationName: "Madrid", Description: "Soleado", Temperature: 21},
			Location: madrid,
		},
		Deps{Accel: h.accel, Motion: h.motion, Fetcher: fetcher, Haptics: h.haptics, Metrics: h.metrics},
		Options{
			Permission: perm,
			Refresh:    refresh,
			Now:        h.clock.Now,
		},
	)
	t.Cleanup(h.c.Deactivate)
	return h
}

func rotation(betaDeg, gammaDeg float64) sensor.Reading {
	return sensor.Reading{Rotation: &sensor.Rotation{
		Beta:  betaDeg * math.Pi / 180,
		Gamma: gammaDeg * math.Pi / 180,
	}}
}

// pushAndWait pushes a rotation and waits until the controller applied it.
func (h *harness) pushAndWait(t *testing.T, betaDeg, gammaDeg float64) {
	t.Helper()
	h.motion.Push(rotation(betaDeg, gammaDeg))
	require.Eventually(t, func() bool {
		o := h.c.Orientation()
		return math.Abs(o.Beta-betaDeg) < 1e-9 && math.Abs(o.Gamma-gammaDeg) < 1e-9
	}, time.Second, time.Millisecond)
}

func staticFetcher(snap weather.WeatherSnapshot) refresher.Fetcher {
	return refresher.FetcherFunc(func(context.Context, weather.Location) (weather.WeatherSnapshot, error) {
		return snap, nil
	})
}

// blockingFetcher holds every fetch until its context ends.
func blockingFetcher(calls *atomic.Int32) refresher.Fetcher {
	return refresher.FetcherFunc(func(ctx context.Context, _ weather.Location) (weather.WeatherSnapshot, error) {
		calls.Inc()
		<-ctx.Done()
		return weather.WeatherSnapshot{}, ctx.Err()
	})
}

func failingFetcher() refresher.Fetcher {
	return refresher.FetcherFunc(func(context.Context, weather.Location) (weather.WeatherSnapshot, error) {
		return weather.WeatherSnapshot{}, errors.New("upstream down")
	})
}

func TestAnchorVisibilityScenario(t *testing.T) {
	h := newHarness(t, failingFetcher(), overlay.PermissionGranted)
	id, events := h.c.Subscribe(64)
	defer h.c.Unsubscribe(id)

	require.NoError(t, h.c.Activate(context.Background()))
	h.pushAndWait(t, 10, 5)
	h.clock.Advance(time.Second)

	anc := h.c.AnchorHere(context.Background())
	assert.InDelta(t, 10.0, anc.Beta, 1e-9)
	assert.InDelta(t, 5.0, anc.Gamma, 1e-9)
	state, _ := h.c.AnchorState()
	assert.Equal(t, anchor.Anchored, state)
	assert.True(t, h.haptics.has(overlay.NotifySuccess))

	h.pushAndWait(t, 25, 5)
	assert.True(t, h.c.Visible(), "beta deviation 15 stays in view")

	h.pushAndWait(t, 35, 5)
	assert.False(t, h.c.Visible(), "beta deviation 25 leaves the view")

	flip := h.clock.Now()
	assert.InDelta(t, 1.0, h.c.Frame(flip).Opacity, 1e-9)
	assert.InDelta(t, 0.5, h.c.Frame(flip.Add(150*time.Millisecond)).Opacity, 1e-9)
	assert.InDelta(t, 0.0, h.c.Frame(flip.Add(300*time.Millisecond)).Opacity, 1e-9)
	assert.False(t, h.c.Frame(flip).Visible)

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == EventVisibility && !ev.Visible {
				assert.True(t, ev.Anchored)
				return
			}
		case <-deadline:
			t.Fatal("no visibility event published")
		}
	}
}

func TestClearAnchorRestoresVisibility(t *testing.T) {
	h := newHarness(t, failingFetcher(), overlay.PermissionGranted)
	require.NoError(t, h.c.Activate(context.Background()))

	h.pushAndWait(t, 0, 0)
	h.c.AnchorHere(context.Background())
	h.pushAndWait(t, 0, 40)
	require.False(t, h.c.Visible())

	h.c.ClearAnchor(context.Background())
	assert.True(t, h.c.Visible())
	state, _ := h.c.AnchorState()
	assert.Equal(t, anchor.Unanchored, state)

	h.pushAndWait(t, 80, 80)
	assert.True(t, h.c.Visible(), "unanchored panel is always visible")
}

func TestFrameFollowsSensors(t *testing.T) {
	h := newHarness(t, failingFetcher(), overlay.PermissionGranted)
	require.NoError(t, h.c.Activate(context.Background()))

	h.accel.Push(sensor.Reading{Acceleration: &sensor.Vector{X: 1, Y: 2}})
	require.Eventually(t, func() bool {
		return h.c.Frame(h.clock.Now()).TranslateY != 0
	}, time.Second, time.Millisecond)

	f := h.c.Frame(h.clock.Now())
	assert.InDelta(t, -0.75, f.TranslateX, 1e-9)
	assert.InDelta(t, 1.5, f.TranslateY, 1e-9)
	assert.InDelta(t, 1.0, f.Depth, 1e-9)
	assert.InDelta(t, 0.075, f.ParallaxX, 1e-9)
	assert.InDelta(t, -0.15, f.ParallaxY, 1e-9)
}

func TestRefreshUpdatesPanel(t *testing.T) {
	fresh := weather.WeatherSnapshot{
		LocationName:  "Madrid",
		Description:   "Lluvia ligera",
		Temperature:   17,
		FeelsLike:     16,
		Humidity:      80,
		WindSpeed:     10,
		WindDirection: 200,
	}
	h := newHarness(t, staticFetcher(fresh), overlay.PermissionGranted)
	require.NoError(t, h.c.Activate(context.Background()))

	require.Eventually(t, func() bool {
		snap, _ := h.c.Snapshot()
		return snap.Temperature == 17
	}, time.Second, time.Millisecond)

	v := h.c.View(h.clock.Now())
	require.NotNil(t, v.Panel)
	assert.Equal(t, "Lat: 40.4168, Lon: -3.7038", v.Panel.Coordinates)
	assert.Equal(t, "🌧️", v.Panel.Emoji)
	assert.NotEmpty(t, v.Panel.Updated)
	require.Eventually(t, func() bool { return h.haptics.has(overlay.ImpactLight) }, time.Second, time.Millisecond)
}

func TestRefreshFailureKeepsData(t *testing.T) {
	h := newHarness(t, failingFetcher(), overlay.PermissionGranted)
	require.NoError(t, h.c.Activate(context.Background()))

	require.Eventually(t, func() bool {
		return !h.c.Frame(h.clock.Now()).Loading && h.c.Active()
	}, time.Second, time.Millisecond)

	snap, _ := h.c.Snapshot()
	assert.Equal(t, 21.0, snap.Temperature)
	assert.Empty(t, h.c.View(h.clock.Now()).LoadingText)
}

func TestRefreshNowIsGuarded(t *testing.T) {
	release := make(chan struct{})
	fetcher := refresher.FetcherFunc(func(ctx context.Context, _ weather.Location) (weather.WeatherSnapshot, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return weather.WeatherSnapshot{Temperature: 30}, nil
	})
	h := newHarness(t, fetcher, overlay.PermissionGranted)
	require.NoError(t, h.c.Activate(context.Background()))

	assert.False(t, h.c.RefreshNow(context.Background()), "activation fetch still in flight")
	assert.True(t, h.haptics.has(overlay.ImpactMedium))
	assert.Equal(t, LoadingText, h.c.View(h.clock.Now()).LoadingText)
	close(release)
}

func TestDeactivateReleasesEverything(t *testing.T) {
	h := newHarness(t, failingFetcher(), overlay.PermissionGranted)
	require.NoError(t, h.c.Activate(context.Background()))
	require.NoError(t, h.c.Activate(context.Background()))

	assert.True(t, h.c.Active())
	assert.Equal(t, 1, h.motion.Subscribers())
	assert.Equal(t, 1, h.accel.Subscribers())
	assert.Equal(t, 1, h.c.TimerJobs())

	h.c.Deactivate()
	h.c.Deactivate()

	assert.False(t, h.c.Active())
	assert.Equal(t, 0, h.motion.Subscribers())
	assert.Equal(t, 0, h.accel.Subscribers())
	assert.Equal(t, 0, h.c.TimerJobs())
	assert.Equal(t, 0, h.c.Subscriptions())
}

func TestContextCancelDeactivates(t *testing.T) {
	h := newHarness(t, failingFetcher(), overlay.PermissionGranted)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.c.Activate(ctx))

	cancel()
	require.Eventually(t, func() bool { return !h.c.Active() }, time.Second, time.Millisecond)
	assert.Equal(t, 0, h.motion.Subscribers())
	assert.Equal(t, 0, h.c.TimerJobs())
}

func TestReactivationStartsUnanchored(t *testing.T) {
	h := newHarness(t, failingFetcher(), overlay.PermissionGranted)
	require.NoError(t, h.c.Activate(context.Background()))
	h.c.AnchorHere(context.Background())
	h.c.Deactivate()

	require.NoError(t, h.c.Activate(context.Background()))
	state, _ := h.c.AnchorState()
	assert.Equal(t, anchor.Unanchored, state)
}

func TestUnavailableSensorIsSkipped(t *testing.T) {
	h := newHarness(t, failingFetcher(), overlay.PermissionGranted)
	h.accel.SetAvailable(false)

	require.NoError(t, h.c.Activate(context.Background()))
	assert.Equal(t, 1, h.c.Subscriptions())
	assert.Equal(t, 0, h.accel.Subscribers())
}

func TestPermissionGatesEntry(t *testing.T) {
	h := newHarness(t, failingFetcher(), overlay.PermissionRequesting)
	require.NoError(t, h.c.Activate(context.Background()))

	v := h.c.View(h.clock.Now())
	assert.Nil(t, v.Panel)
	assert.Equal(t, "requesting", v.Permission.State)
	assert.InDelta(t, 0.0, v.Frame.Opacity, 1e-9)

	h.c.SetPermission(context.Background(), overlay.PermissionGranted)
	start := h.clock.Now()
	assert.InDelta(t, 0.5, h.c.Frame(start.Add(400*time.Millisecond)).Opacity, 1e-9)
	assert.InDelta(t, 1.0, h.c.Frame(start.Add(time.Second)).Opacity, 1e-9)
	assert.InDelta(t, 0.9, h.c.Frame(start).Scale, 1e-9)
	assert.InDelta(t, 1.0, h.c.Frame(start.Add(5*time.Second)).Scale, 1e-3)
	assert.NotNil(t, h.c.View(h.clock.Now()).Panel)
}

func TestDeniedPermissionOffersSettings(t *testing.T) {
	h := newHarness(t, failingFetcher(), overlay.PermissionDenied)
	v := h.c.View(h.clock.Now())

	assert.Nil(t, v.Panel)
	assert.Equal(t, "No se ha concedido acceso a la cámara", v.Permission.Message)
	assert.Contains(t, v.SettingsURL, "android.settings")
}

func TestGoBackTearsDownAndNavigates(t *testing.T) {
	var navigated bool
	h := newHarness(t, failingFetcher(), overlay.PermissionGranted)
	h.c.deps.Navigator = overlay.NavigatorFunc(func(context.Context) error {
		navigated = true
		return nil
	})
	require.NoError(t, h.c.Activate(context.Background()))

	require.NoError(t, h.c.GoBack(context.Background()))
	assert.True(t, navigated)
	assert.False(t, h.c.Active())
	assert.Equal(t, 0, h.motion.Subscribers())
}

func TestDeactivateMidFetchEndsWithClosedEvent(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t, blockingFetcher(&calls), overlay.PermissionGranted)
	id, events := h.c.Subscribe(64)
	defer h.c.Unsubscribe(id)

	require.NoError(t, h.c.Activate(context.Background()))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	h.c.Deactivate()
	require.Eventually(t, func() bool { return !h.c.refresher.InFlight() }, time.Second, time.Millisecond)

	var last Event
	for drained := false; !drained; {
		select {
		case last = <-events:
		case <-time.After(50 * time.Millisecond):
			drained = true
		}
	}
	assert.Equal(t, EventClosed, last.Kind)
	assert.False(t, last.Loading)

	lateID, late := h.c.Subscribe(1)
	defer h.c.Unsubscribe(lateID)
	assert.Equal(t, EventClosed, (<-late).Kind, "new listeners see that the screen closed")

	assert.NotContains(t, h.metrics.refreshResults(), metrics.ResultFailure)
	assert.False(t, h.c.Frame(h.clock.Now()).Loading)
}

func TestReactivationRefetchesImmediately(t *testing.T) {
	var calls atomic.Int32
	h := newHarnessWithRefresh(t, blockingFetcher(&calls), overlay.PermissionGranted,
		refresher.Options{Interval: time.Hour, Settle: 50 * time.Millisecond})

	require.NoError(t, h.c.Activate(context.Background()))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	h.c.Deactivate()

	require.NoError(t, h.c.Activate(context.Background()))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return h.c.Frame(h.clock.Now()).Loading }, time.Second, time.Millisecond)
}

func TestRefreshNowWhileInactive(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t, blockingFetcher(&calls), overlay.PermissionGranted)

	assert.False(t, h.c.RefreshNow(context.Background()))
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, []string{metrics.ResultSkipped}, h.metrics.refreshResults())
}

func TestTeardownWhileHiddenRestoresVisibilityMetric(t *testing.T) {
	h := newHarness(t, failingFetcher(), overlay.PermissionGranted)
	require.NoError(t, h.c.Activate(context.Background()))

	h.pushAndWait(t, 0, 0)
	h.c.AnchorHere(context.Background())
	h.pushAndWait(t, 0, 40)
	require.False(t, h.c.Visible())
	v, ok := h.metrics.lastVisible()
	require.True(t, ok)
	require.False(t, v)

	h.c.Deactivate()
	v, _ = h.metrics.lastVisible()
	assert.True(t, v)
	assert.True(t, h.c.Visible())
}
