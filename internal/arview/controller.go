// Package arview is the AR weather screen controller. It owns every piece of
// mutable screen state and applies sensor samples, refresh results and user
// actions in arrival order on a single event loop.
package arview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/i474232898/weather-ar-overlay/internal/anchor"
	"github.com/i474232898/weather-ar-overlay/internal/metrics"
	"github.com/i474232898/weather-ar-overlay/internal/overlay"
	"github.com/i474232898/weather-ar-overlay/internal/refresher"
	"github.com/i474232898/weather-ar-overlay/internal/sensor"
	"github.com/i474232898/weather-ar-overlay/internal/transform"
	"github.com/i474232898/weather-ar-overlay/internal/weather"
)

// AnchorNotice is shown to the user after anchoring.
const AnchorNotice = "El panel se mostrará en esta posición cuando mires aquí."

// LoadingText is shown while a refresh is in flight.
const LoadingText = "Actualizando datos..."

var errNoFetcher = errors.New("arview: no weather fetcher configured")

// Params are the screen-entry parameters handed over by the previous screen.
type Params struct {
	Initial  weather.WeatherSnapshot
	Location weather.Location
}

// Deps are the platform collaborators. Nil streams are treated as unavailable.
type Deps struct {
	Accel     sensor.Stream
	Motion    sensor.Stream
	Fetcher   refresher.Fetcher
	Haptics   overlay.Haptics
	Navigator overlay.Navigator
	Metrics   metrics.Recorder
	Logger    *slog.Logger
}

// Options tune the controller. Zero values fall back to DefaultOptions.
type Options struct {
	Sensor     sensor.Config
	Transform  transform.Config
	Threshold  float64
	Refresh    refresher.Options
	Permission overlay.Permission
	Platform   string
	AppID      string
	TimeZone   *time.Location
	QueueSize  int
	Now        func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Sensor:     sensor.DefaultConfig(),
		Transform:  transform.DefaultConfig(),
		Threshold:  anchor.DefaultThreshold,
		Refresh:    refresher.DefaultOptions(),
		Permission: overlay.PermissionRequesting,
		Platform:   "android",
		TimeZone:   time.Local,
		QueueSize:  256,
		Now:        time.Now,
	}
}

// state is only touched while holding Controller.mu, which the loop holds for
// the duration of each event.
type state struct {
	tracker    *anchor.Tracker
	accel      sensor.Acceleration
	motion     sensor.Motion
	snapshot   weather.WeatherSnapshot
	updatedAt  time.Time
	loading    bool
	fetchStart time.Time
	permission overlay.Permission
	entered    bool
	opacity    transform.Animation
	scale      transform.Animation
}

// run is one activation of the event loop.
type run struct {
	events chan func(now time.Time)
	done   chan struct{}
}

type Controller struct {
	params    Params
	opts      Options
	deps      Deps
	logger    *slog.Logger
	engine    *transform.Engine
	sampler   *sensor.Sampler
	refresher *refresher.Refresher
	events    *Broadcaster

	mu sync.Mutex
	st state

	life   sync.Mutex
	cur    atomic.Pointer[run]
	cancel context.CancelFunc
}

// New builds an inactive controller. Nothing runs until Activate.
func New(p Params, deps Deps, opts Options) *Controller {
	def := DefaultOptions()
	if opts.Sensor == (sensor.Config{}) {
		opts.Sensor = def.Sensor
	}
	if opts.Transform == (transform.Config{}) {
		opts.Transform = def.Transform
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	if opts.TimeZone == nil {
		opts.TimeZone = def.TimeZone
	}
	if opts.Platform == "" {
		opts.Platform = def.Platform
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = (*metrics.Metrics)(nil)
	}
	if deps.Fetcher == nil {
		deps.Fetcher = refresher.FetcherFunc(func(context.Context, weather.Location) (weather.WeatherSnapshot, error) {
			return weather.WeatherSnapshot{}, errNoFetcher
		})
	}

	c := &Controller{
		params: p,
		opts:   opts,
		deps:   deps,
		logger: deps.Logger.With("component", "arview"),
		engine: transform.NewEngine(opts.Transform),
		events: NewBroadcaster(),
	}
	c.st = c.freshState()

	c.sampler = sensor.NewSampler(deps.Accel, deps.Motion, opts.Sensor, sensor.Handlers{
		OnMotion:       c.onMotion,
		OnAcceleration: c.onAcceleration,
	}, c.logger)
	c.refresher = refresher.New(deps.Fetcher, p.Location, opts.Refresh, refresher.Hooks{
		OnStart:  c.onFetchStart,
		OnUpdate: c.onFetchUpdate,
		OnError:  c.onFetchError,
	}, c.logger)
	if !p.Initial.IsZero() {
		c.refresher.Seed(p.Initial)
	}
	return c
}

func (c *Controller) freshState() state {
	st := state{
		tracker:    anchor.NewTracker(c.opts.Threshold),
		snapshot:   c.params.Initial,
		permission: c.opts.Permission,
		opacity:    transform.Still(0),
		scale:      transform.Still(transform.EntryScale),
	}
	if !c.params.Initial.IsZero() {
		st.updatedAt = c.params.Initial.Timestamp
	}
	return st
}

// Activate subscribes to the sensors, starts the event loop and the refresher.
// It is a no-op while already active. Cancelling ctx deactivates the screen.
func (c *Controller) Activate(ctx context.Context) error {
	c.life.Lock()
	defer c.life.Unlock()

	if c.cur.Load() != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &run{
		events: make(chan func(time.Time), c.opts.QueueSize),
		done:   make(chan struct{}),
	}
	c.cancel = cancel
	c.cur.Store(r)
	go c.loop(ctx, r)

	streams := c.sampler.Start(ctx)

	var shown bool
	c.send(func(now time.Time) {
		if c.st.snapshot.IsZero() {
			if snap, ok := c.refresher.Latest(); ok {
				c.st.snapshot = snap
			}
		}
		shown = c.enterLocked(now)
	})
	if shown {
		overlay.Fire(ctx, c.deps.Haptics, overlay.ImpactLight, c.logger)
	}

	if err := c.refresher.Start(ctx); err != nil {
		c.teardown()
		return fmt.Errorf("start refresher: %w", err)
	}

	go func() {
		<-ctx.Done()
		c.life.Lock()
		defer c.life.Unlock()
		if c.cur.Load() == r {
			c.teardown()
		}
	}()

	c.logger.Info("ar view activated", "location", c.params.Location.Key(), "streams", streams)
	return nil
}

// Deactivate releases every sensor subscription, cancels the refresh timer and
// any fetch in flight, and stops the loop. Safe to call repeatedly.
func (c *Controller) Deactivate() {
	c.life.Lock()
	defer c.life.Unlock()
	c.teardown()
}

func (c *Controller) teardown() {
	r := c.cur.Load()
	if r == nil {
		return
	}

	c.sampler.Stop()
	c.refresher.Stop()
	c.cancel()
	<-r.done
	c.cur.Store(nil)

	c.apply(func(now time.Time) {
		// The anchor and animations belong to the activation; data and
		// permission outlive it.
		prev := c.st
		c.st = c.freshState()
		c.st.snapshot = prev.snapshot
		c.st.updatedAt = prev.updatedAt
		c.st.permission = prev.permission
		if !prev.tracker.Visible() {
			c.deps.Metrics.RecordVisibility(true)
		}
		c.publishLocked(EventClosed, now)
	})
	c.logger.Info("ar view deactivated", "location", c.params.Location.Key())
}

// Active reports whether the screen is currently activated.
func (c *Controller) Active() bool { return c.cur.Load() != nil }

func (c *Controller) loop(ctx context.Context, r *run) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			c.apply(ev)
		}
	}
}

func (c *Controller) apply(ev func(now time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev(c.opts.Now())
}

// post queues ev without blocking and reports false when the queue is full.
// Outside an activation ev is applied directly.
func (c *Controller) post(ev func(now time.Time)) bool {
	r := c.cur.Load()
	if r == nil {
		c.apply(ev)
		return true
	}
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		c.apply(ev)
		return true
	default:
		return false
	}
}

// send queues ev and waits until it has been applied. It must never be called
// from the loop itself.
func (c *Controller) send(ev func(now time.Time)) {
	r := c.cur.Load()
	if r != nil {
		done := make(chan struct{})
		wrapped := func(now time.Time) {
			ev(now)
			close(done)
		}
		select {
		case r.events <- wrapped:
			select {
			case <-done:
				return
			case <-r.done:
				select {
				case <-done:
					return
				default:
				}
			}
		case <-r.done:
		}
	}
	c.apply(ev)
}

func (c *Controller) onMotion(m sensor.Motion) {
	ok := c.post(func(now time.Time) {
		c.st.motion = m
		if ch, flipped := c.st.tracker.Update(m.Orientation); flipped {
			c.flipLocked(ch, now)
		}
	})
	if ok {
		c.deps.Metrics.RecordSample("motion")
	}
}

func (c *Controller) onAcceleration(a sensor.Acceleration) {
	if c.post(func(time.Time) { c.st.accel = a }) {
		c.deps.Metrics.RecordSample("accelerometer")
	}
}

// Fetch hooks drop results arriving once the activation is gone; teardown has
// already published the closed event.

func (c *Controller) onFetchStart() {
	c.send(func(now time.Time) {
		if c.cur.Load() == nil {
			return
		}
		c.st.loading = true
		c.st.fetchStart = now
		c.publishLocked(EventLoading, now)
	})
}

func (c *Controller) onFetchUpdate(snap weather.WeatherSnapshot, fetchedAt time.Time) {
	var (
		took  time.Duration
		stale bool
	)
	c.send(func(now time.Time) {
		if c.cur.Load() == nil {
			stale = true
			return
		}
		took = now.Sub(c.st.fetchStart)
		c.st.snapshot = snap
		c.st.updatedAt = fetchedAt
		c.st.loading = false
		if c.st.entered && c.st.scale.Done(now) {
			c.st.scale = transform.Pulse(now)
		}
		c.publishLocked(EventData, now)
	})
	if stale {
		return
	}
	c.deps.Metrics.RecordRefresh(metrics.ResultSuccess, took)
	overlay.Fire(context.Background(), c.deps.Haptics, overlay.ImpactLight, c.logger)
}

func (c *Controller) onFetchError(err error) {
	var (
		took  time.Duration
		stale bool
	)
	c.send(func(now time.Time) {
		if c.cur.Load() == nil {
			stale = true
			return
		}
		took = now.Sub(c.st.fetchStart)
		c.st.loading = false
		c.publishLocked(EventLoading, now)
	})
	if stale {
		return
	}
	c.deps.Metrics.RecordRefresh(metrics.ResultFailure, took)
}

// targetOpacityLocked is where the panel opacity settles for the current state.
func (c *Controller) targetOpacityLocked() float64 {
	if c.st.entered && c.st.tracker.Visible() {
		return 1
	}
	return 0
}

func (c *Controller) flipLocked(ch anchor.Change, now time.Time) {
	c.st.opacity = transform.FadeTo(c.st.opacity, c.targetOpacityLocked(), now)
	c.deps.Metrics.RecordVisibility(ch.Visible)
	c.logger.Debug("panel visibility changed",
		"visible", ch.Visible,
		"beta_deviation", ch.Deviation.Beta,
		"gamma_deviation", ch.Deviation.Gamma,
	)
	c.publishLocked(EventVisibility, now)
}

// enterLocked plays the entry animation once per activation, as soon as the
// screen is active and the camera permission is granted.
func (c *Controller) enterLocked(now time.Time) bool {
	if c.st.entered || c.st.permission != overlay.PermissionGranted || c.cur.Load() == nil {
		return false
	}
	c.st.entered = true
	c.st.opacity = transform.Tween{From: 0, To: c.targetOpacityLocked(), Duration: transform.EntryDuration, Start: now}
	c.st.scale = transform.EntrySpring(now)
	return true
}

func (c *Controller) publishLocked(kind EventKind, now time.Time) {
	_, anchored := c.st.tracker.Anchor()
	ev := Event{
		Kind:       kind,
		Visible:    c.st.tracker.Visible(),
		Anchored:   anchored,
		Loading:    c.st.loading,
		Permission: c.st.permission.String(),
		At:         now,
	}
	if kind == EventData {
		p := c.panelLocked()
		ev.Panel = &p
	}
	c.events.Publish(ev)
}

func (c *Controller) panelLocked() overlay.Panel {
	return overlay.NewPanel(c.st.snapshot, c.params.Location, c.st.updatedAt, c.opts.TimeZone)
}

// AnchorHere pins the panel to the current orientation and returns the anchor.
func (c *Controller) AnchorHere(ctx context.Context) sensor.Orientation {
	var anc sensor.Orientation
	c.send(func(now time.Time) {
		ch, flipped := c.st.tracker.AnchorCurrent()
		anc, _ = c.st.tracker.Anchor()
		if flipped {
			c.flipLocked(ch, now)
		}
		c.publishLocked(EventAnchor, now)
	})
	overlay.Fire(ctx, c.deps.Haptics, overlay.NotifySuccess, c.logger)
	c.logger.Info("panel anchored", "alpha", anc.Alpha, "beta", anc.Beta, "gamma", anc.Gamma)
	return anc
}

// ClearAnchor returns the panel to the unanchored, always visible state.
func (c *Controller) ClearAnchor(ctx context.Context) {
	c.send(func(now time.Time) {
		if ch, flipped := c.st.tracker.Clear(); flipped {
			c.flipLocked(ch, now)
		}
		c.publishLocked(EventAnchor, now)
	})
	overlay.Fire(ctx, c.deps.Haptics, overlay.ImpactLight, c.logger)
}

// RefreshNow asks for an immediate refresh. It reports false when a fetch is
// already in flight or the screen is not active.
func (c *Controller) RefreshNow(ctx context.Context) bool {
	overlay.Fire(ctx, c.deps.Haptics, overlay.ImpactMedium, c.logger)
	if !c.Active() || !c.refresher.Refresh() {
		c.deps.Metrics.RecordRefresh(metrics.ResultSkipped, 0)
		return false
	}
	return true
}

// GoBack leaves the screen: it tears the activation down and then hands
// control back to the navigator.
func (c *Controller) GoBack(ctx context.Context) error {
	overlay.Fire(ctx, c.deps.Haptics, overlay.ImpactLight, c.logger)
	c.Deactivate()
	if c.deps.Navigator == nil {
		return nil
	}
	if err := c.deps.Navigator.GoBack(ctx); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	return nil
}

// SetPermission records the camera permission state. Granting it while the
// screen is active plays the entry animation.
func (c *Controller) SetPermission(ctx context.Context, p overlay.Permission) {
	var shown bool
	c.send(func(now time.Time) {
		c.st.permission = p
		shown = c.enterLocked(now)
		c.publishLocked(EventPermission, now)
	})
	if shown {
		overlay.Fire(ctx, c.deps.Haptics, overlay.ImpactLight, c.logger)
	}
}

// SettingsURL opens this application's settings on the configured platform.
func (c *Controller) SettingsURL() string {
	return overlay.SettingsTarget(c.opts.Platform, c.opts.AppID)
}

// Subscribe registers a listener for screen events.
func (c *Controller) Subscribe(buffer int) (int, <-chan Event) {
	return c.events.Subscribe(buffer)
}

func (c *Controller) Unsubscribe(id int) {
	c.events.Unsubscribe(id)
}

// Visible reports the current panel visibility.
func (c *Controller) Visible() bool {
	var v bool
	c.send(func(time.Time) { v = c.st.tracker.Visible() })
	return v
}

// AnchorState returns the tracker state and the anchor, if any.
func (c *Controller) AnchorState() (anchor.State, sensor.Orientation) {
	var (
		s   anchor.State
		anc sensor.Orientation
	)
	c.send(func(time.Time) {
		s = c.st.tracker.State()
		anc, _ = c.st.tracker.Anchor()
	})
	return s, anc
}

// Orientation is the last orientation sample applied.
func (c *Controller) Orientation() sensor.Orientation {
	var o sensor.Orientation
	c.send(func(time.Time) { o = c.st.tracker.Current() })
	return o
}

// Snapshot returns the render copy of the weather data and when it was fetched.
func (c *Controller) Snapshot() (weather.WeatherSnapshot, time.Time) {
	var (
		snap weather.WeatherSnapshot
		at   time.Time
	)
	c.send(func(time.Time) {
		snap, at = c.st.snapshot, c.st.updatedAt
	})
	return snap, at
}

// Subscriptions reports the number of live sensor subscriptions.
func (c *Controller) Subscriptions() int { return c.sampler.Active() }

// TimerJobs reports the number of active refresh timers.
func (c *Controller) TimerJobs() int { return c.refresher.TimerJobs() }

// Location is the fixed location this screen shows.
func (c *Controller) Location() weather.Location { return c.params.Location }
