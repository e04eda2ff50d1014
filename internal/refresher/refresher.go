// Package refresher keeps the overlay's weather snapshot fresh without ever
// running two fetches at once.
package refresher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/i474232898/weather-ar-overlay/internal/scheduler"
	"github.com/i474232898/weather-ar-overlay/internal/weather"
)

// Fetcher retrieves a snapshot for a location.
type Fetcher interface {
	Fetch(ctx context.Context, loc weather.Location) (weather.WeatherSnapshot, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, loc weather.Location) (weather.WeatherSnapshot, error)

func (f FetcherFunc) Fetch(ctx context.Context, loc weather.Location) (weather.WeatherSnapshot, error) {
	return f(ctx, loc)
}

// Hooks are invoked from the fetch goroutine; receivers must not block.
type Hooks struct {
	OnStart  func()
	OnUpdate func(snap weather.WeatherSnapshot, fetchedAt time.Time)
	OnError  func(err error)
	// OnRelease runs when the guard is released after the settle delay.
	OnRelease func()
}

// Options tunes timing.
type Options struct {
	Interval time.Duration
	Settle   time.Duration
	Timeout  time.Duration
}

// DefaultOptions refreshes every 10s, settles for 300ms and gives each fetch 15s.
func DefaultOptions() Options {
	return Options{
		Interval: 10 * time.Second,
		Settle:   300 * time.Millisecond,
		Timeout:  15 * time.Second,
	}
}

// Refresher runs guarded weather fetches for one location.
type Refresher struct {
	fetcher Fetcher
	loc     weather.Location
	opts    Options
	hooks   Hooks
	logger  *slog.Logger
	sched   *scheduler.Scheduler

	inFlight *atomic.Bool
	// pending is set when Start could not fetch because a cancelled cycle
	// still held the guard; the fetch runs when that guard is released.
	pending *atomic.Bool
	latest   atomic.Pointer[weather.WeatherSnapshot]
	lastAt   *atomic.Time
	fetches  *atomic.Int64

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Refresher. Zero option fields fall back to DefaultOptions; a
// negative Settle releases the guard as soon as a fetch completes.
func New(fetcher Fetcher, loc weather.Location, opts Options, hooks Hooks, logger *slog.Logger) *Refresher {
	def := DefaultOptions()
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	switch {
	case opts.Settle == 0:
		opts.Settle = def.Settle
	case opts.Settle < 0:
		opts.Settle = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Refresher{
		fetcher:  fetcher,
		loc:      loc,
		opts:     opts,
		hooks:    hooks,
		logger:   logger,
		inFlight: atomic.NewBool(false),
		pending:  atomic.NewBool(false),
		lastAt:   atomic.NewTime(time.Time{}),
		fetches:  atomic.NewInt64(0),
	}
	r.sched = scheduler.New(opts.Interval, r.tick, logger)
	return r
}

// Seed installs an initial snapshot (e.g. one handed over by the previous screen).
func (r *Refresher) Seed(snap weather.WeatherSnapshot) {
	r.latest.Store(&snap)
}

// Latest returns the most recent successful snapshot.
func (r *Refresher) Latest() (weather.WeatherSnapshot, bool) {
	p := r.latest.Load()
	if p == nil {
		return weather.WeatherSnapshot{}, false
	}
	return *p, true
}

// LastFetch is when the last successful fetch completed.
func (r *Refresher) LastFetch() time.Time { return r.lastAt.Load() }

// InFlight reports whether the guard is currently held.
func (r *Refresher) InFlight() bool { return r.inFlight.Load() }

// Fetches counts fetches actually started.
func (r *Refresher) Fetches() int64 { return r.fetches.Load() }

// TimerJobs reports the number of active periodic timers.
func (r *Refresher) TimerJobs() int { return r.sched.Len() }

// Start refreshes immediately and (re)arms the periodic timer. Fetches started
// afterwards are cancelled by Stop. When the guard is still held by a cycle
// cancelled by a previous Stop, the first fetch starts as soon as it is released.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	if !r.Refresh() {
		r.pending.Store(true)
		// The guard may have been released between the failed CAS and the store.
		if !r.inFlight.Load() {
			r.runPending()
		}
	}
	return r.sched.Start()
}

// Stop cancels the timer and any fetch in progress. The guard is still released
// through the settle delay of the cancelled cycle.
func (r *Refresher) Stop() {
	r.sched.Stop()
	r.pending.Store(false)
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.ctx = nil
	r.mu.Unlock()
}

// Running reports whether the refresher is between Start and Stop.
func (r *Refresher) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *Refresher) runPending() {
	if !r.pending.CompareAndSwap(true, false) || !r.Running() {
		return
	}
	r.logger.Debug("running refresh deferred by start")
	r.Refresh()
}

func (r *Refresher) tick() {
	if r.inFlight.Load() {
		return
	}
	r.Refresh()
}

// Refresh starts a fetch unless one is already in flight. It reports whether a
// fetch was started; the fetch itself runs asynchronously.
func (r *Refresher) Refresh() bool {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.logger.Debug("refresh skipped; fetch already in flight")
		return false
	}

	r.mu.Lock()
	base := r.ctx
	r.mu.Unlock()
	if base == nil {
		base = context.Background()
	}

	r.fetches.Inc()
	if r.hooks.OnStart != nil {
		r.hooks.OnStart()
	}
	go r.run(base, uuid.NewString())
	return true
}

func (r *Refresher) run(base context.Context, cycle string) {
	defer r.releaseAfterSettle()

	ctx, cancel := context.WithTimeout(base, r.opts.Timeout)
	defer cancel()

	started := time.Now()
	snap, err := r.fetcher.Fetch(ctx, r.loc)
	if base.Err() != nil {
		// Stopped mid-fetch: the result belongs to a finished activation.
		r.logger.Debug("weather refresh abandoned", "cycle", cycle, "location", r.loc.Key(), "error", err)
		return
	}
	if err != nil {
		r.logger.Warn("weather refresh failed", "cycle", cycle, "location", r.loc.Key(), "error", err)
		if r.hooks.OnError != nil {
			r.hooks.OnError(err)
		}
		return
	}

	now := time.Now()
	r.latest.Store(&snap)
	r.lastAt.Store(now)
	r.logger.Debug("weather refreshed", "cycle", cycle, "location", r.loc.Key(), "took", now.Sub(started))
	if r.hooks.OnUpdate != nil {
		r.hooks.OnUpdate(snap, now)
	}
}

func (r *Refresher) releaseAfterSettle() {
	release := func() {
		r.inFlight.Store(false)
		if r.hooks.OnRelease != nil {
			r.hooks.OnRelease()
		}
		r.runPending()
	}
	if r.opts.Settle <= 0 {
		release()
		return
	}
	time.AfterFunc(r.opts.Settle, release)
}
