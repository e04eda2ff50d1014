package sensor

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// PushStream is a Stream fed from outside, e.g. by a phone posting samples over HTTP.
type PushStream struct {
	name      string
	available *atomic.Bool
	interval  *atomic.Duration
	subs      subscribers
}

// NewPushStream creates a push-fed stream. An unavailable stream still accepts
// subscriptions, but the Sampler never subscribes to it.
func NewPushStream(name string, available bool) *PushStream {
	return &PushStream{
		name:      name,
		available: atomic.NewBool(available),
		interval:  atomic.NewDuration(0),
	}
}

func (p *PushStream) Name() string { return p.name }

func (p *PushStream) Available(context.Context) bool { return p.available.Load() }

// SetAvailable flips availability, e.g. when a device reports it has no gyroscope.
func (p *PushStream) SetAvailable(v bool) { p.available.Store(v) }

func (p *PushStream) SetUpdateInterval(d time.Duration) { p.interval.Store(d) }

// UpdateInterval is the interval last requested by a subscriber; devices use it as their push rate.
func (p *PushStream) UpdateInterval() time.Duration { return p.interval.Load() }

func (p *PushStream) Subscribe(fn func(Reading)) Subscription { return p.subs.add(fn) }

// Subscribers reports the number of live subscriptions.
func (p *PushStream) Subscribers() int { return p.subs.len() }

// Push delivers a reading to every subscriber on the caller's goroutine.
func (p *PushStream) Push(r Reading) {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	p.subs.publish(r)
}

// SyntheticKind selects what a SyntheticStream generates.
type SyntheticKind int

const (
	SyntheticAccelerometer SyntheticKind = iota
	SyntheticMotion
)

// SyntheticStream generates smoothly changing samples on a ticker. It runs only
// while it has subscribers.
type SyntheticStream struct {
	kind  SyntheticKind
	start time.Time

	mu       sync.Mutex
	interval time.Duration
	stop     chan struct{}
	subs     subscribers
}

func NewSyntheticStream(kind SyntheticKind) *SyntheticStream {
	s := &SyntheticStream{kind: kind, start: time.Now(), interval: 16 * time.Millisecond}
	s.subs.onEmpty = s.halt
	return s
}

func (s *SyntheticStream) Available(context.Context) bool { return true }

func (s *SyntheticStream) SetUpdateInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

func (s *SyntheticStream) Subscribe(fn func(Reading)) Subscription {
	sub := s.subs.add(fn)
	s.mu.Lock()
	if s.stop == nil {
		s.stop = make(chan struct{})
		go s.run(s.interval, s.stop)
	}
	s.mu.Unlock()
	return sub
}

func (s *SyntheticStream) halt() {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()
}

func (s *SyntheticStream) run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			s.subs.publish(s.Sample(now))
		}
	}
}

// Sample returns the synthetic reading for a given instant.
func (s *SyntheticStream) Sample(now time.Time) Reading {
	elapsed := now.Sub(s.start).Seconds()
	if s.kind == SyntheticAccelerometer {
		return Reading{
			At: now,
			Acceleration: &Vector{
				X: 0.3 * math.Sin(elapsed*1.3),
				Y: 0.2 * math.Cos(elapsed*0.9),
				Z: -1,
			},
		}
	}
	return Reading{
		At: now,
		Rotation: &Rotation{
			Alpha: math.Mod(elapsed*0.5, 2*math.Pi),
			Beta:  0.6 * math.Sin(elapsed*0.4),
			Gamma: 0.4 * math.Cos(elapsed*0.3),
		},
	}
}
