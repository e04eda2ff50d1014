// Package sensor turns raw device motion and accelerometer streams into the
// engineering units the overlay works with.
package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Vector is a raw accelerometer reading in g.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Rotation is a raw device-motion rotation in radians.
type Rotation struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// Reading is one sample delivered by a Stream. Accelerometer streams fill
// Acceleration, device-motion streams fill Rotation (which may be missing on
// some devices for the first few samples).
type Reading struct {
	Acceleration *Vector
	Rotation     *Rotation
	At           time.Time
}

// Stream is a continuous sample source offered by the platform.
type Stream interface {
	Available(ctx context.Context) bool
	SetUpdateInterval(d time.Duration)
	Subscribe(fn func(Reading)) Subscription
}

// Subscription is the token returned by Stream.Subscribe. Remove is idempotent.
type Subscription interface {
	ID() uuid.UUID
	Remove()
}

// subscribers is a small fan-out registry shared by the stream implementations.
type subscribers struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]func(Reading)

	onEmpty func()
}

func (s *subscribers) add(fn func(Reading)) *subscription {
	id := uuid.New()
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[uuid.UUID]func(Reading))
	}
	s.subs[id] = fn
	s.mu.Unlock()
	return &subscription{id: id, owner: s}
}

func (s *subscribers) remove(id uuid.UUID) {
	s.mu.Lock()
	_, ok := s.subs[id]
	delete(s.subs, id)
	empty := ok && len(s.subs) == 0
	onEmpty := s.onEmpty
	s.mu.Unlock()
	if empty && onEmpty != nil {
		onEmpty()
	}
}

func (s *subscribers) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *subscribers) publish(r Reading) {
	s.mu.RLock()
	fns := make([]func(Reading), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(r)
	}
}

type subscription struct {
	id    uuid.UUID
	owner *subscribers
	once  sync.Once
}

func (s *subscription) ID() uuid.UUID { return s.id }

func (s *subscription) Remove() {
	s.once.Do(func() { s.owner.remove(s.id) })
}
