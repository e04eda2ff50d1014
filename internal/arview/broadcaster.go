package arview

import (
	"sync"
	"time"

	"github.com/i474232898/weather-ar-overlay/internal/overlay"
)

// EventKind names what changed on the screen.
type EventKind string

const (
	EventVisibility EventKind = "visibility"
	EventAnchor     EventKind = "anchor"
	EventData       EventKind = "data"
	EventLoading    EventKind = "loading"
	EventPermission EventKind = "permission"
	EventClosed     EventKind = "closed"
)

// Event is pushed to listeners (e.g. SSE) whenever screen state changes.
type Event struct {
	Kind       EventKind      `json:"kind"`
	Visible    bool           `json:"visible"`
	Anchored   bool           `json:"anchored"`
	Loading    bool           `json:"loading"`
	Permission string         `json:"permission"`
	Panel      *overlay.Panel `json:"panel,omitempty"`
	At         time.Time      `json:"at"`
}

// Broadcaster fans events out to any listeners. It keeps the most recent event
// so new subscribers get the current state immediately. Slow listeners miss
// events rather than blocking the publisher.
type Broadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan Event
	nextID   int
	last     Event
	haveLast bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

func (b *Broadcaster) Subscribe(buffer int) (int, <-chan Event) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.haveLast {
		ch <- b.last
	}
	return id, ch
}

func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers ev to every listener with room in its buffer.
func (b *Broadcaster) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	// Fan-out and last share one critical section: a concurrent Subscribe either
	// receives ev live or replays it, and Unsubscribe cannot close a channel mid-send.
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	b.last = ev
	b.haveLast = true
}

// Listeners reports the number of subscribers.
func (b *Broadcaster) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
