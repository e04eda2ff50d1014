// Package anchor decides whether the floating panel is in view, relative to an
// orientation the user pinned it to.
package anchor

import (
	"math"

	"github.com/i474232898/weather-ar-overlay/internal/sensor"
)

// DefaultThreshold is how far (degrees) beta or gamma may drift from the anchor
// before the panel leaves the view.
const DefaultThreshold = 20.0

// State is the tracker state.
type State int

const (
	Unanchored State = iota
	Anchored
)

func (s State) String() string {
	if s == Anchored {
		return "anchored"
	}
	return "unanchored"
}

// Change is emitted whenever the visibility flips.
type Change struct {
	Visible bool
	// Deviation is |current-anchor| for beta and gamma at the time of the flip.
	Deviation sensor.Tilt
}

// InView reports whether current is within threshold of anchor on both beta and gamma.
// The comparison is strict: a deviation equal to the threshold is out of view.
func InView(current, anchor sensor.Orientation, threshold float64) bool {
	return math.Abs(current.Beta-anchor.Beta) < threshold &&
		math.Abs(current.Gamma-anchor.Gamma) < threshold
}

// Tracker is the Unanchored/Anchored state machine. It is not safe for
// concurrent use; the owning controller serialises calls.
type Tracker struct {
	threshold float64

	state   State
	anchor  sensor.Orientation
	current sensor.Orientation
	visible bool
}

// NewTracker creates an unanchored tracker. A non-positive threshold selects DefaultThreshold.
func NewTracker(threshold float64) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Tracker{threshold: threshold, visible: true}
}

func (t *Tracker) State() State { return t.state }

func (t *Tracker) Visible() bool { return t.visible }

func (t *Tracker) Threshold() float64 { return t.threshold }

func (t *Tracker) Current() sensor.Orientation { return t.current }

// Anchor returns the current anchor and whether one is set.
func (t *Tracker) Anchor() (sensor.Orientation, bool) {
	return t.anchor, t.state == Anchored
}

// Update records a new orientation sample. While anchored it recomputes the
// visibility and returns the change when it flipped.
func (t *Tracker) Update(o sensor.Orientation) (Change, bool) {
	t.current = o
	if t.state != Anchored {
		return Change{}, false
	}
	return t.setVisible(InView(o, t.anchor, t.threshold))
}

// Set pins the anchor to o and forces the panel visible.
// Re-anchoring overwrites the previous anchor.
func (t *Tracker) Set(o sensor.Orientation) (Change, bool) {
	t.anchor = o
	t.state = Anchored
	return t.setVisible(true)
}

// AnchorCurrent pins the anchor to the last recorded orientation.
func (t *Tracker) AnchorCurrent() (Change, bool) {
	return t.Set(t.current)
}

// Clear drops the anchor; an unanchored panel is always visible.
func (t *Tracker) Clear() (Change, bool) {
	t.anchor = sensor.Orientation{}
	t.state = Unanchored
	return t.setVisible(true)
}

func (t *Tracker) setVisible(v bool) (Change, bool) {
	if v == t.visible {
		return Change{}, false
	}
	t.visible = v
	return Change{
		Visible: v,
		Deviation: sensor.Tilt{
			Beta:  math.Abs(t.current.Beta - t.anchor.Beta),
			Gamma: math.Abs(t.current.Gamma - t.anchor.Gamma),
		},
	}, true
}
