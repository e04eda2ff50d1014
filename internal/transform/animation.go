package transform

import (
	"math"
	"time"
)

// Durations of the panel animations.
const (
	FadeDuration  = 300 * time.Millisecond
	EntryDuration = 800 * time.Millisecond
	PulseStep     = 100 * time.Millisecond
	PulseScale    = 0.98
	EntryScale    = 0.9
)

// Animation produces a value for any instant after it started.
type Animation interface {
	Value(now time.Time) float64
	Done(now time.Time) bool
}

// Tween linearly moves from From to To over Duration starting at Start.
type Tween struct {
	From     float64
	To       float64
	Duration time.Duration
	Start    time.Time
}

// Still is an animation that holds a value forever.
func Still(v float64) Tween {
	return Tween{From: v, To: v}
}

func (t Tween) Value(now time.Time) float64 {
	if t.Duration <= 0 || !now.Before(t.Start.Add(t.Duration)) {
		return t.To
	}
	if now.Before(t.Start) {
		return t.From
	}
	p := float64(now.Sub(t.Start)) / float64(t.Duration)
	return t.From + (t.To-t.From)*p
}

func (t Tween) Done(now time.Time) bool {
	return t.Duration <= 0 || !now.Before(t.Start.Add(t.Duration))
}

// FadeTo starts an opacity fade from the value current shows at now.
func FadeTo(current Animation, to float64, now time.Time) Tween {
	return Tween{From: current.Value(now), To: to, Duration: FadeDuration, Start: now}
}

// Sequence plays animations back to back; each step starts when the previous one ends.
type Sequence struct {
	Steps []Tween
}

// Pulse is the brief scale dip played after a successful refresh.
func Pulse(now time.Time) Sequence {
	return Sequence{Steps: []Tween{
		{From: 1, To: PulseScale, Duration: PulseStep, Start: now},
		{From: PulseScale, To: 1, Duration: PulseStep, Start: now.Add(PulseStep)},
	}}
}

func (s Sequence) Value(now time.Time) float64 {
	if len(s.Steps) == 0 {
		return 0
	}
	for _, step := range s.Steps {
		if !step.Done(now) {
			return step.Value(now)
		}
	}
	return s.Steps[len(s.Steps)-1].To
}

func (s Sequence) Done(now time.Time) bool {
	return len(s.Steps) == 0 || s.Steps[len(s.Steps)-1].Done(now)
}

// Spring is a damped spring parameterised by tension and friction, released at rest.
type Spring struct {
	From    float64
	To      float64
	Start   time.Time
	omega0  float64
	zeta    float64
	restEps float64
}

// NewSpring converts tension/friction into stiffness and damping for a unit mass.
func NewSpring(from, to, tension, friction float64, start time.Time) Spring {
	stiffness := (tension-30)*3.62 + 194
	damping := (friction-8)*3 + 25
	omega0 := math.Sqrt(stiffness)
	return Spring{
		From:    from,
		To:      to,
		Start:   start,
		omega0:  omega0,
		zeta:    damping / (2 * omega0),
		restEps: 0.001,
	}
}

// EntrySpring is the scale-in played when the panel first appears.
func EntrySpring(start time.Time) Spring {
	return NewSpring(EntryScale, 1, 40, 8, start)
}

// displacement returns x(t)-To for a spring released from rest.
func (s Spring) displacement(t float64) float64 {
	x0 := s.From - s.To
	w0, z := s.omega0, s.zeta
	switch {
	case z < 1:
		wd := w0 * math.Sqrt(1-z*z)
		return x0 * math.Exp(-z*w0*t) * (math.Cos(wd*t) + (z*w0/wd)*math.Sin(wd*t))
	case z == 1:
		return x0 * math.Exp(-w0*t) * (1 + w0*t)
	default:
		r := w0 * math.Sqrt(z*z-1)
		r1, r2 := -z*w0+r, -z*w0-r
		return x0 * (r2*math.Exp(r1*t) - r1*math.Exp(r2*t)) / (r2 - r1)
	}
}

func (s Spring) Value(now time.Time) float64 {
	if now.Before(s.Start) {
		return s.From
	}
	if s.Done(now) {
		return s.To
	}
	return s.To + s.displacement(now.Sub(s.Start).Seconds())
}

// Done reports whether the envelope of the oscillation is below the rest threshold.
func (s Spring) Done(now time.Time) bool {
	if s.From == s.To {
		return true
	}
	t := now.Sub(s.Start).Seconds()
	if t <= 0 {
		return false
	}
	envelope := math.Abs(s.From-s.To) * math.Exp(-math.Min(s.zeta, 1)*s.omega0*t) * (1 + s.omega0*t)
	return envelope < s.restEps
}
