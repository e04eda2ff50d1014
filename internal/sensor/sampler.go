package sensor

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Orientation is the device rotation in degrees around the three axes.
type Orientation struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// Tilt is the sensitivity-scaled rotation that drives the panel's visual rotation.
type Tilt struct {
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// Motion is one converted device-motion sample.
type Motion struct {
	Orientation Orientation
	Tilt        Tilt
	// BetaRad is the raw beta rotation, kept for the depth factor.
	BetaRad float64
	At      time.Time
}

// Acceleration is one sensitivity-scaled accelerometer sample (before depth scaling).
type Acceleration struct {
	X  float64
	Y  float64
	At time.Time
}

// Config holds the sampling rate and sensitivity constants.
type Config struct {
	Interval            time.Duration `yaml:"interval"`
	AccelGain           float64       `yaml:"accel_gain"`
	AccelSensitivity    float64       `yaml:"accel_sensitivity"`
	RotationSensitivity float64       `yaml:"rotation_sensitivity"`
}

// DefaultConfig samples at ~60 Hz.
func DefaultConfig() Config {
	return Config{
		Interval:            16 * time.Millisecond,
		AccelGain:           15,
		AccelSensitivity:    0.05,
		RotationSensitivity: 0.15,
	}
}

// Handlers receive converted samples. Either may be nil.
type Handlers struct {
	OnMotion       func(Motion)
	OnAcceleration func(Acceleration)
}

// Sampler owns the subscriptions to the accelerometer and device-motion streams.
type Sampler struct {
	accel  Stream
	motion Stream
	cfg    Config
	h      Handlers
	logger *slog.Logger

	mu   sync.Mutex
	subs []Subscription
}

// NewSampler creates a sampler; a nil stream is treated as unavailable.
func NewSampler(accel, motion Stream, cfg Config, h Handlers, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{accel: accel, motion: motion, cfg: cfg, h: h, logger: logger}
}

// Start subscribes to every available stream and returns how many subscriptions are live.
// Calling Start while already started is a no-op.
func (s *Sampler) Start(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.subs) > 0 {
		return len(s.subs)
	}

	if s.accel != nil && s.accel.Available(ctx) {
		s.accel.SetUpdateInterval(s.cfg.Interval)
		s.subs = append(s.subs, s.accel.Subscribe(s.handleAccel))
	} else {
		s.logger.Debug("accelerometer unavailable; skipping subscription")
	}

	if s.motion != nil && s.motion.Available(ctx) {
		s.motion.SetUpdateInterval(s.cfg.Interval)
		s.subs = append(s.subs, s.motion.Subscribe(s.handleMotion))
	} else {
		s.logger.Debug("device motion unavailable; skipping subscription")
	}

	return len(s.subs)
}

// Stop releases every subscription. Safe to call repeatedly.
func (s *Sampler) Stop() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Remove()
	}
}

// Active reports the number of live subscriptions.
func (s *Sampler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Sampler) handleAccel(r Reading) {
	if r.Acceleration == nil || s.h.OnAcceleration == nil {
		return
	}
	s.h.OnAcceleration(s.ConvertAcceleration(*r.Acceleration, r.At))
}

func (s *Sampler) handleMotion(r Reading) {
	if r.Rotation == nil || s.h.OnMotion == nil {
		return
	}
	s.h.OnMotion(s.ConvertRotation(*r.Rotation, r.At))
}

// ConvertRotation converts a radian rotation into degrees and the scaled visual tilt.
func (s *Sampler) ConvertRotation(rot Rotation, at time.Time) Motion {
	o := Orientation{
		Alpha: degrees(rot.Alpha),
		Beta:  degrees(rot.Beta),
		Gamma: degrees(rot.Gamma),
	}
	return Motion{
		Orientation: o,
		Tilt: Tilt{
			Beta:  o.Beta * s.cfg.RotationSensitivity,
			Gamma: o.Gamma * s.cfg.RotationSensitivity,
		},
		BetaRad: rot.Beta,
		At:      at,
	}
}

// ConvertAcceleration applies gain and sensitivity to a raw accelerometer vector.
func (s *Sampler) ConvertAcceleration(v Vector, at time.Time) Acceleration {
	k := s.cfg.AccelGain * s.cfg.AccelSensitivity
	return Acceleration{X: v.X * k, Y: v.Y * k, At: at}
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
