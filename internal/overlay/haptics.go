package overlay

import (
	"context"
	"log/slog"
)

// Feedback is a kind of haptic pulse.
type Feedback string

const (
	ImpactLight   Feedback = "impact_light"
	ImpactMedium  Feedback = "impact_medium"
	NotifySuccess Feedback = "notify_success"
)

// Haptics plays device feedback. Implementations may fail when the device has
// no actuator.
type Haptics interface {
	Play(ctx context.Context, f Feedback) error
}

// Navigator leaves the AR screen.
type Navigator interface {
	GoBack(ctx context.Context) error
}

// Fire plays f and only logs a failure; haptics never affect the caller.
func Fire(ctx context.Context, h Haptics, f Feedback, logger *slog.Logger) {
	if h == nil {
		return
	}
	if err := h.Play(ctx, f); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("haptics unavailable", "feedback", string(f), "error", err)
	}
}

// LogHaptics records feedback in the log. It stands in for a device actuator
// when the service runs headless.
type LogHaptics struct {
	Logger *slog.Logger
}

func (l LogHaptics) Play(ctx context.Context, f Feedback) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "haptic feedback", "feedback", string(f))
	return nil
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context) error

func (f NavigatorFunc) GoBack(ctx context.Context) error { return f(ctx) }
