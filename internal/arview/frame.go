package arview

import (
	"time"

	"github.com/i474232898/weather-ar-overlay/internal/overlay"
	"github.com/i474232898/weather-ar-overlay/internal/sensor"
	"github.com/i474232898/weather-ar-overlay/internal/transform"
)

// Frame is everything a renderer needs to draw the panel at one instant.
type Frame struct {
	transform.Transform
	Opacity   float64   `json:"opacity"`
	Scale     float64   `json:"scale"`
	Visible   bool      `json:"visible"`
	Anchored  bool      `json:"anchored"`
	Loading   bool      `json:"loading"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// View is the full screen model: permission gate, panel text and frame.
type View struct {
	Permission  overlay.PermissionView `json:"permission"`
	Panel       *overlay.Panel         `json:"panel,omitempty"`
	Frame       Frame                  `json:"frame"`
	LoadingText string                 `json:"loadingText,omitempty"`
	SettingsURL string                 `json:"settingsUrl,omitempty"`
	Orientation sensor.Orientation     `json:"orientation"`
	Anchor      *sensor.Orientation    `json:"anchor,omitempty"`
}

// Frame computes the panel transform and animation values at now.
func (c *Controller) Frame(now time.Time) Frame {
	var f Frame
	c.send(func(time.Time) { f = c.frameLocked(now) })
	return f
}

// View returns the screen model at now. The panel text is only present once
// the camera permission is granted and weather data is available.
func (c *Controller) View(now time.Time) View {
	var v View
	c.send(func(time.Time) {
		v = View{
			Permission:  overlay.ViewFor(c.st.permission),
			Frame:       c.frameLocked(now),
			Orientation: c.st.tracker.Current(),
		}
		if anc, ok := c.st.tracker.Anchor(); ok {
			v.Anchor = &anc
		}
		switch c.st.permission {
		case overlay.PermissionGranted:
			if !c.st.snapshot.IsZero() {
				p := c.panelLocked()
				v.Panel = &p
			}
			if c.st.loading {
				v.LoadingText = LoadingText
			}
		case overlay.PermissionDenied:
			v.SettingsURL = c.SettingsURL()
		}
	})
	return v
}

func (c *Controller) frameLocked(now time.Time) Frame {
	in := transform.Input{
		Acceleration: c.st.accel,
		Tilt:         c.st.motion.Tilt,
		BetaRad:      c.st.motion.BetaRad,
	}
	_, anchored := c.st.tracker.Anchor()
	return Frame{
		Transform: c.engine.Compute(in),
		Opacity:   c.st.opacity.Value(now),
		Scale:     c.st.scale.Value(now),
		Visible:   c.st.tracker.Visible(),
		Anchored:  anchored,
		Loading:   c.st.loading,
		UpdatedAt: c.st.updatedAt,
	}
}
