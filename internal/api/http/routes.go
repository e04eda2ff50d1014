package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/weather-ar-overlay/internal/arview"
	"github.com/i474232898/weather-ar-overlay/internal/metrics"
	"github.com/i474232898/weather-ar-overlay/internal/overlay"
	"github.com/i474232898/weather-ar-overlay/internal/sensor"
	"github.com/i474232898/weather-ar-overlay/internal/store"
	"github.com/i474232898/weather-ar-overlay/internal/weather"
)

var validate = validator.New()

const keepAliveInterval = 15 * time.Second

// Screen is the AR screen the routes drive.
type Screen interface {
	Activate(ctx context.Context) error
	Active() bool
	View(now time.Time) arview.View
	AnchorHere(ctx context.Context) sensor.Orientation
	ClearAnchor(ctx context.Context)
	RefreshNow(ctx context.Context) bool
	GoBack(ctx context.Context) error
	SetPermission(ctx context.Context, p overlay.Permission)
	SettingsURL() string
	Subscribe(buffer int) (int, <-chan arview.Event)
	Unsubscribe(id int)
	Location() weather.Location
}

// WeatherReader serves stored snapshots.
type WeatherReader interface {
	GetLatest(loc weather.Location) (weather.WeatherSnapshot, error)
	GetRange(loc weather.Location, from, to time.Time) ([]weather.WeatherSnapshot, error)
}

// SamplePusher accepts sensor samples posted by a device.
type SamplePusher interface {
	Push(r sensor.Reading)
}

// Deps are the handlers' collaborators. Accel and Motion are nil when the
// sensors are synthetic; Metrics may be nil.
type Deps struct {
	Screen  Screen
	Weather WeatherReader
	Accel   SamplePusher
	Motion  SamplePusher
	Metrics *metrics.Metrics
	// BaseContext scopes activations started over HTTP; it outlives requests.
	BaseContext context.Context
	Platform    string
}

// ErrorHandler is the centralized JSON error response.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	if d.BaseContext == nil {
		d.BaseContext = context.Background()
	}

	if d.Metrics != nil {
		app.Use(requestMetrics(d.Metrics))
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-ar-overlay",
			"active":  d.Screen.Active(),
		})
	})

	v1 := app.Group("/api/v1")

	v1.Get("/panel", func(c *fiber.Ctx) error {
		return c.JSON(d.Screen.View(time.Now()))
	})

	v1.Get("/panel/stream", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")

		id, events := d.Screen.Subscribe(16)
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer d.Screen.Unsubscribe(id)
			_ = writeEvents(w, events, keepAliveInterval)
		})
		return nil
	})

	v1.Post("/activate", func(c *fiber.Ctx) error {
		if err := d.Screen.Activate(d.BaseContext); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"active": d.Screen.Active()})
	})

	v1.Post("/anchor", func(c *fiber.Ctx) error {
		anc := d.Screen.AnchorHere(c.UserContext())
		return c.JSON(fiber.Map{
			"anchor":  anc,
			"message": arview.AnchorNotice,
		})
	})

	v1.Delete("/anchor", func(c *fiber.Ctx) error {
		d.Screen.ClearAnchor(c.UserContext())
		return c.JSON(fiber.Map{"anchored": false})
	})

	v1.Post("/refresh", func(c *fiber.Ctx) error {
		if !d.Screen.RefreshNow(c.UserContext()) {
			return c.JSON(fiber.Map{"started": false, "reason": "refresh already in flight"})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"started": true})
	})

	v1.Post("/sensors/motion", func(c *fiber.Ctx) error {
		if d.Motion == nil {
			return fiber.NewError(fiber.StatusConflict, "device motion is synthetic; samples are not accepted")
		}
		var req motionRequest
		if err := bindAndValidate(c, &req); err != nil {
			return err
		}
		d.Motion.Push(req.reading())
		return c.SendStatus(fiber.StatusAccepted)
	})

	v1.Post("/sensors/accelerometer", func(c *fiber.Ctx) error {
		if d.Accel == nil {
			return fiber.NewError(fiber.StatusConflict, "accelerometer is synthetic; samples are not accepted")
		}
		var req accelRequest
		if err := bindAndValidate(c, &req); err != nil {
			return err
		}
		d.Accel.Push(req.reading())
		return c.SendStatus(fiber.StatusAccepted)
	})

	v1.Post("/permission", func(c *fiber.Ctx) error {
		var req permissionRequest
		if err := bindAndValidate(c, &req); err != nil {
			return err
		}
		p, err := overlay.ParsePermission(req.State)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		d.Screen.SetPermission(c.UserContext(), p)
		return c.JSON(overlay.ViewFor(p))
	})

	v1.Get("/settings", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"platform": d.Platform,
			"url":      d.Screen.SettingsURL(),
		})
	})

	v1.Post("/back", func(c *fiber.Ctx) error {
		if err := d.Screen.GoBack(c.UserContext()); err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		return c.JSON(fiber.Map{"active": d.Screen.Active()})
	})

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		loc, err := parseLocationQuery(c, d.Screen.Location())
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snapshot, err := d.Weather.GetLatest(loc)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather data for requested location")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
		}

		return c.JSON(snapshot)
	})

	v1.Get("/weather/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c, d.Screen.Location()); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snapshots, err := d.Weather.GetRange(req.Location, req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather history")
		}

		return c.JSON(fiber.Map{
			"location":  req.Location,
			"from":      req.From,
			"to":        req.To,
			"snapshots": snapshots,
		})
	})
}

// writeEvents streams screen events as server-sent events until the channel
// closes, the screen is torn down or the client goes away.
func writeEvents(w *bufio.Writer, events <-chan arview.Event, keepAlive time.Duration) error {
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if ev.Kind == arview.EventClosed {
				return nil
			}
		case <-ticker.C:
			if _, err := w.WriteString(": keepalive\n\n"); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}
	}
}

func requestMetrics(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				status = e.Code
			}
		}
		m.RecordRequest(c.Method(), c.Route().Path, status, time.Since(start))
		return err
	}
}

func bindAndValidate(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	return nil
}

// motionRequest is a device-motion sample; angles are radians.
type motionRequest struct {
	Alpha *float64  `json:"alpha" validate:"omitempty,gte=-6.2832,lte=6.2832"`
	Beta  *float64  `json:"beta" validate:"required,gte=-6.2832,lte=6.2832"`
	Gamma *float64  `json:"gamma" validate:"required,gte=-6.2832,lte=6.2832"`
	At    time.Time `json:"at"`
}

func (r motionRequest) reading() sensor.Reading {
	rot := sensor.Rotation{Beta: *r.Beta, Gamma: *r.Gamma}
	if r.Alpha != nil {
		rot.Alpha = *r.Alpha
	}
	return sensor.Reading{Rotation: &rot, At: r.At}
}

// accelRequest is an accelerometer sample in g.
type accelRequest struct {
	X  *float64  `json:"x" validate:"required,gte=-16,lte=16"`
	Y  *float64  `json:"y" validate:"required,gte=-16,lte=16"`
	Z  float64   `json:"z"`
	At time.Time `json:"at"`
}

func (r accelRequest) reading() sensor.Reading {
	return sensor.Reading{Acceleration: &sensor.Vector{X: *r.X, Y: *r.Y, Z: r.Z}, At: r.At}
}

type permissionRequest struct {
	State string `json:"state" validate:"required,oneof=requesting denied granted"`
}

// locationQuery holds optional lat/lon query parameters.
type locationQuery struct {
	Lat float64 `validate:"gte=-90,lte=90"`
	Lon float64 `validate:"gte=-180,lte=180"`
}

// parseLocationQuery reads lat/lon, defaulting to the screen location when both are absent.
func parseLocationQuery(c *fiber.Ctx, def weather.Location) (weather.Location, error) {
	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if latStr == "" && lonStr == "" {
		return def, nil
	}
	if latStr == "" || lonStr == "" {
		return weather.Location{}, errors.New("lat and lon must be given together")
	}

	var q locationQuery
	var err error
	if q.Lat, err = strconv.ParseFloat(latStr, 64); err != nil {
		return weather.Location{}, errors.New("invalid lat")
	}
	if q.Lon, err = strconv.ParseFloat(lonStr, 64); err != nil {
		return weather.Location{}, errors.New("invalid lon")
	}
	if err := validate.Struct(q); err != nil {
		return weather.Location{}, err
	}
	return weather.Location{Lat: q.Lat, Lon: q.Lon}, nil
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Location weather.Location `validate:"-"`
	From     time.Time        `validate:"required"`
	To       time.Time        `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx, def weather.Location) error {
	loc, err := parseLocationQuery(c, def)
	if err != nil {
		return err
	}
	h.Location = loc

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
