// Package metrics exposes the overlay's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "weather_ar"

// Refresh outcomes.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Recorder is what the controller reports to. A nil *Metrics is a valid no-op Recorder.
type Recorder interface {
	RecordRefresh(result string, took time.Duration)
	RecordVisibility(visible bool)
	RecordSample(stream string)
	RecordRequest(method, route string, status int, took time.Duration)
}

// Metrics holds the collectors, registered on their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	refreshes      *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	visibility     *prometheus.CounterVec
	panelVisible   prometheus.Gauge
	samples        *prometheus.CounterVec
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

// New creates and registers every collector, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Weather refresh attempts by result.",
		}, []string{"result"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of weather fetches.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		visibility: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visibility_changes_total",
			Help:      "Panel visibility flips by new state.",
		}, []string{"visible"}),
		panelVisible: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "panel_visible",
			Help:      "1 while the panel is in view.",
		}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_samples_total",
			Help:      "Sensor samples applied by stream.",
		}, []string{"stream"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.panelVisible.Set(1)

	m.Registry.MustRegister(
		m.refreshes,
		m.fetchDuration,
		m.visibility,
		m.panelVisible,
		m.samples,
		m.requests,
		m.requestLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) RecordRefresh(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
	if result != ResultSkipped {
		m.fetchDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) RecordVisibility(visible bool) {
	if m == nil {
		return
	}
	label := "false"
	if visible {
		label = "true"
		m.panelVisible.Set(1)
	} else {
		m.panelVisible.Set(0)
	}
	m.visibility.WithLabelValues(label).Inc()
}

func (m *Metrics) RecordSample(stream string) {
	if m == nil {
		return
	}
	m.samples.WithLabelValues(stream).Inc()
}

func (m *Metrics) RecordRequest(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.requestLatency.WithLabelValues(method, route).Observe(took.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
