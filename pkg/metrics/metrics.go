// Package metrics holds the Prometheus collectors for archive, export and HTTP activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a set of collectors bound to one registry. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal    *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	Objects      *prometheus.GaugeVec
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lotuswxr_runs_total",
				Help: "Total number of pipeline runs.",
			},
			[]string{"pipeline", "status"},
		),
		RunDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lotuswxr_run_duration_seconds",
				Help:    "Duration of pipeline runs.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
			},
			[]string{"pipeline"},
		),
		Objects: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lotuswxr_objects",
				Help: "Objects produced by the last run, by kind.",
			},
			[]string{"pipeline", "kind"},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lotuswxr_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lotuswxr_http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// ObserveRun records one finished run of pipeline ("archive" or "export").
func (m *Metrics) ObserveRun(pipeline string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.RunsTotal.WithLabelValues(pipeline, status).Inc()
	m.RunDuration.WithLabelValues(pipeline).Observe(time.Since(started).Seconds())
}

// SetObjects replaces the object counts of pipeline.
func (m *Metrics) SetObjects(pipeline string, counts map[string]int) {
	if m == nil {
		return
	}
	for kind, n := range counts {
		m.Objects.WithLabelValues(pipeline, kind).Set(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
