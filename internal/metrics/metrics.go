// Package metrics exposes Prometheus collectors for runs, per-file tasks, the
// transformer and the HTTP surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a set of collectors registered on one registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal           *prometheus.CounterVec
	RunDuration         prometheus.Histogram
	FilesTotal          *prometheus.CounterVec
	FileDuration        *prometheus.HistogramVec
	BytesSaved          prometheus.Counter
	TransformerCalls    *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, so tests can build as many as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siteopt_runs_total",
			Help: "Optimization runs by terminal status.",
		}, []string{"status"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "siteopt_run_duration_seconds",
			Help:    "Wall time of a whole optimization run.",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		FilesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siteopt_files_total",
			Help: "Per-file tasks by declared type and outcome.",
		}, []string{"type", "outcome"}),
		FileDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "siteopt_file_duration_seconds",
			Help:    "Duration of one per-file optimization task.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		BytesSaved: f.NewCounter(prometheus.CounterOpts{
			Name: "siteopt_bytes_saved_total",
			Help: "Bytes removed across all runs.",
		}),
		TransformerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siteopt_transformer_calls_total",
			Help: "Transformer calls by operation, outcome and cache hit.",
		}, []string{"op", "outcome", "cached"}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// Registry is the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(status string, d time.Duration, before, after int64) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
	if before > after {
		m.BytesSaved.Add(float64(before - after))
	}
}

// ObserveFile records one terminal per-file result.
func (m *Metrics) ObserveFile(fileType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FilesTotal.WithLabelValues(fileType, outcome).Inc()
	m.FileDuration.WithLabelValues(fileType).Observe(d.Seconds())
}

// ObserveTransform satisfies transformer.Observer.
func (m *Metrics) ObserveTransform(op, outcome string, cached bool) {
	if m == nil {
		return
	}
	c := "false"
	if cached {
		c = "true"
	}
	m.TransformerCalls.WithLabelValues(op, outcome, c).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
