package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsRecorder receives operation outcomes from the pipeline and loaders.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Metrics publishes service metrics on a private prometheus registry.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	loads      *prometheus.CounterVec
	fallbacks  prometheus.Counter
	records    prometheus.Gauge
	requests   *prometheus.CounterVec
}

// NewMetrics constructs a recorder with its own registry so multiple instances
// (tests, embedded servers) never collide on the default registerer.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "datastory_operations_total",
			Help: "Pipeline and loader operations by outcome.",
		}, []string{"operation", "status"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "datastory_operation_duration_seconds",
			Help:    "Duration of pipeline and loader operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"operation"}),
		loads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "datastory_table_loads_total",
			Help: "Successful table loads by source.",
		}, []string{"source"}),
		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "datastory_source_fallbacks_total",
			Help: "Times the primary source failed and the offline snapshot was used.",
		}),
		records: factory.NewGauge(prometheus.GaugeOpts{
			Name: "datastory_table_records",
			Help: "Records in the currently loaded table.",
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "datastory_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
}

// Observe records an operation outcome.
func (m *Metrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	m.operations.WithLabelValues(operation, status).Inc()
	m.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// TableLoaded records a successful load.
func (m *Metrics) TableLoaded(source string, records int, fallback bool) {
	m.loads.WithLabelValues(source).Inc()
	m.records.Set(float64(records))
	if fallback {
		m.fallbacks.Inc()
	}
}

// Request counts a served HTTP request.
func (m *Metrics) Request(route string, code int) {
	m.requests.WithLabelValues(route, http.StatusText(code)).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NopMetrics discards observations.
type NopMetrics struct{}

// Observe implements MetricsRecorder.
func (NopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// TableLoaded discards the load.
func (NopMetrics) TableLoaded(string, int, bool) {}

// Request discards the request.
func (NopMetrics) Request(string, int) {}
