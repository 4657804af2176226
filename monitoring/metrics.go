package monitoring

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ringdht/cluster"
)

// Metrics implements cluster.Recorder on top of Prometheus client_golang,
// and also tracks HTTP-layer request metrics the way the teacher's
// monitoring package does.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
	requestCount    *prometheus.CounterVec
	errorCount      *prometheus.CounterVec

	ringNodes           prometheus.Gauge
	migrationsTotal     *prometheus.CounterVec
	migrationKeysMoved  *prometheus.CounterVec
	rebalanceDuration   *prometheus.HistogramVec
	transportErrorTotal *prometheus.CounterVec
}

// ResponseWriter intercepts the status code written by a handler so it can
// be fed into ObserveRequest after ServeHTTP returns.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
}

func (rw *ResponseWriter) WriteHeader(code int) {
	rw.StatusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// NewMetrics registers and returns the coordinator's Prometheus collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "path", "status"}),

		requestCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		errorCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "path", "error_type"}),

		ringNodes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ring_nodes",
			Help: "Current number of backing cache servers on the ring",
		}),

		migrationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ring_migrations_total",
			Help: "Total number of rebalancing migration batches run, by case",
		}, []string{"migration"}),

		migrationKeysMoved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ring_migration_keys_total",
			Help: "Total number of keys moved by rebalancing, by case",
		}, []string{"migration"}),

		rebalanceDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ring_rebalance_duration_seconds",
			Help:    "Duration of a rebalance migration batch",
			Buckets: prometheus.DefBuckets,
		}, []string{"migration"}),

		transportErrorTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_transport_errors_total",
			Help: "Total number of backing-cache transport failures, by operation",
		}, []string{"op"}),
	}
}

func (m *Metrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	m.requestDuration.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Observe(duration.Seconds())
	m.requestCount.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Inc()
}

func (m *Metrics) ObserveError(method, path, errorType string) {
	m.errorCount.WithLabelValues(method, path, errorType).Inc()
}

// ObserveMigration implements cluster.Recorder.
func (m *Metrics) ObserveMigration(migration string, keys int, dur time.Duration) {
	m.migrationsTotal.WithLabelValues(migration).Inc()
	m.migrationKeysMoved.WithLabelValues(migration).Add(float64(keys))
	m.rebalanceDuration.WithLabelValues(migration).Observe(dur.Seconds())
}

// ObserveTransportError implements cluster.Recorder.
func (m *Metrics) ObserveTransportError(op string) {
	m.transportErrorTotal.WithLabelValues(op).Inc()
}

// ObserveMembership implements cluster.Recorder.
func (m *Metrics) ObserveMembership(nodeCount int) {
	m.ringNodes.Set(float64(nodeCount))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

var _ cluster.Recorder = (*Metrics)(nil)
