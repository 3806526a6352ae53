package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stockroom"

var sizeBuckets = prometheus.ExponentialBuckets(100, 10, 8)

// Metrics holds the service collectors. A nil *Metrics is valid for the
// Observe helpers and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	AccessDecisionsTotal *prometheus.CounterVec

	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	AuditRecordsTotal        *prometheus.CounterVec
	AuditRecordFailuresTotal *prometheus.CounterVec
	AuditQueueDepth          prometheus.Gauge

	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// NewMetrics registers the service collectors with registry. It panics on
// duplicate registration.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	f := promauto.With(registry)
	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
	}
	histogram := func(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return f.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets}, labels)
	}

	return &Metrics{
		registry: registry,

		HTTPRequestsTotal:   counter("http", "requests_total", "HTTP requests by route and status", "method", "route", "status"),
		HTTPRequestDuration: histogram("http", "request_duration_seconds", "HTTP request latency", prometheus.DefBuckets, "method", "route"),
		HTTPRequestSize:     histogram("http", "request_size_bytes", "HTTP request body size", sizeBuckets, "method", "route"),
		HTTPResponseSize:    histogram("http", "response_size_bytes", "HTTP response body size", sizeBuckets, "method", "route"),

		AccessDecisionsTotal: counter("access", "decisions_total", "Authorization decisions by resource, action, outcome and denial reason",
			"resource", "action", "decision", "reason"),

		StorageOperationsTotal: counter("storage", "operations_total", "Repository storage operations", "operation", "resource", "result"),
		StorageOperationDuration: histogram("storage", "operation_duration_seconds", "Repository storage operation latency",
			[]float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}, "operation", "resource"),

		AuditRecordsTotal:        counter("audit", "records_total", "Audit records written by decision", "decision"),
		AuditRecordFailuresTotal: counter("audit", "record_failures_total", "Audit records that could not be persisted", "reason"),
		AuditQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "audit", Name: "queue_depth", Help: "Audit records waiting to be written",
		}),

		CacheHitsTotal:   counter("cache", "hits_total", "Cache hits by layer", "layer", "resource"),
		CacheMissesTotal: counter("cache", "misses_total", "Cache misses by layer", "layer", "resource"),
	}
}

// RegisterDB exports the connection pool statistics of db, labelled
// db_name=name
func (m *Metrics) RegisterDB(db *sql.DB, name string) {
	if m == nil || db == nil {
		return
	}
	m.registry.MustRegister(collectors.NewDBStatsCollector(db, name))
}

// ObserveStorage records the outcome and latency of a storage operation
func (m *Metrics) ObserveStorage(operation, resource string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.StorageOperationsTotal.WithLabelValues(operation, resource, result).Inc()
	m.StorageOperationDuration.WithLabelValues(operation, resource).Observe(time.Since(start).Seconds())
}

type meteredWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (mw *meteredWriter) WriteHeader(code int) {
	mw.status = code
	mw.ResponseWriter.WriteHeader(code)
}

func (mw *meteredWriter) Write(b []byte) (int, error) {
	n, err := mw.ResponseWriter.Write(b)
	mw.size += n
	return n, err
}

// routeLabel is the matched route template, keeping ids out of label values
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments requests routed by a mux router
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			mw := &meteredWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(mw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(mw.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, route).Observe(float64(r.ContentLength))
			}
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(mw.size))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
