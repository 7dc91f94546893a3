package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway
type Metrics struct {
	// Answer pipeline metrics
	answersTotal   *prometheus.CounterVec
	answerDuration *prometheus.HistogramVec

	// Auth metrics
	authFailures prometheus.Counter

	// Session metrics
	sessionsCreated prometheus.Counter

	// Enrichment metrics
	citationsTotal *prometheus.CounterVec

	// Audit metrics
	auditWrites prometheus.Counter
	auditDrops  *prometheus.CounterVec

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics instance with all gateway metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		answersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_answers_total",
				Help: "Total number of answer requests by outcome",
			},
			[]string{"outcome"},
		),

		answerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_answer_duration_seconds",
				Help:    "End-to-end answer latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),

		authFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_auth_failures_total",
				Help: "Total number of rejected API key checks",
			},
		),

		sessionsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_sessions_created_total",
				Help: "Total number of upstream sessions created on behalf of clients",
			},
		),

		citationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_citations_total",
				Help: "Total number of citations processed by enrichment status",
			},
			[]string{"status"},
		),

		auditWrites: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_audit_writes_total",
				Help: "Total number of audit records written to storage",
			},
		),

		auditDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_audit_drops_total",
				Help: "Total number of audit records dropped by reason",
			},
			[]string{"reason"},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		registry: registry,
	}

	// Register all metrics
	registry.MustRegister(
		m.answersTotal,
		m.answerDuration,
		m.authFailures,
		m.sessionsCreated,
		m.citationsTotal,
		m.auditWrites,
		m.auditDrops,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)

	return m
}

// RecordAnswer records a completed answer request
func (m *Metrics) RecordAnswer(outcome string, duration time.Duration) {
	m.answersTotal.WithLabelValues(outcome).Inc()
	m.answerDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordAuthFailure records a rejected API key check
func (m *Metrics) RecordAuthFailure() {
	m.authFailures.Inc()
}

// RecordSessionCreated records an upstream session creation
func (m *Metrics) RecordSessionCreated() {
	m.sessionsCreated.Inc()
}

// RecordCitation records one citation's enrichment status
func (m *Metrics) RecordCitation(status string) {
	m.citationsTotal.WithLabelValues(status).Inc()
}

// AuditWritten implements audit.Observer
func (m *Metrics) AuditWritten() {
	m.auditWrites.Inc()
}

// AuditDropped implements audit.Observer
func (m *Metrics) AuditDropped(reason string) {
	m.auditDrops.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsMiddleware creates HTTP middleware that records request metrics
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := getEndpointName(r.URL.Path)
		statusCode := strconv.Itoa(wrapped.statusCode)

		m.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getEndpointName extracts a normalized endpoint name from the path
func getEndpointName(path string) string {
	switch {
	case path == "/healthz":
		return "healthz"
	case path == "/metrics":
		return "metrics"
	case len(path) > len(answerPathPrefix) && path[:len(answerPathPrefix)] == answerPathPrefix:
		return "answer"
	default:
		return "unknown"
	}
}
