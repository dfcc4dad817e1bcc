package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricHTTPRequestDuration   = "http_request_duration_seconds"
	MetricHTTPRequestsTotal     = "http_requests_total"
	MetricHTTPResponseSizeBytes = "http_response_size_bytes"
	MetricRateLimitRejections   = "http_rate_limit_rejections_total"
	MetricRateLimitStoreErrors  = "http_rate_limit_store_errors_total"
	MetricAuthFailures          = "http_auth_failures_total"
)

// Metrics holds the HTTP layer collectors. All methods are nil-safe.
type Metrics struct {
	requestDuration     *prometheus.HistogramVec
	requestsTotal       *prometheus.CounterVec
	responseSize        *prometheus.HistogramVec
	rateLimitRejections *prometheus.CounterVec
	rateLimitErrors     prometheus.Counter
	authFailures        *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	labels := []string{"method", "route", "status"}
	return &Metrics{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHTTPRequestDuration,
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			labels,
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricHTTPRequestsTotal,
				Help: "Total number of HTTP requests",
			},
			labels,
		),
		responseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHTTPResponseSizeBytes,
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 4, 8),
			},
			labels,
		),
		rateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRateLimitRejections,
				Help: "Requests rejected by the HTTP rate limiter",
			},
			[]string{"bucket", "key_type"},
		),
		rateLimitErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricRateLimitStoreErrors,
				Help: "Rate limit store failures (requests allowed through)",
			},
		),
		authFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricAuthFailures,
				Help: "Rejected bearer tokens by reason",
			},
			[]string{"reason"},
		),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns every collector.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requestDuration,
		m.requestsTotal,
		m.responseSize,
		m.rateLimitRejections,
		m.rateLimitErrors,
		m.authFailures,
	}
}

// ObserveHTTPRequest records one finished request.
func (m *Metrics) ObserveHTTPRequest(method, route, status string, seconds float64, responseSize int64) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, status).Observe(seconds)
	m.requestsTotal.WithLabelValues(method, route, status).Inc()
	m.responseSize.WithLabelValues(method, route, status).Observe(float64(responseSize))
}

// IncRateLimitRejection counts a throttled request.
func (m *Metrics) IncRateLimitRejection(bucket, keyType string) {
	if m == nil {
		return
	}
	m.rateLimitRejections.WithLabelValues(bucket, keyType).Inc()
}

// IncRateLimitStoreError counts a fail-open store error.
func (m *Metrics) IncRateLimitStoreError() {
	if m == nil {
		return
	}
	m.rateLimitErrors.Inc()
}

// IncAuthFailure counts a rejected token.
func (m *Metrics) IncAuthFailure(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}
