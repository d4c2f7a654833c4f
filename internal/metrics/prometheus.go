package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the form relay service
type Metrics struct {
	registry *prometheus.Registry

	// Relay listener metrics
	DatagramsReceived  prometheus.Counter
	DatagramsPersisted prometheus.Counter
	DecodeErrors       prometheus.Counter
	StoreErrors        *prometheus.CounterVec
	StoreDuration      prometheus.Histogram
	DatagramSize       prometheus.Histogram

	// Form relay (HTTP side) metrics
	SubmissionsRelayed prometheus.Counter
	RelayFailures      prometheus.Counter

	// HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Relay listener metrics
		DatagramsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "formrelay_datagrams_received_total",
			Help: "Total number of UDP datagrams received by the relay listener",
		}),
		DatagramsPersisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "formrelay_datagrams_persisted_total",
			Help: "Total number of datagrams decoded and written to the store",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "formrelay_decode_errors_total",
			Help: "Total number of datagrams dropped because they could not be decoded",
		}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formrelay_store_errors_total",
			Help: "Total number of datagrams dropped because the store failed",
		}, []string{"kind"}),
		StoreDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "formrelay_store_append_duration_seconds",
			Help:    "Time spent on a store read-merge-write",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}),
		DatagramSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "formrelay_datagram_size_bytes",
			Help:    "Size of received datagrams in bytes",
			Buckets: prometheus.ExponentialBuckets(16, 2, 8), // 16B to 2KB
		}),

		// Form relay metrics
		SubmissionsRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "formrelay_submissions_relayed_total",
			Help: "Total number of form submissions sent to the relay listener",
		}),
		RelayFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "formrelay_relay_failures_total",
			Help: "Total number of form submissions whose datagram could not be sent",
		}),

		// HTTP metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formrelay_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formrelay_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formrelay_http_errors_total",
			Help: "Total number of HTTP error responses",
		}, []string{"method", "route", "error_type"}),
	}
}

// Registry returns the registry holding every metric
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordDatagramReceived counts a received datagram
func (m *Metrics) RecordDatagramReceived(sizeBytes int) {
	m.DatagramsReceived.Inc()
	m.DatagramSize.Observe(float64(sizeBytes))
}

// RecordDatagramPersisted counts a datagram written to the store
func (m *Metrics) RecordDatagramPersisted(durationSeconds float64) {
	m.DatagramsPersisted.Inc()
	m.StoreDuration.Observe(durationSeconds)
}

// RecordDecodeError counts a datagram rejected by the decoder
func (m *Metrics) RecordDecodeError() {
	m.DecodeErrors.Inc()
}

// RecordStoreError counts a datagram dropped by a store failure
func (m *Metrics) RecordStoreError(kind string, durationSeconds float64) {
	m.StoreErrors.WithLabelValues(kind).Inc()
	m.StoreDuration.Observe(durationSeconds)
}

// RecordSubmissionRelayed counts a submission sent over UDP
func (m *Metrics) RecordSubmissionRelayed() {
	m.SubmissionsRelayed.Inc()
}

// RecordRelayFailure counts a submission whose datagram send failed
func (m *Metrics) RecordRelayFailure() {
	m.RelayFailures.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, route, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, route, errorType string) {
	m.HTTPErrors.WithLabelValues(method, route, errorType).Inc()
}
