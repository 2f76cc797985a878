// Package metrics provides Prometheus metrics for the Quickbase client.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "qbclient"

// Metrics holds all Prometheus metrics for the client.
type Metrics struct {
	// Transport metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RetriesTotal    *prometheus.CounterVec

	// Metadata cache metrics
	CacheLookupsTotal       *prometheus.CounterVec
	CacheFetchesTotal       *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec
}

// New creates the metrics and registers them on registerer. A nil
// registerer creates unregistered collectors, which is what tests want.
func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	m := &Metrics{}

	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP attempts sent to the Quickbase API",
		},
		[]string{"method", "endpoint", "status"},
	)

	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP attempts in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	m.RetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_retries_total",
			Help:      "Total number of retried HTTP attempts",
		},
		[]string{"method", "endpoint"},
	)

	m.CacheLookupsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_lookups_total",
			Help:      "Metadata cache lookups by kind and result",
		},
		[]string{"kind", "result"},
	)

	m.CacheFetchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_fetches_total",
			Help:      "Metadata fetches issued to the API by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	m.CacheInvalidationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_invalidations_total",
			Help:      "Metadata cache invalidations by origin",
		},
		[]string{"origin"},
	)

	return m
}

// ObserveAttempt records one HTTP attempt. Status 0 is reported as "error".
func (m *Metrics) ObserveAttempt(method, endpoint string, status int, elapsed time.Duration) {
	label := "error"
	if status != 0 {
		label = strconv.Itoa(status)
	}

	m.RequestsTotal.WithLabelValues(method, endpoint, label).Inc()
	m.RequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

// ObserveRetry records a retried attempt.
func (m *Metrics) ObserveRetry(method, endpoint string) {
	m.RetriesTotal.WithLabelValues(method, endpoint).Inc()
}

// ObserveLookup records a cache lookup; hit is false when a fetch was needed.
func (m *Metrics) ObserveLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	m.CacheLookupsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveFetch records a metadata fetch outcome: "committed", "discarded"
// or "failed".
func (m *Metrics) ObserveFetch(kind, outcome string) {
	m.CacheFetchesTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveInvalidation records an invalidation, "local" or "remote".
func (m *Metrics) ObserveInvalidation(origin string) {
	m.CacheInvalidationsTotal.WithLabelValues(origin).Inc()
}
