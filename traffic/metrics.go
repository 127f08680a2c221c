package traffic

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle and
// the reliability layers. It is safe for concurrent use; a nil collector is a
// no-op everywhere.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   *prometheus.GaugeVec

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer. Tests pass a fresh prometheus.NewRegistry to avoid collisions.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "akamai_api_requests_total",
				Help: "Total number of API requests made",
			},
			[]string{"endpoint", "status_code"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "akamai_api_request_duration_seconds",
				Help:    "Duration of API requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "akamai_api_requests_in_flight",
				Help: "Number of API requests currently in flight",
			},
			[]string{"endpoint"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "akamai_api_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"endpoint", "kind"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "akamai_api_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"endpoint"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "akamai_api_cache_hits_total",
				Help: "Total number of response cache hits",
			},
			[]string{"operation"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "akamai_api_cache_misses_total",
				Help: "Total number of response cache misses",
			},
			[]string{"operation"},
		),
		cacheSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "akamai_api_cache_size",
				Help: "Current number of entries in the response cache",
			},
			[]string{"name"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "akamai_api_errors_total",
				Help: "Total number of terminal errors by kind",
			},
			[]string{"kind", "endpoint"},
		),
	}
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.requestsTotal.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	mc.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(endpoint).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(endpoint).Dec()
}

// RecordRetry increments the retry counter for a failure kind.
func (mc *MetricsCollector) RecordRetry(endpoint, kind string) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(endpoint, kind).Inc()
}

// RecordCircuitBreakerState sets the state gauge for an endpoint's breaker.
func (mc *MetricsCollector) RecordCircuitBreakerState(endpoint string, state CircuitState) {
	if mc == nil {
		return
	}
	mc.circuitBreakerState.WithLabelValues(endpoint).Set(float64(state))
}

// RecordCacheHit increments the cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(operation string) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(operation).Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(operation string) {
	if mc == nil {
		return
	}
	mc.cacheMisses.WithLabelValues(operation).Inc()
}

// RecordCacheSize sets the cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(name string, size int) {
	if mc == nil {
		return
	}
	mc.cacheSize.WithLabelValues(name).Set(float64(size))
}

// RecordError increments the terminal error counter by kind.
func (mc *MetricsCollector) RecordError(kind, endpoint string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(kind, endpoint).Inc()
}
