package traffic

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollectorRecordsRequest(t *testing.T) {
	mc := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	mc.RecordRequest("reporting", 200, 120*time.Millisecond)
	mc.RecordRequest("reporting", 200, 80*time.Millisecond)
	mc.RecordRequest("reporting", 503, 40*time.Millisecond)

	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("reporting", "200")); got != 2 {
		t.Errorf("Expected 2 successful requests, got %v", got)
	}
	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("reporting", "503")); got != 1 {
		t.Errorf("Expected 1 failed request, got %v", got)
	}
}

func TestMetricsCollectorInFlight(t *testing.T) {
	mc := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	mc.RecordRequestStart("reporting")
	mc.RecordRequestStart("reporting")
	mc.RecordRequestEnd("reporting")

	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("reporting")); got != 1 {
		t.Errorf("Expected 1 in flight, got %v", got)
	}
}

func TestMetricsCollectorRetriesAndErrors(t *testing.T) {
	mc := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	mc.RecordRetry("reporting", KindRateLimit)
	mc.RecordRetry("reporting", KindRateLimit)
	mc.RecordError(KindRateLimit, "reporting")

	if got := testutil.ToFloat64(mc.retriesTotal.WithLabelValues("reporting", KindRateLimit)); got != 2 {
		t.Errorf("Expected 2 retries, got %v", got)
	}
	if got := testutil.ToFloat64(mc.errorsTotal.WithLabelValues(KindRateLimit, "reporting")); got != 1 {
		t.Errorf("Expected 1 error, got %v", got)
	}
}

func TestMetricsCollectorCircuitBreakerState(t *testing.T) {
	mc := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	mc.RecordCircuitBreakerState("reporting", StateOpen)

	if got := testutil.ToFloat64(mc.circuitBreakerState.WithLabelValues("reporting")); got != float64(StateOpen) {
		t.Errorf("Expected state gauge %v, got %v", float64(StateOpen), got)
	}
}

func TestMetricsCollectorCache(t *testing.T) {
	mc := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	mc.RecordCacheHit("traffic-report")
	mc.RecordCacheMiss("traffic-report")
	mc.RecordCacheMiss("traffic-report")
	mc.RecordCacheSize("default", 7)

	if got := testutil.ToFloat64(mc.cacheHits.WithLabelValues("traffic-report")); got != 1 {
		t.Errorf("Expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(mc.cacheMisses.WithLabelValues("traffic-report")); got != 2 {
		t.Errorf("Expected 2 misses, got %v", got)
	}
	if got := testutil.ToFloat64(mc.cacheSize.WithLabelValues("default")); got != 7 {
		t.Errorf("Expected cache size 7, got %v", got)
	}
}

func TestMetricsCollectorNilIsNoop(t *testing.T) {
	var mc *MetricsCollector

	// None of these may panic.
	mc.RecordRequest("reporting", 200, time.Second)
	mc.RecordRequestStart("reporting")
	mc.RecordRequestEnd("reporting")
	mc.RecordRetry("reporting", KindServer)
	mc.RecordCircuitBreakerState("reporting", StateClosed)
	mc.RecordCacheHit("op")
	mc.RecordCacheMiss("op")
	mc.RecordCacheSize("default", 1)
	mc.RecordError(KindServer, "reporting")
}
