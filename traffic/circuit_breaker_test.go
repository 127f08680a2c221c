package traffic

import (
	"testing"
	"time"
)

// fakeClock drives a breaker's notion of time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(config BreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cb := NewCircuitBreaker("test", config, nil)
	cb.now = clock.Now
	return cb, clock
}

func TestNewCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker("ep", BreakerConfig{}, nil)

	if cb.config.FailureThreshold != 3 {
		t.Errorf("Expected default FailureThreshold=3, got %d", cb.config.FailureThreshold)
	}
	if cb.config.RecoveryTimeout != 30*time.Second {
		t.Errorf("Expected default RecoveryTimeout=30s, got %v", cb.config.RecoveryTimeout)
	}
	if cb.config.SuccessThreshold != 2 {
		t.Errorf("Expected default SuccessThreshold=2, got %d", cb.config.SuccessThreshold)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected initial state=closed, got %v", cb.State())
	}
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3})

	cb.OnFailure()
	cb.OnFailure()
	if cb.State() != StateClosed {
		t.Errorf("Expected state=closed after 2 failures, got %v", cb.State())
	}

	cb.OnFailure()
	if cb.State() != StateOpen {
		t.Errorf("Expected state=open after 3 failures, got %v", cb.State())
	}
	if cb.Allow() {
		t.Error("Expected Allow()=false while open")
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3})

	cb.OnFailure()
	cb.OnFailure()
	cb.OnSuccess()
	cb.OnFailure()
	cb.OnFailure()

	if cb.State() != StateClosed {
		t.Errorf("Expected state=closed, consecutive failures were interrupted, got %v", cb.State())
	}

	cb.OnFailure()
	if cb.State() != StateOpen {
		t.Errorf("Expected state=open after 3 consecutive failures, got %v", cb.State())
	}
}

func TestCircuitBreakerHalfOpenAfterRecoveryTimeout(t *testing.T) {
	cb, clock := newTestBreaker(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 30 * time.Second})

	cb.OnFailure()
	if cb.Allow() {
		t.Error("Expected Allow()=false immediately after opening")
	}

	clock.Advance(29 * time.Second)
	if cb.Allow() {
		t.Error("Expected Allow()=false before recovery timeout")
	}

	clock.Advance(1 * time.Second)
	if !cb.Allow() {
		t.Error("Expected Allow()=true once recovery timeout elapsed")
	}
	if cb.State() != StateHalfOpen {
		t.Errorf("Expected state=half-open, got %v", cb.State())
	}
}

func TestCircuitBreakerHalfOpenSingleProbe(t *testing.T) {
	cb, clock := newTestBreaker(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 30 * time.Second})

	cb.OnFailure()
	clock.Advance(30 * time.Second)

	if !cb.Allow() {
		t.Fatal("Expected first half-open call to be admitted as probe")
	}
	if cb.Allow() {
		t.Error("Expected second call to be rejected while probe in flight")
	}

	// The probe reservation re-arms after another recovery timeout so an
	// abandoned probe cannot wedge the breaker.
	clock.Advance(30 * time.Second)
	if !cb.Allow() {
		t.Error("Expected probe reservation to re-arm after recovery timeout")
	}
}

func TestCircuitBreakerProbeFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 30 * time.Second})

	cb.OnFailure()
	clock.Advance(30 * time.Second)
	cb.Allow()
	cb.OnFailure()

	if cb.State() != StateOpen {
		t.Errorf("Expected state=open after probe failure, got %v", cb.State())
	}
	if cb.Allow() {
		t.Error("Expected Allow()=false after probe failure reopened the breaker")
	}

	// The reopen restarts the recovery clock.
	clock.Advance(30 * time.Second)
	if !cb.Allow() {
		t.Error("Expected a new probe after another recovery timeout")
	}
}

func TestCircuitBreakerClosesAtSuccessThreshold(t *testing.T) {
	cb, clock := newTestBreaker(BreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
	})

	cb.OnFailure()
	clock.Advance(30 * time.Second)

	cb.Allow()
	cb.OnSuccess()
	if cb.State() != StateHalfOpen {
		t.Errorf("Expected state=half-open after first probe success, got %v", cb.State())
	}

	cb.Allow()
	cb.OnSuccess()
	if cb.State() != StateClosed {
		t.Errorf("Expected state=closed after reaching success threshold, got %v", cb.State())
	}
	if !cb.Allow() {
		t.Error("Expected Allow()=true after closing")
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{FailureThreshold: 1})

	cb.OnFailure()
	if cb.State() != StateOpen {
		t.Fatalf("Expected state=open, got %v", cb.State())
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("Expected state=closed after reset, got %v", cb.State())
	}
	if !cb.Allow() {
		t.Error("Expected Allow()=true after reset")
	}

	snap := cb.Snapshot()
	if snap.Failures != 0 || snap.Successes != 0 {
		t.Errorf("Expected counters zeroed after reset, got failures=%d successes=%d", snap.Failures, snap.Successes)
	}
}

func TestCircuitBreakerSnapshotRetryIn(t *testing.T) {
	cb, clock := newTestBreaker(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 30 * time.Second})

	cb.OnFailure()
	clock.Advance(10 * time.Second)

	snap := cb.Snapshot()
	if snap.State != "open" {
		t.Errorf("Expected snapshot state=open, got %q", snap.State)
	}
	if snap.RetryIn != 20*time.Second {
		t.Errorf("Expected RetryIn=20s, got %v", snap.RetryIn)
	}
}

func TestBreakerRegistrySameInstancePerEndpoint(t *testing.T) {
	r := NewBreakerRegistry(BreakerConfig{}, nil)

	a := r.Get("endpoint-a")
	b := r.Get("endpoint-b")
	if a == b {
		t.Error("Expected distinct breakers for distinct endpoints")
	}
	if r.Get("endpoint-a") != a {
		t.Error("Expected the same breaker instance on repeated Get")
	}
}

func TestBreakerRegistryIsolation(t *testing.T) {
	r := NewBreakerRegistry(BreakerConfig{FailureThreshold: 1}, nil)

	r.Get("bad").OnFailure()

	if r.Get("bad").State() != StateOpen {
		t.Errorf("Expected bad endpoint open, got %v", r.Get("bad").State())
	}
	if r.Get("good").State() != StateClosed {
		t.Errorf("Expected good endpoint unaffected, got %v", r.Get("good").State())
	}
}

func TestBreakerRegistryResetAll(t *testing.T) {
	r := NewBreakerRegistry(BreakerConfig{FailureThreshold: 1}, nil)

	r.Get("a").OnFailure()
	r.Get("b").OnFailure()
	r.ResetAll()

	for id, snap := range r.Snapshot() {
		if snap.State != "closed" {
			t.Errorf("Expected %s closed after ResetAll, got %q", id, snap.State)
		}
	}
}
