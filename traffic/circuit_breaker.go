package traffic

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// CircuitBreaker guards one remote endpoint. It fails calls fast while the
// endpoint is misbehaving and lets a bounded probe through once the recovery
// timeout has elapsed. All methods are safe for concurrent use; every state
// transition is logged as an audit trail.
type CircuitBreaker struct {
	name   string
	config BreakerConfig
	logger Logger

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time

	// At most one half-open probe may be in flight; the reservation is
	// re-armed if no outcome arrives within another recovery timeout, so a
	// probe abandoned without a report cannot wedge the breaker.
	probeActive bool
	probeAt     time.Time

	now func() time.Time
}

// NewCircuitBreaker creates a breaker in the closed state. Zero config fields
// fall back to defaults.
func NewCircuitBreaker(name string, config BreakerConfig, logger Logger) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 3
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Allow reports whether a call may proceed. A false return is a fast, cheap
// rejection: the caller must surface it as a circuit-open failure without
// consuming retry budget. When the recovery timeout has elapsed on an open
// breaker, Allow atomically transitions to half-open and admits the caller as
// the single probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(cb.openedAt) >= cb.config.RecoveryTimeout {
			cb.transition(StateHalfOpen, "recovery timeout elapsed")
			cb.successes = 0
			cb.probeActive = true
			cb.probeAt = now
			return true
		}
		return false
	case StateHalfOpen:
		if !cb.probeActive || now.Sub(cb.probeAt) >= cb.config.RecoveryTimeout {
			cb.probeActive = true
			cb.probeAt = now
			return true
		}
		return false
	default:
		return false
	}
}

// OnSuccess records a successful call. It resets the consecutive failure
// counter; while half-open it counts toward the success threshold and closes
// the circuit once reached.
func (cb *CircuitBreaker) OnSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.probeActive = false

	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transition(StateClosed, "success threshold reached")
			cb.successes = 0
		}
	}
}

// OnFailure records a failed call. While closed it opens the circuit once the
// failure threshold is reached; while half-open a single failure reopens it.
func (cb *CircuitBreaker) OnFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.successes = 0
	cb.probeActive = false

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.openedAt = cb.now()
			cb.transition(StateOpen, "failure threshold reached")
		}
	case StateHalfOpen:
		cb.openedAt = cb.now()
		cb.transition(StateOpen, "probe failed")
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker back to closed and zeroes its counters. Intended
// for administrative recovery and tests.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		cb.transition(StateClosed, "manual reset")
	}
	cb.failures = 0
	cb.successes = 0
	cb.probeActive = false
	cb.openedAt = time.Time{}
}

// BreakerSnapshot is a point-in-time view of a breaker for introspection.
type BreakerSnapshot struct {
	Name             string
	State            string
	Failures         int
	Successes        int
	FailureThreshold int
	SuccessThreshold int
	RecoveryTimeout  time.Duration
	RetryIn          time.Duration
}

// Snapshot returns the breaker's current state and counters.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var retryIn time.Duration
	if cb.state == StateOpen {
		retryIn = cb.config.RecoveryTimeout - cb.now().Sub(cb.openedAt)
		if retryIn < 0 {
			retryIn = 0
		}
	}

	return BreakerSnapshot{
		Name:             cb.name,
		State:            cb.state.String(),
		Failures:         cb.failures,
		Successes:        cb.successes,
		FailureThreshold: cb.config.FailureThreshold,
		SuccessThreshold: cb.config.SuccessThreshold,
		RecoveryTimeout:  cb.config.RecoveryTimeout,
		RetryIn:          retryIn,
	}
}

// transition logs and applies a state change. Caller must hold cb.mu.
func (cb *CircuitBreaker) transition(to CircuitState, reason string) {
	from := cb.state
	cb.state = to
	if cb.logger != nil {
		cb.logger.Info("circuit breaker state change",
			"breaker", cb.name,
			"from", from.String(),
			"to", to.String(),
			"reason", reason,
		)
	}
}

// BreakerRegistry owns one CircuitBreaker per endpoint ID, created lazily on
// first use. It replaces the process-wide breaker singletons of earlier
// revisions with an explicitly injected instance.
type BreakerRegistry struct {
	config BreakerConfig
	logger Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewBreakerRegistry creates an empty registry; every breaker it creates
// shares the given configuration.
func NewBreakerRegistry(config BreakerConfig, logger Logger) *BreakerRegistry {
	return &BreakerRegistry{
		config:   config,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for the endpoint, creating it on first use. The
// same endpoint always maps to the same instance.
func (r *BreakerRegistry) Get(endpointID string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[endpointID]
	if !ok {
		cb = NewCircuitBreaker(endpointID, r.config, r.logger)
		r.breakers[endpointID] = cb
	}
	return cb
}

// Snapshot returns a snapshot of every known breaker keyed by endpoint ID.
func (r *BreakerRegistry) Snapshot() map[string]BreakerSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]BreakerSnapshot, len(r.breakers))
	for id, cb := range r.breakers {
		out[id] = cb.Snapshot()
	}
	return out
}

// ResetAll resets every known breaker to closed.
func (r *BreakerRegistry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cb := range r.breakers {
		cb.Reset()
	}
}
