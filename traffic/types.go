package traffic

import (
	"net/http"
	"time"
)

// RequestDescriptor describes one logical request against a remote API
// endpoint. RequestID keys the descriptor's outcome in the dispatch result;
// EndpointID selects the circuit breaker that governs the call; Operation and
// Params together form the cache fingerprint.
type RequestDescriptor struct {
	RequestID  string
	EndpointID string
	Operation  string
	Method     string
	URL        string
	Params     map[string]string
	Body       []byte

	// Per-call policy overrides; zero values fall back to the Config defaults.
	MaxAttempts int
	Timeout     time.Duration
	CacheTTL    time.Duration
}

// Outcome is the terminal result of one descriptor: either a payload or a
// classified *APIError, never both.
type Outcome struct {
	RequestID  string
	Payload    []byte
	StatusCode int
	Err        error
	FromCache  bool
	Attempts   int
	Duration   time.Duration
}

// OK reports whether the descriptor resolved to a successful payload.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Config carries every tunable consumed by the core. It is supplied by the
// orchestration layer's config loader; the core never reads files or
// environment variables itself.
type Config struct {
	// Circuit breaker.
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int

	// Backoff policy.
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	BackoffMultiplier float64
	JitterFraction    float64
	NetworkRetryDelay time.Duration

	// Executor.
	MaxAttempts    int
	RequestTimeout time.Duration

	// Cache.
	CacheEnabled bool
	CacheTTL     time.Duration

	// Dispatcher / connection pool.
	MaxWorkers   int
	PoolSize     int
	StaggerDelay time.Duration
}

// DefaultConfig mirrors the tool's shipped defaults: a small worker pool and
// conservative breaker thresholds, politeness over throughput.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:  3,
		RecoveryTimeout:   30 * time.Second,
		SuccessThreshold:  2,
		BackoffBase:       1 * time.Second,
		BackoffCap:        60 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
		NetworkRetryDelay: 5 * time.Second,
		MaxAttempts:       3,
		RequestTimeout:    30 * time.Second,
		CacheEnabled:      false,
		CacheTTL:          2 * time.Hour,
		MaxWorkers:        3,
		PoolSize:          10,
		StaggerDelay:      100 * time.Millisecond,
	}
}

// BackoffStrategy computes the delay before the retry following the given
// 0-based attempt index.
type BackoffStrategy interface {
	Delay(attempt int) time.Duration
}

// Middleware decorates an outgoing request on its way to the transport.
// The auth collaborator injects its headers here.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface.
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Option represents a configuration option applied at construction.
type Option func(*Client)
