package traffic

import (
	"errors"
	"fmt"
)

// Error kinds, one per distinguishable failure class. The orchestration layer
// switches on Kind to decide whether to abort a report, substitute a
// placeholder, or flag partial data.
const (
	KindCircuitOpen    = "CircuitOpen"
	KindRequest        = "Request"
	KindAuthentication = "Authentication"
	KindAuthorization  = "Authorization"
	KindRateLimit      = "RateLimit"
	KindServer         = "Server"
	KindTimeout        = "Timeout"
	KindNetwork        = "Network"
	KindValidation     = "Validation"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrCircuitOpen is returned as the cause when a call is blocked by an
	// open circuit breaker before any network attempt.
	ErrCircuitOpen = errors.New("traffic: circuit open")

	// ErrCacheMiss is returned by stores when a lookup finds nothing fresh.
	ErrCacheMiss = errors.New("traffic: cache miss")
)

// APIError is the single error type surfaced by the core. Kind carries the
// failure classification; the remaining fields carry diagnostic context.
type APIError struct {
	Kind        string
	Message     string
	Cause       error
	StatusCode  int
	RequestID   string
	Endpoint    string
	Attempt     int
	MaxAttempts int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxAttempts)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error kinds for errors.Is. It also matches the ErrCircuitOpen
// sentinel so callers can test for a blocked call without a type assertion.
func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	if target == ErrCircuitOpen {
		return e.Kind == KindCircuitOpen
	}
	if targetErr, ok := target.(*APIError); ok {
		return e.Kind == targetErr.Kind
	}
	return false
}

// IsTransient reports whether an error represents a failure that might
// succeed on a later logical call: rate limiting, server errors, timeouts and
// network failures. Client request errors, auth failures, open circuits and
// configuration errors are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case KindRateLimit, KindServer, KindTimeout, KindNetwork:
			return true
		default:
			return false
		}
	}

	return false
}

// ErrorKind extracts the Kind of an *APIError anywhere in err's chain, or ""
// if there is none.
func ErrorKind(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}
