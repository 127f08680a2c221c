package traffic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxResponseBytes bounds how much of a response body is read into memory.
const maxResponseBytes = 10 * 1024 * 1024

// Executor drives exactly one logical request to a terminal outcome. It
// gates on the endpoint's circuit breaker, executes the call through the
// middleware chain, classifies the result and retries transient failures:
// exponential backoff for rate-limit and server errors, a fixed delay for
// connection failures, immediate retry for timeouts. The breaker observes one
// outcome per logical request — a success, or a single OnFailure when the
// retry budget is exhausted.
type Executor struct {
	httpClient       *http.Client
	breakers         *BreakerRegistry
	middleware       []Middleware
	transientBackoff BackoffStrategy
	networkBackoff   BackoffStrategy
	maxAttempts      int
	timeout          time.Duration
	logger           Logger
	metrics          *MetricsCollector
}

// NewExecutor wires an executor from its collaborators. The backoff
// strategies separate the overload class (transient) from the connection
// failure class (network) on purpose; do not unify them.
func NewExecutor(cfg Config, breakers *BreakerRegistry, httpClient *http.Client, transientBackoff, networkBackoff BackoffStrategy, logger Logger, metrics *MetricsCollector, middleware ...Middleware) *Executor {
	return &Executor{
		httpClient:       httpClient,
		breakers:         breakers,
		middleware:       middleware,
		transientBackoff: transientBackoff,
		networkBackoff:   networkBackoff,
		maxAttempts:      cfg.MaxAttempts,
		timeout:          cfg.RequestTimeout,
		logger:           logger,
		metrics:          metrics,
	}
}

// Execute runs one logical request to completion and returns its Outcome.
// It never returns before the descriptor has exactly one classification.
func (e *Executor) Execute(ctx context.Context, desc RequestDescriptor) Outcome {
	start := time.Now()
	out := Outcome{RequestID: desc.RequestID}

	maxAttempts := desc.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = e.maxAttempts
	}
	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}

	breaker := e.breakers.Get(desc.EndpointID)

	e.metrics.RecordRequestStart(desc.EndpointID)
	defer e.metrics.RecordRequestEnd(desc.EndpointID)

	if e.logger != nil {
		e.logger.Debug("executing request",
			"requestID", desc.RequestID, "endpoint", desc.EndpointID, "operation", desc.Operation)
	}

	// A descriptor that cannot even produce a request is a client-side
	// error: no attempt, no retry, no breaker mutation.
	if _, err := e.newAttemptRequest(context.Background(), desc); err != nil {
		out.Err = e.newError(KindRequest, "invalid request", err, desc, 0, maxAttempts, 0)
		out.Duration = time.Since(start)
		e.metrics.RecordError(KindRequest, desc.EndpointID)
		return out
	}

	gate := true
	attempt := 0
	for {
		if gate && !breaker.Allow() {
			if e.logger != nil {
				e.logger.Warn("circuit breaker open, call blocked",
					"requestID", desc.RequestID, "endpoint", desc.EndpointID)
			}
			e.metrics.RecordError(KindCircuitOpen, desc.EndpointID)
			out.Err = e.newError(KindCircuitOpen, "circuit breaker is open", ErrCircuitOpen, desc, attempt, maxAttempts, 0)
			out.Attempts = attempt
			out.Duration = time.Since(start)
			return out
		}

		actx, cancel := context.WithTimeout(ctx, timeout)
		req, err := e.newAttemptRequest(actx, desc)
		var resp *http.Response
		if err == nil {
			resp, err = e.roundTrip(req)
		}

		kind, retryAfter := classify(resp, err)
		cause := err
		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}

		if kind == "" {
			payload, readErr := readBody(resp)
			cancel()
			if readErr == nil {
				breaker.OnSuccess()
				e.metrics.RecordCircuitBreakerState(desc.EndpointID, breaker.State())
				out.Payload = payload
				out.StatusCode = statusCode
				out.Attempts = attempt + 1
				out.Duration = time.Since(start)
				e.metrics.RecordRequest(desc.EndpointID, statusCode, out.Duration)
				return out
			}
			// Connection died mid-body; same class as any other network failure.
			kind, cause = KindNetwork, readErr
		} else {
			drain(resp)
			cancel()
		}

		// Non-transient classifications surface immediately: not the remote
		// service's instability, so the breaker stays untouched.
		switch kind {
		case KindRequest, KindAuthentication, KindAuthorization:
			out.Err = e.newError(kind, failureMessage(kind, statusCode), cause, desc, attempt+1, maxAttempts, statusCode)
			out.Attempts = attempt + 1
			out.Duration = time.Since(start)
			e.metrics.RecordError(kind, desc.EndpointID)
			e.metrics.RecordRequest(desc.EndpointID, statusCode, out.Duration)
			return out
		}

		// The batch deadline is gone: report abandonment, don't burn more
		// attempts and don't punish the breaker for our own deadline.
		if ctx.Err() != nil {
			out.Err = e.newError(KindTimeout, "deadline exceeded", ctx.Err(), desc, attempt+1, maxAttempts, statusCode)
			out.Attempts = attempt + 1
			out.Duration = time.Since(start)
			e.metrics.RecordError(KindTimeout, desc.EndpointID)
			return out
		}

		if attempt+1 >= maxAttempts {
			breaker.OnFailure()
			e.metrics.RecordCircuitBreakerState(desc.EndpointID, breaker.State())
			e.metrics.RecordError(kind, desc.EndpointID)
			out.Err = e.newError(kind, failureMessage(kind, statusCode), cause, desc, attempt+1, maxAttempts, statusCode)
			out.Attempts = attempt + 1
			out.Duration = time.Since(start)
			if e.logger != nil {
				e.logger.Warn("retries exhausted",
					"requestID", desc.RequestID, "endpoint", desc.EndpointID, "kind", kind, "attempts", attempt+1)
			}
			return out
		}

		var delay time.Duration
		gate = true
		switch kind {
		case KindRateLimit, KindServer:
			delay = e.transientBackoff.Delay(attempt)
			if retryAfter > 0 {
				delay = retryAfter
			}
		case KindNetwork:
			delay = e.networkBackoff.Delay(attempt)
			gate = false
		case KindTimeout:
			// Timed-out attempts retry immediately; the per-attempt timeout
			// already spent the waiting.
			delay = 0
			gate = false
		}

		e.metrics.RecordRetry(desc.EndpointID, kind)
		if e.logger != nil {
			e.logger.Info("scheduling retry",
				"requestID", desc.RequestID, "endpoint", desc.EndpointID,
				"kind", kind, "attempt", attempt+1, "maxAttempts", maxAttempts, "delay", delay)
		}

		if delay > 0 && !sleepCtx(ctx, delay) {
			out.Err = e.newError(KindTimeout, "deadline exceeded", ctx.Err(), desc, attempt+1, maxAttempts, statusCode)
			out.Attempts = attempt + 1
			out.Duration = time.Since(start)
			e.metrics.RecordError(KindTimeout, desc.EndpointID)
			return out
		}
		attempt++
	}
}

func (e *Executor) newAttemptRequest(ctx context.Context, desc RequestDescriptor) (*http.Request, error) {
	method := desc.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if len(desc.Body) > 0 {
		body = bytes.NewReader(desc.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, desc.URL, body)
	if err != nil {
		return nil, err
	}

	if len(desc.Params) > 0 {
		q := req.URL.Query()
		for name, value := range desc.Params {
			q.Set(name, value)
		}
		req.URL.RawQuery = q.Encode()
	}
	if len(desc.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if desc.RequestID != "" {
		req.Header.Set("X-Request-ID", desc.RequestID)
	}
	return req, nil
}

// roundTrip executes the middleware chain around the pooled HTTP client.
func (e *Executor) roundTrip(req *http.Request) (*http.Response, error) {
	if len(e.middleware) == 0 {
		return e.httpClient.Do(req)
	}

	current := RoundTripper(RoundTripperFunc(e.httpClient.Do))
	for i := len(e.middleware) - 1; i >= 0; i-- {
		mw := e.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return mw(r, next)
		})
	}
	return current.RoundTrip(req)
}

func (e *Executor) newError(kind, message string, cause error, desc RequestDescriptor, attempt, maxAttempts, statusCode int) *APIError {
	return &APIError{
		Kind:        kind,
		Message:     message,
		Cause:       cause,
		StatusCode:  statusCode,
		RequestID:   desc.RequestID,
		Endpoint:    desc.EndpointID,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
	}
}

// classify maps a transport result to an error kind ("" means success) and
// extracts a server-suggested retry delay when one applies.
func classify(resp *http.Response, err error) (kind string, retryAfter time.Duration) {
	if err != nil {
		if isTimeout(err) {
			return KindTimeout, 0
		}
		return KindNetwork, 0
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return "", 0
	case resp.StatusCode == http.StatusUnauthorized:
		return KindAuthentication, 0
	case resp.StatusCode == http.StatusForbidden:
		return KindAuthorization, 0
	case resp.StatusCode == http.StatusTooManyRequests:
		return KindRateLimit, parseRetryAfter(resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusServiceUnavailable:
		return KindServer, parseRetryAfter(resp.Header.Get("Retry-After"))
	case resp.StatusCode >= 500:
		return KindServer, 0
	default:
		return KindRequest, 0
	}
}

func failureMessage(kind string, statusCode int) string {
	switch kind {
	case KindRequest:
		if statusCode == 0 {
			return "invalid request"
		}
		return fmt.Sprintf("request rejected (HTTP %d)", statusCode)
	case KindAuthentication:
		return "authentication failed (HTTP 401)"
	case KindAuthorization:
		return "authorization failed (HTTP 403)"
	case KindRateLimit:
		return "rate limit exceeded"
	case KindServer:
		return fmt.Sprintf("server error (HTTP %d)", statusCode)
	case KindTimeout:
		return "request timed out"
	case KindNetwork:
		return "network request failed"
	default:
		return "request failed"
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// parseRetryAfter parses a Retry-After header in either delay-seconds or
// HTTP-date form, capped at one hour. Zero means no usable value.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil && err != io.EOF {
		return nil, err
	}
	return payload, nil
}

func drain(resp *http.Response) {
	if resp == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
}

// sleepCtx sleeps for d or until ctx is done; it reports whether the full
// sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
