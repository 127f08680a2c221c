package traffic

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/jimc1682000/akamai-reports/internal/backoff"
)

// Client is the resilient access layer over a remote reporting API. It owns
// the per-endpoint circuit breakers, the response cache and the dispatch pool,
// and exposes one blocking entry point, Execute, that resolves every request
// in a batch to exactly one Outcome.
//
// A Client is safe for concurrent use and is intended to be created once and
// shared.
type Client struct {
	config Config

	httpClient *http.Client
	logger     Logger
	metrics    *MetricsCollector
	middleware []Middleware
	store      Store

	transientBackoff BackoffStrategy
	networkBackoff   BackoffStrategy
	requestID        func() string

	breakers   *BreakerRegistry
	cache      *ResponseCache
	executor   *Executor
	dispatcher *Dispatcher
}

// New builds a Client from cfg and the given options. Configuration that
// cannot express a working client is rejected up front with a validation
// error rather than surfacing as misbehavior at call time.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	c := &Client{config: cfg}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        cfg.PoolSize,
				MaxIdleConnsPerHost: cfg.PoolSize,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if c.transientBackoff == nil {
		c.transientBackoff = backoff.NewExponentialJitter(
			cfg.BackoffBase, cfg.BackoffCap, cfg.BackoffMultiplier, cfg.JitterFraction)
	}
	if c.networkBackoff == nil {
		c.networkBackoff = backoff.NewFixedDelay(cfg.NetworkRetryDelay)
	}
	if c.store == nil {
		c.store = NewShardedStore()
	}
	if c.requestID == nil {
		c.requestID = newRequestID
	}

	c.breakers = NewBreakerRegistry(BreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		RecoveryTimeout:  cfg.RecoveryTimeout,
		SuccessThreshold: cfg.SuccessThreshold,
	}, c.logger)
	c.cache = NewResponseCache(c.store, cfg.CacheEnabled, cfg.CacheTTL, c.logger, c.metrics)
	c.executor = NewExecutor(cfg, c.breakers, c.httpClient,
		c.transientBackoff, c.networkBackoff, c.logger, c.metrics, c.middleware...)
	c.dispatcher = NewDispatcher(cfg, c.executor, c.cache, c.logger, c.metrics)

	return c, nil
}

// Execute runs the batch and blocks until every request has resolved or the
// deadline expired. The returned map holds exactly one Outcome per request;
// failures are carried inside the outcomes, so the only error this method
// itself returns is batch validation. A non-positive deadline means the batch
// is bounded only by ctx.
func (c *Client) Execute(ctx context.Context, batch []RequestDescriptor, deadline time.Duration) (map[string]Outcome, error) {
	prepared := make([]RequestDescriptor, len(batch))
	seen := make(map[string]struct{}, len(batch))
	for i, desc := range batch {
		if desc.RequestID == "" {
			desc.RequestID = c.requestID()
		}
		if _, dup := seen[desc.RequestID]; dup {
			return nil, &APIError{
				Kind:      KindValidation,
				Message:   fmt.Sprintf("duplicate request id %q in batch", desc.RequestID),
				RequestID: desc.RequestID,
			}
		}
		seen[desc.RequestID] = struct{}{}
		if desc.URL == "" {
			return nil, &APIError{
				Kind:      KindValidation,
				Message:   "request descriptor has no URL",
				RequestID: desc.RequestID,
			}
		}
		prepared[i] = desc
	}

	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	return c.dispatcher.Dispatch(ctx, prepared), nil
}

// Do runs a single descriptor through the full retry and breaker pipeline,
// bypassing the dispatch pool. Convenience for callers that do not batch.
func (c *Client) Do(ctx context.Context, desc RequestDescriptor) Outcome {
	if desc.RequestID == "" {
		desc.RequestID = c.requestID()
	}
	if out, ok := c.dispatcher.fromCache(desc); ok {
		return out
	}
	out := c.executor.Execute(ctx, desc)
	c.dispatcher.store(desc, out)
	return out
}

// CacheStats reports the current entry count and the age of the oldest
// fresh entry.
func (c *Client) CacheStats() StoreStats {
	return c.cache.Stats()
}

// ClearCache drops every cached response and returns how many were removed.
func (c *Client) ClearCache() int {
	n := c.cache.Clear()
	if c.logger != nil {
		c.logger.Info("response cache cleared", "removed", n)
	}
	return n
}

// SetCacheEnabled toggles response caching at runtime. Disabling does not
// drop existing entries; re-enabling makes them visible again subject to TTL.
func (c *Client) SetCacheEnabled(enabled bool) {
	c.cache.SetEnabled(enabled)
}

// CacheEnabled reports whether response caching is currently active.
func (c *Client) CacheEnabled() bool {
	return c.cache.Enabled()
}

// BreakerStates snapshots every circuit breaker created so far, keyed by
// endpoint identifier.
func (c *Client) BreakerStates() map[string]BreakerSnapshot {
	return c.breakers.Snapshot()
}

// ResetBreakers forces every breaker back to the closed state. Operator
// escape hatch; normal recovery goes through the half-open probe cycle.
func (c *Client) ResetBreakers() {
	c.breakers.ResetAll()
	if c.logger != nil {
		c.logger.Info("all circuit breakers reset")
	}
}

func validateConfig(cfg Config) error {
	fail := func(format string, args ...interface{}) error {
		return &APIError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
	}

	if cfg.FailureThreshold <= 0 {
		return fail("FailureThreshold must be positive, got %d", cfg.FailureThreshold)
	}
	if cfg.RecoveryTimeout <= 0 {
		return fail("RecoveryTimeout must be positive, got %v", cfg.RecoveryTimeout)
	}
	if cfg.SuccessThreshold <= 0 {
		return fail("SuccessThreshold must be positive, got %d", cfg.SuccessThreshold)
	}
	if cfg.BackoffBase <= 0 {
		return fail("BackoffBase must be positive, got %v", cfg.BackoffBase)
	}
	if cfg.BackoffCap < cfg.BackoffBase {
		return fail("BackoffCap %v must not be below BackoffBase %v", cfg.BackoffCap, cfg.BackoffBase)
	}
	if cfg.BackoffMultiplier < 1 {
		return fail("BackoffMultiplier must be at least 1, got %g", cfg.BackoffMultiplier)
	}
	if cfg.JitterFraction < 0 || cfg.JitterFraction >= 1 {
		return fail("JitterFraction must be in [0, 1), got %g", cfg.JitterFraction)
	}
	if cfg.NetworkRetryDelay < 0 {
		return fail("NetworkRetryDelay must not be negative, got %v", cfg.NetworkRetryDelay)
	}
	if cfg.MaxAttempts <= 0 {
		return fail("MaxAttempts must be positive, got %d", cfg.MaxAttempts)
	}
	if cfg.RequestTimeout <= 0 {
		return fail("RequestTimeout must be positive, got %v", cfg.RequestTimeout)
	}
	if cfg.CacheTTL <= 0 {
		return fail("CacheTTL must be positive, got %v", cfg.CacheTTL)
	}
	if cfg.MaxWorkers <= 0 {
		return fail("MaxWorkers must be positive, got %d", cfg.MaxWorkers)
	}
	if cfg.PoolSize <= 0 {
		return fail("PoolSize must be positive, got %d", cfg.PoolSize)
	}
	if cfg.StaggerDelay < 0 {
		return fail("StaggerDelay must not be negative, got %v", cfg.StaggerDelay)
	}
	return nil
}

func newRequestID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return "req-" + hex.EncodeToString(b[:])
}
