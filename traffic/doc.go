// Package traffic provides the resilient access layer for the Akamai V2
// Traffic and Emissions reporting APIs:
//
//   - Per-endpoint circuit breakers (closed / open / half-open states)
//   - Retries with exponential backoff + jitter for overload responses and a
//     fixed delay for connection failures
//   - Fingerprint-keyed response caching with TTL expiry behind a pluggable
//     store (in-memory, bounded LRU, Redis)
//   - A concurrent dispatcher that fans a batch of requests over a small
//     worker pool with a politeness stagger and pooled connections
//   - Middleware chain for cross-cutting concerns (auth, tracing, etc.)
//   - Prometheus metrics and lightweight structured event logging
//
// Design goals:
//   - Small surface area – a Config struct plus functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - No hidden globals: breakers and cache are owned instances injected at construction
//   - Extensibility via user supplied middleware & pluggable store / logger / metrics
//
// Typical usage:
//
//	client, err := traffic.New(traffic.DefaultConfig(),
//	    traffic.WithSimpleLogger(),
//	    traffic.WithMiddleware(authMiddleware),
//	)
//	if err != nil {
//	    return err
//	}
//	outcomes, err := client.Execute(ctx, batch, 2*time.Minute)
//	if err != nil {
//	    return err
//	}
//
// The surrounding report tooling supplies descriptors derived from business
// parameters and renders each Outcome; this package never reads files,
// environment variables or credentials itself.
package traffic
