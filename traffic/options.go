package traffic

import "net/http"

// WithLogger sets the logger used across the breaker registry, the cache and
// the executor. Without it the client is silent.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables the built-in stderr logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		c.logger = NewSimpleLogger()
	}
}

// WithMetrics enables Prometheus metrics on the default registry.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector installs a pre-built collector, e.g. one bound to a
// custom registry.
func WithMetricsCollector(mc *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = mc
	}
}

// WithHTTPClient replaces the pooled default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMiddleware appends request middleware, applied in the order given.
// Credential injection belongs here.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithStore selects the cache backend. The default is the in-process sharded
// store; NewLRUStore bounds memory, NewRedisStore shares entries across
// processes.
func WithStore(store Store) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithBackoffStrategy overrides the two retry delay policies. Either argument
// may be nil to keep its default.
func WithBackoffStrategy(transient, network BackoffStrategy) Option {
	return func(c *Client) {
		if transient != nil {
			c.transientBackoff = transient
		}
		if network != nil {
			c.networkBackoff = network
		}
	}
}

// WithRequestIDGenerator overrides how IDs are assigned to descriptors that
// arrive without one.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if gen != nil {
			c.requestID = gen
		}
	}
}
