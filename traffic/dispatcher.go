package traffic

import (
	"context"
	"sync"
	"time"
)

// Dispatcher fans a batch of request descriptors out over a bounded worker
// pool and aggregates one Outcome per request. Submissions are staggered to
// avoid hammering a remote endpoint with a synchronized burst, cached
// responses resolve without touching the pool, and a batch deadline never
// leaves a request unaccounted for: whatever did not finish is reported as a
// timeout.
type Dispatcher struct {
	executor *Executor
	cache    *ResponseCache
	workers  int
	stagger  time.Duration
	logger   Logger
	metrics  *MetricsCollector
}

// NewDispatcher builds a dispatcher over the given executor and cache.
// The cache may be nil, which disables response reuse entirely.
func NewDispatcher(cfg Config, executor *Executor, cache *ResponseCache, logger Logger, metrics *MetricsCollector) *Dispatcher {
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		executor: executor,
		cache:    cache,
		workers:  workers,
		stagger:  cfg.StaggerDelay,
		logger:   logger,
		metrics:  metrics,
	}
}

// Dispatch executes the batch and returns a map holding exactly one Outcome
// for every descriptor. It blocks until every request resolved or ctx
// expired; on expiry the unresolved requests are filled in as timeouts.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []RequestDescriptor) map[string]Outcome {
	results := make(map[string]Outcome, len(batch))
	if len(batch) == 0 {
		return results
	}

	pending := make([]RequestDescriptor, 0, len(batch))
	for _, desc := range batch {
		if out, ok := d.fromCache(desc); ok {
			results[desc.RequestID] = out
			continue
		}
		pending = append(pending, desc)
	}

	if d.logger != nil {
		d.logger.Info("dispatching batch",
			"total", len(batch), "cached", len(batch)-len(pending), "workers", d.workers)
	}

	if len(pending) > 0 {
		jobs := make(chan RequestDescriptor)
		out := make(chan Outcome, len(pending))

		workers := d.workers
		if workers > len(pending) {
			workers = len(pending)
		}

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for desc := range jobs {
					outcome := d.executor.Execute(ctx, desc)
					d.store(desc, outcome)
					out <- outcome
				}
			}()
		}

		go func() {
			defer close(jobs)
			for i, desc := range pending {
				if i > 0 && d.stagger > 0 && !sleepCtx(ctx, d.stagger) {
					return
				}
				select {
				case jobs <- desc:
				case <-ctx.Done():
					return
				}
			}
		}()

		go func() {
			wg.Wait()
			close(out)
		}()

		for outcome := range out {
			results[outcome.RequestID] = outcome
		}
	}

	// The aggregate map is complete even when the deadline cut the batch
	// short: anything still unresolved is reported as a timeout.
	for _, desc := range batch {
		if _, ok := results[desc.RequestID]; ok {
			continue
		}
		results[desc.RequestID] = Outcome{
			RequestID: desc.RequestID,
			Err: &APIError{
				Kind:      KindTimeout,
				Message:   "batch deadline exceeded before execution",
				Cause:     ctx.Err(),
				RequestID: desc.RequestID,
				Endpoint:  desc.EndpointID,
			},
		}
	}

	return results
}

func (d *Dispatcher) fromCache(desc RequestDescriptor) (Outcome, bool) {
	if d.cache == nil || !d.cache.Enabled() || desc.Operation == "" {
		return Outcome{}, false
	}
	payload, ok := d.cache.Get(Fingerprint(desc.Operation, desc.Params))
	if !ok {
		d.metrics.RecordCacheMiss(desc.Operation)
		return Outcome{}, false
	}
	d.metrics.RecordCacheHit(desc.Operation)
	return Outcome{
		RequestID: desc.RequestID,
		Payload:   payload,
		FromCache: true,
	}, true
}

func (d *Dispatcher) store(desc RequestDescriptor, outcome Outcome) {
	if d.cache == nil || !d.cache.Enabled() || desc.Operation == "" || !outcome.OK() {
		return
	}
	d.cache.Put(Fingerprint(desc.Operation, desc.Params), outcome.Payload, desc.CacheTTL)
}
