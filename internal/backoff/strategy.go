// Package backoff provides the delay policies used between retry attempts.
// Two classes exist on purpose: exponential growth with jitter for responses
// that signal overload (429, 5xx), and a fixed delay for connection failures,
// which are not necessarily load-related.
package backoff

import (
	"math/rand"
	"sync"
	"time"
)

// Strategy computes the delay before the retry following the given 0-based
// attempt index. Implementations never return a negative duration.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// ExponentialJitter grows base * multiplier^attempt up to a cap, then
// perturbs the result by a symmetric jitter fraction to avoid synchronized
// retry storms. The final delay is clamped to [0, cap].
type ExponentialJitter struct {
	base       time.Duration
	limit      time.Duration
	multiplier float64
	jitter     float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewExponentialJitter creates a time-seeded exponential jitter strategy.
func NewExponentialJitter(base, limit time.Duration, multiplier, jitter float64) *ExponentialJitter {
	return NewExponentialJitterWithSource(base, limit, multiplier, jitter, rand.NewSource(time.Now().UnixNano()))
}

// NewExponentialJitterWithSource creates a strategy with an explicit random
// source, making the jitter sequence reproducible for tests.
func NewExponentialJitterWithSource(base, limit time.Duration, multiplier, jitter float64, src rand.Source) *ExponentialJitter {
	if base < 0 {
		base = 0
	}
	if limit < base {
		limit = base
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	return &ExponentialJitter{
		base:       base,
		limit:      limit,
		multiplier: multiplier,
		jitter:     clampJitter(jitter),
		rng:        rand.New(src),
	}
}

// Delay implements Strategy.
func (s *ExponentialJitter) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Prevent float overflow for absurd attempt counts.
	if attempt > 30 {
		attempt = 30
	}

	d := time.Duration(float64(s.base) * pow(s.multiplier, attempt))
	if d < 0 || d > s.limit {
		d = s.limit
	}

	if s.jitter > 0 {
		s.mu.Lock()
		factor := 1 + s.jitter*(2*s.rng.Float64()-1)
		s.mu.Unlock()
		d = time.Duration(float64(d) * factor)
	}

	if d < 0 {
		d = 0
	}
	if d > s.limit {
		d = s.limit
	}
	return d
}

// FixedDelay returns the same delay for every attempt.
type FixedDelay struct {
	delay time.Duration
}

// NewFixedDelay creates a fixed delay strategy. Negative delays are floored
// at zero.
func NewFixedDelay(d time.Duration) FixedDelay {
	if d < 0 {
		d = 0
	}
	return FixedDelay{delay: d}
}

// Delay implements Strategy.
func (s FixedDelay) Delay(attempt int) time.Duration {
	return s.delay
}

// clampJitter ensures jitter is within valid bounds [0, 1].
func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

// pow calculates base^exponent using integer exponentiation.
func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
