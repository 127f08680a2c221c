package backoff

import (
	"math/rand"
	"testing"
	"time"
)

func TestExponentialJitterGrowth(t *testing.T) {
	// No jitter: delays must follow base * multiplier^attempt exactly.
	s := NewExponentialJitter(1*time.Second, 60*time.Second, 2.0, 0)

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
	}
	for attempt, want := range expected {
		if got := s.Delay(attempt); got != want {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestExponentialJitterCap(t *testing.T) {
	s := NewExponentialJitter(1*time.Second, 60*time.Second, 2.0, 0)

	for attempt := 6; attempt < 40; attempt++ {
		if got := s.Delay(attempt); got != 60*time.Second {
			t.Errorf("Delay(%d) = %v, want cap %v", attempt, got, 60*time.Second)
		}
	}
}

func TestExponentialJitterBounds(t *testing.T) {
	s := NewExponentialJitter(1*time.Second, 60*time.Second, 2.0, 0.1)

	for attempt := 0; attempt < 20; attempt++ {
		for i := 0; i < 200; i++ {
			d := s.Delay(attempt)
			if d < 0 {
				t.Fatalf("Delay(%d) = %v, want non-negative", attempt, d)
			}
			if d > 60*time.Second {
				t.Fatalf("Delay(%d) = %v, exceeds cap", attempt, d)
			}
		}
	}
}

func TestExponentialJitterWithinFraction(t *testing.T) {
	s := NewExponentialJitter(1*time.Second, 60*time.Second, 2.0, 0.1)

	// For attempt 2 the undisturbed delay is 4s; jitter 0.1 keeps the result
	// inside [3.6s, 4.4s].
	lo := time.Duration(float64(4*time.Second) * 0.9)
	hi := time.Duration(float64(4*time.Second) * 1.1)
	for i := 0; i < 500; i++ {
		d := s.Delay(2)
		if d < lo || d > hi {
			t.Fatalf("Delay(2) = %v, want within [%v, %v]", d, lo, hi)
		}
	}
}

func TestExponentialJitterDeterministicWithSource(t *testing.T) {
	a := NewExponentialJitterWithSource(1*time.Second, 60*time.Second, 2.0, 0.1, rand.NewSource(42))
	b := NewExponentialJitterWithSource(1*time.Second, 60*time.Second, 2.0, 0.1, rand.NewSource(42))

	for attempt := 0; attempt < 10; attempt++ {
		da, db := a.Delay(attempt), b.Delay(attempt)
		if da != db {
			t.Errorf("Delay(%d) diverged: %v vs %v", attempt, da, db)
		}
	}
}

func TestExponentialJitterNegativeAttempt(t *testing.T) {
	s := NewExponentialJitter(1*time.Second, 60*time.Second, 2.0, 0)

	if got := s.Delay(-5); got != 1*time.Second {
		t.Errorf("Delay(-5) = %v, want base delay", got)
	}
}

func TestExponentialJitterDegenerateConfig(t *testing.T) {
	s := NewExponentialJitter(-1*time.Second, -1*time.Second, 0, 2.0)

	for attempt := 0; attempt < 5; attempt++ {
		if got := s.Delay(attempt); got != 0 {
			t.Errorf("Delay(%d) = %v, want 0 for zeroed config", attempt, got)
		}
	}
}

func TestFixedDelay(t *testing.T) {
	s := NewFixedDelay(5 * time.Second)

	for attempt := 0; attempt < 10; attempt++ {
		if got := s.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want 5s", attempt, got)
		}
	}
}

func TestFixedDelayNegative(t *testing.T) {
	s := NewFixedDelay(-1 * time.Second)

	if got := s.Delay(0); got != 0 {
		t.Errorf("Delay(0) = %v, want 0 for negative config", got)
	}
}
