// Package backoff provides retry delay strategies for failed jobs.
// All strategies are safe for concurrent use (they are stateless).
package backoff

import (
	"math"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before a job that has now failed
	// attempt times becomes claimable again. Attempt 1 is the first failure.
	Delay(attempt int) time.Duration
}

// maxDelay is the largest representable delay.
const maxDelay = time.Duration(math.MaxInt64)

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Linear
// ──────────────────────────────────────────────────

// Linear increases the delay linearly with the attempt number.
// Delay = min(Initial * attempt, Max).
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// NewLinear creates a linear backoff strategy.
func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * attempt, capped at Max.
func (l *Linear) Delay(attempt int) time.Duration {
	d := l.Initial * time.Duration(attempt)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential raises Base to the attempt number.
// Delay = min(Unit * Base^attempt, Max).
//
// With Base 2 and Unit 1s the sequence is 2s, 4s, 8s, 16s, ...
type Exponential struct {
	Base float64
	Unit time.Duration
	Max  time.Duration
}

// NewExponential creates an exponential backoff strategy. A zero maxDelay
// leaves the delay uncapped.
func NewExponential(base float64, unit, maxDelay time.Duration) *Exponential {
	return &Exponential{Base: base, Unit: unit, Max: maxDelay}
}

// Delay returns Unit * Base^attempt, capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	f := float64(e.Unit) * math.Pow(e.Base, float64(attempt))
	d := maxDelay
	if f < float64(maxDelay) {
		d = time.Duration(f)
	}
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the default backoff: base 2 in whole seconds,
// uncapped.
func DefaultStrategy() Strategy {
	return NewExponential(2, time.Second, 0)
}
