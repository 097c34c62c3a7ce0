// Package backoff provides the sleep strategies Processors use between
// fetches: when every queue is empty, and while the server is unreachable.
// All strategies are safe for concurrent use.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Strategy computes how long to pause before the next fetch.
type Strategy interface {
	// Delay returns the pause before attempt n (1-indexed), where n counts
	// consecutive empty or failed fetches.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt, up to Max.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && (d > e.Max || d <= 0) {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Range
// ──────────────────────────────────────────────────

// Range picks a uniformly random delay in [Min, Max) every attempt, so
// many Processors polling the same server drift apart.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// NewRange creates a uniform random strategy.
func NewRange(minDelay, maxDelay time.Duration) *Range {
	return &Range{Min: minDelay, Max: maxDelay}
}

// Delay returns a random duration in [Min, Max).
func (r *Range) Delay(_ int) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rand.Int63n(int64(r.Max-r.Min))) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Defaults
// ──────────────────────────────────────────────────

// DefaultIdle is the pause after an empty fetch: a constant second.
func DefaultIdle() Strategy {
	return NewConstant(1 * time.Second)
}

// DefaultDown is the pause after a failed fetch: a constant second, so
// workers resume promptly once the server is back.
func DefaultDown() Strategy {
	return NewConstant(1 * time.Second)
}

// Sleep waits for d, returning early with false if ctx is done or stop
// is closed.
func Sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	}
}
