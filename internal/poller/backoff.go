package poller

import (
	"sync"
	"time"
)

// DefaultMaxBackoff caps the retry delay when no explicit maximum is configured.
const DefaultMaxBackoff = 30 * time.Minute

// Backoff tracks the retry delay separately from the base polling interval.
//
// Each consecutive failure doubles the current delay, starting at twice the
// base interval. A success returns the base interval and, when reset is
// enabled, forgets the accumulated delay. With reset disabled the next
// failure keeps doubling from where the previous failure streak stopped.
//
// Backoff is safe for concurrent use.
type Backoff struct {
	base  time.Duration
	max   time.Duration
	reset bool

	mu       sync.Mutex
	current  time.Duration
	failures int
}

// NewBackoff creates a [Backoff] for the given base interval.
//
// A max of zero or less uses [DefaultMaxBackoff]. A max below base is raised
// to base so the cap never shortens the normal cadence.
func NewBackoff(base, max time.Duration, reset bool) *Backoff {
	if max <= 0 {
		max = DefaultMaxBackoff
	}
	if max < base {
		max = base
	}
	return &Backoff{
		base:  base,
		max:   max,
		reset: reset,
	}
}

// Base returns the configured base interval.
func (b *Backoff) Base() time.Duration {
	return b.base
}

// Failure records a failed attempt and returns the delay before the next one.
//
// The sequence for consecutive failures is 2b, 4b, 8b, ... capped at max.
func (b *Backoff) Failure() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current < b.base {
		b.current = b.base
	}

	next := b.current * 2
	// overflow or cap
	if next < b.current || next > b.max {
		next = b.max
	}

	b.current = next
	b.failures++
	return next
}

// Success records a successful attempt and returns the base interval.
func (b *Backoff) Success() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.reset {
		b.current = 0
	}
	return b.base
}

// Failures returns the number of consecutive failures since the last success.
func (b *Backoff) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Current returns the last delay handed out by [Backoff.Failure], or zero
// when no failure delay is outstanding.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}
