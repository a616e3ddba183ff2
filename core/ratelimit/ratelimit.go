// Package ratelimit implements the fixed-window request limiter used for
// the global per-client gate and the per-provider throttles.
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	// Allowed reports whether the request fits the window budget
	Allowed bool

	// Remaining is the budget left in the current window
	Remaining int

	// ResetAt is when the current window ends
	ResetAt time.Time
}

// record tracks one key's window. Each record carries its own mutex so the
// increment-and-compare is atomic per key without any cross-key lock.
type record struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// Limiter counts requests per key in fixed windows. Windows reset lazily on
// the next call after expiry; there is no background sweeper.
type Limiter struct {
	records sync.Map
	now     func() time.Time
}

// New creates a limiter using the wall clock.
func New() *Limiter {
	return NewWithClock(time.Now)
}

// NewWithClock creates a limiter reading time from now.
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{now: now}
}

// Allow records one request for key against a budget of max per window and
// reports whether it fits. A denied request leaves the window's reset time
// untouched.
func (l *Limiter) Allow(key string, max int, window time.Duration) Decision {
	v, _ := l.records.LoadOrStore(key, &record{})
	r := v.(*record)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := l.now()
	if r.count == 0 || !now.Before(r.resetAt) {
		r.count = 1
		r.resetAt = now.Add(window)
	} else {
		r.count++
	}

	remaining := max - r.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   r.count <= max,
		Remaining: remaining,
		ResetAt:   r.resetAt,
	}
}
