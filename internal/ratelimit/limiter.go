package ratelimit

import (
	"sync"
	"time"
)

// Limiter enforces a minimum interval between successive accepted activations.
// Safe for concurrent callers: the elapsed-time check and the timestamp update
// happen under one lock.
type Limiter struct {
	// minInterval is the minimum time between accepted activations.
	minInterval time.Duration
	// now returns the current time, injectable for tests.
	now func() time.Time
	// mu protects lastAccepted.
	mu sync.Mutex
	// lastAccepted is when the last activation was allowed through.
	// Zero until the first acceptance.
	lastAccepted time.Time
}

// Option configures limiter behaviour.
type Option func(*Limiter)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a limiter with the provided minimum interval.
func New(minInterval time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		minInterval: minInterval,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Allow reports whether a new activation may proceed. On acceptance the
// current time is recorded atomically; on rejection the recorded timestamp
// is left untouched.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.now()
	if !l.lastAccepted.IsZero() && current.Sub(l.lastAccepted) < l.minInterval {
		return false
	}

	l.lastAccepted = current

	return true
}

// LastAccepted returns when the last activation was allowed through.
// Zero if nothing has been accepted yet.
func (l *Limiter) LastAccepted() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.lastAccepted
}

// Remaining returns how long until the next activation would be accepted.
// Zero when an activation would be accepted now.
func (l *Limiter) Remaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastAccepted.IsZero() {
		return 0
	}

	remaining := l.minInterval - l.now().Sub(l.lastAccepted)
	if remaining < 0 {
		return 0
	}

	return remaining
}
