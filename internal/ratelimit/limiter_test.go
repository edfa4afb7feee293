package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source for limiter tests.
type fakeClock struct {
	// mu protects current.
	mu sync.Mutex
	// current is the time returned by Now.
	current time.Time
}

// Now returns the clock's current time.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current
}

// Advance moves the clock forward by d.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)
}

// TestAllow_RejectsWithinInterval covers the interval contract: accept at t=0,
// reject at t=10 leaving the recorded timestamp untouched, accept at t=61.
func TestAllow_RejectsWithinInterval(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{current: time.Unix(0, 0)}
	limiter := New(60*time.Second, WithClock(clock.Now))

	require.True(t, limiter.Allow())
	accepted := limiter.LastAccepted()
	require.Equal(t, time.Unix(0, 0), accepted)

	clock.Advance(10 * time.Second)
	require.False(t, limiter.Allow())
	require.Equal(t, accepted, limiter.LastAccepted(), "rejection must not touch the timestamp")
	require.Equal(t, 50*time.Second, limiter.Remaining())

	clock.Advance(51 * time.Second)
	require.True(t, limiter.Allow())
	require.Equal(t, time.Unix(61, 0), limiter.LastAccepted())

	// The fresh acceptance restarts the full interval.
	require.Equal(t, 60*time.Second, limiter.Remaining())
}

// TestAllow_FirstCallAlwaysAccepted verifies a fresh limiter accepts immediately.
func TestAllow_FirstCallAlwaysAccepted(t *testing.T) {
	t.Parallel()

	limiter := New(time.Hour)
	require.Zero(t, limiter.Remaining())
	require.True(t, limiter.Allow())
	require.False(t, limiter.Allow())
}

// TestAllow_ConcurrentCallers asserts exactly one of many racing callers wins.
func TestAllow_ConcurrentCallers(t *testing.T) {
	t.Parallel()

	const callers = 32

	limiter := New(time.Hour)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)

	wg.Add(callers)

	for range callers {
		go func() {
			defer wg.Done()

			if limiter.Allow() {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	require.Equal(t, 1, accepted)
}
