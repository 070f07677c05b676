// Package testutil provides deterministic stand-ins for the session's
// injectable collaborators: a stepping clock and a fixed token
// generator. Both enable byte-identical result files across runs,
// which golden tests depend on.
package testutil

import (
	"sync"
	"time"
)

// SteppingClock advances a fixed step on every Now call.
//
// The same test scenario with the same SteppingClock always produces
// identical start/end timestamps, so result rows are reproducible.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex, although session code only calls Now from the foreground
// goroutine.
type SteppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewSteppingClock creates a clock starting at start, advancing by
// step on every Now call.
func NewSteppingClock(start time.Time, step time.Duration) *SteppingClock {
	return &SteppingClock{now: start, step: step}
}

// Now returns the current instant, then advances the clock by one step.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Advance moves the clock forward by d without producing a tick.
func (c *SteppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Peek returns the instant the next Now call will report.
func (c *SteppingClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
