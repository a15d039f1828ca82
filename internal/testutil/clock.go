package testutil

import (
	"context"
	"sync"
	"time"
)

// Epoch is the default start time of a FakeClock.
var Epoch = time.Date(2014, 6, 2, 13, 0, 0, 0, time.UTC)

// FakeClock is a manually driven wall clock for tests.
//
// Sleep advances the clock instead of blocking, which makes poll loops
// deterministic. With AutoAdvance set, every Now call also moves the
// clock forward so consecutive writes get strictly increasing timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	step   time.Duration
	sleeps int
}

// NewFakeClock creates a clock starting at Epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: Epoch}
}

// NewFakeClockAt creates a clock starting at t.
func NewFakeClockAt(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// AutoAdvance makes every Now call advance the clock by step after reading it.
func (c *FakeClock) AutoAdvance(step time.Duration) *FakeClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = step
	return c
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// Sleep advances the clock by d and returns immediately.
// Returns ctx.Err() if the context is already done.
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps++
	c.now = c.now.Add(d)
	return nil
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleeps returns how many times Sleep was called.
func (c *FakeClock) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}
