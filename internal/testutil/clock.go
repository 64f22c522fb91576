package testutil

import "sync"

// FixedClock is a settable wall clock for tests.
//
// Unlike the system clock it only moves when told to, so tests control
// record timestamps, change-log times and retention cutoffs exactly.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu  sync.Mutex
	now int64
}

// NewFixedClock creates a clock pinned at the given epoch millis.
func NewFixedClock(nowMillis int64) *FixedClock {
	return &FixedClock{now: nowMillis}
}

// NowMillis returns the pinned time.
func (c *FixedClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by the given number of millis.
func (c *FixedClock) Advance(millis int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += millis
}

// Set pins the clock to an absolute time.
func (c *FixedClock) Set(nowMillis int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = nowMillis
}
