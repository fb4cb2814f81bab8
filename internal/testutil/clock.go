// Package testutil provides the deterministic time and id sources the
// package tests and the scenario harness share.
package testutil

import (
	"sync"
	"time"
)

// Clock is a manually driven clock. It never advances on its own, so two
// runs of the same scenario observe identical timestamps.
//
// Thread-safe.
type Clock struct {
	mu sync.Mutex
	ms int64
}

// NewClock creates a clock at the given epoch milliseconds.
func NewClock(ms int64) *Clock {
	return &Clock{ms: ms}
}

// Now returns the current instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.UnixMilli(c.ms)
}

// NowMilli returns the current instant as epoch milliseconds.
func (c *Clock) NowMilli() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

// Advance moves the clock forward.
func (c *Clock) Advance(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms += ms
}

// Set jumps the clock to an absolute instant.
func (c *Clock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms = ms
}
