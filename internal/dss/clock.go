// Package dss implements the data-structure service: the command
// dictionary, the data and expire hash tables, the command-time snapshot,
// the evictor, the expirer, and the cron loop that drives all three.
// Grounded on original_source's data_structure_service.h/.cc, command.h,
// command_registry.cc, and the per-family commands/*.cc files.
package dss

import (
	"sync"
	"time"
)

// Clock abstracts the millisecond-resolution time source the command-time
// snapshot and TTL arithmetic are computed against. Grounded on
// original_source's clock.h Clock (an is_system_ toggle between
// system_clock::now() and a settable fixed time), translated into an
// interface so tests can advance time deterministically instead of
// sleeping real milliseconds to observe a key expire.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock, the production implementation.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FakeClock holds a settable, explicitly-advanced time for tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a FakeClock starting at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d, the "advance clock N ms" step the
// end-to-end scenarios drive TTL expiry with.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the clock to an exact time.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
