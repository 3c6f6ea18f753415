// Package kclock models the kernel's monotonic microsecond clock plus a
// wall-clock offset (spec §3 "Kernel time", §4 Kernel clock), grounded on
// Firmware/gkos-core/inc/kernel_time.h and clocks.cpp's offset-under-
// spinlock pattern.
package kclock

import (
	"time"

	"github.com/jncronin/gkos/internal/irq"
)

// Time is a microsecond count since an arbitrary epoch. Invalid is the zero
// value, matching spec §3 ("Invalid ≡ 0").
type Time int64

// Invalid is the sentinel meaning "no deadline" / "not set".
const Invalid Time = 0

// Valid reports whether t is a real timestamp.
func (t Time) Valid() bool { return t != Invalid }

// Before reports whether t happens strictly before u.
func (t Time) Before(u Time) bool { return t < u }

// Add returns t advanced by d microseconds.
func (t Time) Add(d int64) Time { return t + Time(d) }

// Sub returns the microsecond difference t-u.
func (t Time) Sub(u Time) int64 { return int64(t - u) }

// Clock is a process-wide monotonic clock with a wall-clock offset
// protected by its own spinlock (spec §3).
type Clock struct {
	mu      irq.Spinlock
	start   time.Time // monotonic anchor, captured once
	offset  time.Duration // wall = monotonic + offset
}

// New creates a Clock anchored at the current instant.
func New() *Clock {
	return &Clock{start: time.Now()}
}

// Now returns the current monotonic kernel time in microseconds since the
// clock was created. Never returns Invalid for a running clock (the first
// tick after New occurs in the same microsecond only in pathological cases,
// in which case it returns 1 rather than 0 to preserve the "0 means
// invalid" invariant).
func (c *Clock) Now() Time {
	elapsed := time.Since(c.start).Microseconds()
	if elapsed <= 0 {
		return 1
	}
	return Time(elapsed)
}

// SetWallOffset records the duration to add to monotonic time to obtain
// wall-clock time, e.g. after an RTC read during boot (supplements
// clocks.cpp's reconciliation path).
func (c *Clock) SetWallOffset(offset time.Duration) {
	g := irq.Acquire(&c.mu)
	defer g.Release()
	c.offset = offset
}

// Reconcile derives and stores a wall offset such that WallNow() == wall at
// the moment of the call (supplements the original firmware's RTC-to-
// monotonic reconciliation on boot).
func (c *Clock) Reconcile(wall time.Time) {
	g := irq.Acquire(&c.mu)
	defer g.Release()
	c.offset = wall.Sub(c.start.Add(time.Since(c.start)))
}

// WallNow returns the current wall-clock time as monotonic Now() plus the
// stored offset.
func (c *Clock) WallNow() time.Time {
	g := irq.Acquire(&c.mu)
	offset := c.offset
	g.Release()
	return c.start.Add(time.Duration(c.Now()) * time.Microsecond).Add(offset)
}

// Elapsed returns how many microseconds have passed since since.
func (c *Clock) Elapsed(since Time) int64 {
	return c.Now().Sub(since)
}
