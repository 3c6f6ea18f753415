// Package irq implements the kernel's smallest critical section: a spinlock
// combined with local interrupt masking, plus the scoped guard that is the
// only sanctioned way to acquire one (spec §4.1).
//
// In this software model "interrupts disabled on the local core" is tracked
// per-Spinlock as a simple counter rather than a real CPU flag register,
// since there is no hardware IRQ line to mask; the counter still lets tests
// assert the invariant that a spinlock holder never re-enables interrupts
// out from under a nested acquisition.
package irq

import (
	"runtime"
	"sync/atomic"
)

// Spinlock is a test-and-set lock with an interrupt-mask counter, matching
// spec §4.1: lock() disables interrupts then spins on a CAS cell; unlock()
// releases the cell then restores the mask.
type Spinlock struct {
	locked   atomic.Bool
	irqDepth atomic.Int32
}

// Lock disables interrupts on the calling goroutine's logical core and
// spins (with a memory barrier between attempts, modeled here by
// runtime.Gosched to avoid starving the real OS scheduler) until the cell is
// acquired.
func (s *Spinlock) Lock() {
	s.irqDepth.Add(1)
	for !s.locked.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

// TryLock attempts a single CAS without spinning. On success interrupts are
// masked exactly as in Lock; on failure the interrupt mask is left
// untouched, so callers must not call Unlock after a failed TryLock.
func (s *Spinlock) TryLock() bool {
	s.irqDepth.Add(1)
	if s.locked.CompareAndSwap(false, true) {
		return true
	}
	s.irqDepth.Add(-1)
	return false
}

// Unlock releases the cell, then restores the saved interrupt mask.
func (s *Spinlock) Unlock() {
	s.locked.Store(false)
	s.irqDepth.Add(-1)
}

// IrqMasked reports whether this spinlock's interrupt mask is currently
// held by any goroutine — a diagnostic only, since "the local core" isn't a
// single well-defined goroutine in this simulation.
func (s *Spinlock) IrqMasked() bool {
	return s.irqDepth.Load() > 0
}

// Guard acquires a Spinlock at construction and releases it exactly once at
// Release, on every control-flow path — the only sanctioned way to take a
// Spinlock, per spec §9 ("never allow raw unlock without the guard
// destructor").
type Guard struct {
	l        *Spinlock
	released bool
}

// Acquire locks l and returns a Guard. Callers must defer g.Release().
func Acquire(l *Spinlock) *Guard {
	l.Lock()
	return &Guard{l: l}
}

// Release unlocks the underlying Spinlock. Safe to call multiple times;
// only the first call has an effect, matching a destructor that may run
// once per scope regardless of how many return paths there are.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.l.Unlock()
}
