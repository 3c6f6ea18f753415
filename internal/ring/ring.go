// Package ring implements the lock-free single-producer/single-consumer
// FIFO used by the logger and the cross-core IPI (spec §20), grounded on
// catrate/ring.go's mask-based ring buffer.
package ring

import (
	"sync/atomic"

	"golang.org/x/exp/constraints"
)

// SPSC is a fixed-capacity, power-of-two-sized single-producer/single-
// consumer ring buffer. A single goroutine may call Push; a single
// (possibly different) goroutine may call Pop; both may run concurrently
// without external locking, matching the IPI/logger usage in spec §4.12/§19.
type SPSC[E any] struct {
	buf  []E
	mask uint64
	r    atomic.Uint64 // consumer-owned read cursor
	w    atomic.Uint64 // producer-owned write cursor
}

// NewSPSC creates a ring of the given capacity, which must be a power of
// two, matching catrate's ringBuffer constructor panic behaviour.
func NewSPSC[E any](capacity int) *SPSC[E] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of 2")
	}
	return &SPSC[E]{buf: make([]E, capacity), mask: uint64(capacity - 1)}
}

// Cap returns the ring's fixed capacity.
func (r *SPSC[E]) Cap() int { return len(r.buf) }

// Len returns the number of unconsumed entries. Safe to call from either
// side; the result may be stale by the time it's used.
func (r *SPSC[E]) Len() int {
	return int(r.w.Load() - r.r.Load())
}

// Push appends value, returning false if the ring is full (producer-only).
func (r *SPSC[E]) Push(value E) bool {
	w := r.w.Load()
	if w-r.r.Load() >= uint64(len(r.buf)) {
		return false
	}
	r.buf[w&r.mask] = value
	r.w.Store(w + 1)
	return true
}

// Pop removes and returns the oldest entry, reporting false if empty
// (consumer-only).
func (r *SPSC[E]) Pop() (E, bool) {
	var zero E
	rr := r.r.Load()
	if rr == r.w.Load() {
		return zero, false
	}
	v := r.buf[rr&r.mask]
	r.buf[rr&r.mask] = zero
	r.r.Store(rr + 1)
	return v, true
}

// Ordered is re-exported for callers that want a sorted search ring, same
// constraint catrate's ringBuffer uses.
type Ordered = constraints.Ordered
