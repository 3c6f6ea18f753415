package ksync

import (
	"time"

	"github.com/jncronin/gkos/internal/irq"
	"github.com/jncronin/gkos/internal/thread"
)

// CountingSemaphore is backed by a SimpleSignal: Signal adds 1, Wait
// subtracts 1 atomically if non-zero else blocks (spec §4.5
// "CountingSemaphore"). A non-zero max enables the bounded
// AddIfLessThanMax variant.
type CountingSemaphore struct {
	sig *SimpleSignal
	mu  irq.Spinlock
	max uint32 // 0 means unbounded
}

// NewCountingSemaphore constructs a semaphore with the given initial value
// and an optional max (0 = unbounded).
func NewCountingSemaphore(initial, max uint32) *CountingSemaphore {
	return &CountingSemaphore{sig: NewSimpleSignal(initial), max: max}
}

// Post increments the semaphore's value by one, or is a no-op if max is set
// and the value is already at max (spec §4.5 "AddIfLessThanMax").
func (s *CountingSemaphore) Post() {
	if s.max == 0 {
		s.sig.Signal(int(OpAdd), 1)
		return
	}
	g := irq.Acquire(&s.mu)
	defer g.Release()
	if s.sig.Value() < s.max {
		s.sig.Signal(int(OpAdd), 1)
	}
}

// Wait subtracts 1 if the value is non-zero, else blocks until it is
// (or until timeout elapses; timeout<=0 means wait forever).
func (s *CountingSemaphore) Wait(caller *thread.Thread, timeout time.Duration) bool {
	_, ok := s.sig.Wait(caller, OpSub, 1, timeout)
	return ok
}

// GetValue returns the current count without consuming it.
func (s *CountingSemaphore) GetValue() uint32 {
	return s.sig.Value()
}

// TryWait attempts a single non-blocking decrement, reporting success.
func (s *CountingSemaphore) TryWait() bool {
	_, ok := s.sig.TryApply(OpSub, 1)
	return ok
}

// TryDelete wakes any thread parked in Wait with a spurious failure and
// marks the semaphore so later Wait calls fail immediately (spec §4.10
// "destroys every owned synchronization primitive, which wakes any
// stragglers with errors"). It always succeeds: a semaphore has no notion
// of ownership to contest.
func (s *CountingSemaphore) TryDelete(caller *thread.Thread) (bool, error) {
	s.sig.Destroy()
	return true, nil
}

// BinarySemaphore is a CountingSemaphore bounded to {0,1} with at most one
// waiter (spec §4.5 "BinarySemaphore: value ∈ {0,1} + at most one waiter").
type BinarySemaphore struct {
	inner *CountingSemaphore
}

// NewBinarySemaphore constructs a BinarySemaphore with the given initial
// value (0 or 1).
func NewBinarySemaphore(initial uint32) *BinarySemaphore {
	if initial > 1 {
		initial = 1
	}
	return &BinarySemaphore{inner: NewCountingSemaphore(initial, 1)}
}

func (b *BinarySemaphore) Post() { b.inner.Post() }
func (b *BinarySemaphore) Wait(caller *thread.Thread, timeout time.Duration) bool {
	return b.inner.Wait(caller, timeout)
}
func (b *BinarySemaphore) GetValue() uint32 { return b.inner.GetValue() }

// TryDelete delegates to the underlying CountingSemaphore's destroy logic.
func (b *BinarySemaphore) TryDelete(caller *thread.Thread) (bool, error) {
	return b.inner.TryDelete(caller)
}
