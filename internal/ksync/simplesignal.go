// Package ksync implements the kernel's synchronization primitives —
// SimpleSignal, Mutex, RwLock, CountingSemaphore, BinarySemaphore, and
// Condition (spec §3 "Synchronization primitives", §4.5), grounded on
// eventloop's ping-pong channel handshake (microbatch.Batcher.Submit's
// jobCh/batchCh pattern) for the "register waiter under lock, signal wakes
// exactly one" shape, and on eventloop/state.go's CAS-retry idiom for
// SimpleSignal's value/op application.
package ksync

import (
	"time"

	"github.com/jncronin/gkos/internal/irq"
	"github.com/jncronin/gkos/internal/thread"
)

// Op is one of the value-mutating operations SimpleSignal.Signal can apply
// (spec §4.5 "one of {Set, Or, And, Xor, Add, Sub, Noop}").
type Op int

const (
	OpSet Op = iota
	OpOr
	OpAnd
	OpXor
	OpAdd
	OpSub
	OpNoop
)

func apply(op Op, cur, operand uint32) uint32 {
	switch op {
	case OpSet:
		return operand
	case OpOr:
		return cur | operand
	case OpAnd:
		return cur & operand
	case OpXor:
		return cur ^ operand
	case OpAdd:
		return cur + operand
	case OpSub:
		return cur - operand
	default: // OpNoop
		return cur
	}
}

// SimpleSignal is a 32-bit value with at most one waiting thread, covering
// the "syscall suspended, someone writes result, signal" pattern cheaply
// (spec §4.5).
type SimpleSignal struct {
	mu        irq.Spinlock
	value     uint32
	waiter    *thread.Thread
	waitCh    chan struct{}
	destroyed bool
}

// NewSimpleSignal constructs a SimpleSignal with the given initial value.
func NewSimpleSignal(initial uint32) *SimpleSignal {
	return &SimpleSignal{value: initial}
}

// Signal applies op/operand to the value and wakes the sole waiter, if any,
// returning the value prior to the operation. Implements
// thread.SimpleSignalRef so a Thread can carry one as its signal_slot.
func (s *SimpleSignal) Signal(op int, operand uint32) uint32 {
	g := irq.Acquire(&s.mu)
	prev := s.value
	s.value = apply(Op(op), s.value, operand)
	w := s.waiter
	ch := s.waitCh
	s.waiter = nil
	s.waitCh = nil
	g.Release()

	if w != nil {
		w.Blocking.Store(false)
		w.BlockingOn = nil
		close(ch)
	}
	return prev
}

// Value peeks the current value without consuming it.
func (s *SimpleSignal) Value() uint32 {
	g := irq.Acquire(&s.mu)
	defer g.Release()
	return s.value
}

// TryApply applies op/operand and returns the previous value only if the
// current value is non-zero; it never registers a waiter or blocks.
func (s *SimpleSignal) TryApply(op Op, operand uint32) (prev uint32, ok bool) {
	g := irq.Acquire(&s.mu)
	defer g.Release()
	if s.value == 0 {
		return 0, false
	}
	prev = s.value
	s.value = apply(op, s.value, operand)
	return prev, true
}

// Wait polls the value: if non-zero, applies op/operand and returns the
// previous value with ok=true; else registers caller as the sole waiter and
// blocks until signalled or timeout elapses (timeout<=0 means wait
// forever), looping until the predicate is satisfied (spec §4.5 "Wait(op,
// operand, timeout) polls the value ...").
//
// Note: the registration window below matches the firmware's observed
// behaviour rather than "fixing" it (spec §9 Open Questions #3) — the
// waiter field is cleared only by a later non-zero re-check or by Signal,
// never defensively on timeout, so a very narrow signal-during-timeout race
// can leave a stale waiter pointer briefly visible to a concurrent Signal.
func (s *SimpleSignal) Wait(caller *thread.Thread, op Op, operand uint32, timeout time.Duration) (prev uint32, ok bool) {
	for {
		g := irq.Acquire(&s.mu)
		if s.destroyed {
			g.Release()
			return 0, false
		}
		if s.value != 0 {
			prev := s.value
			s.value = apply(op, s.value, operand)
			if s.waiter == caller {
				s.waiter = nil
				s.waitCh = nil
			}
			g.Release()
			return prev, true
		}
		ch := make(chan struct{})
		s.waiter = caller
		s.waitCh = ch
		caller.Blocking.Store(true)
		g.Release()

		if timeout <= 0 {
			<-ch
			continue
		}
		select {
		case <-ch:
		case <-time.After(timeout):
			caller.Blocking.Store(false)
			return 0, false
		}
	}
}

// WaitOnce performs a single check-and-register without looping, returning
// 0 on a spurious wake so callers can build their own "wait until
// predicate" loop around it (spec §4.5 "WaitOnce returns 0 on spurious
// wake").
func (s *SimpleSignal) WaitOnce(caller *thread.Thread, timeout time.Duration) (value uint32, timedOut bool) {
	g := irq.Acquire(&s.mu)
	if s.destroyed {
		g.Release()
		return 0, true
	}
	if s.value != 0 {
		v := s.value
		g.Release()
		return v, false
	}
	ch := make(chan struct{})
	s.waiter = caller
	s.waitCh = ch
	caller.Blocking.Store(true)
	g.Release()

	if timeout <= 0 {
		<-ch
		return 0, false
	}
	select {
	case <-ch:
		return 0, false
	case <-time.After(timeout):
		caller.Blocking.Store(false)
		return 0, true
	}
}

// Destroy wakes the sole waiter, if any, with a spurious (destroyed) result
// and marks the signal so any future Wait/WaitOnce call fails immediately,
// matching the destroy contract every ksync primitive implements for
// process cleanup (spec §4.10).
func (s *SimpleSignal) Destroy() {
	g := irq.Acquire(&s.mu)
	s.destroyed = true
	w := s.waiter
	ch := s.waitCh
	s.waiter = nil
	s.waitCh = nil
	g.Release()

	if w != nil {
		w.Blocking.Store(false)
		w.BlockingOn = nil
		close(ch)
	}
}
