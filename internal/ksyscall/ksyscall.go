// Package ksyscall implements the system-call dispatcher and the
// deferred-return protocol (spec §4.8): handlers return one of a tagged
// enum { Ok(i32), Err(Errno), Suspended, Retry }, which the dispatcher then
// collapses to the legacy ABI convention (>=0 / -1+errno / -2 / -3) only at
// the boundary, per spec §9 Open Questions' explicit direction to keep the
// tagged enum at the kernel interface.
package ksyscall

import (
	"sync"

	"github.com/jncronin/gkos/internal/errno"
	"github.com/jncronin/gkos/internal/mpu"
	"github.com/jncronin/gkos/internal/process"
	"github.com/jncronin/gkos/internal/thread"
)

// OutcomeKind tags which arm of the deferred-return enum an Outcome holds.
type OutcomeKind int

const (
	KindOk OutcomeKind = iota
	KindErr
	KindSuspended
	KindRetry
)

// Outcome is the kernel-interface return value of a syscall handler (spec
// §4.8 "a tagged enum { Ok(i32), Err(Errno), Suspended, Retry }").
type Outcome struct {
	Kind  OutcomeKind
	Value int64
	Err   errno.Errno
}

// Ok builds a successful outcome carrying v.
func Ok(v int64) Outcome { return Outcome{Kind: KindOk, Value: v} }

// Err builds a failed outcome carrying e.
func Err(e errno.Errno) Outcome { return Outcome{Kind: KindErr, Err: e} }

// SuspendedOutcome builds the deferred-return outcome (spec §4.8 "-2: suspended.
// The caller's SimpleSignal slot is armed ..."). Arming the signal slot and
// handing the call off to a worker is the handler's responsibility; this
// constructor only marks the dispatcher's collapse path.
func SuspendedOutcome() Outcome { return Outcome{Kind: KindSuspended} }

// RetryOutcome builds the retry outcome (spec §4.8 "-3: retry. ... used for
// mutex/rwlock/semaphore contention with timeout").
func RetryOutcome() Outcome { return Outcome{Kind: KindRetry} }

// Legacy collapses an Outcome to the ABI boundary's (result, errno_slot)
// convention (spec §4.8 "collapsing to the legacy -1/-2/-3 only at the ABI
// boundary").
func (o Outcome) Legacy() (result int64, slot errno.Errno) {
	switch o.Kind {
	case KindOk:
		return o.Value, errno.OK
	case KindErr:
		return -1, o.Err
	case KindSuspended:
		return -2, errno.OK
	case KindRetry:
		return -3, errno.OK
	default:
		return -1, errno.EINVAL
	}
}

// Handler is a registered syscall's implementation. args carries the
// marshaled integer arguments; proc and caller identify the calling
// process/thread (proc may be nil for a kernel-initiated call).
type Handler func(args []int64, proc *process.Process, caller *thread.Thread) Outcome

// PointerArg describes one user-space pointer argument the dispatcher must
// validate before invoking the handler (spec §4.8 step 3).
type PointerArg struct {
	Base   uintptr
	Length uintptr
	Write  bool
}

// ValidatePointer reports whether every byte of [base, base+length) is
// covered by some enabled slot of bank with sufficient user access (spec
// §4.8 step 3 "validates that each byte of the pointed range lies in
// user-accessible memory of the caller's process, checking against its MPU
// bank").
func ValidatePointer(bank mpu.Bank, base, length uintptr, write bool) bool {
	if length == 0 {
		return true
	}
	end := base + length
	for _, d := range bank {
		if !d.Enabled() {
			continue
		}
		dEnd := d.Base + d.Length
		if base < d.Base || end > dEnd {
			continue
		}
		if !accessAllows(d.AccessUser, write) {
			continue
		}
		return true
	}
	return false
}

func accessAllows(acc mpu.Access, write bool) bool {
	switch acc {
	case mpu.ReadWrite:
		return true
	case mpu.ReadOnly:
		return !write
	default:
		return false
	}
}

// Dispatcher routes syscall numbers to registered Handlers (spec §4.8
// "looks up the handler by syscall number").
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[uint32]Handler
}

// NewDispatcher constructs an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[uint32]Handler)}
}

// Register installs h as the handler for syscall number num, replacing any
// previous registration.
func (d *Dispatcher) Register(num uint32, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[num] = h
}

// Dispatch performs the full spec §4.8 sequence: looks up the handler,
// validates every pointer argument against the caller's MPU bank, invokes
// the handler, and collapses its Outcome to the legacy ABI convention.
func (d *Dispatcher) Dispatch(num uint32, args []int64, ptrs []PointerArg, proc *process.Process, caller *thread.Thread) (result int64, slot errno.Errno) {
	d.mu.RLock()
	h, ok := d.handlers[num]
	d.mu.RUnlock()
	if !ok {
		return -1, errno.EINVAL
	}

	if proc != nil {
		for _, p := range ptrs {
			if !ValidatePointer(proc.MPUBank, p.Base, p.Length, p.Write) {
				return -1, errno.EFAULT
			}
		}
	}

	return h(args, proc, caller).Legacy()
}

// Deferred expresses the kernel-side deferred_call(fn, args...) macro (spec
// §4.8 "expresses the same three-valued pattern for kernel-initiated
// calls"): it simply runs fn, whose signature already carries its own
// bound arguments, and returns its Outcome unchanged. The indirection exists
// so kernel-internal call sites read the same way as a dispatched syscall.
func Deferred(fn func() Outcome) Outcome {
	return fn()
}
