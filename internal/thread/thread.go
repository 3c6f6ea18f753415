// Package thread implements the kernel Thread record and its creation
// lifecycle (spec §3 "Thread", §4.7 steps 1-5), grounded on
// Firmware-v3/src/switcher.cpp's thread-control-block shape.
package thread

import (
	"sync"
	"sync/atomic"

	"github.com/jncronin/gkos/internal/kclock"
	"github.com/jncronin/gkos/internal/mpu"
	"github.com/jncronin/gkos/internal/region"
)

// Priority is a scheduling priority level (spec §4.4 "npriorities" buckets).
type Priority int

const (
	Idle Priority = iota
	Low
	Normal
	High
	VeryHigh
	NumPriorities
)

// Core names a hardware core, or CoreNone when not bound to any.
type Core int

const (
	CoreNone Core = -1
	CoreA    Core = 0
	CoreB    Core = 1
)

// SavedState is the software stand-in for the saved register/FPU/control
// state a real context switch would persist (spec §3 Thread fields
// saved_regs/saved_fpu/saved_control).
type SavedState struct {
	PC, LR, SP uintptr
	Regs       [13]uintptr
	FPURegs    [32]uint64
	Control    uint32
}

// Thread is the kernel's per-thread control block (spec §3 "Thread").
type Thread struct {
	mu sync.Mutex

	Name        string
	Process     ProcessRef
	BasePriority Priority
	Affinity    region.Affinity

	Saved    SavedState
	MPUBank  mpu.Bank
	Stack    region.MemRegion

	// scheduling state
	Blocking     atomic.Bool
	BlockUntil   kclock.Time
	BlockingOn   *Thread // another thread this one is waiting behind, for priority inheritance
	DeletionFlag atomic.Bool

	JoinTarget    *Thread
	JoinResult    int64
	SignalSlot    SimpleSignalRef
	SignalPayload [2]int64

	TLSValues map[uintptr]uintptr

	LockedMutexes map[interface{}]struct{}
	LockedRwLocks map[interface{}]struct{}

	RunningOnCore      atomic.Int32 // Core, biased by +1 so the zero value means CoreNone
	PinnedOnCore       Core
	ChosenForCore      atomic.Int32
	DescheduledFromCore atomic.Int32

	roundRobinPos int
}

// ProcessRef is the minimal surface thread needs from its owning process,
// kept as an interface to avoid an import cycle with internal/process.
type ProcessRef interface {
	PID() int64
}

// SimpleSignalRef is the minimal surface thread needs from its signal slot;
// internal/ksync.SimpleSignal implements it.
type SimpleSignalRef interface {
	Signal(op int, operand uint32) uint32
}

func coreToAtomic(c Core) int32 { return int32(c) + 1 }
func atomicToCore(v int32) Core { return Core(v - 1) }

// Create allocates (if stackOverride is invalid) a stack in the best region
// for affinity, builds the thread record, and arranges its initial saved
// state to look like a just-returned exception frame (spec §4.7 steps 1-4).
// It does not schedule the thread (step 5): the caller must do that
// separately via the scheduler.
func Create(name string, entry, arg uintptr, proc ProcessRef, priority Priority, affinity region.Affinity, regionMgr *region.Manager, stackOverride region.MemRegion, stackSize uintptr, bank mpu.Bank) (*Thread, bool) {
	stack := stackOverride
	if !stack.Valid {
		stack = regionMgr.AllocateForStack(stackSize, affinity, name+"-stack")
		if !stack.Valid {
			return nil, false
		}
	}

	t := &Thread{
		Name:          name,
		Process:       proc,
		BasePriority:  priority,
		Affinity:      affinity,
		Stack:         stack,
		MPUBank:       bank,
		TLSValues:     make(map[uintptr]uintptr),
		LockedMutexes: make(map[interface{}]struct{}),
		LockedRwLocks: make(map[interface{}]struct{}),
		PinnedOnCore:  CoreNone,
	}
	t.RunningOnCore.Store(coreToAtomic(CoreNone))
	t.ChosenForCore.Store(coreToAtomic(CoreNone))
	t.DescheduledFromCore.Store(coreToAtomic(CoreNone))

	// arrange the initial stack frame to look like a returned exception frame
	t.Saved.PC = entry
	t.Saved.SP = stack.Base + stack.Length
	t.Saved.Regs[0] = arg

	guard := mpu.GuardedStackDescriptor(len(bank)-2, stack.Base, stack.Length, mpu.ReadWrite, mpu.ReadWrite)
	t.MPUBank[len(bank)-2] = guard

	return t, true
}

// IsBlocking reports whether the thread is currently descheduled pending a
// wake-up from a synchronization primitive or timeout.
func (t *Thread) IsBlocking() bool { return t.Blocking.Load() }

// IsForDeletion reports whether the cleanup task should reap this thread.
func (t *Thread) IsForDeletion() bool { return t.DeletionFlag.Load() }

// MarkForDeletion sets the deletion flag so the scheduler routes this
// thread to cleanup next time it would be picked (spec §5 "Cancellation").
func (t *Thread) MarkForDeletion() { t.DeletionFlag.Store(true) }

// EffectivePriority is 0 (Idle) if the thread is blocking, marked for
// deletion, or already descheduled from a core; else its BasePriority
// (spec §4.4 step 1).
func (t *Thread) EffectivePriority() Priority {
	if t.IsBlocking() || t.IsForDeletion() || t.DescheduledFromCore.Load() != coreToAtomic(CoreNone) {
		return Idle
	}
	return t.BasePriority
}

func (t *Thread) RunningOn() Core       { return atomicToCore(t.RunningOnCore.Load()) }
func (t *Thread) SetRunningOn(c Core)   { t.RunningOnCore.Store(coreToAtomic(c)) }
func (t *Thread) ChosenFor() Core       { return atomicToCore(t.ChosenForCore.Load()) }
func (t *Thread) SetChosenFor(c Core)   { t.ChosenForCore.Store(coreToAtomic(c)) }
func (t *Thread) DescheduledFrom() Core { return atomicToCore(t.DescheduledFromCore.Load()) }
func (t *Thread) SetDescheduledFrom(c Core) {
	t.DescheduledFromCore.Store(coreToAtomic(c))
}

// Lock/Unlock expose the thread's own spinlock-equivalent guard for callers
// that must mutate multiple fields atomically (spec §5 "A thread's own
// state is guarded by its thread spinlock").
func (t *Thread) Lock()   { t.mu.Lock() }
func (t *Thread) Unlock() { t.mu.Unlock() }

// RoundRobinPos/SetRoundRobinPos store a per-thread bucket scan position.
// internal/sched does not read it: the scheduler keeps its round-robin
// resume point per priority bucket.
func (t *Thread) RoundRobinPos() int        { return t.roundRobinPos }
func (t *Thread) SetRoundRobinPos(pos int)  { t.roundRobinPos = pos }
