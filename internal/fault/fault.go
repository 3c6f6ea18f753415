// Package fault implements the kernel fault handler (spec §4.11): it builds
// a fault report (including an MPU-bank diff against the faulting thread's
// saved bank) and then takes one of two actions: a fault in kernel context,
// or in a thread and process the kernel could not identify at all, freezes
// the log and resets; a fault in a known user process terminates that
// process.
package fault

import (
	"fmt"
	"strings"

	"github.com/jncronin/gkos/internal/cleanup"
	"github.com/jncronin/gkos/internal/klog"
	"github.com/jncronin/gkos/internal/mpu"
	"github.com/jncronin/gkos/internal/process"
	"github.com/jncronin/gkos/internal/thread"
)

// Reason identifies which fault class was taken (spec §4.11 "the fault
// handler records which fault class was taken").
type Reason int

const (
	MemoryAccess Reason = iota
	BusFault
	UsageFault
	HardFault
)

func (r Reason) String() string {
	switch r {
	case MemoryAccess:
		return "MemoryAccess"
	case BusFault:
		return "BusFault"
	case UsageFault:
		return "UsageFault"
	case HardFault:
		return "HardFault"
	default:
		return "UnknownFault"
	}
}

// MPUMismatch is one slot where the live MPU bank disagrees with the
// thread's last-saved bank (spec §4.11 "a diff of the live MPU bank against
// the thread's saved bank").
type MPUMismatch struct {
	Slot int
	Live mpu.Descriptor
	Saved mpu.Descriptor
}

// DiffMPU compares live against saved slot-by-slot and returns every
// mismatching slot.
func DiffMPU(live, saved mpu.Bank) []MPUMismatch {
	var out []MPUMismatch
	for i := range live {
		if live[i] != saved[i] {
			out = append(out, MPUMismatch{Slot: i, Live: live[i], Saved: saved[i]})
		}
	}
	return out
}

// Report is everything the fault handler gathers before deciding what to do
// (spec §4.11 "report includes the faulting instruction address, link
// register, general registers, FPU status, and an MPU diff").
type Report struct {
	Reason            Reason
	InstructionAddr   uintptr
	LinkRegister      uintptr
	Regs              [13]uintptr
	FPUStatus         uint32
	MPUDiff           []MPUMismatch
	ThreadName        string
	ProcessName       string
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "FAULT reason=%s pc=0x%x lr=0x%x thread=%q process=%q mpu_mismatches=%d",
		r.Reason, r.InstructionAddr, r.LinkRegister, r.ThreadName, r.ProcessName, len(r.MPUDiff))
	return b.String()
}

// Handler implements the spec §4.11 decision tree: kernel-context faults
// freeze the log and reset; user-process faults terminate the owning
// process via the cleanup queue; faults the kernel cannot attribute to any
// thread or process at all take the same freeze-and-reset path, since there
// is nothing left that could be safely unwound.
type Handler struct {
	log       *klog.Log
	resetFn   func()
	queue     *cleanup.Queue
	kernelPID int64
}

// NewHandler constructs a Handler. resetFn performs the actual hardware
// reset (or process exit, in a hosted build) and may be nil in tests.
func NewHandler(log *klog.Log, resetFn func(), queue *cleanup.Queue, kernelPID int64) *Handler {
	return &Handler{log: log, resetFn: resetFn, queue: queue, kernelPID: kernelPID}
}

// Handle runs the full fault path for a fault attributed to th running
// under proc (either may be nil if the kernel could not identify them).
func (h *Handler) Handle(rep Report, th *thread.Thread, proc *process.Process) Action {
	if th != nil {
		rep.ThreadName = th.Name
	}
	if proc != nil {
		rep.ProcessName = proc.Name
	}
	h.logReport(rep)

	switch {
	case proc == nil:
		h.freezeAndReset(rep)
		return ActionReset
	case proc.ID == h.kernelPID:
		h.freezeAndReset(rep)
		return ActionReset
	default:
		h.terminateProcess(proc)
		return ActionTerminateProcess
	}
}

// Action reports which branch of the decision tree Handle took, mostly for
// test assertions.
type Action int

const (
	ActionReset Action = iota
	ActionTerminateProcess
)

// logReport writes rep synchronously, bypassing the background drainer: by
// the time a fault handler runs, the drainer goroutine may itself be
// unschedulable.
func (h *Handler) logReport(rep Report) {
	if h.log == nil {
		return
	}
	h.log.EmergencyWrite(rep.String())
}

// freezeAndReset implements the "log-and-reset" branch (spec §4.11 "A fault
// in kernel context, or one the kernel cannot attribute to any known thread
// or process, freezes the persisted log and triggers a reset").
func (h *Handler) freezeAndReset(rep Report) {
	if h.log != nil {
		h.log.EmergencyWrite("kernel fault path: freezing log, resetting")
		h.log.Close()
	}
	if h.resetFn != nil {
		h.resetFn()
	}
}

// terminateProcess implements the "terminate process" branch (spec §4.11
// "A fault in a known user process marks every one of its threads for
// deletion and pushes the process onto the cleanup queue"): it never frees
// memory directly, leaving that to the cleanup drainer so the fault handler
// itself stays fast and non-blocking.
func (h *Handler) terminateProcess(proc *process.Process) {
	proc.Lock()
	proc.ForDeletion = true
	threads := append([]process.ThreadRef(nil), proc.Threads...)
	proc.Unlock()

	for _, tr := range threads {
		if t, ok := tr.(*thread.Thread); ok {
			t.MarkForDeletion()
		}
	}

	if h.queue != nil {
		if !h.queue.Push(cleanup.Item{Kind: cleanup.ProcessItem, Process: proc}) {
			if h.log != nil {
				h.log.EmergencyWrite(fmt.Sprintf("cleanup queue full, dropping terminated process %q (pid=%d)", proc.Name, proc.ID))
			}
		}
	}
}
