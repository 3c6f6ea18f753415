// Package process implements the kernel Process record and the global
// ProcessList with PID assignment (spec §3 "Process", §4.6 "Process list
// and PID assignment"), grounded on process.cpp/syscalls_process.cpp.
package process

import (
	"sync"

	"github.com/jncronin/gkos/internal/errno"
	"github.com/jncronin/gkos/internal/event"
	"github.com/jncronin/gkos/internal/irq"
	"github.com/jncronin/gkos/internal/mpu"
	"github.com/jncronin/gkos/internal/region"
)

// MaxOpenFiles bounds a process's open-file table (spec §3 "open_files[0..MAX-1]").
const MaxOpenFiles = 64

// ThreadRef is the minimal surface a thread exposes to its owning process,
// kept as an interface to avoid an import cycle with internal/thread.
type ThreadRef interface {
	IsForDeletion() bool
}

// Process is the kernel's per-process control block (spec §3 "Process").
type Process struct {
	mu sync.Mutex

	ID       int64
	ParentID int64
	Name     string

	Heap     region.MemRegion
	CodeData region.MemRegion
	MPUBank  mpu.Bank

	tlsKeyGen       uintptr
	TLSDestructors  map[uintptr]func(uintptr)

	OpenFiles [MaxOpenFiles]interface{}

	Threads     []ThreadRef
	ChildPIDs   map[int64]struct{}
	Cwd         string
	Argv        []string

	OwnedMutexes   map[interface{}]struct{}
	OwnedConds     map[interface{}]struct{}
	OwnedRwLocks   map[interface{}]struct{}
	OwnedSems      map[interface{}]struct{}

	handleGen int64
	Handles   map[int64]interface{}

	DefaultAffinity   region.Affinity
	DefaultStackSize  uintptr
	ForDeletion       bool
	ReturnCode        int64

	Events *event.Queue
}

func newProcess(id, parentID int64, name string) *Process {
	return &Process{
		ID:             id,
		ParentID:       parentID,
		Name:           name,
		TLSDestructors: make(map[uintptr]func(uintptr)),
		ChildPIDs:      make(map[int64]struct{}),
		OwnedMutexes:   make(map[interface{}]struct{}),
		OwnedConds:     make(map[interface{}]struct{}),
		OwnedRwLocks:   make(map[interface{}]struct{}),
		OwnedSems:      make(map[interface{}]struct{}),
		Handles:        make(map[int64]interface{}),
		Events:         event.NewQueue(256),
	}
}

// PID implements thread.ProcessRef.
func (p *Process) PID() int64 { return p.ID }

// Lock/Unlock expose the process's own spinlock-equivalent guard (spec §5
// "The per-process open-file table is guarded by the process spinlock").
func (p *Process) Lock()   { p.mu.Lock() }
func (p *Process) Unlock() { p.mu.Unlock() }

// NextTLSKey hands out a monotonically increasing TLS key (spec §3
// "tls_key_generator").
func (p *Process) NextTLSKey() uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tlsKeyGen++
	return p.tlsKeyGen
}

// AllocHandle assigns v the next handle number and records it, returning the
// number a syscall result can hand back to user space in place of a raw
// pointer (spec §4.8: syscall arguments are plain integers, never pointers
// into kernel data structures).
func (p *Process) AllocHandle(v interface{}) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handleGen++
	id := p.handleGen
	p.Handles[id] = v
	return id
}

// Handle returns the value registered under id, if any.
func (p *Process) Handle(id int64) (interface{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.Handles[id]
	return v, ok
}

// FreeHandle removes id from the table.
func (p *Process) FreeHandle(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.Handles, id)
}

// AddChild records a newly created child's pid (spec §4.7 step 10).
func (p *Process) AddChild(pid int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ChildPIDs[pid] = struct{}{}
}

// AddThread appends t to this process's thread list (spec §4.7 step 2).
func (p *Process) AddThread(t ThreadRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Threads = append(p.Threads, t)
}

// slot is one entry of the dense process table (spec §4.6 "each slot either
// alive ... or terminated").
type slot struct {
	proc       *Process
	terminated bool
	returnCode int64
	waiters    map[chan int64]struct{}
}

// List is the global process table, indexed densely by pid (spec §4.6
// "ProcessList").
type List struct {
	mu    irq.Spinlock
	slots []slot
}

// NewList constructs an empty process list; pid 0 is never assigned (index 0
// is reserved so pid is always > 0 and truthy in the original C convention).
func NewList() *List {
	return &List{slots: make([]slot, 1)}
}

// RegisterProcess appends a new process record and returns its freshly
// assigned pid (spec §4.6 "RegisterProcess appends and returns the new
// pid").
func (l *List) RegisterProcess(parentID int64, name string) *Process {
	g := irq.Acquire(&l.mu)
	defer g.Release()
	pid := int64(len(l.slots))
	p := newProcess(pid, parentID, name)
	l.slots = append(l.slots, slot{proc: p, waiters: make(map[chan int64]struct{})})
	return p
}

// DeleteProcess marks pid terminated with return code rc, wakes every
// waiter blocked in GetReturnValue, and clears the live pointer while
// leaving the slot behind so late waitpid calls still find the code
// (spec §4.6 "DeleteProcess").
func (l *List) DeleteProcess(pid int64, rc int64) {
	g := irq.Acquire(&l.mu)
	if pid <= 0 || int(pid) >= len(l.slots) {
		g.Release()
		return
	}
	s := &l.slots[pid]
	s.terminated = true
	s.returnCode = rc
	s.proc = nil
	waiters := s.waiters
	s.waiters = nil
	g.Release()

	for ch := range waiters {
		ch <- rc
		close(ch)
	}
}

// deferSentinel is the distinguished value GetReturnValue returns when the
// process is still alive and the caller asked to wait (spec §4.6 "returns a
// 'defer' sentinel").
const deferSentinel = -2

// GetReturnValue returns the terminated process's return code, or the
// deferred-call sentinel with deferred=true if still alive (when wait is
// true, ch also receives the return code exactly once when the process
// terminates; when wait is false, ch is nil), or ECHILD if pid is out of
// range (spec §4.6).
func (l *List) GetReturnValue(pid int64, wait bool) (rc int64, deferred bool, ch <-chan int64, err error) {
	g := irq.Acquire(&l.mu)
	defer g.Release()
	if pid <= 0 || int(pid) >= len(l.slots) {
		return 0, false, nil, errno.Wrap("waitpid", errno.ECHILD)
	}
	s := &l.slots[pid]
	if s.terminated {
		return s.returnCode, false, nil, nil
	}
	if !wait {
		return deferSentinel, true, nil, nil
	}
	waitCh := make(chan int64, 1)
	s.waiters[waitCh] = struct{}{}
	return deferSentinel, true, waitCh, nil
}

// Lookup returns the live process for pid, or nil if unassigned or
// terminated.
func (l *List) Lookup(pid int64) *Process {
	g := irq.Acquire(&l.mu)
	defer g.Release()
	if pid <= 0 || int(pid) >= len(l.slots) {
		return nil
	}
	return l.slots[pid].proc
}
