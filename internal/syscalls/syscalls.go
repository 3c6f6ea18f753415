// Package syscalls registers the spec §6 external-interface syscalls with a
// ksyscall.Dispatcher, wiring each one to the subsystem that actually
// implements it: internal/ksync for the pthread_mutex_*/sem_* family,
// internal/region for memalloc/memdealloc, internal/file for open/read/
// write/close, and internal/process for waitpid. Grounded on
// syscalls_mutex.cpp/syscalls_mem.cpp/syscalls_file.cpp/syscalls_process.cpp's
// one-handler-per-syscall-number shape, collapsed here onto Go functions
// registered against a single Dispatcher instead of a switch statement.
package syscalls

import (
	"time"

	"github.com/jncronin/gkos/internal/errno"
	"github.com/jncronin/gkos/internal/file"
	"github.com/jncronin/gkos/internal/ksync"
	"github.com/jncronin/gkos/internal/ksyscall"
	"github.com/jncronin/gkos/internal/process"
	"github.com/jncronin/gkos/internal/region"
	"github.com/jncronin/gkos/internal/thread"
)

// Syscall numbers for the subset of spec §6's External Interfaces this
// package wires up. Not every syscall spec §6 names has a number here —
// proccreate, pthread_create/join/exit, pthread_cond_*, pthread_rwlock_*,
// socket/bind/listen/accept, gettimeofday, setprot/cmpxchg, and
// peekevent/pushevents follow the same Register pattern but are out of
// scope for this package's representative slice.
const (
	PthreadMutexInit uint32 = iota + 1
	PthreadMutexDestroy
	PthreadMutexTryLock
	PthreadMutexUnlock
	SemInit
	SemDestroy
	SemPost
	SemTryWait
	MemAlloc
	MemDealloc
	Open
	Read
	Write
	Close
	WaitPid
)

// Deps bundles the subsystem handles the handlers in this package close
// over; kernel.Boot constructs one from the Kernel it just assembled.
type Deps struct {
	Regions   *region.Manager
	Processes *process.List

	// NewConsole constructs a fresh device file each time Open is called.
	// Filesystem and socket back-ends are an excluded external collaborator
	// (spec §1 Non-goals), so Open here only ever hands back a console-like
	// device file.
	NewConsole func() file.File
}

// Register installs every handler in this package against d.
func Register(d *ksyscall.Dispatcher, deps Deps) {
	d.Register(PthreadMutexInit, pthreadMutexInit)
	d.Register(PthreadMutexDestroy, pthreadMutexDestroy)
	d.Register(PthreadMutexTryLock, pthreadMutexTryLock)
	d.Register(PthreadMutexUnlock, pthreadMutexUnlock)

	d.Register(SemInit, semInit)
	d.Register(SemDestroy, semDestroy)
	d.Register(SemPost, semPost)
	d.Register(SemTryWait, semTryWait)

	d.Register(MemAlloc, deps.memAlloc)
	d.Register(MemDealloc, deps.memDealloc)

	d.Register(Open, deps.open)
	d.Register(Read, read)
	d.Register(Write, write)
	d.Register(Close, closeFd)

	d.Register(WaitPid, deps.waitPid)
}

func pthreadMutexInit(args []int64, proc *process.Process, caller *thread.Thread) ksyscall.Outcome {
	m := ksync.NewMutex(args[0] != 0, args[1] != 0)
	proc.Lock()
	proc.OwnedMutexes[m] = struct{}{}
	proc.Unlock()
	return ksyscall.Ok(proc.AllocHandle(m))
}

func pthreadMutexDestroy(args []int64, proc *process.Process, caller *thread.Thread) ksyscall.Outcome {
	m, ok := lookupMutex(proc, args[0])
	if !ok {
		return ksyscall.Err(errno.EINVAL)
	}
	destroyed, err := m.TryDelete(caller)
	if err != nil {
		return ksyscall.Err(errno.As(err))
	}
	if !destroyed {
		return ksyscall.Err(errno.EBUSY)
	}
	proc.Lock()
	delete(proc.OwnedMutexes, m)
	proc.Unlock()
	proc.FreeHandle(args[0])
	return ksyscall.Ok(0)
}

// pthreadMutexTryLock's args are {handle, block (0/1), timeout_ns}.
func pthreadMutexTryLock(args []int64, proc *process.Process, caller *thread.Thread) ksyscall.Outcome {
	m, ok := lookupMutex(proc, args[0])
	if !ok {
		return ksyscall.Err(errno.EINVAL)
	}
	locked, err := m.TryLock(caller, args[1] != 0, time.Duration(args[2]))
	if !locked {
		return ksyscall.Err(errno.As(err))
	}
	return ksyscall.Ok(0)
}

func pthreadMutexUnlock(args []int64, proc *process.Process, caller *thread.Thread) ksyscall.Outcome {
	m, ok := lookupMutex(proc, args[0])
	if !ok {
		return ksyscall.Err(errno.EINVAL)
	}
	unlocked, err := m.Unlock(caller)
	if !unlocked {
		return ksyscall.Err(errno.As(err))
	}
	return ksyscall.Ok(0)
}

func lookupMutex(proc *process.Process, handle int64) (*ksync.Mutex, bool) {
	v, ok := proc.Handle(handle)
	if !ok {
		return nil, false
	}
	m, ok := v.(*ksync.Mutex)
	return m, ok
}

// semInit's args are {initial, max}; max=0 means unbounded.
func semInit(args []int64, proc *process.Process, caller *thread.Thread) ksyscall.Outcome {
	s := ksync.NewCountingSemaphore(uint32(args[0]), uint32(args[1]))
	proc.Lock()
	proc.OwnedSems[s] = struct{}{}
	proc.Unlock()
	return ksyscall.Ok(proc.AllocHandle(s))
}

func semDestroy(args []int64, proc *process.Process, caller *thread.Thread) ksyscall.Outcome {
	s, ok := lookupSem(proc, args[0])
	if !ok {
		return ksyscall.Err(errno.EINVAL)
	}
	if _, err := s.TryDelete(caller); err != nil {
		return ksyscall.Err(errno.As(err))
	}
	proc.Lock()
	delete(proc.OwnedSems, s)
	proc.Unlock()
	proc.FreeHandle(args[0])
	return ksyscall.Ok(0)
}

func semPost(args []int64, proc *process.Process, caller *thread.Thread) ksyscall.Outcome {
	s, ok := lookupSem(proc, args[0])
	if !ok {
		return ksyscall.Err(errno.EINVAL)
	}
	s.Post()
	return ksyscall.Ok(0)
}

func semTryWait(args []int64, proc *process.Process, caller *thread.Thread) ksyscall.Outcome {
	s, ok := lookupSem(proc, args[0])
	if !ok {
		return ksyscall.Err(errno.EINVAL)
	}
	if !s.TryWait() {
		return ksyscall.Err(errno.EAGAIN)
	}
	return ksyscall.Ok(0)
}

func lookupSem(proc *process.Process, handle int64) (*ksync.CountingSemaphore, bool) {
	v, ok := proc.Handle(handle)
	if !ok {
		return nil, false
	}
	s, ok := v.(*ksync.CountingSemaphore)
	return s, ok
}

// memAlloc's args are {length, region_tag}; returns a handle identifying the
// extent, which memdealloc must hand back unchanged (spec §4.3 "round-trip
// law").
func (d Deps) memAlloc(args []int64, proc *process.Process, caller *thread.Thread) ksyscall.Outcome {
	mr := d.Regions.Allocate(uintptr(args[0]), region.Tag(args[1]), proc.Name+"-memalloc")
	if !mr.Valid {
		return ksyscall.Err(errno.ENOMEM)
	}
	return ksyscall.Ok(proc.AllocHandle(mr))
}

func (d Deps) memDealloc(args []int64, proc *process.Process, caller *thread.Thread) ksyscall.Outcome {
	v, ok := proc.Handle(args[0])
	if !ok {
		return ksyscall.Err(errno.EINVAL)
	}
	mr, ok := v.(region.MemRegion)
	if !ok {
		return ksyscall.Err(errno.EINVAL)
	}
	d.Regions.Deallocate(mr)
	proc.FreeHandle(args[0])
	return ksyscall.Ok(0)
}

// open installs a fresh console device file in the first free open-file
// slot and returns its index (spec §3 "open_files[0..MAX-1]").
func (d Deps) open(args []int64, proc *process.Process, caller *thread.Thread) ksyscall.Outcome {
	f := d.NewConsole()
	proc.Lock()
	defer proc.Unlock()
	for i := range proc.OpenFiles {
		if proc.OpenFiles[i] == nil {
			proc.OpenFiles[i] = f
			return ksyscall.Ok(int64(i))
		}
	}
	return ksyscall.Err(errno.EMFILE)
}

// read's args are {fd, length}. There is no simulated user-memory backing
// store in this kernel (pointer arguments are validated as ranges, not
// materialized as bytes), so the handler reads into a scratch buffer sized
// by length and reports only the count, the way a smoke test exercises a
// syscall's control flow without asserting on payload bytes.
func read(args []int64, proc *process.Process, caller *thread.Thread) ksyscall.Outcome {
	f, ok := lookupFile(proc, args[0])
	if !ok {
		return ksyscall.Err(errno.EINVAL)
	}
	buf := make([]byte, args[1])
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return ksyscall.Err(errno.As(err))
	}
	return ksyscall.Ok(int64(n))
}

func write(args []int64, proc *process.Process, caller *thread.Thread) ksyscall.Outcome {
	f, ok := lookupFile(proc, args[0])
	if !ok {
		return ksyscall.Err(errno.EINVAL)
	}
	n, err := f.Write(make([]byte, args[1]))
	if err != nil && n == 0 {
		return ksyscall.Err(errno.As(err))
	}
	return ksyscall.Ok(int64(n))
}

func closeFd(args []int64, proc *process.Process, caller *thread.Thread) ksyscall.Outcome {
	proc.Lock()
	fd := args[0]
	var f file.File
	if fd >= 0 && int(fd) < len(proc.OpenFiles) {
		f, _ = proc.OpenFiles[fd].(file.File)
		proc.OpenFiles[fd] = nil
	}
	proc.Unlock()
	if f == nil {
		return ksyscall.Err(errno.EINVAL)
	}
	if _, err := f.CloseGraceful(); err != nil {
		return ksyscall.Err(errno.As(err))
	}
	return ksyscall.Ok(0)
}

func lookupFile(proc *process.Process, fd int64) (file.File, bool) {
	proc.Lock()
	defer proc.Unlock()
	if fd < 0 || int(fd) >= len(proc.OpenFiles) {
		return nil, false
	}
	f, ok := proc.OpenFiles[fd].(file.File)
	return f, ok
}

// waitPid's args are {pid, wait (0/1)}. When the child is still alive and
// wait is set, it arms caller's signal slot and returns Suspended (spec
// §4.8 "the caller's SimpleSignal slot is armed"); the arming goroutine
// below plays the role the real firmware's scheduler-driven completion
// callback would.
func (d Deps) waitPid(args []int64, proc *process.Process, caller *thread.Thread) ksyscall.Outcome {
	rc, deferred, ch, err := d.Processes.GetReturnValue(args[0], args[1] != 0)
	if err != nil {
		return ksyscall.Err(errno.As(err))
	}
	if !deferred {
		return ksyscall.Ok(rc)
	}
	if ch != nil && caller.SignalSlot != nil {
		slot := caller.SignalSlot
		go func() {
			rc := <-ch
			slot.Signal(int(ksync.OpSet), uint32(rc))
		}()
	}
	return ksyscall.SuspendedOutcome()
}
