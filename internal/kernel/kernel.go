// Package kernel wires every subsystem together behind one boot routine
// (spec §9 "single kernel-init routine"), the way a real firmware image's
// reset handler builds its clock, allocator, scheduler, and logger in a
// fixed order before taking its first context switch.
package kernel

import (
	"io"

	"github.com/jncronin/gkos/internal/cache"
	"github.com/jncronin/gkos/internal/cleanup"
	"github.com/jncronin/gkos/internal/fault"
	"github.com/jncronin/gkos/internal/file"
	"github.com/jncronin/gkos/internal/ipi"
	"github.com/jncronin/gkos/internal/klog"
	"github.com/jncronin/gkos/internal/ksyscall"
	"github.com/jncronin/gkos/internal/process"
	"github.com/jncronin/gkos/internal/region"
	"github.com/jncronin/gkos/internal/sched"
	"github.com/jncronin/gkos/internal/syscalls"
	"github.com/jncronin/gkos/internal/thread"
)

// RegionConfig describes one physical memory range to register with the
// region manager at boot (spec §3 "Physical memory region").
type RegionConfig struct {
	Tag         region.Tag
	BaseAddress uintptr
	MinBlock    uintptr
	TotalLength uintptr
	Cacheable   bool
}

// Config carries every boot-time parameter as an explicit struct, per
// spec §9's "no ambient globals" direction: nothing here is read from
// environment variables or package-level state.
type Config struct {
	Regions              []RegionConfig
	LogCapacity          int
	LogWriter            io.Writer
	CleanupQueueCapacity int
	ResetFn              func()

	// ConsoleIn/ConsoleOut back the device file the open syscall hands out;
	// either may be nil, in which case reads/writes against that direction
	// fail with EINVAL (spec §3 "terminal-like device file").
	ConsoleIn  io.Reader
	ConsoleOut io.Writer
}

// Kernel holds every subsystem handle Boot assembled.
type Kernel struct {
	Regions    *region.Manager
	Log        *klog.Log
	Processes  *process.List
	Scheduler  *sched.Scheduler
	Cleanup    *cleanup.Queue
	Bus        *ipi.Bus
	CacheA     *cache.CoreCache
	CacheB     *cache.CoreCache
	Syscalls   *ksyscall.Dispatcher
	Faults     *fault.Handler
	KernelProc *process.Process
}

// defaultCleanupCapacity matches the bounded queue size assumed throughout
// spec §4.10's worked examples.
const defaultCleanupCapacity = 64

// Boot assembles every subsystem in dependency order: regions, then the
// logger, then the process table and scheduler, then the cross-core IPI
// bus and per-core caches, then the cleanup queue (which needs the region
// manager and process list), then the syscall dispatcher, and finally the
// fault handler (which needs the cleanup queue). It registers pid 1 as the
// kernel's own process record, matching the convention that faults
// attributed to that pid take the reset path rather than the
// terminate-process path.
func Boot(cfg Config) *Kernel {
	rm := region.NewManager()
	for _, r := range cfg.Regions {
		rm.AddRegion(r.Tag, r.BaseAddress, r.MinBlock, r.TotalLength, r.Cacheable)
	}

	logCap := cfg.LogCapacity
	if logCap == 0 {
		logCap = 256
	}
	log := klog.New(logCap, cfg.LogWriter)

	procs := process.NewList()
	kernelProc := procs.RegisterProcess(0, "kernel")

	schedlr := sched.New()

	bus := ipi.NewBus()
	cacheA := cache.NewCoreCache(thread.CoreA, bus, nil)
	cacheB := cache.NewCoreCache(thread.CoreB, bus, nil)

	cleanupCap := cfg.CleanupQueueCapacity
	if cleanupCap == 0 {
		cleanupCap = defaultCleanupCapacity
	}
	cq := cleanup.New(cleanupCap, rm, procs, func(t *thread.Thread) {
		schedlr.Remove(t)
	})

	dispatcher := ksyscall.NewDispatcher()
	syscalls.Register(dispatcher, syscalls.Deps{
		Regions:   rm,
		Processes: procs,
		NewConsole: func() file.File {
			return file.NewDeviceFile(cfg.ConsoleIn, cfg.ConsoleOut, nil)
		},
	})
	faults := fault.NewHandler(log, cfg.ResetFn, cq, kernelProc.ID)

	log.Info("kernel booted")

	return &Kernel{
		Regions:    rm,
		Log:        log,
		Processes:  procs,
		Scheduler:  schedlr,
		Cleanup:    cq,
		Bus:        bus,
		CacheA:     cacheA,
		CacheB:     cacheB,
		Syscalls:   dispatcher,
		Faults:     faults,
		KernelProc: kernelProc,
	}
}

// Shutdown stops the background drainer goroutines started by Boot. Tests
// and the demo binary should call this once they're done so goroutines
// don't leak past the test/process lifetime.
func (k *Kernel) Shutdown() {
	k.Cleanup.Stop()
	k.Log.Close()
}
