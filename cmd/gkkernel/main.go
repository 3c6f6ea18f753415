// Command gkkernel boots the kernel simulation against the host process's
// own container limits before handing off to the scheduler loop: GOMAXPROCS
// and GOMEMLIMIT are derived from the runtime's view of the machine the way
// a real firmware image reads its own linker-script memory map at reset,
// rather than being left at Go's defaults.
package main

import (
	"os"
	"os/signal"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sys/unix"

	"github.com/jncronin/gkos/internal/kernel"
	"github.com/jncronin/gkos/internal/region"
)

func init() {
	_, _ = maxprocs.Set()
	_, _ = memlimit.SetGoMemLimitWithOpts()
}

func main() {
	cfg := kernel.Config{
		Regions: []kernel.RegionConfig{
			{Tag: region.FastSRAM, BaseAddress: 0x24000000, MinBlock: 256, TotalLength: 512 * 1024, Cacheable: false},
			{Tag: region.TightlyCoupledData, BaseAddress: 0x20000000, MinBlock: 256, TotalLength: 64 * 1024, Cacheable: false},
			{Tag: region.BulkSRAM, BaseAddress: 0x30000000, MinBlock: 1024, TotalLength: 1024 * 1024, Cacheable: true},
			{Tag: region.ExternalDRAM, BaseAddress: 0xC0000000, MinBlock: 4096, TotalLength: 64 * 1024 * 1024, Cacheable: true},
		},
		LogWriter:  os.Stderr,
		ConsoleIn:  os.Stdin,
		ConsoleOut: os.Stdout,
		ResetFn: func() {
			os.Exit(1)
		},
	}

	k := kernel.Boot(cfg)
	defer k.Shutdown()

	// A real board has no OS to deliver SIGINT/SIGTERM; this hosted
	// simulation treats them as the closest analogue to the physical reset
	// button, draining the cleanup queue and logger before exiting.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)

	k.Log.Info("gkkernel: boot complete, idling")
	<-sigCh
	k.Log.Info("gkkernel: signal received, shutting down")
}
