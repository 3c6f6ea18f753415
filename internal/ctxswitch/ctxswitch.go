// Package ctxswitch models the context-switch bookkeeping performed at a
// voluntary yield or timer tick (spec §4.9), mirroring how eventloop.tick()
// models "what happens on a scheduling boundary" as a sequence of explicit
// steps. Register save/restore (steps 1-2, 9) have no counterpart in this
// software simulation, since thread.SavedState is already the
// authoritative copy rather than something copied out of real CPU
// registers; this package implements the bookkeeping steps that do have
// observable effects: clearing descheduled_from_core, cache maintenance,
// the running_on_core flag, the MPU bank load, and the TLS pointer swap.
package ctxswitch

import (
	"github.com/jncronin/gkos/internal/mpu"
	"github.com/jncronin/gkos/internal/region"
	"github.com/jncronin/gkos/internal/thread"
)

// CacheMaintainer cleans or invalidates the data cache for a memory range,
// implemented in practice by internal/cache (spec §4.9 step 5).
type CacheMaintainer interface {
	Clean(r region.MemRegion)
	Invalidate(r region.MemRegion)
}

func eitherAffinity(t *thread.Thread) bool {
	return t != nil && t.Affinity == region.Either
}

// Switch performs spec §4.9's steps 3-8 for a transition from outgoing to
// incoming on core. dualCoreAppCore should be true only when this is the
// application core of a dual-core configuration, matching step 5's "On the
// application core in dual-core mode". loadMPU and setTLS are the
// hardware/runtime hooks for steps 7 and 8; either may be nil to skip the
// step (e.g. in a kernel-only unit test).
func Switch(core thread.Core, outgoing, incoming *thread.Thread, dualCoreAppCore bool, cm CacheMaintainer, loadMPU func(mpu.Bank), setTLS func(map[uintptr]uintptr)) {
	if outgoing != nil {
		outgoing.SetDescheduledFrom(thread.CoreNone) // step 3
	}
	if outgoing == incoming {
		return // step 4 fast-path
	}

	if dualCoreAppCore && cm != nil { // step 5
		if eitherAffinity(outgoing) {
			cm.Clean(outgoing.Stack)
		}
		if eitherAffinity(incoming) {
			cm.Invalidate(incoming.Stack)
		}
	}

	incoming.SetRunningOn(core) // step 6

	if loadMPU != nil {
		loadMPU(incoming.MPUBank) // step 7
	}
	if setTLS != nil {
		setTLS(incoming.TLSValues) // step 8
	}
	// step 9 (restore registers, return from exception) has no simulation
	// counterpart: control simply returns to the caller.
}
