// Package cache implements data-cache maintenance routed through the
// cross-core IPI whenever the address range in question belongs to a
// region owned by the other core (spec §4.12 "Cache maintenance routines
// originating on the 'wrong' core for a given address range enqueue and
// wait with a short timeout"), grounded on cache.cpp and wired to
// internal/ipi.
package cache

import (
	"time"

	"github.com/jncronin/gkos/internal/ipi"
	"github.com/jncronin/gkos/internal/region"
	"github.com/jncronin/gkos/internal/thread"
)

// DefaultTimeout bounds how long a cross-core maintenance request waits for
// its completion flag before giving up (spec §4.12 "a short timeout").
const DefaultTimeout = 50 * time.Millisecond

// DefaultPollInterval is how often SendAndAwaitCompletion re-checks the
// completion flag.
const DefaultPollInterval = time.Millisecond

// owningCore reports which core a region tag is considered local to, or
// CoreNone for tags shared by both (spec §4.3 rationale: fast SRAM/TCM is
// local to the application core, the real-time core's local SRAM is
// tightly-coupled memory; bulk/external memory belongs to neither
// exclusively).
func owningCore(tag region.Tag) thread.Core {
	switch tag {
	case region.FastSRAM:
		return thread.CoreA
	case region.TightlyCoupledData, region.TightlyCoupledCode:
		return thread.CoreB
	default:
		return thread.CoreNone
	}
}

// localOps performs the actual cache-instruction-level work; in this
// software simulation there is no real cache to manage, so the default
// implementation is a no-op, but it is pluggable so tests can observe
// invocations.
type localOps interface {
	CleanRange(base, length uintptr)
	InvalidateRange(base, length uintptr)
	CleanAndInvalidateRange(base, length uintptr)
	InvalidateInstructionRange(base, length uintptr)
}

// noopOps is the zero-value localOps used when no hardware hook is wired.
type noopOps struct{}

func (noopOps) CleanRange(uintptr, uintptr)                   {}
func (noopOps) InvalidateRange(uintptr, uintptr)               {}
func (noopOps) CleanAndInvalidateRange(uintptr, uintptr)       {}
func (noopOps) InvalidateInstructionRange(uintptr, uintptr)    {}

// CoreCache is the per-core cache-maintenance entry point. It implements
// internal/ctxswitch.CacheMaintainer.
type CoreCache struct {
	core    thread.Core
	bus     *ipi.Bus
	ops     localOps
	Timeout time.Duration
}

// NewCoreCache constructs a CoreCache for core, routing cross-core requests
// through bus. ops may be nil to use a no-op hardware backend.
func NewCoreCache(core thread.Core, bus *ipi.Bus, ops localOps) *CoreCache {
	if ops == nil {
		ops = noopOps{}
	}
	return &CoreCache{core: core, bus: bus, ops: ops, Timeout: DefaultTimeout}
}

func (c *CoreCache) routeOrLocal(r region.MemRegion, kind ipi.Kind, local func()) bool {
	owner := owningCore(r.Tag)
	if owner == thread.CoreNone || owner == c.core {
		local()
		return true
	}
	return c.bus.SendAndAwaitCompletion(c.core, ipi.Message{
		Kind:    kind,
		Payload: ipi.Payload{Base: r.Base, Length: r.Length},
	}, DefaultPollInterval, c.Timeout)
}

// Clean cleans (writes back) the data cache for r, implementing
// internal/ctxswitch.CacheMaintainer.
func (c *CoreCache) Clean(r region.MemRegion) {
	c.routeOrLocal(r, ipi.CleanDataRange, func() { c.ops.CleanRange(r.Base, r.Length) })
}

// Invalidate discards cached data for r, implementing
// internal/ctxswitch.CacheMaintainer.
func (c *CoreCache) Invalidate(r region.MemRegion) {
	c.routeOrLocal(r, ipi.InvalidateDataRange, func() { c.ops.InvalidateRange(r.Base, r.Length) })
}

// CleanAndInvalidate both writes back and discards cached data for r.
func (c *CoreCache) CleanAndInvalidate(r region.MemRegion) {
	c.routeOrLocal(r, ipi.CleanAndInvalidateRange, func() { c.ops.CleanAndInvalidateRange(r.Base, r.Length) })
}

// InvalidateInstructions discards cached instructions for r, used after
// loading or relocating executable code (spec §4.7 "applies relocations").
func (c *CoreCache) InvalidateInstructions(r region.MemRegion) {
	c.routeOrLocal(r, ipi.InvalidateInstructionRange, func() { c.ops.InvalidateInstructionRange(r.Base, r.Length) })
}

// HandleMessage performs the action a received IPI message requests; wire
// this as the handler passed to ipi.Bus.Drain on the consuming core.
func (c *CoreCache) HandleMessage(m ipi.Message) {
	switch m.Kind {
	case ipi.CleanDataRange:
		c.ops.CleanRange(m.Payload.Base, m.Payload.Length)
	case ipi.InvalidateDataRange:
		c.ops.InvalidateRange(m.Payload.Base, m.Payload.Length)
	case ipi.CleanAndInvalidateRange:
		c.ops.CleanAndInvalidateRange(m.Payload.Base, m.Payload.Length)
	case ipi.InvalidateInstructionRange:
		c.ops.InvalidateInstructionRange(m.Payload.Base, m.Payload.Length)
	}
}
