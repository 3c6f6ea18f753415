// Package sched implements the per-core priority scheduler with affinity
// and blocker-chain priority inheritance (spec §4.4), grounded on
// Firmware-v4/gkos/src/scheduler.cpp for the algorithm and on
// eventloop.Loop's tick/state-machine structure (an explicit tick-shaped
// GetNextThread entry point over atomic tri-state fields) for the Go idiom.
//
// Hardware-timer programming (spec §4.4 step 5, "program the hardware
// timer for the minimum of the maximum timeslice and the earliest blocker")
// has no counterpart in this software simulation and is not modeled; the
// scheduling decision itself (steps 1, 3, 4) is implemented in full.
package sched

import (
	"github.com/jncronin/gkos/internal/irq"
	"github.com/jncronin/gkos/internal/region"
	"github.com/jncronin/gkos/internal/thread"
)

// MaxBlockerChain bounds the ancestor walk; exceeding it is assumed to be a
// priority-inheritance cycle and panics (spec §4.4 step 3: "follow its
// blocking_on chain through at most 256 links").
const MaxBlockerChain = 256

// Scheduler holds the shared priority buckets and each core's current/idle
// thread (spec §4.4 "State").
type Scheduler struct {
	mu irq.Spinlock

	buckets    [thread.NumPriorities][]*thread.Thread
	roundRobin [thread.NumPriorities]int

	current map[thread.Core]*thread.Thread
	idle    map[thread.Core]*thread.Thread
}

// New constructs an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		current: make(map[thread.Core]*thread.Thread),
		idle:    make(map[thread.Core]*thread.Thread),
	}
}

// SetIdleThread registers core's idle thread, returned by GetNextThread
// when nothing else is runnable (spec §4.4 step 4).
func (s *Scheduler) SetIdleThread(core thread.Core, t *thread.Thread) {
	g := irq.Acquire(&s.mu)
	defer g.Release()
	s.idle[core] = t
}

// Add inserts t into its base-priority bucket, making it eligible to be
// picked.
func (s *Scheduler) Add(t *thread.Thread) {
	g := irq.Acquire(&s.mu)
	defer g.Release()
	s.buckets[t.BasePriority] = append(s.buckets[t.BasePriority], t)
}

// Remove deletes t from its bucket, e.g. once it has been routed to
// cleanup.
func (s *Scheduler) Remove(t *thread.Thread) {
	g := irq.Acquire(&s.mu)
	defer g.Release()
	bucket := s.buckets[t.BasePriority]
	for i, cand := range bucket {
		if cand == t {
			s.buckets[t.BasePriority] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// SetPriority moves t from its current bucket to the one matching newPrio
// (spec §6 "set_thread_priority").
func (s *Scheduler) SetPriority(t *thread.Thread, newPrio thread.Priority) {
	s.Remove(t)
	g := irq.Acquire(&s.mu)
	t.BasePriority = newPrio
	g.Release()
	s.Add(t)
}

func otherCore(c thread.Core) thread.Core {
	switch c {
	case thread.CoreA:
		return thread.CoreB
	case thread.CoreB:
		return thread.CoreA
	default:
		return thread.CoreNone
	}
}

// affinityFits reports whether aff permits running on core at all, and
// whether core is its preferred core (spec §4.4 step 3: "Prefer candidates
// marked only_me or prefer_me for this core; Fall back to prefer_other
// candidates if no preferred one exists").
func affinityFits(aff region.Affinity, core thread.Core) (fits, preferred bool) {
	switch aff {
	case region.CoreAOnly:
		return core == thread.CoreA, core == thread.CoreA
	case region.CoreBOnly:
		return core == thread.CoreB, core == thread.CoreB
	case region.PreferA:
		return true, core == thread.CoreA
	case region.PreferB:
		return true, core == thread.CoreB
	default: // Either
		return true, true
	}
}

// resolveAncestor follows t's blocking_on chain to the "real" runnable
// ancestor that should receive t's donated priority (spec §4.4 step 3,
// priority inheritance). Only a Thread->Thread chain participates — per
// spec §9 Open Questions #2, a thread blocked on a semaphore or condition
// (which never sets BlockingOn) contributes nothing and is its own
// ancestor.
func resolveAncestor(t *thread.Thread) *thread.Thread {
	cur := t
	for i := 0; i < MaxBlockerChain; i++ {
		if cur.BlockingOn == nil {
			return cur
		}
		cur = cur.BlockingOn
	}
	panic("sched: blocker chain exceeds 256 links, assumed priority-inheritance cycle")
}

// scanBucket performs one round-robin pass over priority's bucket, starting
// after the last served index, looking for a candidate whose resolved
// ancestor is runnable, not already running on the other core, and fits
// core's affinity. If preferredOnly, only affinity-preferred ancestors
// qualify (spec §4.4 step 3's two-pass "prefer, then fall back" rule).
// Caller must hold s.mu.
func (s *Scheduler) scanBucket(core thread.Core, priority thread.Priority, preferredOnly bool) *thread.Thread {
	bucket := s.buckets[priority]
	n := len(bucket)
	if n == 0 {
		return nil
	}
	start := s.roundRobin[priority]
	other := otherCore(core)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		cand := bucket[idx]
		ancestor := resolveAncestor(cand)
		if ancestor.IsBlocking() || ancestor.IsForDeletion() {
			continue
		}
		if other != thread.CoreNone && ancestor.RunningOn() == other {
			continue
		}
		fits, preferred := affinityFits(ancestor.Affinity, core)
		if !fits {
			continue
		}
		if preferredOnly && !preferred {
			continue
		}
		s.roundRobin[priority] = (idx + 1) % n
		return ancestor
	}
	return nil
}

// GetNextThread implements spec §4.4's get_next_thread(core) operation.
func (s *Scheduler) GetNextThread(core thread.Core) *thread.Thread {
	g := irq.Acquire(&s.mu)
	defer g.Release()

	current := s.current[core]
	floor := thread.Idle
	if current != nil {
		floor = current.EffectivePriority()
	}

	for p := thread.NumPriorities - 1; thread.Priority(p) >= floor; p-- {
		if cand := s.scanBucket(core, thread.Priority(p), true); cand != nil {
			return s.pick(core, cand)
		}
	}
	for p := thread.NumPriorities - 1; thread.Priority(p) >= floor; p-- {
		if cand := s.scanBucket(core, thread.Priority(p), false); cand != nil {
			return s.pick(core, cand)
		}
	}

	if current != nil && !current.IsBlocking() && !current.IsForDeletion() {
		return current
	}
	return s.idle[core]
}

func (s *Scheduler) pick(core thread.Core, t *thread.Thread) *thread.Thread {
	t.SetChosenFor(core)
	return t
}

// CompleteSwitch is called once the incoming thread's context has actually
// been loaded: it clears descheduled_from_core on the outgoing thread and
// chosen_for_core on the incoming one, and records the incoming thread as
// this core's current (spec §4.4 "On context-switch completion").
func (s *Scheduler) CompleteSwitch(core thread.Core, outgoing, incoming *thread.Thread) {
	g := irq.Acquire(&s.mu)
	defer g.Release()
	if outgoing != nil {
		outgoing.SetDescheduledFrom(thread.CoreNone)
	}
	incoming.SetChosenFor(thread.CoreNone)
	incoming.SetRunningOn(core)
	s.current[core] = incoming
}
