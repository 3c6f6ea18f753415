package ksync

import (
	"time"

	"github.com/jncronin/gkos/internal/irq"
	"github.com/jncronin/gkos/internal/thread"
)

type condWaiter struct {
	ch        chan struct{}
	signalled *bool
}

// Condition implements spec §3 "Condition: map Thread -> { timeout,
// *signalled_flag }" and §4.5's contract.
type Condition struct {
	mu      irq.Spinlock
	waiters map[*thread.Thread]*condWaiter
}

// NewCondition constructs an empty Condition.
func NewCondition() *Condition {
	return &Condition{waiters: make(map[*thread.Thread]*condWaiter)}
}

// Wait unlocks m, blocks until Signal wakes caller or timeout elapses
// (timeout<=0 means wait forever), and returns whether it was woken by a
// real Signal (true) versus a timeout (false). Per spec §4.5, Wait itself
// does not relock m — "the mutex is unlocked before the wait and relocked
// by the caller after wake-up" — so the caller (the pthread_cond_timedwait
// syscall glue) must call m.TryLock again after Wait returns.
func (c *Condition) Wait(m *Mutex, caller *thread.Thread, timeout time.Duration) bool {
	signalled := new(bool)
	ch := make(chan struct{})

	g := irq.Acquire(&c.mu)
	c.waiters[caller] = &condWaiter{ch: ch, signalled: signalled}
	g.Release()

	caller.Blocking.Store(true)
	m.Unlock(caller)

	if timeout <= 0 {
		<-ch
	} else {
		select {
		case <-ch:
		case <-time.After(timeout):
			g2 := irq.Acquire(&c.mu)
			delete(c.waiters, caller)
			g2.Release()
		}
	}
	caller.Blocking.Store(false)
	return *signalled
}

// Signal wakes one (all=false) or every (all=true) non-timed-out waiter,
// setting each one's signalled flag true (spec §4.5 "Signal(all?)").
func (c *Condition) Signal(all bool) {
	g := irq.Acquire(&c.mu)
	var woke []*condWaiter
	for t, w := range c.waiters {
		woke = append(woke, w)
		delete(c.waiters, t)
		if !all {
			break
		}
	}
	g.Release()

	for _, w := range woke {
		*w.signalled = true
		close(w.ch)
	}
}

// TryDelete wakes every pending waiter without setting its signalled flag,
// so Wait returns false (as on a timeout) rather than hanging forever when
// the condition is destroyed out from under it (spec §4.10).
func (c *Condition) TryDelete(caller *thread.Thread) (bool, error) {
	g := irq.Acquire(&c.mu)
	var woke []*condWaiter
	for t, w := range c.waiters {
		woke = append(woke, w)
		delete(c.waiters, t)
	}
	g.Release()

	for _, w := range woke {
		close(w.ch)
	}
	return true, nil
}
