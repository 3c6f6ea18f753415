package ksync

import (
	"time"

	"github.com/jncronin/gkos/internal/errno"
	"github.com/jncronin/gkos/internal/irq"
	"github.com/jncronin/gkos/internal/thread"
)

// Mutex is a recursive- or error-checking-capable lock, matching spec §3
// "Mutex: { owner, recursion_depth, is_recursive, is_errorcheck,
// waiters }" and the contract in spec §4.5.
type Mutex struct {
	mu             irq.Spinlock
	owner          *thread.Thread
	recursionDepth int
	IsRecursive    bool
	IsErrorCheck   bool
	waiters        map[*thread.Thread]struct{}
	gate           chan struct{}
	destroyed      bool
}

// NewMutex constructs an unowned Mutex.
func NewMutex(recursive, errorCheck bool) *Mutex {
	return &Mutex{
		IsRecursive:  recursive,
		IsErrorCheck: errorCheck,
		waiters:      make(map[*thread.Thread]struct{}),
		gate:         make(chan struct{}),
	}
}

// TryLock implements spec §4.5's mutex try_lock contract. timeout<=0 means
// wait forever when block is true.
func (m *Mutex) TryLock(caller *thread.Thread, block bool, timeout time.Duration) (bool, error) {
	for {
		g := irq.Acquire(&m.mu)
		if m.destroyed {
			g.Release()
			caller.Blocking.Store(false)
			caller.BlockingOn = nil
			return false, errno.Wrap("pthread_mutex_trylock", errno.EBUSY)
		}
		if m.owner == nil {
			m.owner = caller
			delete(m.waiters, caller)
			g.Release()
			caller.LockedMutexes[m] = struct{}{}
			return true, nil
		}
		if m.owner == caller {
			if m.IsRecursive {
				m.recursionDepth++
				g.Release()
				return true, nil
			}
			if m.IsErrorCheck {
				g.Release()
				return false, errno.Wrap("pthread_mutex_trylock", errno.EDEADLK)
			}
			// neither recursive nor error-checking: intentional deadlock,
			// matching POSIX non-error-checking-mutex self-relock behaviour.
			caller.Blocking.Store(true)
			caller.BlockingOn = nil
			g.Release()
			select {}
		}
		if !block {
			g.Release()
			return false, errno.Wrap("pthread_mutex_trylock", errno.EBUSY)
		}

		m.waiters[caller] = struct{}{}
		caller.Blocking.Store(true)
		caller.BlockingOn = m.owner
		gate := m.gate
		g.Release()

		if timeout <= 0 {
			<-gate
		} else {
			select {
			case <-gate:
			case <-time.After(timeout):
				g2 := irq.Acquire(&m.mu)
				delete(m.waiters, caller)
				g2.Release()
				caller.Blocking.Store(false)
				caller.BlockingOn = nil
				return false, errno.Wrap("pthread_mutex_trylock", errno.EBUSY)
			}
		}
		caller.Blocking.Store(false)
		caller.BlockingOn = nil
		// loop and race the other woken waiters for ownership
	}
}

// Unlock implements spec §4.5's mutex unlock contract: wakes all waiters
// (who race to retry) rather than handing ownership to a chosen one.
func (m *Mutex) Unlock(caller *thread.Thread) (bool, error) {
	g := irq.Acquire(&m.mu)
	if m.owner != caller {
		g.Release()
		return false, errno.Wrap("pthread_mutex_unlock", errno.EPERM)
	}
	if m.IsRecursive && m.recursionDepth > 0 {
		m.recursionDepth--
		g.Release()
		return true, nil
	}
	m.owner = nil
	m.recursionDepth = 0
	oldGate := m.gate
	m.gate = make(chan struct{})
	g.Release()

	delete(caller.LockedMutexes, m)
	close(oldGate)
	return true, nil
}

// TryDelete succeeds iff the mutex is unowned or owned by caller (a nil
// caller, as used by process cleanup, always forces the destroy through),
// and wakes any thread parked in TryLock's wait-for-gate with EBUSY (spec
// §4.10 "destroys every owned synchronization primitive, which wakes any
// stragglers with errors"; Testable Properties scenario 6).
func (m *Mutex) TryDelete(caller *thread.Thread) (bool, error) {
	g := irq.Acquire(&m.mu)
	if caller != nil && m.owner != nil && m.owner != caller {
		g.Release()
		return false, errno.Wrap("pthread_mutex_destroy", errno.EBUSY)
	}
	m.destroyed = true
	m.owner = nil
	m.recursionDepth = 0
	m.waiters = make(map[*thread.Thread]struct{})
	oldGate := m.gate
	m.gate = make(chan struct{})
	g.Release()

	close(oldGate)
	return true, nil
}

// Owner returns the current owner, or nil if unowned, for diagnostics and
// the scheduler's blocker-chain walk.
func (m *Mutex) Owner() *thread.Thread {
	g := irq.Acquire(&m.mu)
	defer g.Release()
	return m.owner
}
