package ksync

import (
	"time"

	"github.com/jncronin/gkos/internal/errno"
	"github.com/jncronin/gkos/internal/irq"
	"github.com/jncronin/gkos/internal/thread"
)

// RwLock is a writer-preferred reader/writer lock (spec §3 "RwLock: {
// writer, readers, waiters }", §4.5).
type RwLock struct {
	mu        irq.Spinlock
	writer    *thread.Thread
	readers   map[*thread.Thread]struct{}
	waiters   map[*thread.Thread]struct{}
	gate      chan struct{}
	destroyed bool
}

// NewRwLock constructs an unlocked RwLock.
func NewRwLock() *RwLock {
	return &RwLock{
		readers: make(map[*thread.Thread]struct{}),
		waiters: make(map[*thread.Thread]struct{}),
		gate:    make(chan struct{}),
	}
}

// RLock acquires the lock for reading (spec §4.5 "writer-preferred check
// order: reject if a writer holds it (self ⇒ EDEADLK, other ⇒ block)").
func (l *RwLock) RLock(caller *thread.Thread, block bool, timeout time.Duration) (bool, error) {
	for {
		g := irq.Acquire(&l.mu)
		if l.destroyed {
			g.Release()
			return false, errno.Wrap("pthread_rwlock_rdlock", errno.EBUSY)
		}
		if l.writer == caller {
			g.Release()
			return false, errno.Wrap("pthread_rwlock_rdlock", errno.EDEADLK)
		}
		if l.writer == nil {
			l.readers[caller] = struct{}{}
			delete(l.waiters, caller)
			g.Release()
			caller.LockedRwLocks[l] = struct{}{}
			return true, nil
		}
		if !block {
			g.Release()
			return false, errno.Wrap("pthread_rwlock_rdlock", errno.EBUSY)
		}
		if timedOut := l.blockOn(caller, timeout); timedOut {
			return false, errno.Wrap("pthread_rwlock_rdlock", errno.EBUSY)
		}
	}
}

// WLock acquires the lock for writing (spec §4.5 "for a write attempt, fail
// if any reader exists (self-reader ⇒ EDEADLK)").
func (l *RwLock) WLock(caller *thread.Thread, block bool, timeout time.Duration) (bool, error) {
	for {
		g := irq.Acquire(&l.mu)
		if l.destroyed {
			g.Release()
			return false, errno.Wrap("pthread_rwlock_wrlock", errno.EBUSY)
		}
		if _, self := l.readers[caller]; self {
			g.Release()
			return false, errno.Wrap("pthread_rwlock_wrlock", errno.EDEADLK)
		}
		if l.writer == caller {
			g.Release()
			return false, errno.Wrap("pthread_rwlock_wrlock", errno.EDEADLK)
		}
		if l.writer == nil && len(l.readers) == 0 {
			l.writer = caller
			delete(l.waiters, caller)
			g.Release()
			caller.LockedRwLocks[l] = struct{}{}
			return true, nil
		}
		if !block {
			g.Release()
			return false, errno.Wrap("pthread_rwlock_wrlock", errno.EBUSY)
		}
		if timedOut := l.blockOn(caller, timeout); timedOut {
			return false, errno.Wrap("pthread_rwlock_wrlock", errno.EBUSY)
		}
	}
}

// blockOn registers caller as a waiter and blocks until woken or timeout;
// mu must not be held by the caller when this is invoked.
func (l *RwLock) blockOn(caller *thread.Thread, timeout time.Duration) (timedOut bool) {
	g := irq.Acquire(&l.mu)
	l.waiters[caller] = struct{}{}
	caller.Blocking.Store(true)
	if l.writer != nil {
		caller.BlockingOn = l.writer
	}
	gate := l.gate
	g.Release()

	if timeout <= 0 {
		<-gate
	} else {
		select {
		case <-gate:
		case <-time.After(timeout):
			g2 := irq.Acquire(&l.mu)
			delete(l.waiters, caller)
			g2.Release()
			caller.Blocking.Store(false)
			caller.BlockingOn = nil
			return true
		}
	}
	caller.Blocking.Store(false)
	caller.BlockingOn = nil
	return false
}

// Unlock releases caller's hold on the lock, distinguishing a writer-unlock
// (wakes all waiters) from a reader-unlock (wakes waiters only once readers
// becomes empty), per spec §4.5.
func (l *RwLock) Unlock(caller *thread.Thread) (bool, error) {
	g := irq.Acquire(&l.mu)
	switch {
	case l.writer == caller:
		l.writer = nil
		oldGate := l.gate
		l.gate = make(chan struct{})
		g.Release()
		delete(caller.LockedRwLocks, l)
		close(oldGate)
		return true, nil
	default:
		if _, ok := l.readers[caller]; !ok {
			g.Release()
			return false, errno.Wrap("pthread_rwlock_unlock", errno.EPERM)
		}
		delete(caller.LockedRwLocks, l)
		delete(l.readers, caller)
		empty := len(l.readers) == 0
		var oldGate chan struct{}
		if empty {
			oldGate = l.gate
			l.gate = make(chan struct{})
		}
		g.Release()
		if empty {
			close(oldGate)
		}
		return true, nil
	}
}

// TryDelete succeeds iff the lock is unheld or held only by caller (a nil
// caller, as used by process cleanup, always forces the destroy through),
// and wakes any reader or writer parked in blockOn with EBUSY (spec §4.10
// "destroys every owned synchronization primitive, which wakes any
// stragglers with errors").
func (l *RwLock) TryDelete(caller *thread.Thread) (bool, error) {
	g := irq.Acquire(&l.mu)
	if caller != nil {
		if l.writer != nil && l.writer != caller {
			g.Release()
			return false, errno.Wrap("pthread_rwlock_destroy", errno.EBUSY)
		}
		if _, self := l.readers[caller]; !self && len(l.readers) > 0 {
			g.Release()
			return false, errno.Wrap("pthread_rwlock_destroy", errno.EBUSY)
		}
	}
	l.destroyed = true
	l.writer = nil
	l.readers = make(map[*thread.Thread]struct{})
	l.waiters = make(map[*thread.Thread]struct{})
	oldGate := l.gate
	l.gate = make(chan struct{})
	g.Release()

	close(oldGate)
	return true, nil
}
