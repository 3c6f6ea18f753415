package ksync

import (
	"testing"
	"time"

	"github.com/jncronin/gkos/internal/mpu"
	"github.com/jncronin/gkos/internal/region"
	"github.com/jncronin/gkos/internal/thread"
)

type fakeProcess struct{ pid int64 }

func (f fakeProcess) PID() int64 { return f.pid }

func newTestThread(t *testing.T, name string, priority thread.Priority) *thread.Thread {
	t.Helper()
	m := region.NewManager()
	m.AddRegion(region.ExternalDRAM, 0x30000000, 1024, 0x100000, true)
	var bank mpu.Bank
	th, ok := thread.Create(name, 0, 0, fakeProcess{pid: 1}, priority, region.Either, m, region.MemRegion{}, 4096, bank)
	if !ok {
		t.Fatalf("setup: failed to create thread %s", name)
	}
	return th
}

func TestMutexUncontendedLockUnlock(t *testing.T) {
	m := NewMutex(false, false)
	caller := newTestThread(t, "a", thread.Normal)

	ok, err := m.TryLock(caller, false, 0)
	if !ok || err != nil {
		t.Fatalf("TryLock = (%v, %v)", ok, err)
	}
	if m.Owner() != caller {
		t.Fatal("expected Owner() == caller after lock")
	}
	if ok, err := m.Unlock(caller); !ok || err != nil {
		t.Fatalf("Unlock = (%v, %v)", ok, err)
	}
	if m.Owner() != nil {
		t.Fatal("expected Owner() == nil after unlock")
	}
}

func TestMutexNonBlockingTrylockFailsWithEBUSY(t *testing.T) {
	m := NewMutex(false, false)
	a := newTestThread(t, "a", thread.Normal)
	b := newTestThread(t, "b", thread.Normal)

	if ok, _ := m.TryLock(a, false, 0); !ok {
		t.Fatal("setup: a's lock should succeed")
	}
	ok, err := m.TryLock(b, false, 0)
	if ok || err == nil {
		t.Fatalf("expected non-blocking trylock by b to fail while a holds the mutex, got (%v, %v)", ok, err)
	}
}

func TestMutexRecursiveAllowsReentry(t *testing.T) {
	m := NewMutex(true, false)
	a := newTestThread(t, "a", thread.Normal)

	if ok, _ := m.TryLock(a, false, 0); !ok {
		t.Fatal("first lock should succeed")
	}
	if ok, _ := m.TryLock(a, false, 0); !ok {
		t.Fatal("recursive re-lock should succeed")
	}
	if ok, _ := m.Unlock(a); !ok {
		t.Fatal("first unlock (still held once) should succeed")
	}
	if m.Owner() != a {
		t.Fatal("expected still owned after first of two unlocks")
	}
	if ok, _ := m.Unlock(a); !ok {
		t.Fatal("second unlock should succeed")
	}
	if m.Owner() != nil {
		t.Fatal("expected unowned after both unlocks")
	}
}

func TestMutexErrorCheckingRejectsSelfRelock(t *testing.T) {
	m := NewMutex(false, true)
	a := newTestThread(t, "a", thread.Normal)

	if ok, _ := m.TryLock(a, false, 0); !ok {
		t.Fatal("first lock should succeed")
	}
	ok, err := m.TryLock(a, false, 0)
	if ok || err == nil {
		t.Fatal("expected error-checking mutex to reject self re-lock with EDEADLK")
	}
}

func TestMutexBlockingWaiterWakesOnUnlock(t *testing.T) {
	m := NewMutex(false, false)
	a := newTestThread(t, "a", thread.Normal)
	b := newTestThread(t, "b", thread.High)

	if ok, _ := m.TryLock(a, false, 0); !ok {
		t.Fatal("setup: a's lock should succeed")
	}

	done := make(chan bool, 1)
	go func() {
		ok, _ := m.TryLock(b, true, 0)
		done <- ok
	}()

	// give b time to register as a waiter before a unlocks
	time.Sleep(10 * time.Millisecond)
	if ok, _ := m.Unlock(a); !ok {
		t.Fatal("a's unlock should succeed")
	}

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected b's blocking TryLock to eventually succeed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for b to acquire the mutex")
	}
}

func TestRwLockMultipleReadersSingleWriter(t *testing.T) {
	l := NewRwLock()
	r1 := newTestThread(t, "r1", thread.Normal)
	r2 := newTestThread(t, "r2", thread.Normal)
	w := newTestThread(t, "w", thread.Normal)

	if ok, _ := l.RLock(r1, false, 0); !ok {
		t.Fatal("r1 RLock should succeed")
	}
	if ok, _ := l.RLock(r2, false, 0); !ok {
		t.Fatal("r2 RLock should succeed (readers don't exclude readers)")
	}
	if ok, err := l.WLock(w, false, 0); ok || err == nil {
		t.Fatal("expected non-blocking WLock to fail while readers are present")
	}

	l.Unlock(r1)
	l.Unlock(r2)

	if ok, _ := l.WLock(w, false, 0); !ok {
		t.Fatal("expected WLock to succeed once all readers have unlocked")
	}
}

func TestRwLockSelfReadThenWriteIsDeadlock(t *testing.T) {
	l := NewRwLock()
	a := newTestThread(t, "a", thread.Normal)
	l.RLock(a, false, 0)
	if ok, err := l.WLock(a, false, 0); ok || err == nil {
		t.Fatal("expected self-reader attempting WLock to fail with EDEADLK")
	}
}

func TestCountingSemaphorePostWait(t *testing.T) {
	s := NewCountingSemaphore(0, 0)
	caller := newTestThread(t, "a", thread.Normal)

	if s.TryWait() {
		t.Fatal("expected TryWait to fail on a zero-valued semaphore")
	}
	s.Post()
	if !s.Wait(caller, time.Second) {
		t.Fatal("expected Wait to succeed after Post")
	}
}

func TestBinarySemaphoreBoundedAtOne(t *testing.T) {
	s := NewBinarySemaphore(0)
	s.Post()
	s.Post() // should be a no-op: bounded at max=1
	if v := s.GetValue(); v != 1 {
		t.Fatalf("GetValue() = %d, want 1 (bounded)", v)
	}
}

func TestConditionSignalWakesWaiter(t *testing.T) {
	m := NewMutex(false, false)
	c := NewCondition()
	caller := newTestThread(t, "a", thread.Normal)
	m.TryLock(caller, false, 0)

	woken := make(chan bool, 1)
	go func() {
		woken <- c.Wait(m, caller, 0)
	}()

	time.Sleep(10 * time.Millisecond)
	c.Signal(false)

	select {
	case signalled := <-woken:
		if !signalled {
			t.Fatal("expected Wait to report signalled=true")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for condition signal to wake the waiter")
	}
}

func TestSimpleSignalWaitOnceReturnsOnSignal(t *testing.T) {
	s := NewSimpleSignal(0)
	caller := newTestThread(t, "a", thread.Normal)

	got := make(chan uint32, 1)
	go func() {
		v, _ := s.WaitOnce(caller, 0)
		got <- v
	}()

	time.Sleep(10 * time.Millisecond)
	prev := s.Signal(int(OpSet), 7)
	if prev != 0 {
		t.Fatalf("Signal prev = %d, want 0", prev)
	}

	select {
	case v := <-got:
		if v != 0 {
			t.Fatalf("WaitOnce spurious-wake value = %d, want 0 per spec contract", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SimpleSignal wake")
	}
	if s.Value() != 7 {
		t.Fatalf("Value() = %d, want 7", s.Value())
	}
}
