package irq

import "runtime"

// AcquireAll acquires every lock in locks atomically relative to any other
// AcquireAll call: it greedily try-locks each in order, and on failure
// releases everything it holds, yields, and retries from the start — the
// multi-lock guard combinator from spec §4.1.
//
// Locks are always passed in a consistent order by the caller (spec §5), so
// two AcquireAll calls racing over an overlapping lock set cannot deadlock:
// at least one of them will fail its try-lock on the first lock the other
// already holds, back off, and retry.
func AcquireAll(locks ...*Spinlock) []*Guard {
	for {
		held := make([]*Guard, 0, len(locks))
		ok := true
		for _, l := range locks {
			if l.TryLock() {
				held = append(held, &Guard{l: l})
				continue
			}
			ok = false
			break
		}
		if ok {
			return held
		}
		for _, g := range held {
			g.Release()
		}
		runtime.Gosched()
	}
}

// ReleaseAll releases every guard in guards, in reverse acquisition order.
func ReleaseAll(guards []*Guard) {
	for i := len(guards) - 1; i >= 0; i-- {
		guards[i].Release()
	}
}
