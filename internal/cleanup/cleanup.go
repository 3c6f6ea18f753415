// Package cleanup implements the bounded cleanup queue and its dedicated
// draining goroutine (spec §4.10), grounded on microbatch.Batcher's
// background-goroutine-draining-a-channel shape.
package cleanup

import (
	"github.com/jncronin/gkos/internal/process"
	"github.com/jncronin/gkos/internal/region"
	"github.com/jncronin/gkos/internal/thread"
)

// ItemKind tags which variant a Item carries (spec §4.10 "{ is_thread,
// ptr }").
type ItemKind int

const (
	ThreadItem ItemKind = iota
	ProcessItem
)

// Item is one cleanup-queue entry.
type Item struct {
	Kind    ItemKind
	Thread  *thread.Thread
	Process *process.Process
}

// Primitive is the minimal surface a synchronization primitive exposes to
// the cleanup path: destroying it must wake any straggling waiters with an
// error (spec §4.10 "destroys every owned synchronization primitive (which
// wakes any stragglers with errors)").
type Primitive interface {
	TryDelete(caller *thread.Thread) (bool, error)
}

// Closer is the minimal surface a file exposes to the cleanup path.
type Closer interface {
	CloseForced()
}

// Queue is the bounded fixed-size cleanup queue with its drainer (spec
// §4.10).
type Queue struct {
	ch        chan Item
	done      chan struct{}
	regionMgr *region.Manager
	procList  *process.List
	onThread  func(*thread.Thread)
}

// New constructs a Queue with the given capacity and starts its drainer
// goroutine. onThreadReaped, if non-nil, is invoked after a thread's stack
// has been freed so the scheduler can drop it from its buckets.
func New(capacity int, regionMgr *region.Manager, procList *process.List, onThreadReaped func(*thread.Thread)) *Queue {
	q := &Queue{
		ch:        make(chan Item, capacity),
		done:      make(chan struct{}),
		regionMgr: regionMgr,
		procList:  procList,
		onThread:  onThreadReaped,
	}
	go q.drain()
	return q
}

// Push enqueues item, returning false if the queue is already at capacity
// (spec §4.10 "bounded fixed-size queue").
func (q *Queue) Push(item Item) bool {
	select {
	case q.ch <- item:
		return true
	default:
		return false
	}
}

// Stop signals the drainer goroutine to exit. The drainer does not empty the
// queue first: items still queued when Stop is called may be left
// unprocessed.
func (q *Queue) Stop() { close(q.done) }

func (q *Queue) drain() {
	for {
		select {
		case item := <-q.ch:
			q.process(item)
		case <-q.done:
			return
		}
	}
}

func (q *Queue) process(item Item) {
	switch item.Kind {
	case ThreadItem:
		q.reapThread(item.Thread)
	case ProcessItem:
		q.reapProcess(item.Process)
	}
}

// reapThread implements spec §4.10's per-thread cleanup: "for a terminated
// thread it frees the stack, removes from the process's thread list, and
// destroys the record".
func (q *Queue) reapThread(t *thread.Thread) {
	if t == nil {
		return
	}
	if q.regionMgr != nil {
		q.regionMgr.Deallocate(t.Stack)
	}
	if proc, ok := t.Process.(*process.Process); ok && proc != nil {
		proc.Lock()
		for i, cand := range proc.Threads {
			if cand == process.ThreadRef(t) {
				proc.Threads = append(proc.Threads[:i], proc.Threads[i+1:]...)
				break
			}
		}
		proc.Unlock()
	}
	if q.onThread != nil {
		q.onThread(t)
	}
}

// reapProcess implements spec §4.10's per-process cleanup: "it closes
// every open file, destroys every owned synchronization primitive ...,
// frees heap and code_data, and removes from the process list".
func (q *Queue) reapProcess(p *process.Process) {
	if p == nil {
		return
	}
	p.Lock()
	for i := range p.OpenFiles {
		if c, ok := p.OpenFiles[i].(Closer); ok && c != nil {
			c.CloseForced()
		}
		p.OpenFiles[i] = nil
	}
	for m := range p.OwnedMutexes {
		if prim, ok := m.(Primitive); ok {
			prim.TryDelete(nil)
		}
	}
	for m := range p.OwnedRwLocks {
		if prim, ok := m.(Primitive); ok {
			prim.TryDelete(nil)
		}
	}
	for m := range p.OwnedConds {
		if prim, ok := m.(Primitive); ok {
			prim.TryDelete(nil)
		}
		delete(p.OwnedConds, m)
	}
	for m := range p.OwnedSems {
		if prim, ok := m.(Primitive); ok {
			prim.TryDelete(nil)
		}
		delete(p.OwnedSems, m)
	}
	heap, codeData := p.Heap, p.CodeData
	p.Unlock()

	if q.regionMgr != nil {
		q.regionMgr.Deallocate(heap)
		q.regionMgr.Deallocate(codeData)
	}
	if q.procList != nil {
		q.procList.DeleteProcess(p.ID, p.ReturnCode)
	}
}
