package event

import "testing"

func TestPushPopPreservesOrderAndFields(t *testing.T) {
	q := NewQueue(4)
	if !q.Push(Event{Kind: KeyDown, ScanCode: 42}) {
		t.Fatal("expected push to succeed")
	}
	if !q.Push(Event{Kind: MouseMove, X: 10, Y: 20, Relative: true}) {
		t.Fatal("expected push to succeed")
	}
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}

	first, ok := q.Pop()
	if !ok || first.Kind != KeyDown || first.ScanCode != 42 {
		t.Fatalf("first pop = %+v", first)
	}
	second, ok := q.Pop()
	if !ok || second.Kind != MouseMove || second.X != 10 || !second.Relative {
		t.Fatalf("second pop = %+v", second)
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("expected pop on empty queue to fail")
	}
}

func TestQueueDropsOnFull(t *testing.T) {
	q := NewQueue(2)
	if !q.Push(Event{Kind: RefreshScreen}) {
		t.Fatal("push 1 should succeed")
	}
	if !q.Push(Event{Kind: RefreshScreen}) {
		t.Fatal("push 2 should succeed")
	}
	if q.Push(Event{Kind: RefreshScreen}) {
		t.Fatal("push 3 should be dropped: queue is full")
	}
}
