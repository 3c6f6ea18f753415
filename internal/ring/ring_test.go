package ring

import "testing"

func TestPushPopOrder(t *testing.T) {
	r := NewSPSC[int](4)
	for i := 0; i < 4; i++ {
		if !r.Push(i) {
			t.Fatalf("push %d failed", i)
		}
	}
	if r.Push(4) {
		t.Fatal("expected push to fail when full")
	}
	for i := 0; i < 4; i++ {
		v, ok := r.Pop()
		if !ok || v != i {
			t.Fatalf("pop = %v, %v, want %d, true", v, ok, i)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("expected empty ring")
	}
}

func TestWrapAround(t *testing.T) {
	r := NewSPSC[byte](2)
	for i := 0; i < 10; i++ {
		r.Push(byte(i))
		v, ok := r.Pop()
		if !ok || v != byte(i) {
			t.Fatalf("iteration %d: got %v, %v", i, v, ok)
		}
	}
}

func TestNewSPSCPanicsOnNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewSPSC[int](3)
}
