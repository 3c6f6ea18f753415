package buddy

import "testing"

func TestScenarioBuddyBasic(t *testing.T) {
	a := New(0x24000000, 256, 0x8000)

	h := a.Acquire(300)
	if !h.Valid || h.Base != 0x24000000 || h.Length != 512 {
		t.Fatalf("Acquire(300) = %+v, want {base=0x24000000, length=512}", h)
	}

	a.Release(h)

	h2 := a.Acquire(1024)
	if !h2.Valid || h2.Base != 0x24000000 || h2.Length != 1024 {
		t.Fatalf("Acquire(1024) = %+v, want {base=0x24000000, length=1024}", h2)
	}
}

func TestScenarioBuddyReleaseUnalignedExtent(t *testing.T) {
	a := New(0x20000000, 256, 0x20000)

	a.Release(Handle{Base: 0x200001a0, Length: 0x800, Valid: false})

	got := a.Acquire(256)
	if !got.Valid {
		t.Fatal("expected a subsequent acquire(256) to succeed")
	}
	lo := uintptr(0x20000200)
	hi := uintptr(0x200009a0)
	if got.Base < lo || got.Base >= hi {
		t.Fatalf("Acquire(256).Base = 0x%x, want in [0x%x, 0x%x)", got.Base, lo, hi)
	}
}

func TestAcquireZeroIsInvalid(t *testing.T) {
	a := New(0, 256, 1024)
	h := a.Acquire(0)
	if h.Valid {
		t.Fatal("expected invalid handle for Acquire(0)")
	}
}

func TestReleaseInvalidHandleIsNoop(t *testing.T) {
	a := New(0, 256, 1024)
	a.Release(Handle{}) // must not panic
}

func TestOneBlockAllocatorAdmitsExactlyOne(t *testing.T) {
	a := New(0, 256, 256)
	h1 := a.Acquire(1)
	if !h1.Valid {
		t.Fatal("expected first acquire to succeed")
	}
	h2 := a.Acquire(1)
	if h2.Valid {
		t.Fatal("expected second acquire to fail: allocator is exhausted")
	}
	a.Release(h1)
	h3 := a.Acquire(1)
	if !h3.Valid {
		t.Fatal("expected acquire to succeed again after release")
	}
}

func TestBuddyMergeRestoresTopLevel(t *testing.T) {
	a := New(0, 64, 1024)
	h := a.Acquire(64)
	if !h.Valid {
		t.Fatal("acquire failed")
	}
	a.Release(h)
	// after releasing the only outstanding block, the whole region should
	// be available as a single contiguous top-level block again
	full := a.Acquire(1024)
	if !full.Valid || full.Length != 1024 {
		t.Fatalf("Acquire(1024) after merge = %+v, want full region", full)
	}
}

func TestExhaustionReturnsInvalidNeverPanics(t *testing.T) {
	a := New(0, 128, 512)
	var handles []Handle
	for i := 0; i < 4; i++ {
		h := a.Acquire(128)
		if !h.Valid {
			t.Fatalf("acquire %d unexpectedly failed", i)
		}
		handles = append(handles, h)
	}
	if a.Acquire(128).Valid {
		t.Fatal("expected exhaustion")
	}
	for _, h := range handles {
		a.Release(h)
	}
}
