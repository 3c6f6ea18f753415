package kcontainer

import "testing"

import "github.com/jncronin/gkos/internal/region"

func newTestManager() *region.Manager {
	m := region.NewManager()
	m.AddRegion(region.BulkSRAM, 0x20000000, 256, 0x10000, false)
	return m
}

func TestVectorAppendAndGrow(t *testing.T) {
	v := NewVector[int](newTestManager(), region.BulkSRAM, "vec", 1)
	for i := 0; i < 100; i++ {
		v.Append(i)
	}
	if v.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", v.Len())
	}
	for i := 0; i < 100; i++ {
		if v.Get(i) != i {
			t.Fatalf("Get(%d) = %d, want %d", i, v.Get(i), i)
		}
	}
}

func TestVectorRemoveAtPreservesOrder(t *testing.T) {
	v := NewVector[string](newTestManager(), region.BulkSRAM, "vec", 4)
	v.Append("a")
	v.Append("b")
	v.Append("c")
	v.RemoveAt(1)
	if v.Len() != 2 || v.Get(0) != "a" || v.Get(1) != "c" {
		t.Fatalf("unexpected contents after RemoveAt")
	}
}

func TestVectorReleaseIsSafeWithoutManager(t *testing.T) {
	v := NewVector[int](nil, region.BulkSRAM, "vec", 1)
	v.Append(1)
	v.Release() // must not panic when mgr is nil
}

func TestMapSetGetDeleteAndGrowth(t *testing.T) {
	m := NewMap[string, int](newTestManager(), region.BulkSRAM, "map", 1)
	for i := 0; i < 50; i++ {
		m.Set(string(rune('a'+(i%26)))+string(rune(i)), i)
	}
	if m.Len() != 50 {
		t.Fatalf("Len() = %d, want 50", m.Len())
	}
	m.Set("x", 1)
	v, ok := m.Get("x")
	if !ok || v != 1 {
		t.Fatalf("Get(x) = (%d, %v)", v, ok)
	}
	m.Delete("x")
	if _, ok := m.Get("x"); ok {
		t.Fatal("expected key deleted")
	}
}
