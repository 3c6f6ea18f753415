package region

import "testing"

func newTestManager() *Manager {
	m := NewManager()
	m.AddRegion(FastSRAM, 0x10000000, 256, 0x4000, true)
	m.AddRegion(ExternalDRAM, 0x30000000, 1024, 0x100000, true)
	m.AddRegion(TightlyCoupledData, 0x20000000, 256, 0x2000, false)
	return m
}

func TestAllocateRoutesByTag(t *testing.T) {
	m := newTestManager()
	mr := m.Allocate(512, ExternalDRAM, "heap")
	if !mr.Valid || mr.Tag != ExternalDRAM {
		t.Fatalf("Allocate returned %+v", mr)
	}
	if mr.Base < 0x30000000 || mr.Base >= 0x30100000 {
		t.Fatalf("base 0x%x outside ExternalDRAM range", mr.Base)
	}
}

func TestRoundTripPreservesTag(t *testing.T) {
	m := newTestManager()
	mr := m.Allocate(256, FastSRAM, "scratch")
	m.Deallocate(mr)
	mr2 := m.Allocate(256, FastSRAM, "scratch2")
	if mr2.Tag != FastSRAM {
		t.Fatalf("expected tag preserved across release, got %v", mr2.Tag)
	}
}

func TestAllocateForStackPrefersLocalRegion(t *testing.T) {
	m := newTestManager()
	mr := m.AllocateForStack(256, Either, "stack")
	if !mr.Valid || mr.Tag != FastSRAM {
		t.Fatalf("expected Either affinity to prefer FastSRAM, got %+v", mr)
	}

	mrB := m.AllocateForStack(256, CoreBOnly, "stack-b")
	if !mrB.Valid || mrB.Tag != TightlyCoupledData {
		t.Fatalf("expected CoreBOnly affinity to prefer TightlyCoupledData, got %+v", mrB)
	}
}

func TestAllocateUnknownTagFails(t *testing.T) {
	m := NewManager()
	if mr := m.Allocate(1, BulkSRAM, ""); mr.Valid {
		t.Fatal("expected allocate against unregistered tag to fail")
	}
}

func TestStatsTracksLiveExtents(t *testing.T) {
	m := newTestManager()
	m.EnableStats()
	mr := m.Allocate(256, FastSRAM, "widget")
	stats := m.Stats()
	if len(stats) != 1 || stats[0].Label != "widget" {
		t.Fatalf("Stats() = %+v", stats)
	}
	m.Deallocate(mr)
	if len(m.Stats()) != 0 {
		t.Fatal("expected stats entry to be cleared on deallocate")
	}
}
