// Package kcontainer implements region-tagged generic containers (spec §3
// "Region-tagged containers (strings, vectors, maps)": back standard data
// structures with the region allocator so long-lived state lives in the
// intended physical memory), grounded on the generic-container style of
// catrate/ring.go.
//
// Go's own slice/map backing arrays are not placed at the buddy-allocated
// address directly — there is no way to point the Go runtime's allocator at
// an arbitrary physical address from user code — so each container also
// holds a region.MemRegion reservation sized to its current footprint,
// grown geometrically as the container grows and released on Release. This
// keeps the accounting (and the statistics dump in internal/region)
// accurate to what a real backing-store-swap implementation would reserve,
// even though the Go values themselves live on the Go heap.
package kcontainer

import (
	"unsafe"

	"github.com/jncronin/gkos/internal/region"
)

// Vector is a growable, region-accounted vector of T.
type Vector[T any] struct {
	mgr    *region.Manager
	tag    region.Tag
	label  string
	data   []T
	handle region.MemRegion
}

// NewVector constructs an empty Vector reserving room for capacityHint
// elements in the named region.
func NewVector[T any](mgr *region.Manager, tag region.Tag, label string, capacityHint int) *Vector[T] {
	v := &Vector[T]{mgr: mgr, tag: tag, label: label}
	v.reserve(capacityHint)
	return v
}

func (v *Vector[T]) elemSize() uintptr {
	var zero T
	return unsafe.Sizeof(zero)
}

func (v *Vector[T]) reserve(n int) {
	if n < 1 {
		n = 1
	}
	if v.mgr != nil {
		old := v.handle
		sz := uintptr(n) * v.elemSize()
		if sz == 0 {
			sz = 1
		}
		v.handle = v.mgr.Allocate(sz, v.tag, v.label)
		if old.Valid {
			v.mgr.Deallocate(old)
		}
	}
	grown := make([]T, len(v.data), n)
	copy(grown, v.data)
	v.data = grown
}

// Append adds val to the end, growing the backing reservation geometrically
// if needed.
func (v *Vector[T]) Append(val T) {
	if len(v.data) == cap(v.data) {
		next := cap(v.data) * 2
		if next == 0 {
			next = 1
		}
		v.reserve(next)
	}
	v.data = append(v.data, val)
}

// Get returns the element at index i.
func (v *Vector[T]) Get(i int) T { return v.data[i] }

// Set overwrites the element at index i.
func (v *Vector[T]) Set(i int, val T) { v.data[i] = val }

// Len returns the number of elements currently stored.
func (v *Vector[T]) Len() int { return len(v.data) }

// RemoveAt deletes the element at index i, preserving relative order of the
// rest.
func (v *Vector[T]) RemoveAt(i int) {
	v.data = append(v.data[:i], v.data[i+1:]...)
}

// Release returns the vector's region reservation. The Vector must not be
// used afterward.
func (v *Vector[T]) Release() {
	if v.mgr != nil && v.handle.Valid {
		v.mgr.Deallocate(v.handle)
		v.handle = region.MemRegion{}
	}
}

// Map is a region-accounted map of K to V.
type Map[K comparable, V any] struct {
	mgr    *region.Manager
	tag    region.Tag
	label  string
	data   map[K]V
	handle region.MemRegion
	cap    int
}

// NewMap constructs an empty Map reserving room for capacityHint entries in
// the named region.
func NewMap[K comparable, V any](mgr *region.Manager, tag region.Tag, label string, capacityHint int) *Map[K, V] {
	m := &Map[K, V]{mgr: mgr, tag: tag, label: label, data: make(map[K]V, capacityHint)}
	m.reserve(capacityHint)
	return m
}

func (m *Map[K, V]) entrySize() uintptr {
	var k K
	var v V
	return unsafe.Sizeof(k) + unsafe.Sizeof(v)
}

func (m *Map[K, V]) reserve(n int) {
	if n < 1 {
		n = 1
	}
	if m.mgr != nil {
		old := m.handle
		sz := uintptr(n) * m.entrySize()
		if sz == 0 {
			sz = 1
		}
		m.handle = m.mgr.Allocate(sz, m.tag, m.label)
		if old.Valid {
			m.mgr.Deallocate(old)
		}
	}
	m.cap = n
}

// Set inserts or overwrites the value for key, growing the reservation if
// the map has outgrown its last-reserved capacity.
func (m *Map[K, V]) Set(key K, val V) {
	if _, exists := m.data[key]; !exists && len(m.data)+1 > m.cap {
		m.reserve(m.cap * 2)
	}
	m.data[key] = val
}

// Get returns the value for key and whether it was present.
func (m *Map[K, V]) Get(key K) (V, bool) {
	v, ok := m.data[key]
	return v, ok
}

// Delete removes key from the map.
func (m *Map[K, V]) Delete(key K) { delete(m.data, key) }

// Len returns the number of entries currently stored.
func (m *Map[K, V]) Len() int { return len(m.data) }

// Release returns the map's region reservation. The Map must not be used
// afterward.
func (m *Map[K, V]) Release() {
	if m.mgr != nil && m.handle.Valid {
		m.mgr.Deallocate(m.handle)
		m.handle = region.MemRegion{}
	}
}
