// Package buddy implements a fixed-level power-of-two buddy allocator over
// one contiguous physical address range (spec §3 "Buddy allocator
// (parametrised)", §4.2), grounded on Firmware-v3/inc/buddy.h's bitmap-per-
// level design.
package buddy

import (
	"math/bits"

	"github.com/jncronin/gkos/internal/irq"
)

// Handle is a buddy-allocated extent. The zero value is invalid.
type Handle struct {
	Base   uintptr
	Length uintptr
	Valid  bool
}

// Allocator is one buddy instance over [BaseAddress, BaseAddress+TotalLength).
// MinBlock and TotalLength must be powers of two; BaseAddress must be
// aligned to MinBlock; TotalLength must be >= MinBlock (spec §3 invariants).
// Every operation runs under the allocator's own spinlock (spec §4.2).
type Allocator struct {
	mu          irq.Spinlock
	baseAddress uintptr
	minBlock    uintptr
	totalLength uintptr
	levels      int        // number of levels, level 0 = minBlock
	free        []bitset   // free[k] has one bit per block at level k
}

// bitset is a simple growable bit array; blocks-per-level shrinks by half
// each level up so this is never large.
type bitset []uint64

func newBitset(nbits int) bitset {
	return make(bitset, (nbits+63)/64)
}

func (b bitset) get(i int) bool {
	return b[i/64]&(1<<(uint(i)%64)) != 0
}

func (b bitset) set(i int, v bool) {
	if v {
		b[i/64] |= 1 << (uint(i) % 64)
	} else {
		b[i/64] &^= 1 << (uint(i) % 64)
	}
}

// New constructs an Allocator. Panics if the size constraints in spec §3
// aren't met, since these are compile-time constants in the original
// firmware and a violation here is a programming error, not a runtime
// condition to recover from.
func New(baseAddress, minBlock, totalLength uintptr) *Allocator {
	if minBlock == 0 || minBlock&(minBlock-1) != 0 {
		panic("buddy: minBlock must be a power of 2")
	}
	if totalLength < minBlock {
		panic("buddy: totalLength must be >= minBlock")
	}
	if totalLength&(totalLength-1) != 0 {
		panic("buddy: totalLength must be a power of 2")
	}
	if baseAddress%minBlock != 0 {
		panic("buddy: baseAddress must be aligned to minBlock")
	}

	levels := bits.TrailingZeros(uint(totalLength/minBlock)) + 1
	a := &Allocator{
		baseAddress: baseAddress,
		minBlock:    minBlock,
		totalLength: totalLength,
		levels:      levels,
		free:        make([]bitset, levels),
	}
	for k := 0; k < levels; k++ {
		n := a.blocksAtLevel(k)
		a.free[k] = newBitset(n)
	}
	// the whole region starts as one free block at the top level
	a.free[levels-1].set(0, true)
	return a
}

func (a *Allocator) blockSize(level int) uintptr {
	return a.minBlock << uint(level)
}

func (a *Allocator) blocksAtLevel(level int) int {
	return int(a.totalLength / a.blockSize(level))
}

func nextPow2(n uintptr) uintptr {
	if n <= 1 {
		return 1
	}
	return uintptr(1) << uint(bits.Len(uint(n-1)))
}

// Acquire allocates requestedBytes rounded up to a power of two >= MinBlock.
// Returns an invalid Handle (never panics) if no fit exists, matching spec
// §4.2 failure semantics. Acquire(0) also returns invalid.
func (a *Allocator) Acquire(requestedBytes uintptr) Handle {
	if requestedBytes == 0 {
		return Handle{}
	}
	size := nextPow2(requestedBytes)
	if size < a.minBlock {
		size = a.minBlock
	}
	level := bits.TrailingZeros(uint(size / a.minBlock))
	if level >= a.levels {
		return Handle{}
	}

	g := irq.Acquire(&a.mu)
	defer g.Release()

	idx, ok := a.allocAtLevel(level)
	if !ok {
		return Handle{}
	}
	return Handle{
		Base:   a.baseAddress + uintptr(idx)*a.blockSize(level),
		Length: a.blockSize(level),
		Valid:  true,
	}
}

// allocAtLevel scans level's bitmap left-to-right for a free block; if none
// is found it recurses upward to split a larger block, setting the
// complementary buddy bit at the current level (spec §4.2 step 2).
func (a *Allocator) allocAtLevel(level int) (int, bool) {
	if level >= a.levels {
		return 0, false
	}
	n := a.blocksAtLevel(level)
	for i := 0; i < n; i++ {
		if a.free[level].get(i) {
			a.free[level].set(i, false)
			return i, true
		}
	}
	// nothing free at this level; split a block from the level above
	parentIdx, ok := a.allocAtLevel(level + 1)
	if !ok {
		return 0, false
	}
	// splitting parentIdx at level+1 yields two blocks at level:
	// 2*parentIdx (returned) and 2*parentIdx+1 (marked free, the buddy)
	a.free[level].set(2*parentIdx+1, true)
	return 2 * parentIdx, true
}

// Release returns h to the allocator. If h's length isn't a power of two,
// or its base isn't aligned to a power-of-two block boundary, it is split
// into the largest aligned power-of-two sub-blocks that fit and any
// remainder is discarded — the observed firmware behaviour (spec §4.2,
// §9 Open Questions #1), preserved rather than "fixed" with a sub-minimum
// free list. Release of a zero-length handle (e.g. the result of a failed
// Acquire) is a no-op; note that Valid is deliberately NOT checked here —
// a caller may pass a raw, heuristically-sized reservation with Valid=false
// (spec §4.2's "safe to return a heuristically-sized reservation during
// static-data init"), and it is still released.
func (a *Allocator) Release(h Handle) {
	if h.Length == 0 {
		return
	}
	if h.Base < a.baseAddress || h.Base >= a.baseAddress+a.totalLength {
		return
	}

	g := irq.Acquire(&a.mu)
	defer g.Release()

	offset := h.Base - a.baseAddress
	remaining := h.Length
	// clamp to the region's extent
	if offset+remaining > a.totalLength {
		remaining = a.totalLength - offset
	}

	// An offset not aligned to minBlock cannot host any block at all; skip
	// forward to the next minBlock boundary and discard the unalignable gap
	// (the same "leftovers discarded" policy applied to the trailing
	// remainder below).
	if r := offset % a.minBlock; r != 0 {
		gap := a.minBlock - r
		if gap >= remaining {
			return
		}
		offset += gap
		remaining -= gap
	}

	for remaining >= a.minBlock {
		// largest power-of-two block size that both fits in `remaining`
		// and is aligned to `offset`, bounded by the allocator's top level
		maxSize := a.blockSize(a.levels - 1)
		size := maxSize
		for size > a.minBlock && (size > remaining || offset%size != 0) {
			size >>= 1
		}
		if size > remaining || offset%size != 0 {
			break // cannot place even a minBlock-aligned piece: discard the rest
		}
		level := bits.TrailingZeros(uint(size / a.minBlock))
		idx := int(offset / size)
		a.freeAtLevel(level, idx)
		offset += size
		remaining -= size
	}
	// any bytes left over (< minBlock, or couldn't be aligned) are discarded
}

// freeAtLevel flips the free bit for idx at level; if the buddy bit at the
// same level is already set, both are cleared and the merge recurses
// upward (spec §4.2 step 2, "freeing a block whose buddy ... is also free
// migrates the pair up one level").
func (a *Allocator) freeAtLevel(level, idx int) {
	if level >= a.levels-1 {
		a.free[level].set(idx, true)
		return
	}
	buddy := idx ^ 1
	if a.free[level].get(buddy) {
		a.free[level].set(buddy, false)
		a.freeAtLevel(level+1, idx/2)
		return
	}
	a.free[level].set(idx, true)
}

// MinBlock, TotalLength, BaseAddress expose the allocator's fixed
// parameters for callers that need to validate a handle belongs to it.
func (a *Allocator) MinBlock() uintptr    { return a.minBlock }
func (a *Allocator) TotalLength() uintptr { return a.totalLength }
func (a *Allocator) BaseAddress() uintptr { return a.baseAddress }
