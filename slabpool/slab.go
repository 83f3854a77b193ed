// Package slabpool implements the slab allocator of spec §4.C: for a
// pool with node size N, a slab holds floor((PageSize - header -
// bitmap_bytes) / N) fixed-size nodes tracked by an allocated/start
// bitmap, plus the cursors first_unused/used_begin/used_end describing
// the in-use run. Allocations spanning more than one slab's capacity use
// a single-array slab instead.
//
// Grounded on the teacher's mem.Physmem_t free-list machinery
// (mem/mem.go): _phys_new splices the head off a free list and
// decrements a count, panicking if it goes negative; _phys_put does the
// reverse. Slab.AllocateSingle/FreeElement reuse that exact
// "splice-and-assert" shape, just over a bitmap run instead of a linked
// free list, because spec requires contiguous-run semantics that a
// simple free list can't express.
package slabpool

import (
	"guard/pagemgr"
)

const headerReserve = 64 // bytes reserved for the slab header fields themselves

// Slab is one page-aligned region of pool-owned storage.
type Slab struct {
	mapping *pagemgr.Mapping
	base    uintptr
	data    []byte

	nodeSize     int
	nodesPerSlab int // 0 when singleArray

	allocated []uint64 // bit set <=> node in use
	start     []uint64 // bit set <=> node begins an allocation

	firstUnused int // lowest index that has never been touched by an allocation
	usedBegin   int // lowest index currently considered "in the used range"
	usedEnd     int // one past the highest index ever allocated

	singleArray bool
	pageCount   int // for singleArray slabs: page count, stored where spec says
	// ("the slab stores the page count in the first_unused field") --
	// kept as its own field here for clarity, mirrored into firstUnused
	// too so code that reads firstUnused on a singleArray slab sees the
	// same value spec.md describes.
}

func bitIdx(i int) (word, bit int) { return i / 64, i % 64 }

func getBit(bits []uint64, i int) bool {
	w, b := bitIdx(i)
	return bits[w]&(1<<uint(b)) != 0
}

func setBit(bits []uint64, i int, v bool) {
	w, b := bitIdx(i)
	if v {
		bits[w] |= 1 << uint(b)
	} else {
		bits[w] &^= 1 << uint(b)
	}
}

// NewSlab allocates one page-aligned slab sized for nodeSize-byte nodes.
func NewSlab(nodeSize int) *Slab {
	if nodeSize < 1 {
		nodeSize = 1
	}
	m := pagemgr.AllocPage()
	base, size := m.Canon()

	// Solve floor((size - header - bitmap_bytes) / nodeSize) for the
	// node count, accounting for two bitmaps (allocated + start) of
	// ceil(n/64) words (8 bytes) each.
	n := (size - headerReserve) / nodeSize
	for n > 0 {
		bitmapBytes := 2 * (((n + 63) / 64) * 8)
		if headerReserve+bitmapBytes+n*nodeSize <= size {
			break
		}
		n--
	}
	words := (n + 63) / 64
	if words == 0 {
		words = 1
	}

	return &Slab{
		mapping:      m,
		base:         base,
		data:         nil,
		nodeSize:     nodeSize,
		nodesPerSlab: n,
		allocated:    make([]uint64, words),
		start:        make([]uint64, words),
	}
}

// NewSingleArray reserves ceil(n*nodeSize / PageSize) contiguous pages
// and marks the slab as a single-array slab serving exactly one
// allocation of n nodes, per spec §4.C's create_single_array.
func NewSingleArray(nodeSize, n int) *Slab {
	total := n * nodeSize
	pages := (total + pagemgr.PageSize - 1) / pagemgr.PageSize
	if pages < 1 {
		pages = 1
	}
	m := pagemgr.AllocNPages(pages)
	base, _ := m.Canon()
	return &Slab{
		mapping:     m,
		base:        base,
		nodeSize:    nodeSize,
		singleArray: true,
		pageCount:   pages,
		firstUnused: pages,
		usedEnd:     n,
	}
}

// NodesPerSlab returns the slab's small-node capacity (0 for single-array slabs).
func (s *Slab) NodesPerSlab() int { return s.nodesPerSlab }

// IsSingleArray reports whether this slab serves one large allocation.
func (s *Slab) IsSingleArray() bool { return s.singleArray }

// Base returns the slab's canonical base address.
func (s *Slab) Base() uintptr { return s.base }

// NodeAddr returns the address of node i within the slab.
func (s *Slab) NodeAddr(i int) uintptr {
	return s.base + uintptr(i*s.nodeSize)
}

// AllocateSingle returns the first free node index, or -1 if the slab is
// full. It scans the allocated bitmap from index 0 (slabs are small, at
// most a few hundred nodes); firstUnused is updated but not used to
// shorten the scan.
func (s *Slab) AllocateSingle() int {
	if s.singleArray {
		return -1
	}
	for i := 0; i < s.nodesPerSlab; i++ {
		if !getBit(s.allocated, i) {
			setBit(s.allocated, i, true)
			setBit(s.start, i, true)
			if i+1 > s.usedEnd {
				s.usedEnd = i + 1
			}
			if i+1 > s.firstUnused {
				s.firstUnused = i + 1
			}
			return i
		}
	}
	return -1
}

// AllocateMultiple finds k contiguous free nodes, preferring extension
// past usedEnd before scanning the body of the slab for a hole, per
// spec §4.C.
func (s *Slab) AllocateMultiple(k int) int {
	if s.singleArray || k <= 0 {
		return -1
	}
	// Prefer extending past usedEnd.
	if s.usedEnd+k <= s.nodesPerSlab {
		start := s.usedEnd
		ok := true
		for i := start; i < start+k; i++ {
			if getBit(s.allocated, i) {
				ok = false
				break
			}
		}
		if ok {
			s.markRun(start, k)
			return start
		}
	}
	// Fall back to scanning for a hole.
	run := 0
	for i := 0; i < s.nodesPerSlab; i++ {
		if getBit(s.allocated, i) {
			run = 0
			continue
		}
		run++
		if run == k {
			start := i - k + 1
			s.markRun(start, k)
			return start
		}
	}
	return -1
}

func (s *Slab) markRun(start, k int) {
	for i := start; i < start+k; i++ {
		setBit(s.allocated, i, true)
	}
	setBit(s.start, start, true)
	if start+k > s.usedEnd {
		s.usedEnd = start + k
	}
	if start+k > s.firstUnused {
		s.firstUnused = start + k
	}
}

// FreeElement frees the run starting at i, which must be a
// start-of-allocation node, by clearing all contiguous allocated bits
// until the next run (another start bit) or usedEnd.
func (s *Slab) FreeElement(i int) {
	if s.singleArray {
		return
	}
	if !getBit(s.start, i) {
		panic("slabpool: free of non-start-of-allocation node")
	}
	setBit(s.start, i, false)
	for j := i; j < s.usedEnd; j++ {
		if j != i && getBit(s.start, j) {
			break
		}
		setBit(s.allocated, j, false)
	}
}

// Full reports whether the slab has no free small nodes at all (used as
// the "completely used" vs "partially used" slab-list split from spec §3).
func (s *Slab) Full() bool {
	if s.singleArray {
		return true
	}
	for i := 0; i < s.nodesPerSlab; i++ {
		if !getBit(s.allocated, i) {
			return false
		}
	}
	return true
}

// Destroy releases the slab's backing pages.
func (s *Slab) Destroy() {
	s.mapping.FreePage()
}

// Mapping exposes the slab's underlying page mapping, for callers (pool)
// that need to remap/protect it for dangling-pointer detection.
func (s *Slab) Mapping() *pagemgr.Mapping {
	return s.mapping
}

// Remap creates a shadow mapping of the slab's whole page mapping and
// returns the shadow pointer (see pagemgr.Mapping.RemapObject; length is
// not used).
func (s *Slab) Remap(length int) uintptr {
	return s.mapping.RemapObject(length)
}

// Protect marks the slab's shadow mapping inaccessible.
func (s *Slab) Protect() { s.mapping.ProtectShadow() }

// Unprotect restores access to the slab's shadow mapping.
func (s *Slab) Unprotect() { s.mapping.UnprotectShadow() }
