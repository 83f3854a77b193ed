// Package oob implements the out-of-bounds rewrite table of spec §4.D: a
// reserved virtual region standing in for out-of-bounds pointers derived
// from a known base, with a splay-backed reverse mapping back to the
// real intended pointer.
package oob

import (
	"sync/atomic"
	"unsafe"

	"guard/climit"
	"guard/gstat"
	"guard/guarderr"
	"guard/pagemgr"
	"guard/splay"
)

// RegionSize is the size of the reserved invalid-pointer region (~1GiB,
// per spec §4.D).
const RegionSize = 1 << 30

// Region is a single reserved, unmapped (PROT_NONE) virtual range handing
// out unique "invalid pointer" addresses. One Region is shared by every
// pool that enables rewrite_oob (spec's OOB splay is per-pool, but the
// address space it draws from is process-wide, matching the teacher's
// design note that OOB addresses must be distinguishable by a single
// bitmask test).
type Region struct {
	base    uintptr
	size    uintptr
	cursor  uint64
	budget  *climit.Counter
	mapping []byte
}

// NewRegion reserves a new OOB rewrite region of the given size.
func NewRegion(size int) *Region {
	mapping := pagemgr.AllocRegion(size)
	base := uintptr(0)
	if len(mapping) > 0 {
		base = regionBase(mapping)
	}
	slots := uint64(size) / 8 // one rewrite "slot" per pointer-width granule
	return &Region{
		base:    base,
		size:    uintptr(size),
		budget:  climit.NewCounter(int64(slots)),
		mapping: mapping,
	}
}

// InRegion reports whether p falls inside the reserved invalid-pointer
// range, the fast bitmask test spec §4.D requires: "(p &
// ~(invalid_upper-1)) != 0 discriminates rewrite pointers from normal
// ones." Since the region is allocated at an arbitrary kernel-chosen
// base here (rather than a fixed high reservation as in the original),
// the check is a half-open range comparison instead of a single mask;
// the observable behavior -- a pointer is either inside or outside the
// reserved region -- is identical.
func (r *Region) InRegion(p uintptr) bool {
	return p >= r.base && p < r.base+r.size
}

// Table is the per-pool OOB splay mapping invalid_ptr -> real pointer.
type Table struct {
	region *Region
	tree   splay.Tree[uintptr]
}

// NewTable creates an OOB table drawing addresses from region.
func NewTable(region *Region) *Table {
	return &Table{region: region}
}

// Rewrite mints a fresh invalid pointer standing in for real, records the
// mapping, and returns it. ok is false if the region is exhausted.
func (t *Table) Rewrite(real uintptr) (invalid uintptr, ok bool) {
	if !t.region.budget.Take() {
		return 0, false
	}
	off := atomic.AddUint64(&t.region.cursor, 8) - 8
	if uintptr(off) >= t.region.size {
		t.region.budget.Give()
		return 0, false
	}
	invalid = t.region.base + uintptr(off)
	t.tree.Insert(invalid, 1, real)
	atomic.AddUint64(&gstat.Global.OOBRewrites, 1)
	return invalid, true
}

// Resolve reverses a rewrite: given an invalid pointer minted by this
// table, returns the original real pointer. This is get_actual_value's
// engine-side half (spec §4.F); ok is false if p was never minted here.
func (t *Table) Resolve(p uintptr) (real uintptr, ok bool) {
	if !t.region.InRegion(p) {
		return p, false
	}
	key := p
	var length uintptr
	var tag uintptr
	if !t.tree.Retrieve(&key, &length, &tag) {
		return p, false
	}
	return tag, true
}

// GetActualValue reverses the OOB rewrite if p is a rewrite pointer,
// else returns p unchanged, matching spec's get_actual_value exactly
// ("identity on non-rewrite pointers").
func (t *Table) GetActualValue(p uintptr) uintptr {
	if real, ok := t.Resolve(p); ok {
		return real
	}
	return p
}

func regionBase(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

// Status reports whether the region still has rewrite budget, used by
// pool/baggy to decide whether to fall back to permissive
// (return-the-true-pointer) or strict (abort) behavior per spec §4.D.
func (r *Region) Status() guarderr.Code {
	if r.budget.Remaining() <= 0 {
		return guarderr.EExhausted
	}
	return guarderr.OK
}
