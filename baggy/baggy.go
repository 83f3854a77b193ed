// Package baggy implements the Baggy-Bounds engine of spec §4.H:
// power-of-two aligned, power-of-two sized allocations tracked by the
// flat shadow byte table in baggyshadow rather than a splay tree, so
// bounds/object recovery costs two loads, an AND, and a SHL instead of a
// tree descent.
//
// Grounded on the teacher's vm address-space allocator (vm/as.go's
// Mmap*, which hands out power-of-two-ish aligned regions for the same
// "big, rare, must never move" reason) for the aligned-allocation shape,
// and on pagemgr.AllocAlignedRegion for the actual alignment trick
// (over-allocate, trim the misaligned head/tail).
package baggy

import (
	"sync"
	"sync/atomic"

	"guard/baggyshadow"
	"guard/gstat"
	"guard/oob"
	"guard/pagemgr"
)

// Engine is one Baggy-Bounds allocator instance: an aligned-allocation
// arena plus the process-wide shadow table it stamps.
type Engine struct {
	mu     sync.Mutex
	shadow *baggyshadow.Table
	oobTbl *oob.Table
	opts   Options

	// live maps a block's base address to its backing slice, so Free can
	// release the actual mmap'd memory (the shadow table alone doesn't
	// retain enough information to munmap).
	live map[uintptr][]byte
}

// Options mirrors pool.Options for the baggy engine: whether boundscheck
// mints OOB rewrite pointers or simply signals failure.
type Options struct {
	RewriteOOB bool
}

// New creates a Baggy-Bounds engine whose shadow table covers the full
// address space (baggyshadow.AddressSpaceBits), drawing OOB rewrite
// pointers from region.
func New(region *oob.Region, opts Options) *Engine {
	return &Engine{
		shadow: baggyshadow.New(),
		oobTbl: oob.NewTable(region),
		opts:   opts,
		live:   make(map[uintptr][]byte),
	}
}

// sizeClass returns the smallest s >= baggyshadow.SlotBits with 2^s >= n.
func sizeClass(n int) uint8 {
	s := uint8(baggyshadow.SlotBits)
	for (1 << s) < n {
		s++
	}
	return s
}

// Alloc is baggy's alloc(n): obtain a 2^s-aligned, exactly-2^s-byte
// block, stamp its covering shadow slots with s, and return the block's
// base pointer. n may be less than 2^s; the remainder is padding.
func (e *Engine) Alloc(n int) uintptr {
	if n <= 0 {
		n = 1
	}
	s := sizeClass(n)
	size := 1 << s
	block := pagemgr.AllocAlignedRegion(size, size)
	base := addrOf(block)

	e.mu.Lock()
	e.live[base] = block
	e.shadow.SetRange(base, s)
	e.mu.Unlock()

	atomic.AddUint64(&gstat.Global.BaggyAllocs, 1)
	return base
}

// Free is baggy's free(p): read the size class, clear the covering
// shadow slots, and release the block.
func (e *Engine) Free(p uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.shadow.Get(p)
	if s == 0 {
		return // not a baggy object; matches spec's "external" treatment
	}
	base := p &^ ((1 << s) - 1)
	e.shadow.ClearRange(base, s)
	if block, ok := e.live[base]; ok {
		unmapBlock(block)
		delete(e.live, base)
	}
	atomic.AddUint64(&gstat.Global.BaggyFrees, 1)
}

// RegisterHeap, RegisterStack, RegisterGlobal stamp the shadow slots for
// memory that is already allocated and already suitably aligned (the
// compiler is responsible for the alignment), per spec's
// register_{heap,stack,global}.
func (e *Engine) RegisterHeap(p uintptr, n int) { e.register(p, n) }

func (e *Engine) RegisterStack(p uintptr, n int) { e.register(p, n) }

func (e *Engine) RegisterGlobal(p uintptr, n int) { e.register(p, n) }

func (e *Engine) register(p uintptr, n int) {
	if n <= 0 {
		n = 1
	}
	s := sizeClass(n)
	e.mu.Lock()
	e.shadow.SetRange(p, s)
	e.mu.Unlock()
}

// Unregister clears the shadow slots for a previously registered,
// externally-managed object without touching any backing memory.
func (e *Engine) Unregister(p uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.shadow.Get(p)
	if s == 0 {
		return
	}
	base := p &^ ((1 << s) - 1)
	e.shadow.ClearRange(base, s)
}

// BoundsCheck is baggy's boundscheck(src, dst): given a known-in-bounds
// src, assert dst lies within the same object, allowing the
// one-past-the-end address. Returns the (possibly rewritten) pointer to
// use and whether src resolved to a tracked object at all.
func (e *Engine) BoundsCheck(src, dst uintptr) (result uintptr, srcTracked, inBounds bool) {
	s := e.shadow.Get(src)
	if s == 0 {
		return dst, false, false
	}
	base := src &^ ((1 << s) - 1)
	top := base + (1 << s)
	if dst >= base && dst <= top {
		return dst, true, true
	}
	if e.opts.RewriteOOB {
		if invalid, ok := e.oobTbl.Rewrite(dst); ok {
			return invalid, true, false
		}
	}
	return dst, true, false
}

// LoadCheck is baggy's loadcheck(p, len): require p's slot to be
// tracked and p and p+len-1 to resolve to the same object base.
func (e *Engine) LoadCheck(p uintptr, length int) bool {
	s := e.shadow.Get(p)
	if s == 0 {
		return false
	}
	if length <= 0 {
		return true
	}
	s2 := e.shadow.Get(p + uintptr(length) - 1)
	if s2 == 0 {
		return false
	}
	base1 := p &^ ((1 << s) - 1)
	base2 := (p + uintptr(length) - 1) &^ ((1 << s2) - 1)
	return base1 == base2
}

// GetActualValue reverses an OOB rewrite minted by this engine's table.
func (e *Engine) GetActualValue(p uintptr) uintptr {
	return e.oobTbl.GetActualValue(p)
}
