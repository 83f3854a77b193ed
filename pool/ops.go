package pool

import "guard/extobj"

// PoolCheck is the strict poolcheck ABI op: it reports whether ptr falls
// within some currently-live object tracked by this pool. Used by
// instrumented code at points where an out-of-bounds pointer must abort
// rather than be tolerated.
func (p *Pool) PoolCheck(ptr uintptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustBeLive()
	return p.findLive(ptr)
}

// PoolCheckUI is poolcheckui: the permissive counterpart of PoolCheck. A
// ptr that already resolves to a live object, or to a registered external
// object (spec §4.J: consulted only by the *ui variants), is returned
// unchanged; an out-of-bounds ptr is either rewritten to a unique invalid
// pointer (if RewriteOOB is enabled and the OOB region has budget left)
// so later dereferences trap instead of silently reading adjacent
// memory, or returned unchanged if rewriting isn't possible, matching
// spec's "unconditionally inserted" checks that must never abort
// compilation of a correct program.
func (p *Pool) PoolCheckUI(ptr uintptr) uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustBeLive()
	if p.findLive(ptr) {
		return ptr
	}
	if _, _, _, ok := extobj.Global.Lookup(ptr); ok {
		return ptr
	}
	if p.opts.RewriteOOB {
		if invalid, ok := p.oobTbl.Rewrite(ptr); ok {
			return invalid
		}
	}
	return ptr
}

// PoolCheckAlign is poolcheckalign: reports whether ptr lies within some
// live object **and** (ptr-base) mod nodeSize falls within [lo, hi],
// catching misaligned-cast style bugs (e.g. casting a char* partway into
// a struct to a wider type) that land outside the permitted sub-node
// offset range.
func (p *Pool) PoolCheckAlign(ptr uintptr, lo, hi int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustBeLive()
	key := ptr
	var length uintptr
	var obj *object
	if !p.live.Retrieve(&key, &length, &obj) {
		return false
	}
	off := int((ptr - key) % uintptr(p.nodeSize))
	return off >= lo && off <= hi
}

// BoundsCheck is the strict boundscheck ABI op: reports whether the
// range [ptr, ptr+uintptr(n)) lies entirely within one live object.
func (p *Pool) BoundsCheck(ptr uintptr, n int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustBeLive()
	return p.inBounds(ptr, n)
}

// BoundsCheckUI is boundscheckui: the permissive counterpart of
// BoundsCheck. It reports on the *target* of the range, ptr+n (spec's
// two-pointer boundscheckui(pool, src, dst) calls this as
// BoundsCheckUI(src, dst-src) and uses the return value as the resolved
// dst), returning the target unchanged when in range and an OOB rewrite
// pointer standing for the target (or the target unchanged, if rewriting
// isn't possible) when not.
func (p *Pool) BoundsCheckUI(ptr uintptr, n int) uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustBeLive()
	target := ptr + uintptr(n)
	if p.inBounds(ptr, n) {
		return target
	}
	if p.opts.RewriteOOB {
		if invalid, ok := p.oobTbl.Rewrite(target); ok {
			return invalid
		}
	}
	return target
}

// GetActualValue is get_actual_value: identity on ordinary pointers,
// reverse lookup on OOB rewrite pointers minted by this pool.
func (p *Pool) GetActualValue(ptr uintptr) uintptr {
	return p.oobTbl.GetActualValue(ptr)
}

func (p *Pool) findLive(ptr uintptr) bool {
	key := ptr
	var length uintptr
	var obj *object
	return p.live.Retrieve(&key, &length, &obj)
}

func (p *Pool) inBounds(ptr uintptr, n int) bool {
	key := ptr
	var length uintptr
	var obj *object
	if !p.live.Retrieve(&key, &length, &obj) {
		return false
	}
	end := key + length
	target := ptr + uintptr(n)
	return target >= key && target <= end
}
