package pool

import (
	"sync/atomic"

	"guard/gstat"
	"guard/slabpool"
)

// smallSlabNodeCeiling caps how many nodes a single non-dangling
// allocation may request from a shared slab before falling back to its
// own single-array slab; above this, packing nodes into a shared slab
// wastes more bookkeeping than it saves.
const smallSlabNodeCeiling = 64

// Alloc performs pool_alloc(pool, n): allocate ceil(n/node_size)
// contiguous nodes and return a pointer keyed in the live index with
// length n. n==0 is treated as 1, per spec.
func (p *Pool) Alloc(n int, callerPC uintptr) uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustBeLive()
	if n <= 0 {
		n = 1
	}
	nNodes := ceilDiv(n, p.nodeSize)

	var slab *slabpool.Slab
	idx := 0
	large := false

	switch {
	case p.opts.Dangling:
		// Dangling detection needs per-object shadow protection; back
		// every such allocation with its own single-object slab so
		// protecting it never affects an unrelated live object sharing
		// the same page.
		slab = slabpool.NewSingleArray(p.nodeSize, nNodes)
		large = true
		p.largeArrays = append(p.largeArrays, slab)
		p.owned.Add(slab.Base())
	case nNodes > smallSlabNodeCeiling:
		slab = slabpool.NewSingleArray(p.nodeSize, nNodes)
		large = true
		p.largeArrays = append(p.largeArrays, slab)
		p.owned.Add(slab.Base())
	case nNodes == 1:
		slab, idx = p.findOrMakeSlab(func(s *slabpool.Slab) int { return s.AllocateSingle() })
	default:
		slab, idx = p.findOrMakeSlab(func(s *slabpool.Slab) int { return s.AllocateMultiple(nNodes) })
	}

	canon := slab.NodeAddr(idx)
	retPtr := canon
	var shadow uintptr
	if p.opts.Dangling {
		shadow = slab.Remap(n)
		retPtr = shadow
	}

	id := p.arena.Alloc(callerPC, canon, uintptr(n))
	obj := &object{id: id, slab: slab, idx: idx, nNodes: nNodes, length: n, canon: canon, large: large}
	if p.opts.Dangling {
		obj.shadow = slab.Mapping()
		// retPtr (the shadow address) is never reused once this object is
		// freed, so it is safe to index permanently: see Arena.Index.
		p.arena.Index(retPtr, uintptr(n), id)
	}
	p.live.Insert(retPtr, uintptr(n), obj)

	atomic.AddUint64(&gstat.Global.PoolAllocs, 1)
	atomic.AddInt64(&gstat.Global.ActiveObjs, 1)
	return retPtr
}

// findOrMakeSlab tries the pool's partially-used slabs before allocating
// a fresh one, matching spec §3's partial/full slab-list split.
func (p *Pool) findOrMakeSlab(try func(*slabpool.Slab) int) (*slabpool.Slab, int) {
	for i, s := range p.slabsPartial {
		if idx := try(s); idx >= 0 {
			if s.Full() {
				p.slabsFull = append(p.slabsFull, s)
				p.slabsPartial = append(p.slabsPartial[:i], p.slabsPartial[i+1:]...)
			}
			return s, idx
		}
	}
	s := slabpool.NewSlab(p.nodeSize)
	p.owned.Add(s.Base())
	idx := try(s)
	if idx < 0 {
		panic("pool: fresh slab rejected allocation it was sized for")
	}
	if s.Full() {
		p.slabsFull = append(p.slabsFull, s)
	} else {
		p.slabsPartial = append(p.slabsPartial, s)
	}
	return s, idx
}

// Register inserts a record for externally-allocated memory (stack
// objects, globals, custom allocators), per spec pool_register.
func (p *Pool) Register(ptr uintptr, n int, callerPC uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustBeLive()
	if n <= 0 {
		n = 1
	}
	id := p.arena.Alloc(callerPC, ptr, uintptr(n))
	obj := &object{id: id, length: n}
	p.live.Insert(ptr, uintptr(n), obj)
	atomic.AddInt64(&gstat.Global.ActiveObjs, 1)
}

// RegisterStack is pool_register_stack: like Register, but first asserts
// the same storage address hasn't already been registered by this pool,
// per spec §9's open question ("asserts and aborts when a stack
// allocation sits inside a loop"). It panics with a distinguishable
// message rather than silently succeeding, matching the chosen
// resolution recorded in DESIGN.md (UNSUPPORTED, not silent success).
func (p *Pool) RegisterStack(ptr uintptr, n int, callerPC uintptr) {
	p.mu.Lock()
	if p.stackSeen[ptr] {
		p.mu.Unlock()
		panic("pool: UNSUPPORTED: stack allocation re-registered (likely inside a loop)")
	}
	p.stackSeen[ptr] = true
	p.mu.Unlock()
	p.Register(ptr, n, callerPC)
}

// Unregister removes a record inserted via Register/RegisterStack.
func (p *Pool) Unregister(ptr uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustBeLive()
	p.live.Delete(ptr)
	delete(p.stackSeen, ptr)
	atomic.AddInt64(&gstat.Global.ActiveObjs, -1)
}

// Free performs pool_free: look up the object, stamp its debug metadata
// as freed, protect its shadow pages (if dangling detection is on), and
// remove it from the live index.
func (p *Pool) Free(ptr uintptr, callerPC uintptr) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustBeLive()

	key := ptr
	var length uintptr
	var obj *object
	if !p.live.Retrieve(&key, &length, &obj) || key != ptr {
		return errDoubleOrInvalidFree(ptr)
	}

	p.arena.Free(obj.id, callerPC)
	if p.opts.Dangling && obj.shadow != nil {
		obj.shadow.ProtectShadow()
		// Canonical frames may be reused; only the shadow stays trapped.
	} else if obj.slab != nil && !obj.slab.IsSingleArray() {
		obj.slab.FreeElement(obj.idx)
	}
	p.live.Delete(ptr)

	atomic.AddUint64(&gstat.Global.PoolFrees, 1)
	atomic.AddInt64(&gstat.Global.ActiveObjs, -1)
	return nil
}
