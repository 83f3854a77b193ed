// Package pool implements the Pool/Splay engine of spec §4.F: it ties
// together the page manager, slab pool, splay index, OOB rewrite table,
// and debug metadata store behind the ABI operations a compiler emits
// for pool-backed allocations.
//
// Concurrency policy (spec §5, option 2): each Pool serializes its own
// operations behind a single mutex; the OOB cursor and debug-metadata
// counters are process-wide and already internally synchronized
// (climit.Counter, debugmeta.Arena). This mirrors the teacher's
// vm.Vm_t address-space lock; here every exported Pool method locks
// p.mu directly.
package pool

import (
	"sync"

	"guard/debugmeta"
	"guard/guarderr"
	"guard/oob"
	"guard/owners"
	"guard/pagemgr"
	"guard/slabpool"
	"guard/splay"
)

// object is the bookkeeping record attached to every live allocation,
// stored as the tag in the pool's live splay index.
type object struct {
	id     debugmeta.ID
	slab   *slabpool.Slab
	idx    int // node index within slab; unused for single-array slabs
	nNodes int
	length int // originally requested byte length
	canon  uintptr // canonical (pre-remap) base address, for raw copies during realloc
	large  bool
	shadow *pagemgr.Mapping // non-nil only when dangling detection is enabled for this object
}

// Options configures a Pool's runtime behavior; abi.Runtime.PoolInit
// fills it from the options given to InitRuntime.
type Options struct {
	Dangling      bool // enable remap+protect-on-free dangling detection
	RewriteOOB    bool // enable OOB rewrite pointers; else fail on any out-of-bounds
	TerminateOnErr bool // abort on first violation; else warn and continue
}

// Pool is the per-node-size allocator and live-object index described in
// spec §3's "Pool descriptor."
type Pool struct {
	mu sync.Mutex

	nodeSize int
	opts     Options

	slabsPartial []*slabpool.Slab
	slabsFull    []*slabpool.Slab
	largeArrays  []*slabpool.Slab
	owned        owners.Set

	live    splay.Tree[*object]
	oobTbl  *oob.Table
	arena   *debugmeta.Arena

	stackPool  bool // AllocadPool flag (spec §9 open question): marks pools backing stack objects
	stackSeen  map[uintptr]bool // detects re-registration of the same stack storage across loop iterations
	destroyed  bool
}

// New creates a pool with the given node size (spec: "1 if 0 is
// passed"), drawing OOB rewrite pointers from region and retaining debug
// metadata in arena (both process-wide, shared across pools).
func New(nodeSize int, region *oob.Region, arena *debugmeta.Arena, opts Options) *Pool {
	if nodeSize == 0 {
		nodeSize = 1
	}
	return &Pool{
		nodeSize:  nodeSize,
		opts:      opts,
		oobTbl:    oob.NewTable(region),
		arena:     arena,
		stackSeen: make(map[uintptr]bool),
	}
}

// Destroy releases all slabs and indices; per spec, no operations are
// permitted on the pool after this.
func (p *Pool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.slabsPartial {
		s.Destroy()
	}
	for _, s := range p.slabsFull {
		s.Destroy()
	}
	for _, s := range p.largeArrays {
		s.Destroy()
	}
	p.slabsPartial, p.slabsFull, p.largeArrays = nil, nil, nil
	p.destroyed = true
}

func (p *Pool) mustBeLive() {
	if p.destroyed {
		panic("pool: operation on destroyed pool")
	}
}

// NodeSize returns the pool's node granularity.
func (p *Pool) NodeSize() int { return p.nodeSize }

// SetStackPool marks this pool as backing stack allocations (spec §9's
// AllocadPool open question). The flag is only recorded: no operation
// reads it, and RegisterStack's re-registration check applies to every
// pool whether or not the flag is set.
func (p *Pool) SetStackPool(v bool) { p.stackPool = v }

func ceilDiv(n, d int) int {
	if d <= 0 {
		return n
	}
	return (n + d - 1) / d
}

// NoSplayFind implements fault.PoolReader: a lock-free descent over the
// live index, for the signal-adjacent fault handler to consult without
// risking a block on p.mu, which an ordinary Alloc/Free call might hold.
func (p *Pool) NoSplayFind(addr uintptr) (base, length uintptr, id debugmeta.ID, ok bool) {
	base, length, obj, ok := p.live.NoSplayFind(addr)
	if !ok {
		return 0, 0, 0, false
	}
	return base, length, obj.id, true
}

// onViolation is an empty hook; no operation in this package calls it.
func (p *Pool) onViolation(_ guarderr.Kind) {
	// Reporting and abort decisions are made by the fault package, which
	// every ABI-facing caller routes violations through; Pool itself
	// only decides permissive-vs-strict *return values*, never prints or
	// aborts directly, keeping this package free of global I/O side
	// effects.
}
