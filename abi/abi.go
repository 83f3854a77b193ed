// Package abi exposes the instrumented-program entry points of spec §6
// on a single Runtime, plus package-level wrappers mirroring the
// C-callable names the compiler emits calls to. The name mapping below
// is normative for this implementation:
//
//	pool_init            -> Runtime.PoolInit / PoolInit
//	pool_destroy          -> Runtime.PoolDestroy / PoolDestroy
//	pool_alloc             -> Runtime.PoolAlloc / PoolAlloc
//	pool_realloc           -> Runtime.PoolRealloc / PoolRealloc
//	pool_calloc            -> Runtime.PoolCalloc / PoolCalloc
//	pool_strdup            -> Runtime.PoolStrdup / PoolStrdup
//	pool_free              -> Runtime.PoolFree / PoolFree
//	pool_register          -> Runtime.PoolRegister / PoolRegister
//	pool_unregister        -> Runtime.PoolUnregister / PoolUnregister
//	poolcheck              -> Runtime.Poolcheck / Poolcheck
//	poolcheckui            -> Runtime.PoolcheckUI / PoolcheckUI
//	poolcheckalign         -> Runtime.PoolcheckAlign / PoolcheckAlign
//	boundscheck            -> Runtime.Boundscheck / Boundscheck
//	boundscheckui          -> Runtime.BoundscheckUI / BoundscheckUI
//	exactcheck2            -> ExactCheck2 (package-level only; no runtime state needed)
//	fastlscheck            -> FastLSCheck (package-level only; no runtime state needed)
//	get_actual_value       -> Runtime.GetActualValue / GetActualValue
//	funccheck              -> Runtime.Funccheck / Funccheck
//	pool_register_stack    -> Runtime.PoolRegisterStack / PoolRegisterStack
//	register_globals       -> Runtime.RegisterGlobals / RegisterGlobals
//	pool_init_runtime      -> Runtime.InitRuntime / InitRuntime
package abi

import (
	"runtime"
	"sync"

	"guard/debugmeta"
	"guard/extobj"
	"guard/fault"
	"guard/guarderr"
	"guard/oob"
	"guard/pool"
)

// Handle identifies one pool, the unit of state the compiler's
// pool_init/pool_alloc/... calls thread through.
type Handle = *pool.Pool

// RuntimeOptions mirrors spec §6's pool_init_runtime flags.
type RuntimeOptions struct {
	Dangling          bool
	RewriteOOB        bool
	TerminateOnError  bool
}

// Runtime is the process-wide instance every ABI call is a method on.
// Exactly one Runtime is expected per process, constructed via New and
// installed with InitRuntime before any pool_init call.
type Runtime struct {
	mu      sync.Mutex
	opts    RuntimeOptions
	region  *oob.Region
	arena   *debugmeta.Arena
	handler *fault.Handler
	pools   map[Handle]bool
}

// New constructs a Runtime with default (permissive) options; call
// InitRuntime to apply the instrumented program's actual flags before
// any allocation happens.
func New() *Runtime {
	installSymbolizer()
	arena := debugmeta.NewArena()
	return &Runtime{
		region:  oob.NewRegion(oob.RegionSize),
		arena:   arena,
		handler: fault.New(arena, false),
		pools:   make(map[Handle]bool),
	}
}

// InitRuntime is pool_init_runtime(opts).
func (r *Runtime) InitRuntime(opts RuntimeOptions) {
	r.mu.Lock()
	r.opts = opts
	r.handler = fault.New(r.arena, opts.TerminateOnError)
	r.handler.AddRegion(r.region)
	r.mu.Unlock()
}

// PoolInit is pool_init(pool, node_size): constructs and returns a new
// pool handle with the given node size. Spec's "idempotent per pool" is
// read as "calling it again on the same *Handle would reinitialize it,"
// which this Go binding sidesteps by returning a fresh handle each call
// -- there is no pre-existing zero-value pool handle for the compiler to
// pass in, unlike the C ABI's fixed struct-in-place convention.
func (r *Runtime) PoolInit(nodeSize int) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := pool.New(nodeSize, r.region, r.arena, pool.Options{
		Dangling:       r.opts.Dangling,
		RewriteOOB:     r.opts.RewriteOOB,
		TerminateOnErr: r.opts.TerminateOnError,
	})
	r.pools[p] = true
	r.handler.AddPool(p)
	return p
}

// PoolDestroy is pool_destroy(pool).
func (r *Runtime) PoolDestroy(h Handle) {
	h.Destroy()
	r.mu.Lock()
	delete(r.pools, h)
	r.mu.Unlock()
}

func callerPC() uintptr {
	pc, _, _, ok := runtime.Caller(2)
	if !ok {
		return 0
	}
	return pc
}

// PoolAlloc is pool_alloc(pool, n).
func (r *Runtime) PoolAlloc(h Handle, n int) uintptr { return h.Alloc(n, callerPC()) }

// PoolRealloc is pool_realloc(pool, p, n).
func (r *Runtime) PoolRealloc(h Handle, p uintptr, n int) uintptr { return h.Realloc(p, n, callerPC()) }

// PoolCalloc is pool_calloc(pool, nmemb, size).
func (r *Runtime) PoolCalloc(h Handle, nmemb, size int) uintptr { return h.Calloc(nmemb, size, callerPC()) }

// PoolStrdup is pool_strdup(pool, s).
func (r *Runtime) PoolStrdup(h Handle, s []byte) uintptr { return h.Strdup(s, callerPC()) }

// PoolFree is pool_free(pool, p). A double/invalid free is routed
// through the runtime's violation path instead of returned as a Go
// error, matching spec §7: "no error codes surface to the instrumented
// program."
func (r *Runtime) PoolFree(h Handle, p uintptr) {
	if err := h.Free(p, callerPC()); err != nil {
		r.reportDirect(guarderr.DoubleFree, p)
	}
}

// PoolRegister is pool_register(pool, p, n).
func (r *Runtime) PoolRegister(h Handle, p uintptr, n int) { h.Register(p, n, callerPC()) }

// PoolRegisterStack is pool_register_stack(pool, p, n).
func (r *Runtime) PoolRegisterStack(h Handle, p uintptr, n int) { h.RegisterStack(p, n, callerPC()) }

// PoolUnregister is pool_unregister(pool, p).
func (r *Runtime) PoolUnregister(h Handle, p uintptr) { h.Unregister(p) }

// Poolcheck is poolcheck(pool, p): strict, reports a failure through the
// violation path, which aborts when TerminateOnError is set.
func (r *Runtime) Poolcheck(h Handle, p uintptr) {
	if !h.PoolCheck(p) {
		r.reportDirect(guarderr.OutOfBounds, p)
	}
}

// PoolcheckUI is poolcheckui(pool, p): permissive, never aborts.
func (r *Runtime) PoolcheckUI(h Handle, p uintptr) uintptr { return h.PoolCheckUI(p) }

// PoolcheckAlign is poolcheckalign(pool, p, lo, hi): asserts p lies
// within some live object and (p-base) mod node_size falls in [lo, hi].
func (r *Runtime) PoolcheckAlign(h Handle, p uintptr, lo, hi int) {
	if !h.PoolCheckAlign(p, lo, hi) {
		r.reportDirect(guarderr.Align, p)
	}
}

// Boundscheck is boundscheck(pool, src, dst): strict. src is assumed
// already in-bounds (per spec); dst is admitted if it lies in the same
// object, one-past-the-end included. When the pool's RewriteOOB option
// is enabled, an out-of-bounds dst is not reported here -- it is instead
// given back as a freshly minted rewrite pointer (scenario S2), so the
// abort is deferred to the later dereference that actually traps it,
// exactly as poolcheck/boundscheck's *ui siblings already do.
func (r *Runtime) Boundscheck(h Handle, src, dst uintptr) uintptr {
	if !h.PoolCheck(src) {
		r.reportDirect(guarderr.OutOfBounds, dst)
		return dst
	}
	if h.BoundsCheck(src, int(dst-src)) {
		return dst
	}
	rewritten := h.BoundsCheckUI(src, int(dst-src))
	if rewritten != dst {
		return rewritten
	}
	r.reportDirect(guarderr.OutOfBounds, dst)
	return dst
}

// BoundscheckUI is boundscheckui(pool, src, dst): permissive. If src
// isn't tracked by this pool at all, consult the external-object table
// before giving up, per spec §4.J ("consulted only by the *ui...
// variants").
func (r *Runtime) BoundscheckUI(h Handle, src, dst uintptr) uintptr {
	if !h.PoolCheck(src) {
		if _, _, _, ok := extobj.Global.Lookup(src); ok {
			return dst
		}
		return h.BoundsCheckUI(src, int(dst-src))
	}
	return h.BoundsCheckUI(src, int(dst-src))
}

// GetActualValue is get_actual_value(pool, p).
func (r *Runtime) GetActualValue(h Handle, p uintptr) uintptr { return h.GetActualValue(p) }

// Funccheck is funccheck(n, f, f0, ..., fn-1).
func (r *Runtime) Funccheck(f uintptr, candidates ...uintptr) {
	for _, c := range candidates {
		if f == c {
			return
		}
	}
	r.reportDirect(guarderr.Unknown, f)
}

// RegisterGlobals is register_globals(): a no-op hook point. The
// compiler-generated caller is expected to follow it with individual
// PoolRegister calls per global; this function exists only so
// instrumented code has a stable symbol to call before it does.
func (r *Runtime) RegisterGlobals() {}

func (r *Runtime) reportDirect(kind guarderr.Kind, addr uintptr) {
	v := fault.Violation{Kind: kind, Addr: addr, PC: callerPC()}
	fault.Report(v)
	if r.opts.TerminateOnError {
		panic(v)
	}
}
