package abi

import "guard/bounds"

// Install arms the process-wide fault handler (see fault.Handler.Install
// / fault.Handler.Guard for the two fault-delivery paths this covers).
func (r *Runtime) Install() { r.handler.Install() }

// Uninstall disarms the fault handler.
func (r *Runtime) Uninstall() { r.handler.Uninstall() }

// Guard runs fn with the fault handler's panic-recovery wrapper active,
// for catching SIGSEGV/SIGBUS raised by Go-code shadow-page accesses
// (see fault.Handler.Guard's doc comment for why this, not Install, is
// the primary entry point for faults this engine itself causes).
func (r *Runtime) Guard(fn func()) { r.handler.Guard(fn) }

// defaultRuntime is the package-level instance the C-callable-name
// wrapper functions below operate on, mirroring the single
// process-global pool_init_runtime() convention instrumented code
// expects. Call InitRuntime once before any other wrapper.
var defaultRuntime = New()

// InitRuntime is the package-level pool_init_runtime.
func InitRuntime(opts RuntimeOptions) { defaultRuntime.InitRuntime(opts) }

// PoolInit is the package-level pool_init.
func PoolInit(nodeSize int) Handle { return defaultRuntime.PoolInit(nodeSize) }

// PoolDestroy is the package-level pool_destroy.
func PoolDestroy(h Handle) { defaultRuntime.PoolDestroy(h) }

// PoolAlloc is the package-level pool_alloc.
func PoolAlloc(h Handle, n int) uintptr { return defaultRuntime.PoolAlloc(h, n) }

// PoolRealloc is the package-level pool_realloc.
func PoolRealloc(h Handle, p uintptr, n int) uintptr { return defaultRuntime.PoolRealloc(h, p, n) }

// PoolCalloc is the package-level pool_calloc.
func PoolCalloc(h Handle, nmemb, size int) uintptr { return defaultRuntime.PoolCalloc(h, nmemb, size) }

// PoolStrdup is the package-level pool_strdup.
func PoolStrdup(h Handle, s []byte) uintptr { return defaultRuntime.PoolStrdup(h, s) }

// PoolFree is the package-level pool_free.
func PoolFree(h Handle, p uintptr) { defaultRuntime.PoolFree(h, p) }

// PoolRegister is the package-level pool_register.
func PoolRegister(h Handle, p uintptr, n int) { defaultRuntime.PoolRegister(h, p, n) }

// PoolRegisterStack is the package-level pool_register_stack.
func PoolRegisterStack(h Handle, p uintptr, n int) { defaultRuntime.PoolRegisterStack(h, p, n) }

// PoolUnregister is the package-level pool_unregister.
func PoolUnregister(h Handle, p uintptr) { defaultRuntime.PoolUnregister(h, p) }

// Poolcheck is the package-level poolcheck.
func Poolcheck(h Handle, p uintptr) { defaultRuntime.Poolcheck(h, p) }

// PoolcheckUI is the package-level poolcheckui.
func PoolcheckUI(h Handle, p uintptr) uintptr { return defaultRuntime.PoolcheckUI(h, p) }

// PoolcheckAlign is the package-level poolcheckalign.
func PoolcheckAlign(h Handle, p uintptr, lo, hi int) { defaultRuntime.PoolcheckAlign(h, p, lo, hi) }

// Boundscheck is the package-level boundscheck.
func Boundscheck(h Handle, src, dst uintptr) uintptr { return defaultRuntime.Boundscheck(h, src, dst) }

// BoundscheckUI is the package-level boundscheckui.
func BoundscheckUI(h Handle, src, dst uintptr) uintptr {
	return defaultRuntime.BoundscheckUI(h, src, dst)
}

// ExactCheck2 is the package-level exactcheck2; it needs no Runtime
// state, per spec ("no splay lookup").
func ExactCheck2(base, result, end uintptr) uintptr {
	if bounds.ExactCheck2(base, result, end) {
		return result
	}
	return end
}

// FastLSCheck is the package-level fastlscheck; likewise stateless.
func FastLSCheck(base, ptr uintptr, size, length int) bool {
	return bounds.InRange(ptr, length, base, base+uintptr(size))
}

// GetActualValue is the package-level get_actual_value.
func GetActualValue(h Handle, p uintptr) uintptr { return defaultRuntime.GetActualValue(h, p) }

// Funccheck is the package-level funccheck.
func Funccheck(f uintptr, candidates ...uintptr) { defaultRuntime.Funccheck(f, candidates...) }

// RegisterGlobals is the package-level register_globals.
func RegisterGlobals() { defaultRuntime.RegisterGlobals() }
