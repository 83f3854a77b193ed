// Package bounds implements the two pure-arithmetic bounds primitives of
// spec §4.F/§6 that never need a splay lookup: exactcheck2 and
// fastlscheck. Both take an already-resolved base/bound pair -- computed
// once by a prior poolcheck/boundscheck call against the live index --
// and decide a single access against it with nothing but integer
// comparisons, so a compiler can inline them at every array-subscript
// site without touching the pool's lock.
//
// The package name mirrors the teacher's own (empty-bodied, reserved)
// bounds package, though the teacher's design note attaches it to
// resource-admission accounting (vm/as.go's bounds.Bounds calls) rather
// than pointer arithmetic; this reuses only the name, not that code, for
// the arithmetic-only primitives spec §4.F calls out separately from the
// indexed checks in package pool.
package bounds

// ExactCheck2 is exactcheck2(base, ptr, bound): reports whether ptr lies
// in the half-open range [base, bound). Both endpoints are canonical
// addresses already resolved by the caller.
func ExactCheck2(base, ptr, bound uintptr) bool {
	return ptr >= base && ptr < bound
}

// FastLSCheck(ptr, base, bound) is the same containment test as
// ExactCheck2 with ptr as the first argument. The fastlscheck ABI entry
// point (abi.FastLSCheck, base-first) uses InRange instead.
func FastLSCheck(ptr, base, bound uintptr) bool {
	return ptr >= base && ptr < bound
}

// InRange reports whether the half-open range [ptr, ptr+uintptr(n))
// lies entirely within [base, bound), the form boundscheck's arithmetic
// core needs once it already has an object's base and bound in hand.
func InRange(ptr uintptr, n int, base, bound uintptr) bool {
	if n < 0 {
		return false
	}
	end := ptr + uintptr(n)
	return ptr >= base && end <= bound && end >= ptr
}
