package abi

import (
	"testing"

	"guard/fault"
	"guard/guarderr"
)

func TestExactCheck2AdmitsInRangeResult(t *testing.T) {
	if got := ExactCheck2(100, 150, 200); got != 150 {
		t.Fatalf("ExactCheck2(100, 150, 200) = %#x; want 150", got)
	}
}

func TestExactCheck2ClampsOutOfRangeToBound(t *testing.T) {
	if got := ExactCheck2(100, 250, 200); got != 200 {
		t.Fatalf("ExactCheck2(100, 250, 200) = %#x; want bound 200", got)
	}
}

func TestFastLSCheckAdmitsWithinSize(t *testing.T) {
	if !FastLSCheck(100, 104, 16, 4) {
		t.Fatalf("expected FastLSCheck to admit a 4-byte access at offset 4 of a 16-byte object")
	}
	if FastLSCheck(100, 104, 16, 13) {
		t.Fatalf("expected FastLSCheck to reject a 13-byte access overrunning a 16-byte object")
	}
}

func TestPoolAllocAndFreeThroughRuntime(t *testing.T) {
	r := New()
	r.InitRuntime(RuntimeOptions{RewriteOOB: true})
	h := r.PoolInit(8)
	defer r.PoolDestroy(h)

	ptr := r.PoolAlloc(h, 16)
	if ptr == 0 {
		t.Fatalf("expected PoolAlloc to return a non-nil pointer")
	}
	r.Poolcheck(h, ptr) // must not abort
	r.PoolFree(h, ptr)
}

// TestFuncheckAdmitsListedTarget mirrors the first half of spec scenario
// S6: funccheck(3, fA, fA, fB, fC) must not abort.
func TestFuncheckAdmitsListedTarget(t *testing.T) {
	r := New()
	r.InitRuntime(RuntimeOptions{TerminateOnError: true})

	const fA, fB, fC = 0x1000, 0x2000, 0x3000
	r.Funccheck(fA, fA, fB, fC)
}

// TestFuncheckAbortsOnUnlistedTarget mirrors the second half of spec
// scenario S6: funccheck(3, fD, fA, fB, fC) must abort, reporting the
// call target itself (not a candidate) as the violating address, per
// testable property 8 ("funccheck succeeds iff f appears in the
// argument list").
func TestFuncheckAbortsOnUnlistedTarget(t *testing.T) {
	r := New()
	r.InitRuntime(RuntimeOptions{TerminateOnError: true})

	const fA, fB, fC, fD = 0x1000, 0x2000, 0x3000, 0x4000

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatalf("expected funccheck to abort on a target outside the candidate list")
		}
		v, ok := rec.(fault.Violation)
		if !ok {
			t.Fatalf("expected panic value to be a fault.Violation, got %T", rec)
		}
		if v.Kind != guarderr.Unknown {
			t.Fatalf("expected violation kind %s, got %s", guarderr.Unknown, v.Kind)
		}
		if v.Addr != fD {
			t.Fatalf("expected violation addr %#x, got %#x", uintptr(fD), v.Addr)
		}
	}()

	r.Funccheck(fD, fA, fB, fC)
}
