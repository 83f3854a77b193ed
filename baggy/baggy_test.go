package baggy

import (
	"testing"

	"guard/oob"
)

func newTestEngine() *Engine {
	return New(oob.NewRegion(1<<16), Options{RewriteOOB: true})
}

func TestAllocStampsCoveringSlots(t *testing.T) {
	e := newTestEngine()
	p := e.Alloc(100)
	if p == 0 {
		t.Fatalf("expected Alloc to return a non-nil base")
	}
	if !e.LoadCheck(p, 1) {
		t.Fatalf("expected LoadCheck to succeed just after allocation")
	}
}

func TestFreeClearsSlots(t *testing.T) {
	e := newTestEngine()
	p := e.Alloc(64)
	e.Free(p)
	if e.LoadCheck(p, 1) {
		t.Fatalf("expected LoadCheck to fail after Free")
	}
}

func TestBoundsCheckAllowsOnePastEnd(t *testing.T) {
	e := newTestEngine()
	p := e.Alloc(16)
	s := e.shadow.Get(p)
	size := uintptr(1) << s

	_, tracked, ok := e.BoundsCheck(p, p+size)
	if !tracked {
		t.Fatalf("expected src to resolve to a tracked object")
	}
	if !ok {
		t.Fatalf("expected one-past-the-end pointer to be in bounds")
	}

	_, _, ok = e.BoundsCheck(p, p+size+1)
	if ok {
		t.Fatalf("expected a pointer past the padded size to be rejected")
	}
}

func TestLoadCheckRejectsLoadStraddlingObjectEnd(t *testing.T) {
	e := newTestEngine()
	a := e.Alloc(16)
	sa := e.shadow.Get(a)
	sizeA := uintptr(1) << sa

	if e.LoadCheck(a+sizeA-1, 2) {
		t.Fatalf("expected LoadCheck to reject a load straddling the end of an object")
	}
}

func TestRegisterAndUnregister(t *testing.T) {
	e := newTestEngine()
	backing := make([]byte, 64)
	p := addrOf(backing)

	e.RegisterHeap(p, len(backing))
	if !e.LoadCheck(p, 1) {
		t.Fatalf("expected LoadCheck to succeed on a registered range")
	}
	e.Unregister(p)
	if e.LoadCheck(p, 1) {
		t.Fatalf("expected LoadCheck to fail after Unregister")
	}
}
