package pool

import (
	"testing"
	"unsafe"

	"guard/debugmeta"
	"guard/extobj"
	"guard/oob"
)

func writeByte(ptr uintptr, off int, v byte) {
	*(*byte)(unsafe.Pointer(ptr + uintptr(off))) = v
}

func readByte(ptr uintptr, off int) byte {
	return *(*byte)(unsafe.Pointer(ptr + uintptr(off)))
}

func newTestPool(t *testing.T, opts Options) *Pool {
	t.Helper()
	region := oob.NewRegion(1 << 20)
	arena := debugmeta.NewArena()
	return New(8, region, arena, opts)
}

// TestAllocBoundsScenario mirrors spec scenario S1: an object of size 16
// with node size 8 accepts poolcheck up to its last byte and rejects one
// byte past the end.
func TestAllocBoundsScenario(t *testing.T) {
	p := newTestPool(t, Options{RewriteOOB: true, TerminateOnErr: true})
	defer p.Destroy()

	ptr := p.Alloc(16, 0)
	if ptr == 0 {
		t.Fatalf("expected Alloc to return a non-nil pointer")
	}
	if !p.PoolCheck(ptr) {
		t.Fatalf("expected poolcheck(p) to succeed just after allocation")
	}
	if !p.PoolCheck(ptr + 15) {
		t.Fatalf("expected poolcheck(p+15) to succeed (last valid byte)")
	}
	if p.PoolCheck(ptr + 16) {
		t.Fatalf("expected poolcheck(p+16) to fail (one past the end)")
	}
}

func TestFreeThenDoubleFreeFails(t *testing.T) {
	p := newTestPool(t, Options{})
	defer p.Destroy()

	ptr := p.Alloc(32, 0)
	if err := p.Free(ptr, 0); err != nil {
		t.Fatalf("unexpected error on first free: %v", err)
	}
	if err := p.Free(ptr, 0); err == nil {
		t.Fatalf("expected second free of the same pointer to report an error")
	}
}

func TestPoolCheckUIRewritesOutOfBounds(t *testing.T) {
	p := newTestPool(t, Options{RewriteOOB: true})
	defer p.Destroy()

	ptr := p.Alloc(8, 0)
	oobPtr := ptr + 100
	rewritten := p.PoolCheckUI(oobPtr)
	if rewritten == oobPtr {
		t.Fatalf("expected PoolCheckUI to rewrite an out-of-bounds pointer")
	}
	if back := p.GetActualValue(rewritten); back != oobPtr {
		t.Fatalf("GetActualValue(rewritten) = %#x; want original %#x", back, oobPtr)
	}
}

func TestPoolCheckAlignEnforcesOffsetRange(t *testing.T) {
	p := newTestPool(t, Options{})
	defer p.Destroy()

	ptr := p.Alloc(16, 0) // node size 8, per newTestPool
	if !p.PoolCheckAlign(ptr, 0, 0) {
		t.Fatalf("expected offset 0 to satisfy range [0,0]")
	}
	if p.PoolCheckAlign(ptr+4, 0, 0) {
		t.Fatalf("expected offset 4 to fail range [0,0]")
	}
	if !p.PoolCheckAlign(ptr+4, 0, 7) {
		t.Fatalf("expected offset 4 to satisfy the full sub-node range [0,7]")
	}
	if p.PoolCheckAlign(ptr+100, 0, 7) {
		t.Fatalf("expected a pointer outside any live object to fail")
	}
}

func TestPoolCheckUIAdmitsRegisteredExternalObject(t *testing.T) {
	p := newTestPool(t, Options{RewriteOOB: true})
	defer p.Destroy()

	extobj.Global.Register(0x9000, 32, "argv[0]")
	defer extobj.Global.Unregister(0x9000)

	if got := p.PoolCheckUI(0x9008); got != 0x9008 {
		t.Fatalf("expected PoolCheckUI to admit an address inside a registered external object unchanged, got %#x", got)
	}
}

func TestBoundsCheckUIAllowsInBoundsUnchanged(t *testing.T) {
	p := newTestPool(t, Options{RewriteOOB: true})
	defer p.Destroy()

	ptr := p.Alloc(16, 0)
	if got := p.BoundsCheckUI(ptr, 8); got != ptr+8 {
		t.Fatalf("expected BoundsCheckUI to return the resolved target pointer unchanged for an in-bounds access")
	}
}

func TestBoundsCheckUIRewritesOutOfBoundsTarget(t *testing.T) {
	p := newTestPool(t, Options{RewriteOOB: true})
	defer p.Destroy()

	ptr := p.Alloc(16, 0)
	target := ptr + 100
	got := p.BoundsCheckUI(ptr, 100)
	if got == target {
		t.Fatalf("expected BoundsCheckUI to rewrite an out-of-bounds target")
	}
	if back := p.GetActualValue(got); back != target {
		t.Fatalf("GetActualValue(got) = %#x; want original target %#x", back, target)
	}
}

func TestReallocPreservesContent(t *testing.T) {
	p := newTestPool(t, Options{})
	defer p.Destroy()

	ptr := p.Alloc(4, 0)
	writeByte(ptr, 0, 0xAB)
	writeByte(ptr, 1, 0xCD)

	newPtr := p.Realloc(ptr, 8, 0)
	if readByte(newPtr, 0) != 0xAB || readByte(newPtr, 1) != 0xCD {
		t.Fatalf("expected realloc to preserve the original bytes")
	}
}

func TestCallocZeroesMemory(t *testing.T) {
	p := newTestPool(t, Options{})
	defer p.Destroy()

	ptr := p.Calloc(4, 4, 0)
	for i := 0; i < 16; i++ {
		if readByte(ptr, i) != 0 {
			t.Fatalf("expected calloc'd byte %d to be zero", i)
		}
	}
}

func TestStrdupNulTerminates(t *testing.T) {
	p := newTestPool(t, Options{})
	defer p.Destroy()

	ptr := p.Strdup([]byte("hi\x00trailing"), 0)
	if readByte(ptr, 0) != 'h' || readByte(ptr, 1) != 'i' || readByte(ptr, 2) != 0 {
		t.Fatalf("expected Strdup to copy \"hi\" plus a NUL terminator")
	}
}

func TestDanglingDetectionTrapsAfterFree(t *testing.T) {
	p := newTestPool(t, Options{Dangling: true})
	defer p.Destroy()

	ptr := p.Alloc(16, 0)
	if !p.PoolCheck(ptr) {
		t.Fatalf("expected poolcheck to succeed on a live dangling-tracked object")
	}
	if err := p.Free(ptr, 0); err != nil {
		t.Fatalf("unexpected error freeing dangling-tracked object: %v", err)
	}
	// The shadow page is now PROT_NONE; poolcheck no longer finds it in
	// the live index (it was removed by Free), matching spec's "remove
	// the splay record" step -- the actual SIGSEGV-on-dereference
	// behavior is exercised by the fault package, not here.
	if p.PoolCheck(ptr) {
		t.Fatalf("expected a freed dangling object to no longer be live")
	}
}
