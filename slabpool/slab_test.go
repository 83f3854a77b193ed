package slabpool

import "testing"

func TestAllocateSingleFillsSlab(t *testing.T) {
	s := NewSlab(64)
	n := s.NodesPerSlab()
	if n == 0 {
		t.Fatalf("expected a nonzero node capacity")
	}

	seen := make(map[int]bool)
	for i := 0; i < n; i++ {
		idx := s.AllocateSingle()
		if idx < 0 {
			t.Fatalf("AllocateSingle failed before slab was full, at i=%d", i)
		}
		if seen[idx] {
			t.Fatalf("AllocateSingle returned duplicate index %d", idx)
		}
		seen[idx] = true
	}
	if idx := s.AllocateSingle(); idx != -1 {
		t.Fatalf("expected full slab to reject further allocation; got %d", idx)
	}
	if !s.Full() {
		t.Fatalf("expected Full() to report true once every node is taken")
	}
}

func TestFreeElementReclaimsNode(t *testing.T) {
	s := NewSlab(32)
	idx := s.AllocateSingle()
	if idx < 0 {
		t.Fatalf("AllocateSingle failed on a fresh slab")
	}
	s.FreeElement(idx)
	if s.Full() {
		t.Fatalf("expected slab to have free capacity after FreeElement")
	}
	again := s.AllocateSingle()
	if again != idx {
		t.Fatalf("expected freed index %d to be reused; got %d", idx, again)
	}
}

func TestAllocateMultipleContiguous(t *testing.T) {
	s := NewSlab(16)
	first := s.AllocateMultiple(4)
	if first < 0 {
		t.Fatalf("AllocateMultiple(4) failed on a fresh slab")
	}
	second := s.AllocateSingle()
	if second != first+4 {
		t.Fatalf("expected next single allocation at %d; got %d", first+4, second)
	}
}

func TestSingleArraySlabServesOneObjectOnly(t *testing.T) {
	s := NewSingleArray(8, 1000)
	if !s.IsSingleArray() {
		t.Fatalf("expected NewSingleArray to produce a single-array slab")
	}
	if !s.Full() {
		t.Fatalf("a single-array slab must report Full immediately")
	}
	if s.AllocateSingle() != -1 {
		t.Fatalf("expected AllocateSingle to always fail on a single-array slab")
	}
}

func TestNodeAddrIsLinearInIndex(t *testing.T) {
	s := NewSlab(64)
	base := s.NodeAddr(0)
	for i := 1; i < 4; i++ {
		if got, want := s.NodeAddr(i), base+uintptr(i*64); got != want {
			t.Fatalf("NodeAddr(%d): got %#x, want %#x", i, got, want)
		}
	}
}
