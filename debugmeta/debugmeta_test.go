package debugmeta

import "testing"

func TestAllocFreeRoundTrip(t *testing.T) {
	a := NewArena()
	id := a.Alloc(0x1000, 0x2000, 64)

	rec, ok := a.Get(id)
	if !ok {
		t.Fatalf("expected Get to find a freshly allocated record")
	}
	if rec.AllocID == 0 {
		t.Fatalf("expected a nonzero AllocID")
	}
	if rec.FreeID != 0 {
		t.Fatalf("expected FreeID == 0 before Free")
	}

	a.Free(id, 0x3000)
	rec, _ = a.Get(id)
	if rec.FreeID == 0 {
		t.Fatalf("expected FreeID to be stamped after Free")
	}
	if rec.FreePC != 0x3000 {
		t.Fatalf("expected FreePC == 0x3000; got %#x", rec.FreePC)
	}
}

func TestRecordRetainedAfterFree(t *testing.T) {
	a := NewArena()
	id := a.Alloc(0, 0x4000, 8)
	a.Free(id, 0)

	if got := a.Len(); got != 1 {
		t.Fatalf("expected the arena to retain exactly 1 record; got %d", got)
	}
	if _, ok := a.Get(id); !ok {
		t.Fatalf("expected the record to still be retrievable after Free")
	}
}

func TestGetUnknownID(t *testing.T) {
	a := NewArena()
	if _, ok := a.Get(999); ok {
		t.Fatalf("expected Get to fail on an unallocated ID")
	}
}

func TestIndexLookupResolvesAfterFree(t *testing.T) {
	a := NewArena()
	id := a.Alloc(0x1000, 0x5000, 16)
	a.Index(0x5000, 16, id)
	a.Free(id, 0x6000)

	rec, ok := a.Lookup(0x5008)
	if !ok {
		t.Fatalf("expected Lookup to resolve an address inside the indexed range")
	}
	if rec.AllocID != 1 || rec.FreeID != 1 {
		t.Fatalf("expected alloc_id=1, free_id=1; got %+v", rec)
	}
}

func TestLookupMissesUnindexedAddress(t *testing.T) {
	a := NewArena()
	if _, ok := a.Lookup(0x9000); ok {
		t.Fatalf("expected Lookup to fail on an address never indexed")
	}
}
