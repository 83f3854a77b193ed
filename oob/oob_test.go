package oob

import "testing"

func TestRewriteAndResolveRoundTrip(t *testing.T) {
	region := NewRegion(1 << 20)
	tbl := NewTable(region)

	const real = uintptr(0xdeadbeef)
	invalid, ok := tbl.Rewrite(real)
	if !ok {
		t.Fatalf("expected Rewrite to succeed with a fresh region")
	}
	if !region.InRegion(invalid) {
		t.Fatalf("minted pointer %#x not recognized as in-region", invalid)
	}

	got, ok := tbl.Resolve(invalid)
	if !ok {
		t.Fatalf("expected Resolve to find the rewritten pointer")
	}
	if got != real {
		t.Fatalf("Resolve returned %#x; want %#x", got, real)
	}
}

func TestGetActualValueIdentityOnOrdinaryPointer(t *testing.T) {
	region := NewRegion(1 << 20)
	tbl := NewTable(region)

	const ordinary = uintptr(0x1000)
	if got := tbl.GetActualValue(ordinary); got != ordinary {
		t.Fatalf("GetActualValue changed an ordinary pointer: got %#x, want %#x", got, ordinary)
	}
}

func TestRewriteExhaustion(t *testing.T) {
	region := NewRegion(64) // 8 rewrite slots
	tbl := NewTable(region)

	minted := 0
	for {
		if _, ok := tbl.Rewrite(uintptr(minted)); !ok {
			break
		}
		minted++
		if minted > 100 {
			t.Fatalf("region never reported exhaustion")
		}
	}
	if minted == 0 {
		t.Fatalf("expected at least one successful rewrite before exhaustion")
	}
}
