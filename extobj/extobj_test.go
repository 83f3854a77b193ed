package extobj

import "testing"

func TestRegisterLookupUnregister(t *testing.T) {
	var tbl Table
	tbl.Register(0x5000, 16, "argv[0]")

	label, base, length, ok := tbl.Lookup(0x5004)
	if !ok {
		t.Fatalf("expected Lookup to find the registered external object")
	}
	if label != "argv[0]" || base != 0x5000 || length != 16 {
		t.Fatalf("got (%q, %#x, %d); want (\"argv[0]\", 0x5000, 16)", label, base, length)
	}

	tbl.Unregister(0x5000)
	if _, _, _, ok := tbl.Lookup(0x5004); ok {
		t.Fatalf("expected Lookup to miss after Unregister")
	}
}

func TestLookupMissOutsideAnyObject(t *testing.T) {
	var tbl Table
	tbl.Register(0x1000, 8, "environ")
	if _, _, _, ok := tbl.Lookup(0x2000); ok {
		t.Fatalf("expected Lookup to miss an address outside any registered object")
	}
}
