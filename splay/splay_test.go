package splay

import "testing"

func TestInsertRetrieve(t *testing.T) {
	var tr Tree[string]
	tr.Insert(100, 16, "a")
	tr.Insert(200, 32, "b")
	tr.Insert(50, 10, "c")

	key := uintptr(210)
	var length uintptr
	var tag string
	if !tr.Retrieve(&key, &length, &tag) {
		t.Fatalf("expected Retrieve to find interval containing 210")
	}
	if key != 200 || length != 32 || tag != "b" {
		t.Fatalf("got (%d, %d, %q); want (200, 32, \"b\")", key, length, tag)
	}
}

func TestRetrieveMiss(t *testing.T) {
	var tr Tree[int]
	tr.Insert(0, 10, 1)
	tr.Insert(20, 10, 2)

	key := uintptr(15)
	var length uintptr
	var tag int
	if tr.Retrieve(&key, &length, &tag) {
		t.Fatalf("expected Retrieve to miss the gap between intervals")
	}
}

func TestDelete(t *testing.T) {
	var tr Tree[int]
	tr.Insert(0, 10, 1)
	tr.Insert(10, 10, 2)
	tr.Insert(20, 10, 3)

	tr.Delete(10)
	if got := tr.Len(); got != 2 {
		t.Fatalf("expected 2 intervals after delete; got %d", got)
	}

	key := uintptr(15)
	var length uintptr
	var tag int
	if tr.Retrieve(&key, &length, &tag) {
		t.Fatalf("expected deleted interval to be gone")
	}
}

func TestNoSplayFindMatchesRetrieve(t *testing.T) {
	var tr Tree[int]
	for i := 0; i < 50; i++ {
		tr.Insert(uintptr(i*16), 16, i)
	}

	for i := 0; i < 50; i++ {
		start, length, tag, ok := tr.NoSplayFind(uintptr(i*16 + 4))
		if !ok {
			t.Fatalf("NoSplayFind missed interval %d", i)
		}
		if start != uintptr(i*16) || length != 16 || tag != i {
			t.Fatalf("interval %d: got (%d, %d, %d)", i, start, length, tag)
		}
	}

	if _, _, _, ok := tr.NoSplayFind(50 * 16); ok {
		t.Fatalf("expected NoSplayFind to miss just past the last interval")
	}
}

func TestManyInsertsPreserveCount(t *testing.T) {
	var tr Tree[struct{}]
	const n = 500
	for i := 0; i < n; i++ {
		tr.Insert(uintptr(i*8), 8, struct{}{})
	}
	if got := tr.Len(); got != n {
		t.Fatalf("expected %d intervals; got %d", n, got)
	}
}
