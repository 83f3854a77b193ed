package dtrace

import "testing"

func callA(d *Dedup) (bool, string) { return d.First(1) }
func callB(d *Dedup) (bool, string) { return d.First(1) }

func TestFirstReportsOnceWhenDisabled(t *testing.T) {
	d := &Dedup{}
	first, _ := callA(d)
	if !first {
		t.Fatalf("expected First to report true when dedup is disabled")
	}
	second, _ := callA(d)
	if !second {
		t.Fatalf("disabled Dedup must never suppress a report")
	}
	if got := d.Len(); got != 0 {
		t.Fatalf("disabled Dedup should not record any call chains; got Len()=%d", got)
	}
}

func TestFirstSuppressesRepeatedCallSite(t *testing.T) {
	d := &Dedup{Enabled: true}
	first, trace := callA(d)
	if !first {
		t.Fatalf("expected first sighting of a call site to report true")
	}
	if trace == "" {
		t.Fatalf("expected a non-empty stack trace on first sighting")
	}

	again, _ := callA(d)
	if again {
		t.Fatalf("expected repeated call from the same site to be suppressed")
	}
}

func TestFirstDistinguishesCallSites(t *testing.T) {
	d := &Dedup{Enabled: true}
	if first, _ := callA(d); !first {
		t.Fatalf("expected callA's first sighting to report true")
	}
	if first, _ := callB(d); !first {
		t.Fatalf("expected callB's first sighting to report true, distinct from callA")
	}
	if got := d.Len(); got != 2 {
		t.Fatalf("expected 2 distinct recorded call sites; got %d", got)
	}
}

func TestReset(t *testing.T) {
	d := &Dedup{Enabled: true}
	callA(d)
	d.Reset()
	if got := d.Len(); got != 0 {
		t.Fatalf("expected Len() == 0 after Reset; got %d", got)
	}
	first, _ := callA(d)
	if !first {
		t.Fatalf("expected a call site to report true again after Reset")
	}
}
