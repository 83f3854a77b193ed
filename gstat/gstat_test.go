package gstat

import "testing"

func TestSnapshotReflectsCounters(t *testing.T) {
	var c Counters
	c.PoolAllocs = 5
	c.PoolFrees = 2
	c.ActiveObjs = 3
	c.Violations = 1

	snap := c.Snapshot()
	if snap.PoolAllocs() != 5 {
		t.Errorf("PoolAllocs() = %d; want 5", snap.PoolAllocs())
	}
	if snap.PoolFrees() != 2 {
		t.Errorf("PoolFrees() = %d; want 2", snap.PoolFrees())
	}
	if snap.ActiveObjects() != 3 {
		t.Errorf("ActiveObjects() = %d; want 3", snap.ActiveObjects())
	}
	if snap.Violations() != 1 {
		t.Errorf("Violations() = %d; want 1", snap.Violations())
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	var c Counters
	snap := c.Snapshot()
	c.PoolAllocs = 100
	if snap.PoolAllocs() != 0 {
		t.Errorf("expected snapshot to be unaffected by later counter mutation; got %d", snap.PoolAllocs())
	}
}
