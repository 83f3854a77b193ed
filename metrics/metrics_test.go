package metrics

import "testing"

func TestRegistryGathersWithoutError(t *testing.T) {
	mfs, err := Registry.Gather()
	if err != nil {
		t.Fatalf("unexpected error gathering metrics: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected at least one registered metric family")
	}
}
