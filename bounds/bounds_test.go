package bounds

import "testing"

func TestExactCheck2(t *testing.T) {
	cases := []struct {
		base, ptr, bound uintptr
		want             bool
	}{
		{100, 100, 200, true},
		{100, 199, 200, true},
		{100, 200, 200, false},
		{100, 99, 200, false},
	}
	for _, c := range cases {
		if got := ExactCheck2(c.base, c.ptr, c.bound); got != c.want {
			t.Errorf("ExactCheck2(%d, %d, %d) = %t; want %t", c.base, c.ptr, c.bound, got, c.want)
		}
	}
}

func TestFastLSCheckPtrFirstArgOrder(t *testing.T) {
	if !FastLSCheck(150, 100, 200) {
		t.Errorf("expected FastLSCheck to admit a pointer inside [100, 200)")
	}
	if FastLSCheck(200, 100, 200) {
		t.Errorf("expected FastLSCheck to reject the bound itself")
	}
}

func TestInRangeAllowsOnePastEnd(t *testing.T) {
	if !InRange(190, 10, 100, 200) {
		t.Errorf("expected InRange to allow a range ending exactly at bound")
	}
	if InRange(190, 11, 100, 200) {
		t.Errorf("expected InRange to reject a range overrunning bound by one byte")
	}
}
