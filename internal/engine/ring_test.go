package engine

import "testing"

func TestRingDropsOldest(t *testing.T) {
	t.Parallel()
	r := newRing[int](3)
	for i := 1; i <= 5; i++ {
		r.push(i)
	}
	if r.len() != 3 {
		t.Fatalf("len = %d, want 3", r.len())
	}
	if got := r.all(); got[0] != 3 || got[2] != 5 {
		t.Errorf("all = %v, want [3 4 5]", got)
	}
}

func TestRingTail(t *testing.T) {
	t.Parallel()
	r := newRing[int](10)
	for i := 1; i <= 5; i++ {
		r.push(i)
	}

	cases := []struct {
		n    int
		want []int
	}{
		{2, []int{4, 5}},
		{0, []int{1, 2, 3, 4, 5}},
		{99, []int{1, 2, 3, 4, 5}},
	}
	for _, tc := range cases {
		got := r.tail(tc.n)
		if len(got) != len(tc.want) {
			t.Fatalf("tail(%d) = %v, want %v", tc.n, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("tail(%d) = %v, want %v", tc.n, got, tc.want)
			}
		}
	}
}

func TestRingLastAndClear(t *testing.T) {
	t.Parallel()
	r := newRing[string](2)
	if _, ok := r.last(); ok {
		t.Error("last() on empty ring reported ok")
	}
	r.push("a")
	r.push("b")
	if v, ok := r.last(); !ok || v != "b" {
		t.Errorf("last = %q/%v, want b/true", v, ok)
	}
	r.clear()
	if r.len() != 0 {
		t.Errorf("len after clear = %d, want 0", r.len())
	}
}

func TestRingTailCopies(t *testing.T) {
	t.Parallel()
	r := newRing[int](5)
	r.push(1)

	out := r.tail(1)
	out[0] = 42
	if r.items[0] != 1 {
		t.Error("tail returned a view into the ring")
	}
}
