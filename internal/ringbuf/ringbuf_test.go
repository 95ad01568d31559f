package ringbuf

import (
	"testing"
)

func TestRing_PushAndOrder(t *testing.T) {
	r := New[int](3)

	if _, ok := r.Last(); ok {
		t.Fatal("empty ring should have no last value")
	}
	r.Push(1)
	r.Push(2)

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}
	got := r.AppendTo(nil)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected [1 2], got %v", got)
	}
	if v, ok := r.Last(); !ok || v != 2 {
		t.Fatalf("expected last=2, got %v ok=%v", v, ok)
	}
}

func TestRing_OverwritesOldest(t *testing.T) {
	r := New[int](3) // storage rounds to 4, limit stays 3

	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	if r.Len() != 3 || r.Cap() != 3 {
		t.Fatalf("expected len=3 cap=3, got len=%d cap=%d", r.Len(), r.Cap())
	}
	got := r.AppendTo(nil)
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if r.Overwritten() != 2 {
		t.Fatalf("expected overwritten=2, got %d", r.Overwritten())
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New[int](4)

	// Cycle through the storage several times.
	for round := 0; round < 5; round++ {
		for i := 0; i < 4; i++ {
			r.Push(round*10 + i)
		}
		got := r.AppendTo(make([]int, 0, 4))
		for i := 0; i < 4; i++ {
			if got[i] != round*10+i {
				t.Fatalf("round %d idx %d: expected %d, got %d", round, i, round*10+i, got[i])
			}
		}
	}
}

func TestRing_AppendToReusesBuffer(t *testing.T) {
	r := New[int](2)
	r.Push(7)
	r.Push(8)

	scratch := make([]int, 0, 2)
	out := r.AppendTo(scratch[:0])
	if &out[0] != &scratch[:1][0] {
		t.Error("AppendTo should write into dst when it has room")
	}
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := New[string](0)
	r.Push("a")
	r.Push("b")
	if r.Len() != 1 {
		t.Fatalf("expected len=1, got %d", r.Len())
	}
	if v, _ := r.Last(); v != "b" {
		t.Fatalf("expected b, got %q", v)
	}
}

func TestRing_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {1023, 1024},
	}
	for _, tc := range cases {
		got := nextPow2(tc.in)
		if got != tc.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
