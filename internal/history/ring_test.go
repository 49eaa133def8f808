package history

import (
	"testing"
)

func snap(t float64) Snapshot {
	return Snapshot{Time: t, Level: 2.5}
}

func TestRingPushAndLen(t *testing.T) {
	r := NewRing(3)
	if r.Len() != 0 || r.Cap() != 3 {
		t.Fatalf("fresh ring: len=%d cap=%d", r.Len(), r.Cap())
	}

	r.Push(snap(1))
	r.Push(snap(2))
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestRingEviction(t *testing.T) {
	r := NewRing(3)
	for i := 1; i <= 5; i++ {
		r.Push(snap(float64(i)))
	}

	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	got := r.Recent(3)
	want := []float64{3, 4, 5}
	for i, s := range got {
		if s.Time != want[i] {
			t.Errorf("Recent[%d].Time = %g, want %g", i, s.Time, want[i])
		}
	}
}

func TestRecentPartial(t *testing.T) {
	r := NewRing(10)
	for i := 1; i <= 4; i++ {
		r.Push(snap(float64(i)))
	}

	got := r.Recent(2)
	if len(got) != 2 || got[0].Time != 3 || got[1].Time != 4 {
		t.Errorf("Recent(2) = %+v", got)
	}

	// Asking for more than retained returns what exists.
	if got := r.Recent(100); len(got) != 4 {
		t.Errorf("Recent(100) returned %d snapshots, want 4", len(got))
	}
	if got := r.Recent(0); len(got) != 0 {
		t.Errorf("Recent(0) returned %d snapshots", len(got))
	}
}

func TestSince(t *testing.T) {
	r := NewRing(5)
	for i := 1; i <= 5; i++ {
		r.Push(snap(float64(i) * 10))
	}

	got := r.Since(30)
	if len(got) != 3 {
		t.Fatalf("Since(30) returned %d snapshots, want 3", len(got))
	}
	if got[0].Time != 30 || got[2].Time != 50 {
		t.Errorf("Since(30) = %+v", got)
	}

	if got := r.Since(1000); len(got) != 0 {
		t.Errorf("Since(1000) returned %d snapshots", len(got))
	}
	if got := r.Since(0); len(got) != 5 {
		t.Errorf("Since(0) returned %d snapshots, want 5", len(got))
	}
}

func TestClear(t *testing.T) {
	r := NewRing(3)
	r.Push(snap(1))
	r.Push(snap(2))
	r.Clear()

	if r.Len() != 0 {
		t.Errorf("Len = %d after Clear, want 0", r.Len())
	}
	r.Push(snap(9))
	got := r.Recent(1)
	if len(got) != 1 || got[0].Time != 9 {
		t.Errorf("ring unusable after Clear: %+v", got)
	}
}
