package vector

import "testing"

func TestHoleSetAddContainsRemove(t *testing.T) {
	h := newHoleSet()
	if h.contains(5) {
		t.Fatal("empty set should not contain 5")
	}
	h.add(5)
	if !h.contains(5) {
		t.Fatal("expected 5 to be a hole after add")
	}
	h.remove(5)
	if h.contains(5) {
		t.Fatal("expected 5 to no longer be a hole after remove")
	}
}

func TestHoleSetMergesAdjacentRuns(t *testing.T) {
	h := newHoleSet()
	h.add(3)
	h.add(4)
	h.add(2)
	if len(h.runs) != 1 {
		t.Fatalf("expected adjacent adds to merge into one run, got %d runs: %v", len(h.runs), h.runs)
	}
	if h.runs[0] != (holeRun{start: 2, end: 5}) {
		t.Fatalf("expected run [2,5), got %v", h.runs[0])
	}
}

func TestHoleSetRemoveSplitsRun(t *testing.T) {
	h := newHoleSet()
	h.add(1)
	h.add(2)
	h.add(3)
	h.remove(2)
	if h.contains(2) {
		t.Fatal("expected 2 removed")
	}
	if !h.contains(1) || !h.contains(3) {
		t.Fatal("expected 1 and 3 to remain holes")
	}
	if len(h.runs) != 2 {
		t.Fatalf("expected removing the middle of a run to split it into two runs, got %d", len(h.runs))
	}
}

func TestHoleSetLowest(t *testing.T) {
	h := newHoleSet()
	if _, ok := h.lowest(); ok {
		t.Fatal("expected no lowest hole on an empty set")
	}
	h.add(10)
	h.add(3)
	got, ok := h.lowest()
	if !ok || got != 3 {
		t.Fatalf("expected lowest hole 3, got %d (ok=%v)", got, ok)
	}
}

func TestHoleSetRemoveRange(t *testing.T) {
	h := newHoleSet()
	h.add(1)
	h.add(5)
	h.add(6)
	h.add(9)
	h.removeRange(6)
	if !h.contains(1) || !h.contains(5) {
		t.Fatal("expected holes below the cutoff to survive")
	}
	if h.contains(6) || h.contains(9) {
		t.Fatal("expected holes at or above the cutoff to be dropped")
	}
}

func TestHoleSetEncodeDecodeRoundTrip(t *testing.T) {
	h := newHoleSet()
	for _, i := range []uint64{0, 1, 2, 10, 11, 100, 1000, 1001} {
		h.add(i)
	}
	blob := h.encode()
	decoded, err := decodeHoleSet(blob)
	if err != nil {
		t.Fatalf("decodeHoleSet failed: %v", err)
	}
	if len(decoded.runs) != len(h.runs) {
		t.Fatalf("expected %d runs after round trip, got %d", len(h.runs), len(decoded.runs))
	}
	for i, r := range h.runs {
		if decoded.runs[i] != r {
			t.Fatalf("run %d mismatch: want %v got %v", i, r, decoded.runs[i])
		}
	}
}

func TestHoleSetDecodeRejectsTruncated(t *testing.T) {
	if _, err := decodeHoleSet([]byte{0xff}); err == nil {
		t.Fatal("expected decodeHoleSet to reject a truncated buffer")
	}
}
