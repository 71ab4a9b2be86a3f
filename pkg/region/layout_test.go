// ABOUTME: Tests for the layout allocator's placement and hole bookkeeping
// ABOUTME: Verifies first-fit reuse, expand-in-place, and relocation

package region

import "testing"

func TestLayoutPlaceNewAppendsAtTail(t *testing.T) {
	l := newLayout()
	off1 := l.placeNew(PageSize)
	off2 := l.placeNew(PageSize)
	if off1 != 0 {
		t.Fatalf("expected first placement at offset 0, got %d", off1)
	}
	if off2 != PageSize {
		t.Fatalf("expected second placement at offset %d, got %d", PageSize, off2)
	}
	if l.tail != 2*PageSize {
		t.Fatalf("expected tail %d, got %d", 2*PageSize, l.tail)
	}
}

func TestLayoutFirstFitReusesLiveHole(t *testing.T) {
	l := newLayout()
	l.addPlacement(1, 0, 0, PageSize)
	l.addPlacement(2, PageSize, 0, PageSize)
	l.addPlacement(3, 2*PageSize, 0, PageSize)

	l.remove(2)
	l.promotePending() // move pending hole to live without a real flush

	off := l.placeNew(PageSize)
	if off != PageSize {
		t.Fatalf("expected reuse of freed hole at offset %d, got %d", PageSize, off)
	}
	if len(l.live) != 0 {
		t.Fatalf("expected hole fully consumed, got %d live holes", len(l.live))
	}
}

func TestLayoutExpandInPlaceAtTail(t *testing.T) {
	l := newLayout()
	l.addPlacement(1, 0, 0, PageSize)
	if !l.expandInPlace(1, 3*PageSize) {
		t.Fatal("expected tail region to expand in place")
	}
	p, _ := l.get(1)
	if p.reserve != 3*PageSize {
		t.Fatalf("expected reserve %d, got %d", 3*PageSize, p.reserve)
	}
	if l.tail != 3*PageSize {
		t.Fatalf("expected tail to grow to %d, got %d", 3*PageSize, l.tail)
	}
}

func TestLayoutExpandInPlaceAbsorbsFollowingHole(t *testing.T) {
	l := newLayout()
	l.addPlacement(1, 0, 0, PageSize)
	l.addPlacement(2, PageSize, 0, PageSize)
	l.addPlacement(3, 2*PageSize, 0, PageSize)

	l.remove(2)
	l.promotePending()

	if !l.expandInPlace(1, 2*PageSize) {
		t.Fatal("expected region 1 to absorb the following hole")
	}
	if len(l.live) != 0 {
		t.Fatalf("expected hole fully absorbed, got %d", len(l.live))
	}

	// Region 3 is unaffected; expanding region 1 past the hole it doesn't
	// fully cover should fail instead of overlapping region 3.
	l2 := newLayout()
	l2.addPlacement(10, 0, 0, PageSize)
	l2.addPlacement(11, PageSize, 0, PageSize)
	l2.addPlacement(12, 2*PageSize, 0, PageSize)
	l2.remove(11)
	l2.promotePending()
	if l2.expandInPlace(10, 3*PageSize) {
		t.Fatal("expected expand to fail: requested reserve exceeds the hole")
	}
}

func TestLayoutExpandInPlaceFailsWithoutAdjacentSpace(t *testing.T) {
	l := newLayout()
	l.addPlacement(1, 0, 0, PageSize)
	l.addPlacement(2, PageSize, 0, PageSize)
	if l.expandInPlace(1, 2*PageSize) {
		t.Fatal("expected expand to fail: region 2 occupies the adjacent space")
	}
}

func TestLayoutMoveRegionCreatesPendingHole(t *testing.T) {
	l := newLayout()
	l.addPlacement(1, 0, 0, PageSize)
	newOff := l.moveRegion(1, PageSize, 2*PageSize)
	if newOff != PageSize {
		t.Fatalf("expected move to land at tail offset %d, got %d", PageSize, newOff)
	}
	if len(l.live) != 0 {
		t.Fatalf("old extent must not be live-reusable before a flush, got %d live holes", len(l.live))
	}
	if len(l.pending) != 1 {
		t.Fatalf("expected one pending hole, got %d", len(l.pending))
	}
	if l.pending[0].offset != 0 || l.pending[0].length != PageSize {
		t.Fatalf("unexpected pending hole: %+v", l.pending[0])
	}

	// placeNew must not reuse the pending hole yet.
	off := l.placeNew(PageSize)
	if off == 0 {
		t.Fatal("pending hole was reused before being promoted")
	}
}

func TestLayoutPromotePendingCollapsesTail(t *testing.T) {
	l := newLayout()
	l.addPlacement(1, 0, 0, PageSize)
	l.addPlacement(2, PageSize, 0, PageSize)
	l.remove(2)
	l.remove(1)
	l.promotePending()

	if l.tail != 0 {
		t.Fatalf("expected tail to collapse to 0 once every region is removed, got %d", l.tail)
	}
	if len(l.live) != 0 {
		t.Fatalf("expected no live holes after full collapse, got %d", len(l.live))
	}
}

func TestInsertHoleMergesAdjacent(t *testing.T) {
	var holes []hole
	holes = insertHole(holes, hole{offset: 0, length: PageSize})
	holes = insertHole(holes, hole{offset: 2 * PageSize, length: PageSize})
	holes = insertHole(holes, hole{offset: PageSize, length: PageSize})

	if len(holes) != 1 {
		t.Fatalf("expected holes to merge into one, got %d: %+v", len(holes), holes)
	}
	if holes[0].offset != 0 || holes[0].length != 3*PageSize {
		t.Fatalf("unexpected merged hole: %+v", holes[0])
	}
}
