package vector

import "testing"

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := vectorHeader{
		codec:            CodecNumericCompressed,
		elementSize:      8,
		pageElementCount: 256,
		userVersion:      3,
		length:           600,
		activeCount:      88,
		rollbackID:       7,
		lastStamp:        42,
		pageOffsets:      []uint64{0, 120, 240},
		holes:            newHoleSet(),
	}
	h.holes.add(5)
	h.holes.add(600)

	buf := encodeHeader(h)
	got, err := decodeHeader(buf)
	if err != nil {
		t.Fatalf("decodeHeader failed: %v", err)
	}

	if got.codec != h.codec || got.elementSize != h.elementSize ||
		got.pageElementCount != h.pageElementCount || got.userVersion != h.userVersion ||
		got.length != h.length || got.activeCount != h.activeCount ||
		got.rollbackID != h.rollbackID || got.lastStamp != h.lastStamp {
		t.Fatalf("scalar fields mismatch after round trip: got %+v want %+v", got, h)
	}
	if len(got.pageOffsets) != len(h.pageOffsets) {
		t.Fatalf("expected %d page offsets, got %d", len(h.pageOffsets), len(got.pageOffsets))
	}
	for i, o := range h.pageOffsets {
		if got.pageOffsets[i] != o {
			t.Fatalf("page offset %d mismatch: want %d got %d", i, o, got.pageOffsets[i])
		}
	}
	if !got.holes.contains(5) || !got.holes.contains(600) {
		t.Fatal("expected holes to survive the round trip")
	}
}

func TestHeaderDecodeRejectsBadMagic(t *testing.T) {
	h := vectorHeader{holes: newHoleSet()}
	buf := encodeHeader(h)
	buf[0] ^= 0xff
	if _, err := decodeHeader(buf); err == nil {
		t.Fatal("expected decodeHeader to reject a corrupted magic")
	}
}

func TestHeaderDecodeRejectsChecksumMismatch(t *testing.T) {
	h := vectorHeader{holes: newHoleSet(), length: 10}
	buf := encodeHeader(h)
	buf[len(buf)-1] ^= 0xff
	if _, err := decodeHeader(buf); err == nil {
		t.Fatal("expected decodeHeader to reject a checksum mismatch")
	}
}

func TestHeaderDecodeRejectsTruncated(t *testing.T) {
	if _, err := decodeHeader([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected decodeHeader to reject a too-short buffer")
	}
}
