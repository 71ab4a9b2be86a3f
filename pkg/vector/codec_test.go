package vector

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestRawCodecRoundTrip(t *testing.T) {
	raw := make([]byte, 4*8)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(raw[i*8:], uint64(i*1000))
	}
	c := rawCodec{}
	enc := c.encode(raw, 8)
	dec, err := c.decode(enc, 8, 4)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(raw, dec) {
		t.Fatal("raw codec did not round trip exactly")
	}
}

func TestNumericCompressedCodecRoundTrip(t *testing.T) {
	values := []int64{0, 1, 1, 5, -3, -3, 1000000, -1000000, 0}
	raw := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(raw[i*8:], uint64(v))
	}
	c := numericCompressedCodec{}
	enc := c.encode(raw, 8)
	dec, err := c.decode(enc, 8, len(values))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(raw, dec) {
		t.Fatal("numeric compressed codec did not round trip exactly")
	}
}

func TestNumericCompressedCodecRejectsWrongElementSize(t *testing.T) {
	raw := make([]byte, 4*4)
	c := numericCompressedCodec{}
	enc := c.encode(raw, 4)
	if _, err := c.decode(enc, 8, 4); err == nil {
		t.Fatal("expected element size mismatch to be rejected")
	}
}

func TestNumericCompressedCodecRejectsWrongCount(t *testing.T) {
	raw := make([]byte, 4*4)
	c := numericCompressedCodec{}
	enc := c.encode(raw, 4)
	if _, err := c.decode(enc, 4, 5); err == nil {
		t.Fatal("expected element count mismatch to be rejected")
	}
}

func TestZigzagRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 42, -42, 1 << 40, -(1 << 40)} {
		if got := zigzagDecode(zigzagEncode(v)); got != v {
			t.Fatalf("zigzag round trip failed for %d: got %d", v, got)
		}
	}
}
