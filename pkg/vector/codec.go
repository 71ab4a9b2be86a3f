// ABOUTME: Page encoders: bit-exact raw copies and a delta+varint
// ABOUTME: numeric compressor, both operating on fixed-width element bytes

package vector

import (
	"encoding/binary"
	"fmt"
)

// Codec identifies which encoder produced a page, persisted in the
// vector header so a reopen knows how to decode existing pages.
type Codec uint8

const (
	CodecRaw               Codec = 0
	CodecNumericCompressed Codec = 1
)

// codecVersion lets a future compressor revision coexist with pages
// written by an older one; bumping it is a compatible change as long
// as Decode still recognizes the old version tag.
const codecVersion = uint8(1)

// pageCodec encodes/decodes one page's worth of fixed-width elements.
// A page is always exactly elementSize*pageElementCount logical bytes
// before encoding; encoded form may be smaller (compressed) or larger
// (header overhead) but must round-trip exactly.
type pageCodec interface {
	id() Codec
	// encode packs `raw` (elementSize*count bytes, count <= pageElementCount)
	// into its on-disk representation.
	encode(raw []byte, elementSize int) []byte
	// decode unpacks buf back into count*elementSize raw bytes.
	decode(buf []byte, elementSize, count int) ([]byte, error)
}

func codecFor(c Codec) (pageCodec, error) {
	switch c {
	case CodecRaw:
		return rawCodec{}, nil
	case CodecNumericCompressed:
		return numericCompressedCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown codec id %d", ErrCorruptVectorPage, c)
	}
}

// rawCodec is a bit-exact copy; random access within a page is O(1)
// since element k lives at byte offset k*elementSize.
type rawCodec struct{}

func (rawCodec) id() Codec { return CodecRaw }

func (rawCodec) encode(raw []byte, elementSize int) []byte {
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}

func (rawCodec) decode(buf []byte, elementSize, count int) ([]byte, error) {
	want := elementSize * count
	if len(buf) < want {
		return nil, fmt.Errorf("%w: raw page too short: have %d want %d", ErrCorruptVectorPage, len(buf), want)
	}
	out := make([]byte, want)
	copy(out, buf[:want])
	return out, nil
}

// numericCompressedCodec applies delta-from-previous plus varint
// bit-packing over same-width little-endian integer lanes. It treats
// every element's bytes as an unsigned integer of elementSize width
// (the caller's numeric type, reinterpreted) and zigzag-encodes the
// signed delta so shrink-then-grow sequences don't blow up to the
// maximum varint width. Decoding reconstructs the exact original bytes.
// Random access within the region is O(page): a point read decodes the
// whole page and the reader caches it.
type numericCompressedCodec struct{}

func (numericCompressedCodec) id() Codec { return CodecNumericCompressed }

// header: version(1) | elementSize(1) | count(u32) | compressedLen(u32)
const numericHeaderSize = 1 + 1 + 4 + 4

func (numericCompressedCodec) encode(raw []byte, elementSize int) []byte {
	count := len(raw) / elementSize
	body := make([]byte, 0, len(raw))

	var prev uint64
	for i := 0; i < count; i++ {
		cur := readUint(raw[i*elementSize:(i+1)*elementSize], elementSize)
		delta := zigzagEncode(int64(cur - prev))
		body = binary.AppendUvarint(body, delta)
		prev = cur
	}

	out := make([]byte, numericHeaderSize+len(body))
	out[0] = codecVersion
	out[1] = byte(elementSize)
	binary.LittleEndian.PutUint32(out[2:], uint32(count))
	binary.LittleEndian.PutUint32(out[6:], uint32(len(body)))
	copy(out[numericHeaderSize:], body)
	return out
}

func (numericCompressedCodec) decode(buf []byte, elementSize, count int) ([]byte, error) {
	if len(buf) < numericHeaderSize {
		return nil, fmt.Errorf("%w: compressed page header truncated", ErrCorruptVectorPage)
	}
	version := buf[0]
	if version != codecVersion {
		return nil, fmt.Errorf("%w: unsupported compressed page version %d", ErrCorruptVectorPage, version)
	}
	storedElemSize := int(buf[1])
	if storedElemSize != elementSize {
		return nil, fmt.Errorf("%w: element size mismatch: page has %d, vector expects %d", ErrCorruptVectorPage, storedElemSize, elementSize)
	}
	storedCount := int(binary.LittleEndian.Uint32(buf[2:]))
	if storedCount != count {
		return nil, fmt.Errorf("%w: element count mismatch: page has %d, requested %d", ErrCorruptVectorPage, storedCount, count)
	}
	bodyLen := int(binary.LittleEndian.Uint32(buf[6:]))
	if numericHeaderSize+bodyLen > len(buf) {
		return nil, fmt.Errorf("%w: compressed page body truncated", ErrCorruptVectorPage)
	}
	body := buf[numericHeaderSize : numericHeaderSize+bodyLen]

	out := make([]byte, count*elementSize)
	var prev uint64
	pos := 0
	for i := 0; i < count; i++ {
		delta, n := binary.Uvarint(body[pos:])
		if n <= 0 {
			return nil, fmt.Errorf("%w: corrupt varint in compressed page", ErrCorruptVectorPage)
		}
		pos += n
		cur := prev + uint64(zigzagDecode(delta))
		writeUint(out[i*elementSize:(i+1)*elementSize], cur, elementSize)
		prev = cur
	}
	return out, nil
}

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

func readUint(b []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	default:
		panic(fmt.Sprintf("vector: unsupported element size %d", size))
	}
}

func writeUint(b []byte, v uint64, size int) {
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, v)
	default:
		panic(fmt.Sprintf("vector: unsupported element size %d", size))
	}
}
