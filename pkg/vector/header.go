// ABOUTME: The vector header region: codec/version tags, logical
// ABOUTME: length, hole set, committed-page offset table, stamp chain head

package vector

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const headerMagic = "VECHDR1\x00"

// vectorHeader is the decoded form of a vector's header region.
type vectorHeader struct {
	codec            Codec
	elementSize      uint32
	pageElementCount uint32
	userVersion      uint32
	length           uint64
	activeCount      uint32
	rollbackID       uint64
	lastStamp        uint64
	pageOffsets      []uint64
	holes            *holeSet
}

// encodeHeader serializes h with a trailing CRC32, matching the
// region layer's checksummed-record convention.
func encodeHeader(h vectorHeader) []byte {
	holesBlob := h.holes.encode()

	fixed := 8 + 1 + 4 + 4 + 4 + 8 + 4 + 8 + 8 + 4 + 4 // magic+codec+elemSize+pageCount+userVer+length+activeCount+rollbackID+lastStamp+numOffsets+holesLen
	size := fixed + len(h.pageOffsets)*8 + len(holesBlob) + 4

	buf := make([]byte, size)
	off := 0
	copy(buf[off:], headerMagic)
	off += 8
	buf[off] = byte(h.codec)
	off++
	binary.LittleEndian.PutUint32(buf[off:], h.elementSize)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.pageElementCount)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.userVersion)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], h.length)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], h.activeCount)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], h.rollbackID)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], h.lastStamp)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(h.pageOffsets)))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(holesBlob)))
	off += 4
	for _, o := range h.pageOffsets {
		binary.LittleEndian.PutUint64(buf[off:], o)
		off += 8
	}
	copy(buf[off:], holesBlob)
	off += len(holesBlob)

	crc := crc32.ChecksumIEEE(buf[:off])
	binary.LittleEndian.PutUint32(buf[off:], crc)
	return buf
}

func decodeHeader(buf []byte) (vectorHeader, error) {
	var h vectorHeader
	if len(buf) < 8+1+4+4+4+8+4+8+8+4+4+4 {
		return h, fmt.Errorf("%w: truncated", ErrCorruptHeader)
	}
	if string(buf[:8]) != headerMagic {
		return h, fmt.Errorf("%w: bad magic", ErrCorruptHeader)
	}

	crcAt := len(buf) - 4
	want := binary.LittleEndian.Uint32(buf[crcAt:])
	if crc32.ChecksumIEEE(buf[:crcAt]) != want {
		return h, fmt.Errorf("%w: checksum mismatch", ErrCorruptHeader)
	}

	off := 8
	h.codec = Codec(buf[off])
	off++
	h.elementSize = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.pageElementCount = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.userVersion = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.length = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	h.activeCount = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.rollbackID = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	h.lastStamp = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	numOffsets := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	holesLen := binary.LittleEndian.Uint32(buf[off:])
	off += 4

	h.pageOffsets = make([]uint64, numOffsets)
	for i := range h.pageOffsets {
		if off+8 > crcAt {
			return h, fmt.Errorf("%w: truncated page offset table", ErrCorruptHeader)
		}
		h.pageOffsets[i] = binary.LittleEndian.Uint64(buf[off:])
		off += 8
	}

	if off+int(holesLen) > crcAt {
		return h, fmt.Errorf("%w: truncated hole blob", ErrCorruptHeader)
	}
	holes, err := decodeHoleSet(buf[off : off+int(holesLen)])
	if err != nil {
		return h, err
	}
	h.holes = holes
	return h, nil
}
