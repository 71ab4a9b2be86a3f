// ABOUTME: On-disk constants and the page-level checksum helpers
// ABOUTME: shared by the metadata store and the layout's hole bookkeeping

package region

import (
	"encoding/binary"
	"hash/crc32"
)

// PageSize is the fixed filesystem page size. Every region offset,
// length, and reserve is a multiple of it. Changing it is an
// incompatible on-disk format change.
const PageSize = 4096

const (
	// storeMagic identifies a data/meta file pair produced by this store.
	storeMagic      = "RGNSTOR1"
	formatVersion   = uint32(1)
	metaSlotSize    = PageSize
	metaHeaderSlot  = 0
	maxRegionName   = 255
	crcTrailerSize  = 4
	slotPayloadSize = metaSlotSize - crcTrailerSize
)

// region record field offsets within a 4 KiB metadata slot.
const (
	offID       = 0
	offNameLen  = 8
	offName     = 9
	offOffset   = offName + maxRegionName // 264
	offLength   = offOffset + 8           // 272
	offReserve  = offLength + 8           // 280
	offType     = offReserve + 8          // 288
	offUserVer  = offType + 2             // 290
	offReserved = offUserVer + 2          // 292, padding out to the CRC trailer
)

// store header (slot 0) field offsets.
const (
	hdrMagic     = 0
	hdrVersion   = 8
	hdrPageSize  = 12
	hdrNextID    = 16
	hdrCreatedAt = 24
)

// RegionType distinguishes the purpose of a region for introspection;
// the store itself treats every region as an opaque byte range.
type RegionType uint16

const (
	// RegionTypeOpaque is the default for callers that don't tag regions.
	RegionTypeOpaque RegionType = 0
	// RegionTypeVectorData holds a stored vector's encoded element pages.
	RegionTypeVectorData RegionType = 1
	// RegionTypeVectorHeader holds a stored vector's header/manifest.
	RegionTypeVectorHeader RegionType = 2
	// RegionTypeRollbackLog holds a stamp/rollback reverse-delta log.
	RegionTypeRollbackLog RegionType = 3
)

// pageAlign rounds n up to the nearest multiple of PageSize.
func pageAlign(n uint64) uint64 {
	return (n + PageSize - 1) / PageSize * PageSize
}

func checksumSlot(slot []byte) uint32 {
	return crc32.ChecksumIEEE(slot[:slotPayloadSize])
}

func putSlotChecksum(slot []byte) {
	crc := checksumSlot(slot)
	binary.LittleEndian.PutUint32(slot[slotPayloadSize:], crc)
}

func verifySlotChecksum(slot []byte) bool {
	want := binary.LittleEndian.Uint32(slot[slotPayloadSize:])
	return checksumSlot(slot) == want
}
