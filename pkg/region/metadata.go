// ABOUTME: Per-region 4 KiB metadata records with embedded ids, name
// ABOUTME: index, dirty tracking, and checksum verification on load

package region

import (
	"encoding/binary"
	"fmt"
	"os"
)

// fileAPI is the narrow file surface the store needs. *os.File and
// *faultfs.File both satisfy it; tests inject failures via the latter.
type fileAPI interface {
	ReadAt(b []byte, off int64) (int, error)
	WriteAt(b []byte, off int64) (int, error)
	Sync() error
	Truncate(size int64) error
	Close() error
	Fd() uintptr
	Stat() (os.FileInfo, error)
}

type metaRecord struct {
	id         uint64
	name       string
	offset     uint64
	length     uint64
	reserve    uint64
	regionType RegionType
	userVer    uint16
}

func (r metaRecord) tombstoned() bool { return r.id == 0 }

// metadataStore owns the in-memory mirror of the meta file's slots:
// the header slot plus one slot per region (live or tombstoned).
// Durability is delegated to the caller (region.Store.flush), which
// controls write ordering relative to the data file.
type metadataStore struct {
	nextID    uint64
	createdAt int64

	slots    []metaRecord // index 0 is unused padding (the header slot) to keep slot index == array index
	dirty    map[int]bool
	idToSlot map[uint64]int
	nameToID map[string]uint64
	free     []int // tombstoned slot indices, reusable before appending
}

func newMetadataStore() *metadataStore {
	return &metadataStore{
		dirty:    make(map[int]bool),
		idToSlot: make(map[uint64]int),
		nameToID: make(map[string]uint64),
	}
}

// slotOffset returns the byte offset of metadata slot index i
// (1-based; slot 0 is the store header) within the meta file.
func slotOffset(i int) int64 { return int64(i) * metaSlotSize }

// load reads the header and every region slot from the meta file,
// rebuilding the id/name indexes. A slot whose checksum fails is
// tombstoned in memory and its slot index returned in corrupt so the
// caller can log a corruption event; the store continues to serve
// every other region.
func (m *metadataStore) load(f fileAPI) (corrupt []int, err error) {
	var hdr [metaSlotSize]byte
	if _, err := f.ReadAt(hdr[:], slotOffset(metaHeaderSlot)); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrIoFailed, err)
	}
	if string(hdr[hdrMagic:hdrMagic+8]) != storeMagic {
		return nil, ErrCorruptMetadata
	}
	if !verifySlotChecksum(hdr[:]) {
		return nil, ErrCorruptMetadata
	}
	m.nextID = binary.LittleEndian.Uint64(hdr[hdrNextID:])
	m.createdAt = int64(binary.LittleEndian.Uint64(hdr[hdrCreatedAt:]))

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat meta: %v", ErrIoFailed, err)
	}
	slotCount := int(info.Size() / metaSlotSize)

	m.slots = make([]metaRecord, slotCount)
	for i := 1; i < slotCount; i++ {
		var raw [metaSlotSize]byte
		if _, err := f.ReadAt(raw[:], slotOffset(i)); err != nil {
			return nil, fmt.Errorf("%w: read slot %d: %v", ErrIoFailed, i, err)
		}
		if !verifySlotChecksum(raw[:]) {
			corrupt = append(corrupt, i)
			m.free = append(m.free, i)
			continue
		}
		rec := decodeSlot(raw[:])
		m.slots[i] = rec
		if rec.tombstoned() {
			m.free = append(m.free, i)
			continue
		}
		m.idToSlot[rec.id] = i
		m.nameToID[rec.name] = rec.id
	}
	return corrupt, nil
}

// init writes a fresh header slot for a brand-new store.
func (m *metadataStore) init(f fileAPI, now int64) error {
	m.nextID = 1
	m.createdAt = now
	m.slots = make([]metaRecord, 1)

	var hdr [metaSlotSize]byte
	copy(hdr[hdrMagic:], storeMagic)
	binary.LittleEndian.PutUint32(hdr[hdrVersion:], formatVersion)
	binary.LittleEndian.PutUint32(hdr[hdrPageSize:], PageSize)
	binary.LittleEndian.PutUint64(hdr[hdrNextID:], m.nextID)
	binary.LittleEndian.PutUint64(hdr[hdrCreatedAt:], uint64(now))
	putSlotChecksum(hdr[:])

	if _, err := f.WriteAt(hdr[:], slotOffset(metaHeaderSlot)); err != nil {
		return fmt.Errorf("%w: write header: %v", ErrIoFailed, err)
	}
	return f.Sync()
}

// assignSlot reuses a tombstoned slot or appends a new one, drawing
// the id from the monotone counter persisted in the header.
func (m *metadataStore) assignSlot(name string) (id uint64, slotIndex int) {
	id = m.nextID
	m.nextID++

	if n := len(m.free); n > 0 {
		slotIndex = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		slotIndex = len(m.slots)
		m.slots = append(m.slots, metaRecord{})
	}

	m.slots[slotIndex] = metaRecord{id: id, name: name}
	m.idToSlot[id] = slotIndex
	m.nameToID[name] = id
	m.dirty[slotIndex] = true
	return id, slotIndex
}

func (m *metadataStore) update(id uint64, offset, length, reserve uint64, rtype RegionType, userVer uint16) {
	i := m.idToSlot[id]
	r := &m.slots[i]
	r.offset, r.length, r.reserve, r.regionType, r.userVer = offset, length, reserve, rtype, userVer
	m.dirty[i] = true
}

func (m *metadataStore) tombstone(id uint64) {
	i, ok := m.idToSlot[id]
	if !ok {
		return
	}
	name := m.slots[i].name
	m.slots[i] = metaRecord{}
	delete(m.idToSlot, id)
	delete(m.nameToID, name)
	m.free = append(m.free, i)
	m.dirty[i] = true
}

// flush writes the header first and then every dirty slot (with a fresh
// checksum); the order among dirty slots is not defined. It then fsyncs. Callers must fsync the data file
// first (region.Store.Flush enforces this ordering).
func (m *metadataStore) flush(f fileAPI) error {
	var hdr [metaSlotSize]byte
	copy(hdr[hdrMagic:], storeMagic)
	binary.LittleEndian.PutUint32(hdr[hdrVersion:], formatVersion)
	binary.LittleEndian.PutUint32(hdr[hdrPageSize:], PageSize)
	binary.LittleEndian.PutUint64(hdr[hdrNextID:], m.nextID)
	binary.LittleEndian.PutUint64(hdr[hdrCreatedAt:], uint64(m.createdAt))
	putSlotChecksum(hdr[:])
	if _, err := f.WriteAt(hdr[:], slotOffset(metaHeaderSlot)); err != nil {
		return fmt.Errorf("%w: write header: %v", ErrIoFailed, err)
	}

	for i := range m.dirty {
		raw := encodeSlot(m.slots[i])
		if _, err := f.WriteAt(raw, slotOffset(i)); err != nil {
			return fmt.Errorf("%w: write slot %d: %v", ErrIoFailed, i, err)
		}
	}
	m.dirty = make(map[int]bool)

	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: fsync meta: %v", ErrIoFailed, err)
	}
	return nil
}

func encodeSlot(r metaRecord) []byte {
	buf := make([]byte, metaSlotSize)
	binary.LittleEndian.PutUint64(buf[offID:], r.id)
	if r.id != 0 {
		nameBytes := []byte(r.name)
		if len(nameBytes) > maxRegionName {
			nameBytes = nameBytes[:maxRegionName]
		}
		buf[offNameLen] = byte(len(nameBytes))
		copy(buf[offName:], nameBytes)
		binary.LittleEndian.PutUint64(buf[offOffset:], r.offset)
		binary.LittleEndian.PutUint64(buf[offLength:], r.length)
		binary.LittleEndian.PutUint64(buf[offReserve:], r.reserve)
		binary.LittleEndian.PutUint16(buf[offType:], uint16(r.regionType))
		binary.LittleEndian.PutUint16(buf[offUserVer:], r.userVer)
	}
	putSlotChecksum(buf)
	return buf
}

func decodeSlot(buf []byte) metaRecord {
	id := binary.LittleEndian.Uint64(buf[offID:])
	if id == 0 {
		return metaRecord{}
	}
	nameLen := int(buf[offNameLen])
	return metaRecord{
		id:         id,
		name:       string(buf[offName : offName+nameLen]),
		offset:     binary.LittleEndian.Uint64(buf[offOffset:]),
		length:     binary.LittleEndian.Uint64(buf[offLength:]),
		reserve:    binary.LittleEndian.Uint64(buf[offReserve:]),
		regionType: RegionType(binary.LittleEndian.Uint16(buf[offType:])),
		userVer:    binary.LittleEndian.Uint16(buf[offUserVer:]),
	}
}
