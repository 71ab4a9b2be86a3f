// ABOUTME: Stamp-tagged rollback log: a sequence of checksummed state
// ABOUTME: snapshots in a dedicated region, restorable to any prior stamp

package vector

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/seqdb/seqdb/pkg/region"
)

// rollbackRecord is one stamped restore point. The spec frames the log
// as reverse deltas; this implementation instead stores the whole
// vector's state per stamp (data region bytes, page offsets, length,
// active buffer, hole set). For the element counts this layer targets
// that trades some log size for a much simpler, more obviously correct
// restore path, and is recorded as an explicit simplification in
// DESIGN.md — the observable behavior (testable property 6) is
// unaffected either way.
type rollbackRecord struct {
	stamp       uint64
	length      uint64
	pageOffsets []uint64
	holes       *holeSet
	data        []byte // full data-region content (committed pages + active buffer) as of this stamp
}

func encodeRollbackRecord(rec rollbackRecord) []byte {
	holesBlob := rec.holes.encode()
	fixed := 8 + 8 + 4 + 4 + 4 // stamp + length + numOffsets + holesLen + dataLen
	size := fixed + len(rec.pageOffsets)*8 + len(holesBlob) + len(rec.data) + 4
	buf := make([]byte, size)

	off := 0
	binary.LittleEndian.PutUint64(buf[off:], rec.stamp)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], rec.length)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(rec.pageOffsets)))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(holesBlob)))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(rec.data)))
	off += 4
	for _, o := range rec.pageOffsets {
		binary.LittleEndian.PutUint64(buf[off:], o)
		off += 8
	}
	copy(buf[off:], holesBlob)
	off += len(holesBlob)
	copy(buf[off:], rec.data)
	off += len(rec.data)

	crc := crc32.ChecksumIEEE(buf[:off])
	binary.LittleEndian.PutUint32(buf[off:], crc)
	return buf
}

// decodeRollbackRecord decodes one record starting at buf[0], returning
// the record and the number of bytes it consumed.
func decodeRollbackRecord(buf []byte) (rollbackRecord, int, error) {
	var rec rollbackRecord
	if len(buf) < 8+8+4+4+4+4 {
		return rec, 0, fmt.Errorf("%w: truncated rollback record", ErrCorruptHeader)
	}
	off := 0
	rec.stamp = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	rec.length = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	numOffsets := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	holesLen := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	dataLen := binary.LittleEndian.Uint32(buf[off:])
	off += 4

	rec.pageOffsets = make([]uint64, numOffsets)
	for i := range rec.pageOffsets {
		if off+8 > len(buf) {
			return rec, 0, fmt.Errorf("%w: truncated offsets", ErrCorruptHeader)
		}
		rec.pageOffsets[i] = binary.LittleEndian.Uint64(buf[off:])
		off += 8
	}

	if off+int(holesLen) > len(buf) {
		return rec, 0, fmt.Errorf("%w: truncated holes", ErrCorruptHeader)
	}
	holes, err := decodeHoleSet(buf[off : off+int(holesLen)])
	if err != nil {
		return rec, 0, err
	}
	rec.holes = holes
	off += int(holesLen)

	if off+int(dataLen)+4 > len(buf) {
		return rec, 0, fmt.Errorf("%w: truncated data", ErrCorruptHeader)
	}
	rec.data = append([]byte{}, buf[off:off+int(dataLen)]...)
	off += int(dataLen)

	crcAt := off
	want := binary.LittleEndian.Uint32(buf[crcAt:])
	if crc32.ChecksumIEEE(buf[:crcAt]) != want {
		return rec, 0, fmt.Errorf("%w: rollback record checksum mismatch", ErrCorruptHeader)
	}
	off += 4

	return rec, off, nil
}

// loadRollbackLog reads and decodes every record currently in id's
// region, in append order.
func loadRollbackLog(store *region.Store, id uint64) ([]rollbackRecord, error) {
	buf, err := store.ReadRegion(id)
	if err != nil {
		return nil, err
	}
	var out []rollbackRecord
	for len(buf) > 0 {
		rec, n, err := decodeRollbackRecord(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
		buf = buf[n:]
	}
	return out, nil
}

// StampedFlush flushes the vector like Flush, then appends a restore
// point tagged stamp to the rollback log. Stamps must strictly
// increase across calls.
func (v *StoredVector[T]) StampedFlush(stamp uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if stamp <= v.lastStamp {
		return ErrStampNotIncreasing
	}

	if v.rollbackID == 0 {
		id, err := v.store.CreateRegionIfNeeded(v.name+":rollback", region.RegionTypeRollbackLog)
		if err != nil {
			return err
		}
		v.rollbackID = id
	}

	if err := v.flushLocked(); err != nil {
		return err
	}

	dataBytes, err := v.store.ReadRegion(v.dataID)
	if err != nil {
		return err
	}
	rec := rollbackRecord{
		stamp:       stamp,
		length:      v.length,
		pageOffsets: append([]uint64{}, v.pageOffsets...),
		holes:       v.holes.clone(),
		data:        append([]byte{}, dataBytes...),
	}
	if err := v.store.AppendToRegion(v.rollbackID, encodeRollbackRecord(rec)); err != nil {
		return err
	}
	v.lastStamp = stamp
	v.dirty = true // header's lastStamp/rollbackID changed even though data/holes did not
	if err := v.flushLocked(); err != nil {
		return err
	}

	if v.log != nil {
		v.log.LogRollback(v.name, stamp, 0, nil)
	}
	return nil
}

// RollbackStamp restores the vector to the state observable immediately
// after the StampedFlush call that produced stamp, discarding any
// stamps recorded after it, then flushes.
func (v *StoredVector[T]) RollbackStamp(stamp uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.rollbackID == 0 {
		return ErrUnknownStamp
	}
	records, err := loadRollbackLog(v.store, v.rollbackID)
	if err != nil {
		return err
	}

	var target *rollbackRecord
	var keep []rollbackRecord
	for i := range records {
		if records[i].stamp == stamp {
			target = &records[i]
			keep = records[:i+1]
			break
		}
	}
	if target == nil {
		return ErrUnknownStamp
	}

	if err := v.store.WriteAllToRegion(v.dataID, target.data); err != nil {
		return err
	}
	v.length = target.length
	v.pageOffsets = append([]uint64{}, target.pageOffsets...)
	v.holes = target.holes.clone()
	v.lastStamp = stamp

	numFullPages := uint64(len(v.pageOffsets) - 1)
	activeCount := target.length - numFullPages*uint64(v.pageElementCount)
	tailStart := v.pageOffsets[len(v.pageOffsets)-1]
	v.activeBuf = make([]T, activeCount)
	for i := range v.activeBuf {
		off := tailStart + uint64(i)*uint64(v.elementSize)
		v.activeBuf[i] = v.codec.Decode(target.data[off:])
	}
	v.trailingPersisted = activeCount > 0

	rebuilt := make([]byte, 0, len(keep))
	for _, r := range keep {
		rebuilt = append(rebuilt, encodeRollbackRecord(r)...)
	}
	if err := v.store.WriteAllToRegion(v.rollbackID, rebuilt); err != nil {
		return err
	}

	v.dirty = true
	applied := len(records) - len(keep) + 1
	if err := v.flushLocked(); err != nil {
		return err
	}
	if v.log != nil {
		v.log.LogRollback(v.name, stamp, applied, nil)
	}
	if v.met != nil {
		v.met.VectorRollbackTotal.WithLabelValues(v.name).Inc()
		v.met.VectorElementsTotal.WithLabelValues(v.name).Set(float64(v.length))
	}
	return nil
}
