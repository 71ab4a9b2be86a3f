// ABOUTME: StoredVector: an append-mostly, index-addressable typed
// ABOUTME: sequence backed by two regions, with optional numeric compression

package vector

import (
	"fmt"
	"sync"

	"github.com/seqdb/seqdb/internal/logger"
	"github.com/seqdb/seqdb/internal/metrics"
	"github.com/seqdb/seqdb/pkg/region"
)

// Options configures Open.
type Options[T any] struct {
	// Element converts between T and its fixed-width byte form.
	// Required.
	Element ElementCodec[T]
	// PageCodec selects the page encoder; defaults to CodecRaw.
	PageCodec Codec
	// PageElementCount is the number of elements per page; must be a
	// power of two. Defaults to 256.
	PageElementCount int
	// UserVersion is an opaque caller-defined schema tag; a reopen with
	// a different value fails ErrVersionMismatch unless ForceImport.
	UserVersion uint32
	// ForceImport discards and reinitializes a vector whose on-disk
	// element size or user version doesn't match instead of failing.
	ForceImport bool

	Log     *logger.Logger
	Metrics *metrics.Metrics
}

const defaultPageElementCount = 256

// StoredVector is a typed, index-addressable sequence persisted across
// a data region (encoded pages) and a header region (manifest). A
// single StoredVector handle is not safe for concurrent use by
// multiple writer goroutines; pair it with Reader snapshots (reader.go)
// for concurrent read access.
type StoredVector[T any] struct {
	mu sync.Mutex

	store *region.Store
	name  string
	codec ElementCodec[T]

	dataID, headerID uint64
	rollbackID       uint64

	elementSize      int
	pageElementCount int
	pageCodec        Codec
	userVersion      uint32

	length    uint64
	activeBuf []T
	holes     *holeSet

	// pageOffsets[k] is the byte offset in the data region where
	// committed page k begins; pageOffsets[len-1] is the end of the
	// last committed page (== the data region's committed length,
	// excluding any trailing flushed copy of the active buffer).
	pageOffsets []uint64
	// trailingPersisted is true when the data region's current
	// on-disk tail (beyond pageOffsets[last]) holds a previously
	// flushed raw copy of the active buffer that a new committed page
	// must first strip before it can be appended.
	trailingPersisted bool

	lastStamp uint64
	dirty     bool

	log *logger.Logger
	met *metrics.Metrics
}

// Open opens or creates the named vector on store. A vector occupies
// two regions, "<name>:data" and "<name>:header".
func Open[T any](store *region.Store, name string, opts Options[T]) (*StoredVector[T], error) {
	if opts.Element == nil {
		return nil, fmt.Errorf("vector: Options.Element is required")
	}
	pageElementCount := opts.PageElementCount
	if pageElementCount == 0 {
		pageElementCount = defaultPageElementCount
	}
	if pageElementCount&(pageElementCount-1) != 0 {
		return nil, fmt.Errorf("vector: PageElementCount %d is not a power of two", pageElementCount)
	}

	dataID, err := store.CreateRegionIfNeeded(name+":data", region.RegionTypeVectorData)
	if err != nil {
		return nil, err
	}
	headerID, err := store.CreateRegionIfNeeded(name+":header", region.RegionTypeVectorHeader)
	if err != nil {
		return nil, err
	}

	v := &StoredVector[T]{
		store:            store,
		name:             name,
		codec:            opts.Element,
		dataID:           dataID,
		headerID:         headerID,
		elementSize:      opts.Element.Size(),
		pageElementCount: pageElementCount,
		pageCodec:        opts.PageCodec,
		userVersion:      opts.UserVersion,
		holes:            newHoleSet(),
		pageOffsets:      []uint64{0},
		log:              opts.Log,
		met:              opts.Metrics,
	}

	hdrBytes, err := store.ReadRegion(headerID)
	if err != nil {
		return nil, err
	}
	if len(hdrBytes) == 0 {
		return v, nil
	}

	hdr, err := decodeHeader(hdrBytes)
	if err != nil {
		return nil, err
	}
	mismatch := hdr.elementSize != uint32(v.elementSize) || hdr.userVersion != opts.UserVersion
	if mismatch && !opts.ForceImport {
		return nil, ErrVersionMismatch
	}
	if mismatch && opts.ForceImport {
		if err := store.WriteAllToRegion(dataID, nil); err != nil {
			return nil, err
		}
		v.dirty = true
		return v, nil
	}

	v.pageCodec = hdr.codec
	v.length = hdr.length
	v.holes = hdr.holes
	v.pageOffsets = hdr.pageOffsets
	v.rollbackID = hdr.rollbackID
	v.lastStamp = hdr.lastStamp

	if hdr.activeCount > 0 {
		dataBytes, err := store.ReadRegion(dataID)
		if err != nil {
			return nil, err
		}
		tailStart := v.pageOffsets[len(v.pageOffsets)-1]
		tailLen := uint64(hdr.activeCount) * uint64(v.elementSize)
		if tailStart+tailLen > uint64(len(dataBytes)) {
			return nil, fmt.Errorf("%w: active buffer tail truncated", ErrCorruptHeader)
		}
		raw := dataBytes[tailStart : tailStart+tailLen]
		v.activeBuf = make([]T, hdr.activeCount)
		for i := range v.activeBuf {
			v.activeBuf[i] = v.codec.Decode(raw[i*v.elementSize:])
		}
		v.trailingPersisted = true
	}

	return v, nil
}

// Name returns the vector's name, as passed to Open.
func (v *StoredVector[T]) Name() string { return v.name }

// Len reports the vector's current logical length.
func (v *StoredVector[T]) Len() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.length
}

func (v *StoredVector[T]) activeStart() uint64 {
	return v.length - uint64(len(v.activeBuf))
}

func (v *StoredVector[T]) pageCodecImpl() pageCodec {
	c, err := codecFor(v.pageCodec)
	if err != nil {
		// pageCodec is only ever set from a validated Codec constant or
		// a header that decoded successfully; an unknown value here is
		// a corruption the caller should have caught at Open.
		panic(err)
	}
	return c
}

// Push appends v to the active buffer, flushing a full page to the
// data region whenever the buffer fills. Returns the new element's
// index.
func (v *StoredVector[T]) Push(val T) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pushLocked(val)
}

func (v *StoredVector[T]) pushLocked(val T) (uint64, error) {
	idx := v.length
	v.activeBuf = append(v.activeBuf, val)
	v.length++
	v.dirty = true

	if len(v.activeBuf) == v.pageElementCount {
		raw := make([]byte, v.pageElementCount*v.elementSize)
		for i, e := range v.activeBuf {
			v.codec.Encode(e, raw[i*v.elementSize:])
		}
		enc := v.pageCodecImpl().encode(raw, v.elementSize)
		if err := v.appendCommittedPage(enc); err != nil {
			return 0, err
		}
		v.activeBuf = v.activeBuf[:0]
	}

	if v.met != nil {
		v.met.VectorPushTotal.WithLabelValues(v.name).Inc()
		v.met.VectorElementsTotal.WithLabelValues(v.name).Set(float64(v.length))
	}
	return idx, nil
}

// appendCommittedPage physically appends a freshly completed page's
// encoded bytes to the data region, first stripping any stale trailing
// active-buffer copy a prior Flush left behind.
func (v *StoredVector[T]) appendCommittedPage(enc []byte) error {
	committedLen := v.pageOffsets[len(v.pageOffsets)-1]
	if v.trailingPersisted {
		full, err := v.store.ReadRegion(v.dataID)
		if err != nil {
			return err
		}
		trimmed := append([]byte{}, full[:committedLen]...)
		if err := v.store.WriteAllToRegion(v.dataID, trimmed); err != nil {
			return err
		}
		v.trailingPersisted = false
	}
	if err := v.store.AppendToRegion(v.dataID, enc); err != nil {
		return err
	}
	v.pageOffsets = append(v.pageOffsets, committedLen+uint64(len(enc)))
	return nil
}

// PushHole appends a new logically-valid index that is immediately a
// hole, with no real value ever observable at it. Used by eager
// computed vectors to keep a derived index aligned with a source hole.
func (v *StoredVector[T]) PushHole() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	var zero T
	idx, _ := v.pushLocked(zero)
	v.holes.add(idx)
	v.dirty = true
	return idx
}

// FillFirstHoleOrPush writes val into the lowest currently-held hole
// and clears it, or appends if there is no hole.
func (v *StoredVector[T]) FillFirstHoleOrPush(val T) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	idx, ok := v.holes.lowest()
	if !ok {
		return v.pushLocked(val)
	}
	if err := v.setAtLocked(idx, val); err != nil {
		return 0, err
	}
	v.holes.remove(idx)
	v.dirty = true
	return idx, nil
}

// Update overwrites the value at i. Fails ErrIndexOutOfRange if
// i >= Len().
func (v *StoredVector[T]) Update(i uint64, val T) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i >= v.length {
		return ErrIndexOutOfRange
	}
	if err := v.setAtLocked(i, val); err != nil {
		return err
	}
	v.holes.remove(i)
	v.dirty = true
	if v.met != nil {
		v.met.VectorUpdateTotal.WithLabelValues(v.name).Inc()
	}
	return nil
}

// setAtLocked writes val at i without touching hole bookkeeping,
// shared by Update and FillFirstHoleOrPush.
func (v *StoredVector[T]) setAtLocked(i uint64, val T) error {
	if i >= v.activeStart() {
		v.activeBuf[i-v.activeStart()] = val
		return nil
	}
	k := int(i / uint64(v.pageElementCount))
	raw, err := v.decodePageFromStore(k)
	if err != nil {
		return err
	}
	pos := int(i % uint64(v.pageElementCount))
	v.codec.Encode(val, raw[pos*v.elementSize:])
	enc := v.pageCodecImpl().encode(raw, v.elementSize)
	return v.rewritePage(k, enc)
}

// rewritePage replaces committed page k's encoded bytes. Whether this
// ends up writing in place or relocating the region is decided by the
// store's own WriteAllToRegion, which already implements "fits in
// reserve -> in place, else move" at region granularity — the natural
// generalization of the spec's per-page in-place-vs-relocate rule.
func (v *StoredVector[T]) rewritePage(k int, enc []byte) error {
	full, err := v.store.ReadRegion(v.dataID)
	if err != nil {
		return err
	}
	start, end := v.pageOffsets[k], v.pageOffsets[k+1]
	committedLen := v.pageOffsets[len(v.pageOffsets)-1]

	newFull := make([]byte, 0, start+uint64(len(enc))+(committedLen-end))
	newFull = append(newFull, full[:start]...)
	newFull = append(newFull, enc...)
	newFull = append(newFull, full[end:committedLen]...)
	if err := v.store.WriteAllToRegion(v.dataID, newFull); err != nil {
		return err
	}

	delta := int64(len(enc)) - int64(end-start)
	for j := k + 1; j < len(v.pageOffsets); j++ {
		v.pageOffsets[j] = uint64(int64(v.pageOffsets[j]) + delta)
	}
	v.trailingPersisted = false
	return nil
}

func (v *StoredVector[T]) decodePageFromStore(k int) ([]byte, error) {
	full, err := v.store.ReadRegion(v.dataID)
	if err != nil {
		return nil, err
	}
	start, end := v.pageOffsets[k], v.pageOffsets[k+1]
	if end > uint64(len(full)) {
		return nil, fmt.Errorf("%w: page %d out of bounds", ErrCorruptVectorPage, k)
	}
	return v.pageCodecImpl().decode(full[start:end], v.elementSize, v.pageElementCount)
}

// getLocal reads the current value at i directly from the writer's own
// state (in-memory active buffer, or the live region for committed
// pages), bypassing the Reader snapshot machinery. Used internally by
// Take.
func (v *StoredVector[T]) getLocal(i uint64) (T, bool, error) {
	var zero T
	if i >= v.length {
		return zero, false, ErrIndexOutOfRange
	}
	if v.holes.contains(i) {
		return zero, true, nil
	}
	if i >= v.activeStart() {
		return v.activeBuf[i-v.activeStart()], false, nil
	}
	k := int(i / uint64(v.pageElementCount))
	raw, err := v.decodePageFromStore(k)
	if err != nil {
		return zero, false, err
	}
	pos := int(i % uint64(v.pageElementCount))
	return v.codec.Decode(raw[pos*v.elementSize:]), false, nil
}

// Take reads the current value at i, marks it a hole, and returns the
// prior value. The logical length is unchanged. Taking an index that
// is already a hole returns the zero value with no error.
func (v *StoredVector[T]) Take(i uint64) (T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var zero T
	if i >= v.length {
		return zero, ErrIndexOutOfRange
	}
	val, isHole, err := v.getLocal(i)
	if err != nil {
		return zero, err
	}
	if isHole {
		return zero, nil
	}
	v.holes.add(i)
	v.dirty = true
	if v.met != nil {
		v.met.VectorTakeTotal.WithLabelValues(v.name).Inc()
	}
	return val, nil
}

// Truncate discards every element at index >= newLen. A no-op if
// newLen >= Len().
func (v *StoredVector[T]) Truncate(newLen uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.truncateLocked(newLen)
}

func (v *StoredVector[T]) truncateLocked(newLen uint64) error {
	if newLen >= v.length {
		return nil
	}
	N := uint64(v.pageElementCount)
	keepFullPages := int(newLen / N)
	remainder := int(newLen % N)

	var newActive []T
	if remainder > 0 && keepFullPages+1 >= len(v.pageOffsets) {
		// newLen falls inside the active (uncommitted) page.
		newActive = append([]T(nil), v.activeBuf[:remainder]...)
	} else if remainder > 0 {
		raw, err := v.decodePageFromStore(keepFullPages)
		if err != nil {
			return err
		}
		newActive = make([]T, remainder)
		for i := 0; i < remainder; i++ {
			newActive[i] = v.codec.Decode(raw[i*v.elementSize:])
		}
	}

	if keepFullPages+1 < len(v.pageOffsets) {
		newCommittedLen := v.pageOffsets[keepFullPages]
		full, err := v.store.ReadRegion(v.dataID)
		if err != nil {
			return err
		}
		trimmed := append([]byte{}, full[:newCommittedLen]...)
		if err := v.store.WriteAllToRegion(v.dataID, trimmed); err != nil {
			return err
		}
		v.pageOffsets = v.pageOffsets[:keepFullPages+1]
		v.trailingPersisted = false
	}

	v.activeBuf = newActive
	v.length = newLen
	v.holes.removeRange(newLen)
	v.dirty = true
	if v.met != nil {
		v.met.VectorElementsTotal.WithLabelValues(v.name).Set(float64(v.length))
	}
	return nil
}

// Get reads the value at i as of reader's pinned snapshot of this
// vector. Returns (value, true, nil) for a live element,
// (zero, false, nil) for a hole, or an error for an out-of-range index.
func (v *StoredVector[T]) Get(i uint64, r *Reader) (T, bool, error) {
	var zero T
	pin, err := v.ensurePin(r)
	if err != nil {
		return zero, false, err
	}
	if i >= pin.length {
		return zero, false, ErrIndexOutOfRange
	}
	if pin.holes.contains(i) {
		return zero, false, nil
	}

	activeStart := pin.length - uint64(pin.activeCount)
	if i >= activeStart {
		off := (i - activeStart) * uint64(v.elementSize)
		return v.codec.Decode(pin.activeRaw[off:]), true, nil
	}

	k := int(i / uint64(v.pageElementCount))
	regionBytes, err := r.rr.Region(v.dataID)
	if err != nil {
		return zero, false, err
	}
	start, end := pin.pageOffsets[k], pin.pageOffsets[k+1]
	cache := r.cacheFor(v.dataID)
	raw, ok := cache.get(uint64(k))
	if !ok {
		raw, err = v.pageCodecImpl().decode(regionBytes[start:end], v.elementSize, v.pageElementCount)
		if err != nil {
			return zero, false, err
		}
		cache.put(uint64(k), raw)
	}
	pos := int(i % uint64(v.pageElementCount))
	return v.codec.Decode(raw[pos*v.elementSize:]), true, nil
}

// Flush encodes the active buffer as a trailing raw page, writes every
// dirty page into the data region, rewrites the header, and delegates
// durability to the underlying store flush.
func (v *StoredVector[T]) Flush() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.flushLocked()
}

func (v *StoredVector[T]) flushLocked() error {
	if v.dirty {
		full, err := v.store.ReadRegion(v.dataID)
		if err != nil {
			return err
		}
		committedLen := v.pageOffsets[len(v.pageOffsets)-1]
		if committedLen > uint64(len(full)) {
			return fmt.Errorf("%w: committed length exceeds region size", ErrCorruptVectorPage)
		}
		newFull := make([]byte, 0, committedLen+uint64(len(v.activeBuf))*uint64(v.elementSize))
		newFull = append(newFull, full[:committedLen]...)

		activeRaw := make([]byte, len(v.activeBuf)*v.elementSize)
		for i, e := range v.activeBuf {
			v.codec.Encode(e, activeRaw[i*v.elementSize:])
		}
		newFull = append(newFull, activeRaw...)

		if err := v.store.WriteAllToRegion(v.dataID, newFull); err != nil {
			return err
		}
		v.trailingPersisted = len(v.activeBuf) > 0

		hdr := vectorHeader{
			codec:            v.pageCodec,
			elementSize:      uint32(v.elementSize),
			pageElementCount: uint32(v.pageElementCount),
			userVersion:      v.userVersion,
			length:           v.length,
			activeCount:      uint32(len(v.activeBuf)),
			rollbackID:       v.rollbackID,
			lastStamp:        v.lastStamp,
			pageOffsets:      v.pageOffsets,
			holes:            v.holes,
		}
		if err := v.store.WriteAllToRegion(v.headerID, encodeHeader(hdr)); err != nil {
			return err
		}
		v.dirty = false
	}

	if err := v.store.Flush(); err != nil {
		return err
	}
	if v.log != nil {
		v.log.VectorLogger(v.name).Debug("vector flush").Uint64("length", v.length).Send()
	}
	return nil
}
