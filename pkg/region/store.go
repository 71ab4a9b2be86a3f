// ABOUTME: The public Region Store API: named byte regions over one data
// ABOUTME: file, durable via the two-phase data-then-metadata flush order

package region

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/seqdb/seqdb/internal/faultfs"
	"github.com/seqdb/seqdb/internal/logger"
	"github.com/seqdb/seqdb/internal/metrics"
)

const (
	dataFileName = "region.data"
	metaFileName = "region.meta"
)

// Options configures Open. The zero value is a usable default: no
// logging, no metrics, no injected failures.
type Options struct {
	// FailAt injects deterministic faultfs failures for crash-consistency
	// tests; nil in production use.
	FailAt map[fileFailKey]int
	// Log receives structured events for open, flush (including the one
	// Compact ends with), unsupported hole punching and metadata
	// corruption; nil disables logging.
	Log *logger.Logger
	// Metrics receives Prometheus observations; nil disables metrics.
	Metrics *metrics.Metrics
}

// fileFailKey names which of the two files a failpoint targets; kept
// unexported since only this package's tests construct one.
type fileFailKey struct {
	file string
	op   string
}

// wrapFault returns f unwrapped unless opts.FailAt names a failpoint
// for fileName, in which case it returns a faultfs.File injecting that
// failure. Both *os.File and *faultfs.File satisfy fileAPI.
func wrapFault(f *os.File, fileName string, opts Options) fileAPI {
	if len(opts.FailAt) == 0 {
		return f
	}
	failAt := make(map[faultfs.Op]int)
	for k, n := range opts.FailAt {
		if k.file != fileName {
			continue
		}
		failAt[faultfs.Op(k.op)] = n
	}
	if len(failAt) == 0 {
		return f
	}
	return faultfs.Wrap(f, failAt)
}

func nowUnix() int64 { return time.Now().Unix() }

// Stats summarizes the store's current space usage.
type Stats struct {
	RegionCount    int
	DataFileBytes  uint64
	LiveHoleBytes  uint64
	PendingHoles   uint64
	TailOffset     uint64
	CorruptSlots   int
}

// Store is a single-writer, multi-reader collection of named byte
// regions backed by one data file and one metadata file. The zero
// value is not usable; construct with Open.
type Store struct {
	mu sync.Mutex // single writer lock serializing all mutating region operations

	dir      string
	dataFile fileAPI
	metaFile fileAPI
	lockFd   int

	meta   *metadataStore
	lay    *layout
	mmap   *mmapView
	closed bool

	corruptSlots int

	log *logger.Logger
	met *metrics.Metrics
}

// Open creates or opens a region store rooted at dir, taking an
// advisory exclusive lock on the metadata file for the lifetime of the
// handle. A second Open against the same dir fails with ErrAlreadyOpen.
func Open(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: mkdir: %v", ErrIoFailed, err)
	}

	dataPath := filepath.Join(dir, dataFileName)
	metaPath := filepath.Join(dir, metaFileName)

	_, dataStatErr := os.Stat(dataPath)
	dataExistedBefore := dataStatErr == nil
	_, metaStatErr := os.Stat(metaPath)
	metaExistedBefore := metaStatErr == nil

	dataOS, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open data file: %v", ErrIoFailed, err)
	}
	metaOS, err := os.OpenFile(metaPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		dataOS.Close()
		return nil, fmt.Errorf("%w: open meta file: %v", ErrIoFailed, err)
	}

	if !dataExistedBefore || !metaExistedBefore {
		if err := fsyncDir(dir); err != nil {
			dataOS.Close()
			metaOS.Close()
			return nil, err
		}
	}

	if err := acquireAdvisoryLock(int(metaOS.Fd())); err != nil {
		dataOS.Close()
		metaOS.Close()
		return nil, err
	}

	s := &Store{
		dir:    dir,
		meta:   newMetadataStore(),
		lay:    newLayout(),
		lockFd: int(metaOS.Fd()),
		log:    opts.Log,
		met:    opts.Metrics,
	}
	s.dataFile = wrapFault(dataOS, dataFileName, opts)
	s.metaFile = wrapFault(metaOS, metaFileName, opts)

	metaInfo, err := metaOS.Stat()
	if err != nil {
		s.releaseAndClose()
		return nil, fmt.Errorf("%w: stat meta: %v", ErrIoFailed, err)
	}

	if metaInfo.Size() == 0 {
		if err := s.meta.init(s.metaFile, nowUnix()); err != nil {
			s.releaseAndClose()
			return nil, err
		}
	} else {
		corrupt, err := s.meta.load(s.metaFile)
		if err != nil {
			s.releaseAndClose()
			return nil, err
		}
		s.corruptSlots = len(corrupt)
		if s.log != nil {
			for _, slotIdx := range corrupt {
				s.log.LogCorruptSlot(slotIdx)
			}
		}
		if s.met != nil && len(corrupt) > 0 {
			for range corrupt {
				s.met.CorruptSlotsTotal.Inc()
			}
		}
		for _, rec := range s.meta.slots {
			if !rec.tombstoned() {
				s.lay.addPlacement(rec.id, rec.offset, rec.length, rec.reserve)
			}
		}
	}

	dataInfo, err := dataOS.Stat()
	if err != nil {
		s.releaseAndClose()
		return nil, fmt.Errorf("%w: stat data: %v", ErrIoFailed, err)
	}
	mapSize := uint64(dataInfo.Size())
	if mapSize < s.lay.tail {
		mapSize = s.lay.tail
	}
	s.mmap, err = openMmapView(int(dataOS.Fd()), mapSize)
	if err != nil {
		s.releaseAndClose()
		return nil, err
	}

	if s.log != nil {
		s.log.LogStoreOpen(dir, len(s.lay.byID))
	}
	return s, nil
}

func (s *Store) releaseAndClose() {
	_ = releaseAdvisoryLock(s.lockFd)
	_ = s.dataFile.Close()
	_ = s.metaFile.Close()
}

// CreateRegionIfNeeded returns the id of the region named name,
// creating a new empty region (one page reserved) if it doesn't exist.
func (s *Store) CreateRegionIfNeeded(name string, rtype RegionType) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if len(name) > maxRegionName {
		return 0, fmt.Errorf("%w: name exceeds %d bytes", ErrIoFailed, maxRegionName)
	}
	if id, ok := s.meta.nameToID[name]; ok {
		return id, nil
	}

	id, _ := s.meta.assignSlot(name)
	offset := s.lay.placeNew(PageSize)
	s.lay.addPlacement(id, offset, 0, PageSize)
	s.meta.update(id, offset, 0, PageSize, rtype, 0)

	if err := s.growMmapTo(s.lay.tail); err != nil {
		return 0, err
	}
	return id, nil
}

// WriteAllToRegion overwrites a region's entire content with data,
// relocating it (in place if it fits within the current reserve,
// otherwise expanding or moving per layout policy) as needed.
func (s *Store) WriteAllToRegion(id uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	p, ok := s.lay.get(id)
	if !ok {
		return ErrUnknownRegion
	}

	needed := uint64(len(data))
	var offset uint64
	switch {
	case needed <= p.reserve:
		offset = p.offset
		p.length = needed
	case s.lay.expandInPlace(id, needed):
		offset = p.offset
		p.length = needed
	default:
		offset = s.lay.moveRegion(id, needed, needed)
	}

	if err := s.growMmapTo(s.lay.tail); err != nil {
		return err
	}

	g := s.mmap.acquire()
	dst := s.mmap.bytes(g, offset, p.reserve)
	copy(dst, data)
	s.mmap.release(g)

	s.meta.update(id, offset, p.length, p.reserve, s.meta.slots[s.meta.idToSlot[id]].regionType, s.meta.slots[s.meta.idToSlot[id]].userVer)
	return nil
}

// AppendToRegion appends data past the region's current logical
// length, preferring in-place/tail growth before a full relocation.
func (s *Store) AppendToRegion(id uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	p, ok := s.lay.get(id)
	if !ok {
		return ErrUnknownRegion
	}

	oldOffset, oldLength := p.offset, p.length
	newLength := p.length + uint64(len(data))
	var offset uint64
	var needCopyOld bool
	switch {
	case newLength <= p.reserve:
		offset = p.offset
		p.length = newLength
	case s.lay.expandInPlace(id, newLength):
		offset = p.offset
		p.length = newLength
	default:
		offset = s.lay.moveRegion(id, newLength, newLength)
		needCopyOld = true
	}

	if err := s.growMmapTo(s.lay.tail); err != nil {
		return err
	}

	g := s.mmap.acquire()
	if needCopyOld {
		oldBytes := make([]byte, oldLength)
		copy(oldBytes, s.mmap.bytes(g, oldOffset, oldLength))
		dst := s.mmap.bytes(g, offset, p.reserve)
		copy(dst, oldBytes)
		copy(dst[oldLength:], data)
	} else {
		dst := s.mmap.bytes(g, offset, p.reserve)
		copy(dst[oldLength:], data)
	}
	s.mmap.release(g)

	rec := s.meta.slots[s.meta.idToSlot[id]]
	s.meta.update(id, offset, newLength, p.reserve, rec.regionType, rec.userVer)
	return nil
}

// ReadRegion returns a copy of a region's current bytes. A copy is
// returned (rather than the live mmap slice) so callers can hold the
// result across a subsequent Flush/Compact without pinning a reader
// generation; performance-sensitive callers should use NewReader.
func (s *Store) ReadRegion(id uint64) ([]byte, error) {
	s.mu.Lock()
	p, ok := s.lay.get(id)
	if !ok {
		s.mu.Unlock()
		return nil, ErrUnknownRegion
	}
	g := s.mmap.acquire()
	out := make([]byte, p.length)
	copy(out, s.mmap.bytes(g, p.offset, p.length))
	s.mmap.release(g)
	s.mu.Unlock()
	return out, nil
}

// RemoveRegion tombstones a region; its extent becomes reusable only
// after the next Flush.
func (s *Store) RemoveRegion(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.lay.get(id); !ok {
		return ErrUnknownRegion
	}
	s.meta.tombstone(id)
	s.lay.remove(id)
	return nil
}

// Regions lists the ids of every live (non-tombstoned) region.
func (s *Store) Regions() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, 0, len(s.lay.byID))
	for id := range s.lay.byID {
		out = append(out, id)
	}
	return out
}

// Stats reports current space usage for introspection/metrics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		RegionCount:   len(s.lay.byID),
		DataFileBytes: s.mmap.size,
		LiveHoleBytes: totalHoleBytes(s.lay.live),
		PendingHoles:  totalHoleBytes(s.lay.pending),
		TailOffset:    s.lay.tail,
		CorruptSlots:  s.corruptSlots,
	}
}

// Flush performs the mandatory durability ordering that keeps the
// store crash-consistent without a write-ahead log: msync the data
// file, then durably write metadata, only then promote
// pending holes to live and reclaim space. A crash at any point before
// step 2 completes leaves the store able to reopen to its last
// consistent state; the relocated-but-not-yet-promoted old extents are
// simply never reused until a later flush completes.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	start := time.Now()

	// 1. Data file durable first.
	if err := s.mmap.msync(); err != nil {
		return err
	}

	// 2. Metadata durable second, only once data is known-durable.
	if err := s.meta.flush(s.metaFile); err != nil {
		return err
	}

	// 3. Now safe to promote: old extents are unreachable from a
	// reopened store regardless of whether the bytes are zeroed.
	s.lay.promotePending()

	// 4. Reclaim space: punch interior holes, truncate the tail.
	var punched uint64
	for _, h := range s.lay.bytesToPunch() {
		err := punchHole(int(s.dataFile.Fd()), h.offset, h.length)
		switch {
		case err == nil:
			punched += h.length
		case err == errPunchUnsupported:
			if s.log != nil {
				s.log.Warn("hole punch unsupported by filesystem").Uint64("offset", h.offset).Uint64("length", h.length).Send()
			}
		default:
			return fmt.Errorf("%w: punch hole: %v", ErrIoFailed, err)
		}
	}
	if err := s.dataFile.Truncate(int64(s.lay.tail)); err != nil {
		return fmt.Errorf("%w: truncate: %v", ErrIoFailed, err)
	}

	if s.log != nil {
		s.log.LogFlush(time.Since(start), punched, nil)
	}
	return nil
}

// Compact relocates every live region to eliminate interior holes
// entirely, then flushes. Useful after heavy churn leaves the live
// hole set fragmented enough that first-fit placement degrades.
func (s *Store) Compact() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	fresh := newLayout()
	type move struct {
		id                   uint64
		oldOffset, newOffset uint64
		length, reserve      uint64
	}
	var moves []move
	for _, p := range s.lay.ordered {
		newOffset := fresh.placeNew(p.reserve)
		fresh.addPlacement(p.id, newOffset, p.length, p.reserve)
		if newOffset != p.offset {
			moves = append(moves, move{id: p.id, oldOffset: p.offset, newOffset: newOffset, length: p.length, reserve: p.reserve})
		}
	}

	if err := s.growMmapTo(fresh.tail); err != nil {
		s.mu.Unlock()
		return err
	}

	g := s.mmap.acquire()
	for _, m := range moves {
		src := make([]byte, m.length)
		copy(src, s.mmap.bytes(g, m.oldOffset, m.length))
		dst := s.mmap.bytes(g, m.newOffset, m.reserve)
		copy(dst, src)
	}
	s.mmap.release(g)

	s.lay = fresh
	for _, m := range moves {
		rec := s.meta.slots[s.meta.idToSlot[m.id]]
		s.meta.update(m.id, m.newOffset, m.length, m.reserve, rec.regionType, rec.userVer)
	}
	s.mu.Unlock()
	return s.Flush()
}

// Close releases the advisory lock, unmaps the data file, and closes
// both file handles. It does not implicitly Flush; callers that want a
// durable close must Flush first.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := s.mmap.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := releaseAdvisoryLock(s.lockFd); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.dataFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.metaFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// growMmapTo grows the mmap view and, if the underlying file is
// shorter than needed, extends the file first via ftruncate so the
// mapping always covers allocated space.
func (s *Store) growMmapTo(needed uint64) error {
	if needed <= s.mmap.size {
		return nil
	}
	if err := s.dataFile.Truncate(int64(needed)); err != nil {
		return fmt.Errorf("%w: extend data file: %v", ErrOutOfSpace, err)
	}
	return s.mmap.grow(needed)
}
