// ABOUTME: A cheap snapshot token over a region.Reader plus
// ABOUTME: per-vector length/hole pins and a small per-vector page cache

package vector

import "github.com/seqdb/seqdb/pkg/region"

const defaultPageCacheSize = 16

// Reader is a read-only snapshot shared across any number of
// StoredVectors opened on the same store. It pins one mmap generation
// (via the underlying region.Reader) plus, per vector, the logical
// length/active-buffer/hole-set/page-offset state as of the last Pin
// call for that vector. Point reads and iteration against a Reader
// never block a concurrent writer.
type Reader struct {
	rr     *region.Reader
	pins   map[uint64]vectorPin // keyed by header region id
	caches map[uint64]*pageLRU  // keyed by data region id
}

type vectorPin struct {
	length      uint64
	activeCount uint32
	activeRaw   []byte
	pageOffsets []uint64
	holes       *holeSet
}

// NewReader acquires a fresh snapshot of store.
func NewReader(store *region.Store) (*Reader, error) {
	rr, err := store.NewReader()
	if err != nil {
		return nil, err
	}
	return &Reader{
		rr:     rr,
		pins:   make(map[uint64]vectorPin),
		caches: make(map[uint64]*pageLRU),
	}, nil
}

// Close releases the pinned mmap generation. Call exactly once.
func (r *Reader) Close() error { return r.rr.Close() }

func (r *Reader) cacheFor(dataID uint64) *pageLRU {
	c, ok := r.caches[dataID]
	if !ok {
		c = newPageLRU(defaultPageCacheSize)
		r.caches[dataID] = c
	}
	return c
}

// Pin refreshes r's view of v: its logical length, active buffer
// contents, hole set, and committed-page offset table. Get/iteration
// calls against r observe exactly this pinned state for v until the
// next Pin, even as v continues to mutate concurrently on the writer
// side.
func (v *StoredVector[T]) Pin(r *Reader) {
	v.mu.Lock()
	defer v.mu.Unlock()

	raw := make([]byte, len(v.activeBuf)*v.elementSize)
	for i, e := range v.activeBuf {
		v.codec.Encode(e, raw[i*v.elementSize:])
	}
	r.pins[v.headerID] = vectorPin{
		length:      v.length,
		activeCount: uint32(len(v.activeBuf)),
		activeRaw:   raw,
		pageOffsets: append([]uint64{}, v.pageOffsets...),
		holes:       v.holes.clone(),
	}
	delete(r.caches, v.dataID) // a new pin may see different page boundaries; cache is keyed by page index only
}

// ensurePin returns r's pin for v, creating one (auto-pin) on first
// use for callers that only need a consistent view as of "now".
func (v *StoredVector[T]) ensurePin(r *Reader) (vectorPin, error) {
	if pin, ok := r.pins[v.headerID]; ok {
		return pin, nil
	}
	v.Pin(r)
	return r.pins[v.headerID], nil
}

// pageLRU caches decoded pages (raw element bytes) by page index, for
// readers of a numeric-compressed vector where point reads would
// otherwise pay a full-page decode every time.
type pageLRU struct {
	capacity int
	order    []uint64
	entries  map[uint64][]byte
}

func newPageLRU(capacity int) *pageLRU {
	return &pageLRU{capacity: capacity, entries: make(map[uint64][]byte, capacity)}
}

func (c *pageLRU) get(k uint64) ([]byte, bool) {
	v, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	c.touch(k)
	return v, true
}

func (c *pageLRU) put(k uint64, raw []byte) {
	if _, exists := c.entries[k]; !exists && len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[k] = raw
	c.touch(k)
}

func (c *pageLRU) touch(k uint64) {
	for i, o := range c.order {
		if o == k {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, k)
}
