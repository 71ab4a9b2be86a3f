// ABOUTME: A pinned snapshot reader: holds one mmap generation alive so
// ABOUTME: a caller can issue several zero-copy reads without re-locking

package region

// Reader is a read-only snapshot of a Store at the moment it was
// acquired. It pins one mmap generation (see mmapView.acquire), so
// growth or compaction on the writer side never invalidates slices it
// has already handed out — at the cost of delaying that generation's
// unmap until the Reader is closed. Callers that only need a single
// region's bytes should prefer Store.ReadRegion, which copies and
// releases immediately.
type Reader struct {
	store *Store
	gen   *generation
	// placements is a private copy of the layout at acquire time, so a
	// concurrent writer mutating the live layout can't race this reader's
	// bounds checks.
	placements map[uint64]placement
}

// NewReader acquires a consistent snapshot: the current mmap
// generation plus the current placement table. The writer lock is held
// only long enough to copy the table.
func (s *Store) NewReader() (*Reader, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	snap := make(map[uint64]placement, len(s.lay.byID))
	for id, p := range s.lay.byID {
		snap[id] = *p
	}
	gen := s.mmap.acquire()
	s.mu.Unlock()

	return &Reader{store: s, gen: gen, placements: snap}, nil
}

// Region returns the bytes of id as they stood when r was acquired.
// The returned slice aliases the mmap and must not be retained or
// mutated past r.Close.
func (r *Reader) Region(id uint64) ([]byte, error) {
	p, ok := r.placements[id]
	if !ok {
		return nil, ErrUnknownRegion
	}
	return r.store.mmap.bytes(r.gen, p.offset, p.length), nil
}

// Len reports a region's logical length as of the snapshot.
func (r *Reader) Len(id uint64) (uint64, bool) {
	p, ok := r.placements[id]
	return p.length, ok
}

// Close releases the pinned generation. Idempotent calls are not
// safe; call exactly once.
func (r *Reader) Close() error {
	r.store.mmap.release(r.gen)
	return nil
}
