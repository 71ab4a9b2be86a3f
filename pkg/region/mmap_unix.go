//go:build unix

// ABOUTME: The shared mmap view over the data file: growth-by-doubling,
// ABOUTME: refcounted generations so readers on an old mapping never fault

package region

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// generation is one mmap'd view of the data file. Readers that pinned
// it via acquire keep it alive past a remap; the store drops its own
// baseline reference once the new mapping is installed, and the last
// release unmaps it.
type generation struct {
	data     []byte
	refCount atomic.Int32 // baseline 1, held by the store until superseded
	retired  atomic.Bool
}

func (g *generation) acquire() *generation {
	g.refCount.Add(1)
	return g
}

func (g *generation) release() int32 {
	return g.refCount.Add(-1)
}

// mmapView owns the single shared mapping of the data file and hands
// out refcounted generations to readers. Growth takes a short
// exclusive lock: it installs the new mapping immediately, then lets
// the old one drain in the background before unmapping it.
type mmapView struct {
	mu      sync.Mutex // the "short exclusive lock" taken only on remap
	fd      int
	current atomic.Pointer[generation]
	size    uint64 // size of the current mapping, page-aligned
}

// openMmapView maps the first `size` bytes of fd shared read-write.
// size is rounded up to at least one page.
func openMmapView(fd int, size uint64) (*mmapView, error) {
	if size < PageSize {
		size = PageSize
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %v", ErrIoFailed, err)
	}
	v := &mmapView{fd: fd, size: size}
	g := &generation{data: data}
	g.refCount.Store(1)
	v.current.Store(g)
	return v, nil
}

// acquire pins the current generation for a reader snapshot. The
// caller must call release exactly once.
func (v *mmapView) acquire() *generation {
	for {
		g := v.current.Load()
		g.refCount.Add(1)
		// Re-check we didn't race a grow() that already swapped current
		// out from under us between Load and Add; if so, drop this ref
		// and retry against the new current.
		if v.current.Load() == g {
			return g
		}
		g.release()
	}
}

func (v *mmapView) release(g *generation) {
	if g.release() == 0 && g.retired.Load() {
		_ = unix.Munmap(g.data)
	}
}

// bytes returns the live slice for the given placement within the
// current generation, bounds-checked against (offset, reserve) rather
// than length — writers may legally touch up to the reserve.
func (v *mmapView) bytes(g *generation, offset, reserve uint64) []byte {
	end := offset + reserve
	if end > uint64(len(g.data)) {
		panic(fmt.Sprintf("region: mmap bounds violation: [%d,%d) exceeds mapping of %d bytes", offset, end, len(g.data)))
	}
	return g.data[offset:end]
}

// grow ensures the mapping covers at least newSize bytes, doubling the
// allocation on each growth step, then retires the old generation once
// every pinning reader has released it.
func (v *mmapView) grow(newSize uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if newSize <= v.size {
		return nil
	}

	alloc := v.size
	if alloc == 0 {
		alloc = PageSize
	}
	for alloc < newSize {
		alloc *= 2
	}

	data, err := unix.Mmap(v.fd, 0, int(alloc), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("%w: mmap grow: %v", ErrIoFailed, err)
	}

	old := v.current.Load()
	next := &generation{data: data}
	next.refCount.Store(1)
	v.current.Store(next)
	v.size = alloc

	old.retired.Store(true)
	if old.release() == 0 {
		_ = unix.Munmap(old.data)
	} else {
		// Existing readers still pin the old mapping; release our
		// baseline reference and let the last reader's release() above
		// perform the munmap. The caller is not blocked on their
		// progress — only installation of the new mapping is
		// synchronous; readers drain the old one in their own time.
		runtime.Gosched()
	}
	return nil
}

// msync flushes the current generation's dirty pages to the data file.
func (v *mmapView) msync() error {
	g := v.current.Load()
	if err := unix.Msync(g.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("%w: msync: %v", ErrIoFailed, err)
	}
	return nil
}

func (v *mmapView) close() error {
	g := v.current.Load()
	return unix.Munmap(g.data)
}
