// ABOUTME: An explicit, restartable cursor over a pinned vector range —
// ABOUTME: a plain loop over page state, not a generator or goroutine

package vector

// Cursor walks [start, end) of a StoredVector as of a Reader's pinned
// snapshot, optionally skipping holes.
type Cursor[T any] struct {
	v         *StoredVector[T]
	r         *Reader
	i, end    uint64
	skipHoles bool
	exhausted bool
}

// Iter returns a cursor over the full vector, skipping holes.
func (v *StoredVector[T]) Iter(r *Reader) *Cursor[T] {
	pin, _ := v.ensurePin(r)
	return v.IterRange(0, pin.length, r)
}

// IterRange returns a cursor over [a, b), skipping holes.
func (v *StoredVector[T]) IterRange(a, b uint64, r *Reader) *Cursor[T] {
	return &Cursor[T]{v: v, r: r, i: a, end: b, skipHoles: true}
}

// IterHoled returns a cursor over the full vector that yields every
// dense index, reporting holes via Next's hole return rather than
// skipping them.
func (v *StoredVector[T]) IterHoled(r *Reader) *Cursor[T] {
	pin, _ := v.ensurePin(r)
	return &Cursor[T]{v: v, r: r, i: 0, end: pin.length, skipHoles: false}
}

// Next advances the cursor. ok is false once the range is exhausted.
// When skipHoles is false, hole reports a taken-but-valid index with a
// zero value.
func (c *Cursor[T]) Next() (idx uint64, val T, hole bool, ok bool) {
	if c.exhausted {
		return 0, val, false, false
	}
	for c.i < c.end {
		i := c.i
		c.i++
		v, live, err := c.v.Get(i, c.r)
		if err != nil {
			c.exhausted = true
			return 0, val, false, false
		}
		if !live {
			if c.skipHoles {
				continue
			}
			return i, val, true, true
		}
		return i, v, false, true
	}
	c.exhausted = true
	return 0, val, false, false
}
