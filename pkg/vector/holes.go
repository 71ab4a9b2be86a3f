// ABOUTME: Run-length-encoded element-hole set: positions whose value
// ABOUTME: has been taken but whose index is still logically valid

package vector

import (
	"encoding/binary"
	"fmt"
	"sort"
)

type holeRun struct {
	start uint64 // inclusive
	end   uint64 // exclusive
}

// holeSet tracks taken-but-valid element indices as a sorted,
// non-overlapping run list. Cheap for the sparse-hole common case;
// degrades gracefully (more runs) under heavy interleaved take/fill
// churn, same tradeoff the spec's "sentinel encoding" alternative
// makes explicit.
type holeSet struct {
	runs []holeRun
}

func newHoleSet() *holeSet {
	return &holeSet{}
}

func (h *holeSet) clone() *holeSet {
	out := &holeSet{runs: make([]holeRun, len(h.runs))}
	copy(out.runs, h.runs)
	return out
}

func (h *holeSet) contains(i uint64) bool {
	idx := sort.Search(len(h.runs), func(k int) bool { return h.runs[k].end > i })
	return idx < len(h.runs) && h.runs[idx].start <= i
}

// add marks i as a hole, merging with adjacent runs.
func (h *holeSet) add(i uint64) {
	idx := sort.Search(len(h.runs), func(k int) bool { return h.runs[k].start >= i })

	// Already covered by the preceding run?
	if idx > 0 && h.runs[idx-1].end > i {
		return
	}
	// Already the start of the following run?
	if idx < len(h.runs) && h.runs[idx].start == i {
		return
	}

	mergeLeft := idx > 0 && h.runs[idx-1].end == i
	mergeRight := idx < len(h.runs) && h.runs[idx].start == i+1

	switch {
	case mergeLeft && mergeRight:
		h.runs[idx-1].end = h.runs[idx].end
		h.runs = append(h.runs[:idx], h.runs[idx+1:]...)
	case mergeLeft:
		h.runs[idx-1].end = i + 1
	case mergeRight:
		h.runs[idx].start = i
	default:
		h.runs = append(h.runs, holeRun{})
		copy(h.runs[idx+1:], h.runs[idx:])
		h.runs[idx] = holeRun{start: i, end: i + 1}
	}
}

// remove clears i if it is a hole; a no-op otherwise.
func (h *holeSet) remove(i uint64) {
	idx := sort.Search(len(h.runs), func(k int) bool { return h.runs[k].end > i })
	if idx >= len(h.runs) || h.runs[idx].start > i {
		return
	}
	run := h.runs[idx]
	switch {
	case run.start == i && run.end == i+1:
		h.runs = append(h.runs[:idx], h.runs[idx+1:]...)
	case run.start == i:
		h.runs[idx].start = i + 1
	case run.end == i+1:
		h.runs[idx].end = i
	default:
		left := holeRun{start: run.start, end: i}
		right := holeRun{start: i + 1, end: run.end}
		h.runs = append(h.runs, holeRun{})
		copy(h.runs[idx+2:], h.runs[idx+1:])
		h.runs[idx] = left
		h.runs[idx+1] = right
	}
}

// lowest returns the smallest currently-held hole index.
func (h *holeSet) lowest() (uint64, bool) {
	if len(h.runs) == 0 {
		return 0, false
	}
	return h.runs[0].start, true
}

// removeRange clears every hole at index >= from; used by Truncate to
// drop hole bookkeeping for indices that no longer exist.
func (h *holeSet) removeRange(from uint64) {
	idx := sort.Search(len(h.runs), func(k int) bool { return h.runs[k].end > from })
	if idx < len(h.runs) && h.runs[idx].start < from {
		// This run straddles the cutoff: keep its part below from.
		h.runs[idx].end = from
		idx++
	}
	h.runs = h.runs[:idx]
}

// encode serializes the run list as a count followed by
// (start, length) uvarint pairs relative to the previous run's end, so
// tightly-packed holes cost a few bytes each regardless of absolute
// index magnitude.
func (h *holeSet) encode() []byte {
	out := binary.AppendUvarint(nil, uint64(len(h.runs)))
	var prevEnd uint64
	for _, r := range h.runs {
		out = binary.AppendUvarint(out, r.start-prevEnd)
		out = binary.AppendUvarint(out, r.end-r.start)
		prevEnd = r.end
	}
	return out
}

func decodeHoleSet(buf []byte) (*holeSet, error) {
	count, n := binary.Uvarint(buf)
	if n <= 0 {
		return nil, fmt.Errorf("%w: hole set count", ErrCorruptHeader)
	}
	buf = buf[n:]
	h := &holeSet{runs: make([]holeRun, 0, count)}
	var prevEnd uint64
	for i := uint64(0); i < count; i++ {
		startDelta, n := binary.Uvarint(buf)
		if n <= 0 {
			return nil, fmt.Errorf("%w: hole set run start", ErrCorruptHeader)
		}
		buf = buf[n:]
		length, n := binary.Uvarint(buf)
		if n <= 0 {
			return nil, fmt.Errorf("%w: hole set run length", ErrCorruptHeader)
		}
		buf = buf[n:]
		start := prevEnd + startDelta
		end := start + length
		h.runs = append(h.runs, holeRun{start: start, end: end})
		prevEnd = end
	}
	return h, nil
}
