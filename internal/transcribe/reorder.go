package transcribe

import "sort"

// maxPending bounds how many out-of-order segments are held back per
// speaker before the gap is written off as lost.
const maxPending = 32

// reorderBuffer restores per-speaker sequence order. Provider sequence
// numbers start at 1; anything below the emission cursor is stale and
// dropped.
type reorderBuffer struct {
	next    uint64
	pending map[uint64]Segment
}

func newReorderBuffer() *reorderBuffer {
	return &reorderBuffer{
		next:    1,
		pending: make(map[uint64]Segment),
	}
}

// add accepts one segment and returns the run of segments that became
// emittable, in sequence order.
func (b *reorderBuffer) add(seg Segment) []Segment {
	if seg.Seq < b.next {
		return nil
	}
	b.pending[seg.Seq] = seg

	var ready []Segment
	for {
		next, ok := b.pending[b.next]
		if !ok {
			break
		}
		delete(b.pending, b.next)
		ready = append(ready, next)
		b.next++
	}

	// a gap that never fills would stall the stream forever; skip ahead
	// once too much is held back
	if len(b.pending) > maxPending {
		ready = append(ready, b.flush()...)
	}

	return ready
}

// flush empties the buffer in sequence order and moves the cursor past it.
func (b *reorderBuffer) flush() []Segment {
	if len(b.pending) == 0 {
		return nil
	}

	seqs := make([]uint64, 0, len(b.pending))
	for seq := range b.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	flushed := make([]Segment, 0, len(seqs))
	for _, seq := range seqs {
		flushed = append(flushed, b.pending[seq])
		delete(b.pending, seq)
	}
	b.next = seqs[len(seqs)-1] + 1

	return flushed
}
