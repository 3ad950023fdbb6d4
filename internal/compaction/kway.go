// Package compaction implements the k-way merge primitive of spec.md
// §4.3: merging several sorted streams into a new generation of blocks
// while respecting overwrite precedence by source index.
//
// The heap shape (a min-heap of stream heads compared by key then source
// index, replace-tail-on-equal-key overwrite) is grounded on the pack's
// intellect4all-storage-engines compaction.go (CompactionHeap) and
// xmh1011-go-lsm's cascading-merge shape.
package compaction

import (
	"container/heap"

	"github.com/pkg/errors"

	"lsmkv/internal/block"
	"lsmkv/internal/model"
)

// Stream is one sorted, already-materialized input to the merge. Index is
// the stream's precedence: a larger Index means newer data, so on a key
// collision the highest-Index stream's value wins.
type Stream struct {
	Pairs []model.Pair
	Index int
}

// mergeHeap is the min-heap of stream heads (the current front pair of
// each non-exhausted stream), with each stream's read position.
type mergeHeap struct {
	heads   []headEntry
	streams []Stream
	pos     []int // next unconsumed index within streams[i].Pairs
}

type headEntry struct {
	pair      model.Pair
	streamIdx int
}

func (h *mergeHeap) Len() int { return len(h.heads) }

func (h *mergeHeap) Less(i, j int) bool {
	a, b := h.heads[i], h.heads[j]
	if a.pair.Key != b.pair.Key {
		return a.pair.Key < b.pair.Key
	}
	// Tied keys: older source (smaller Index) wins the min-heap pop order,
	// so the newest source is appended last and its value survives the
	// tail-overwrite rule below.
	return h.streams[a.streamIdx].Index < h.streams[b.streamIdx].Index
}

func (h *mergeHeap) Swap(i, j int) { h.heads[i], h.heads[j] = h.heads[j], h.heads[i] }

func (h *mergeHeap) Push(x any) { h.heads = append(h.heads, x.(headEntry)) }

func (h *mergeHeap) Pop() any {
	old := h.heads
	n := len(old)
	x := old[n-1]
	h.heads = old[:n-1]
	return x
}

func (h *mergeHeap) refill(streamIdx int) {
	h.pos[streamIdx]++
	if h.pos[streamIdx] < len(h.streams[streamIdx].Pairs) {
		heap.Push(h, headEntry{pair: h.streams[streamIdx].Pairs[h.pos[streamIdx]], streamIdx: streamIdx})
	}
}

// Merge runs the k-way merge described in spec.md §4.3 over streams and
// allocates fresh block IDs via nextID (which must hand out monotonically
// increasing, unused IDs for targetLevel). Output blocks hold exactly
// blockSize pairs each, except possibly a final short (but non-empty) one.
func Merge(dir string, targetLevel uint32, streams []Stream, blockSize int, nextID func() uint32) ([]block.Block, error) {
	if blockSize <= 0 {
		return nil, errors.Errorf("compaction: block_size must be positive, got %d", blockSize)
	}

	h := &mergeHeap{streams: streams, pos: make([]int, len(streams))}
	heap.Init(h)
	for i, s := range streams {
		if len(s.Pairs) > 0 {
			heap.Push(h, headEntry{pair: s.Pairs[0], streamIdx: i})
		}
	}

	var out []block.Block
	var buf []model.Pair
	pendingFlush := false

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		id := block.ID{OriginLevel: targetLevel, BlockID: nextID()}
		b, err := block.Create(dir, id, buf)
		if err != nil {
			return errors.Wrap(err, "compaction: flush block")
		}
		out = append(out, b)
		buf = nil
		return nil
	}

	// Ties for one key are guaranteed to pop consecutively (every stream
	// is itself sorted ascending, so the heap can't surface a smaller or
	// equal key for any stream once a strictly greater one has been
	// reached). That means we only know a key's final, newest-source
	// value once we observe the *next distinct* key - so a size-triggered
	// flush must be deferred until then, or a block_size-aligned run of
	// duplicate keys would get split across two blocks sharing a key.
	for h.Len() > 0 {
		e := heap.Pop(h).(headEntry)
		h.refill(e.streamIdx)

		if len(buf) > 0 && buf[len(buf)-1].Key == e.pair.Key {
			buf[len(buf)-1] = e.pair
			continue
		}

		if pendingFlush {
			if err := flush(); err != nil {
				return nil, err
			}
			pendingFlush = false
		}
		buf = append(buf, e.pair)
		if len(buf) == blockSize {
			pendingFlush = true
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}
