// Package level implements one horizontal slice of the LSM tree: its block
// list, id allocator, lookup, and the structural operations that drive
// compaction (spec.md §4.4).
//
// The level-as-ordered-block-list shape is grounded on the pack's
// intellect4all-storage-engines LevelManager (other_examples/2e2df8c2_...), adapted to the spec's
// block-count capacity model (not byte-size) and manifest format.
package level

import (
	"github.com/pkg/errors"

	"lsmkv/internal/block"
	"lsmkv/internal/compaction"
	"lsmkv/internal/model"
)

// Update is the currency of a merge: the blocks a structural change added
// and removed, used by the store to invalidate the cache and unlink files
// (spec.md §4).
type Update struct {
	Added   []block.Block
	Removed []block.Block
}

// Level holds the blocks belonging to one LSM level, in insertion order
// at level 1 (oldest-first, i.e. flush order) or merge order at level
// L >= 2, plus this level's own block-id allocator.
type Level struct {
	Index     uint32
	Dir       string
	blocks    []block.Block
	allocator uint32
}

// New creates an empty level rooted at dir.
func New(dir string, index uint32) *Level {
	return &Level{Index: index, Dir: dir}
}

// Load reconstructs a level from its on-disk manifest, if one exists. ok
// is false when there is no manifest yet (a level that has never existed).
func Load(dir string, index uint32) (*Level, bool, error) {
	allocator, blocks, ok, err := readManifest(dir, index)
	if err != nil {
		return nil, false, errors.Wrapf(err, "level %d: load", index)
	}
	if !ok {
		return nil, false, nil
	}
	return &Level{Index: index, Dir: dir, blocks: blocks, allocator: allocator}, true, nil
}

// Blocks returns a copy of this level's current block list.
func (l *Level) Blocks() []block.Block {
	out := make([]block.Block, len(l.blocks))
	copy(out, l.blocks)
	return out
}

// Len returns the number of blocks currently in this level.
func (l *Level) Len() int {
	return len(l.blocks)
}

func (l *Level) nextID() uint32 {
	id := l.allocator
	l.allocator++
	return id
}

// persist rewrites this level's manifest in full to reflect its current
// in-memory block list (spec.md §3).
func (l *Level) persist() error {
	return writeManifest(l.Dir, l.Index, l.allocator, l.blocks)
}

// Persist rewrites this level's manifest in full. The store calls this
// after BlocksToMerge removes blocks from a source level, since that
// mutation doesn't otherwise trigger a manifest rewrite on its own.
func (l *Level) Persist() error {
	return l.persist()
}

// Get scans this level's blocks newest-first and returns the first hit,
// per spec.md §4.4: within a level the newer definition of a key shadows
// older ones, and at levels >= 2 the non-overlap invariant means at most
// one block can answer, but the reverse scan costs nothing extra either
// way.
func (l *Level) Get(key string, c block.Cache) (string, bool, error) {
	for i := len(l.blocks) - 1; i >= 0; i-- {
		v, ok, err := l.blocks[i].Get(key, c)
		if err != nil {
			return "", false, errors.Wrapf(err, "level %d: get", l.Index)
		}
		if ok {
			return v, true, nil
		}
	}
	return "", false, nil
}

// CreateBlock persists pairs as a new level-1 block (flush path, spec.md
// §4.4) and reports whether this level now exceeds level1Size and needs a
// cascade. It is only meaningful for level 1; the store is responsible for
// calling it on levels[0].
func (l *Level) CreateBlock(pairs []model.Pair, level1Size int) (needsCascade bool, err error) {
	id := block.ID{OriginLevel: l.Index, BlockID: l.nextID()}
	b, err := block.Create(l.Dir, id, pairs)
	if err != nil {
		return false, errors.Wrapf(err, "level %d: create block", l.Index)
	}
	l.blocks = append(l.blocks, b)
	if err := l.persist(); err != nil {
		return false, err
	}
	return len(l.blocks) > level1Size, nil
}

// BlocksToMerge removes and returns the mergeStepSize oldest blocks from
// this level, for the source side of a cascade step. "Oldest" is the
// level's list order, i.e. insertion order: flush order at level 1, and at
// levels >= 2 the order in which blocks were kept or appended by merges
// (not block-id order).
func (l *Level) BlocksToMerge(mergeStepSize int) []block.Block {
	if mergeStepSize > len(l.blocks) {
		mergeStepSize = len(l.blocks)
	}
	picked := make([]block.Block, mergeStepSize)
	copy(picked, l.blocks[:mergeStepSize])
	l.blocks = l.blocks[mergeStepSize:]
	return picked
}

// levelSizeMax implements spec.md §4.4's level_size_max(L) formula for
// L >= 2: level2_size * size_scale^(L-1).
func levelSizeMax(l uint32, level2Size, sizeScale int) int {
	max := level2Size
	for i := uint32(1); i < l; i++ {
		max *= sizeScale
	}
	return max
}

// MergeBlocks is the compaction engine's entry point for arrivals from the
// level above (spec.md §4.4).
//
// Case A (this level is 1): incoming blocks are appended as-is (incoming
// blocks retain their OriginLevel; no block files are written, only the
// manifest is rewritten). Cascade is
// needed iff the new length exceeds level1Size.
//
// Case B (this level is L >= 2): the overlapping subsets of self and
// incoming are partitioned to a fixpoint, k-way merged (incoming streams
// at higher precedence than self streams, since incoming is newer), and
// the merge's new blocks replace the merged region. Cascade is needed iff
// the new length reaches levelSizeMax(L).
func (l *Level) MergeBlocks(incoming []block.Block, blockSize, level1Size, level2Size, sizeScale int) (Update, bool, error) {
	if l.Index == 1 {
		l.blocks = append(l.blocks, incoming...)
		if err := l.persist(); err != nil {
			return Update{}, false, err
		}
		return Update{}, len(l.blocks) > level1Size, nil
	}

	selfKeep, selfMerge, inKeep, inMerge := partitionToFixpoint(l.blocks, incoming)

	streams := make([]compaction.Stream, 0, len(selfMerge)+len(inMerge))
	for i, b := range selfMerge {
		pairs, err := block.Iter(b.Path())
		if err != nil {
			return Update{}, false, errors.Wrapf(err, "level %d: merge read self block", l.Index)
		}
		streams = append(streams, compaction.Stream{Pairs: pairs, Index: i})
	}
	// Incoming streams get strictly higher precedence indices than self
	// streams (incoming is newer). Within the incoming side itself,
	// ascending index preserves flush order (older first) so that, if the
	// incoming blocks are level-1 blocks that may overlap, the newer
	// flush still wins ties per spec.md §4.4 step 3.
	base := len(selfMerge)
	for i, b := range inMerge {
		pairs, err := block.Iter(b.Path())
		if err != nil {
			return Update{}, false, errors.Wrapf(err, "level %d: merge read incoming block", l.Index)
		}
		streams = append(streams, compaction.Stream{Pairs: pairs, Index: base + i})
	}

	var newBlocks []block.Block
	if len(streams) > 0 {
		var err error
		newBlocks, err = compaction.Merge(l.Dir, l.Index, streams, blockSize, l.nextID)
		if err != nil {
			return Update{}, false, errors.Wrapf(err, "level %d: merge", l.Index)
		}
	}

	l.blocks = append(append([]block.Block{}, selfKeep...), append(inKeep, newBlocks...)...)
	if err := l.persist(); err != nil {
		return Update{}, false, err
	}

	update := Update{
		Added:   newBlocks,
		Removed: append(append([]block.Block{}, selfMerge...), inMerge...),
	}
	needsCascade := len(l.blocks) >= levelSizeMax(l.Index, level2Size, sizeScale)
	return update, needsCascade, nil
}

// partitionToFixpoint splits self and incoming into the blocks that
// participate in the merge (self/incoming overlapping any of the other's
// merge set, repeated until neither set changes) and the blocks that stay
// untouched. self is pairwise non-overlapping by invariant, so one pass
// per side suffices *provided* the other side is recomputed against the
// full growing merge set each time - spec.md §4.4 step 2 requires
// iterating to a fixpoint, which is what this loop does.
func partitionToFixpoint(self, incoming []block.Block) (selfKeep, selfMerge, inKeep, inMerge []block.Block) {
	selfMerged := make([]bool, len(self))
	inMerged := make([]bool, len(incoming))

	// Incoming blocks that overlap one another (level-1 arrivals may) are
	// merged, so they never land side by side in this level.
	for j, a := range incoming {
		for k, b := range incoming {
			if j != k && block.Overlaps(a, b) {
				inMerged[j] = true
				break
			}
		}
	}

	// A self block merges if it overlaps any incoming block at all - every
	// incoming block is a merge candidate from the start.
	for i, s := range self {
		for _, in := range incoming {
			if block.Overlaps(s, in) {
				selfMerged[i] = true
				break
			}
		}
	}

	// Grow both sets to a fixpoint: an incoming block merges if it
	// overlaps a merged self block, and vice versa, until a pass changes
	// neither (spec.md §4.4 step 2).
	for {
		changed := false
		for j, in := range incoming {
			if inMerged[j] {
				continue
			}
			for i, s := range self {
				if selfMerged[i] && block.Overlaps(s, in) {
					inMerged[j] = true
					changed = true
					break
				}
			}
		}
		for i, s := range self {
			if selfMerged[i] {
				continue
			}
			for j, in := range incoming {
				if inMerged[j] && block.Overlaps(s, in) {
					selfMerged[i] = true
					changed = true
					break
				}
			}
		}
		if !changed {
			break
		}
	}

	for i, s := range self {
		if selfMerged[i] {
			selfMerge = append(selfMerge, s)
		} else {
			selfKeep = append(selfKeep, s)
		}
	}
	for j, in := range incoming {
		if inMerged[j] {
			inMerge = append(inMerge, in)
		} else {
			inKeep = append(inKeep, in)
		}
	}
	return
}
