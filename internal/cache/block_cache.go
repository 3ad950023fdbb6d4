package cache

import (
	"github.com/pkg/errors"

	"lsmkv/internal/block"
)

// BlockCache is the LRU of fully-materialized block contents keyed by
// block identity, shared by every level (spec.md §4.2). It is the
// cross-level shared structure referenced by spec.md §5; the store must
// give it exclusive-access discipline since this package assumes a single
// caller at a time (no locking is done here, matching spec.md's
// single-threaded model).
type BlockCache struct {
	lru *LRU[block.ID, map[string]string]
}

// NewBlockCache creates a block cache bounded by maxCount materialized
// block maps (spec.md's max_cache_size / max_cache_count).
func NewBlockCache(maxCount int) (*BlockCache, error) {
	lru, err := New[block.ID, map[string]string](maxCount)
	if err != nil {
		return nil, errors.Wrap(err, "cache: new block cache")
	}
	return &BlockCache{lru: lru}, nil
}

// GetOrLoad returns b's materialized key->value map, loading it from disk
// on a miss and inserting it (evicting the LRU entry if over capacity).
// Loads are not deduplicated, matching the single-threaded model.
func (bc *BlockCache) GetOrLoad(b block.Block) (map[string]string, error) {
	if m, err := bc.lru.Get(b.ID); err == nil {
		return m, nil
	}

	pairs, err := block.Iter(b.Path())
	if err != nil {
		return nil, errors.Wrapf(err, "cache: load block %v", b.ID)
	}
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		m[p.Key] = p.Value
	}
	bc.lru.Put(b.ID, m)
	return m, nil
}

// Invalidate removes b's entry, if present. The store calls this after a
// merge unlinks b's file, since a cached entry for an unlinked block must
// never be returned again (spec.md §3 Ownership & lifecycle).
func (bc *BlockCache) Invalidate(id block.ID) {
	bc.lru.Remove(id)
}

// Len returns the number of materialized blocks currently cached.
func (bc *BlockCache) Len() int {
	return bc.lru.Len()
}
