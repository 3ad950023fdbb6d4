// Package store is the LSM tree's outer facade: it owns the mutable
// table, the levels, and the shared block cache, and routes Put/Get,
// triggering flush and cascade (spec.md §4.5).
//
// Grounded on the teacher's lsm/lsm.go for the overall shape (one facade
// owning levels + memtables + a shared cache, manifests rewritten in
// full), simplified to single-threaded: spec.md §5 excludes concurrent
// callers, so the teacher's sync.RWMutex / FlushPool / levelLocks are not
// carried here (see DESIGN.md).
package store

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"lsmkv/internal/cache"
	"lsmkv/internal/config"
	"lsmkv/internal/level"
	"lsmkv/internal/model"
	"lsmkv/internal/skiplist"
)

// mutableMaxHeight bounds the mutable table's skip list height; it is an
// implementation constant, not a spec.md tuning knob.
const mutableMaxHeight = 16

// Store is the embedded key-value store described by spec.md.
type Store struct {
	cfg     config.Config
	mutable *skiplist.SkipList
	levels  map[uint32]*level.Level
	maxLvl  uint32
	cache   *cache.BlockCache
}

// New constructs a Store, validating cfg (a Contract error aborts
// construction per spec.md §7) and loading any on-disk levels found under
// cfg.Dir.
func New(cfg config.Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "store: invalid config")
	}
	dir := cfg.Dir
	if dir == "" {
		dir = cfg.DBName
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "store: mkdir %s", dir)
	}
	cfg.Dir = dir

	bc, err := cache.NewBlockCache(cfg.MaxCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "store: new cache")
	}

	s := &Store{
		cfg:     cfg,
		mutable: skiplist.New(mutableMaxHeight),
		levels:  make(map[uint32]*level.Level),
		cache:   bc,
	}

	// Reload any levels already on disk, scanning upward until a gap.
	for idx := uint32(1); ; idx++ {
		lvl, ok, err := level.Load(dir, idx)
		if err != nil {
			return nil, errors.Wrapf(err, "store: load level %d", idx)
		}
		if !ok {
			break
		}
		s.levels[idx] = lvl
		s.maxLvl = idx
	}

	return s, nil
}

// MustOpen is the one designated fatal entry point (used by cmd/kvcli):
// it opens a Store or terminates the process with a diagnostic, matching
// spec.md §7's "process termination with a diagnostic" and the teacher's
// own main.go, which logs fatal errors rather than attempting recovery.
func MustOpen(cfg config.Config) *Store {
	s, err := New(cfg)
	if err != nil {
		fatalf("store: open: %+v", err)
	}
	return s
}

func (s *Store) ensureLevel(idx uint32) *level.Level {
	if lvl, ok := s.levels[idx]; ok {
		return lvl
	}
	lvl := level.New(s.cfg.Dir, idx)
	s.levels[idx] = lvl
	if idx > s.maxLvl {
		s.maxLvl = idx
	}
	return lvl
}

// Get probes the mutable table, then each level in order 1, 2, 3, ...,
// returning the first hit (spec.md §4.5).
func (s *Store) Get(key string) (string, bool, error) {
	if v, ok := s.mutable.Get(key); ok {
		return v, true, nil
	}
	for idx := uint32(1); idx <= s.maxLvl; idx++ {
		lvl, ok := s.levels[idx]
		if !ok {
			continue
		}
		v, ok, err := lvl.Get(key, s.cache)
		if err != nil {
			return "", false, errors.Wrap(err, "store: get")
		}
		if ok {
			return v, true, nil
		}
	}
	return "", false, nil
}

// Put inserts key=value into the mutable table (overwrite semantics),
// flushing it to level 1 and running the cascade loop if it has grown
// past block_size (spec.md §4.5).
func (s *Store) Put(key, value string) error {
	if _, err := model.NewPair(key, value); err != nil {
		return errors.Wrap(err, "store: put")
	}
	s.mutable.Put(key, value)

	if s.mutable.Len() <= s.cfg.BlockSize {
		return nil
	}
	return s.flushAndCascade()
}

// Flush forces the mutable table to level 1 (and runs the cascade loop)
// regardless of block_size, a no-op if the mutable table is empty. Every
// Put otherwise only persists once the mutable table exceeds block_size
// (spec.md §4.5), so a short-lived process - such as cmd/kvcli, which
// opens a Store, performs one Put, and exits - must call Flush before
// exiting or its write is lost with the process's memory.
func (s *Store) Flush() error {
	if s.mutable.Len() == 0 {
		return nil
	}
	return s.flushAndCascade()
}

func (s *Store) flushAndCascade() error {
	entries := s.mutable.Entries()
	pairs := make([]model.Pair, len(entries))
	for i, e := range entries {
		pairs[i] = model.Pair{Key: e.Key, Value: e.Value}
	}
	s.mutable.Reset()

	lvl1 := s.ensureLevel(1)
	needsCascade, err := lvl1.CreateBlock(pairs, s.cfg.Level1Size)
	if err != nil {
		return errors.Wrap(err, "store: flush")
	}

	srcIdx := uint32(1)
	for needsCascade {
		dstIdx := srcIdx + 1
		srcLvl := s.levels[srcIdx]
		dstLvl := s.ensureLevel(dstIdx)

		incoming := srcLvl.BlocksToMerge(s.cfg.MergeStepSize)
		update, nextNeeds, err := dstLvl.MergeBlocks(incoming, s.cfg.BlockSize, s.cfg.Level1Size, s.cfg.Level2Size, s.cfg.SizeScale)
		if err != nil {
			return errors.Wrapf(err, "store: cascade level %d -> %d", srcIdx, dstIdx)
		}
		if err := srcLvl.Persist(); err != nil {
			return errors.Wrapf(err, "store: persist level %d", srcIdx)
		}

		// Manifests are rewritten before file unlinks (both dstLvl's, via
		// MergeBlocks, and srcLvl's, just above): a crash between the two
		// leaks files but never loses a live block from a manifest
		// (spec.md §4.5 ordering guarantee).
		for _, b := range update.Removed {
			s.cache.Invalidate(b.ID)
			if err := os.Remove(filepath.Join(s.cfg.Dir, b.Filename())); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "store: unlink %s", b.Filename())
			}
		}

		needsCascade = nextNeeds
		srcIdx = dstIdx
	}
	return nil
}
