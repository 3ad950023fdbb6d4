// Package block implements the immutable, sorted, on-disk run of pairs
// that is the leaf storage unit of the LSM tree (spec.md §4.1).
//
// A Block is created once from a sorted slice of pairs and never mutated
// afterwards; it is destroyed only by compaction, which unlinks its file
// once the replacement generation has been written.
package block

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"lsmkv/internal/model"
)

// ErrEmptyPairs is a Contract error: create requires a non-empty,
// sorted input (spec.md §4.1 edge cases).
var ErrEmptyPairs = errors.New("block: create requires a non-empty pair slice")

// ErrUnsorted is a Contract error: the input to Create must be strictly
// increasing by key.
var ErrUnsorted = errors.New("block: pairs must be strictly increasing by key")

// ID is the stable identity of a block: the level it was born at and a
// per-level sequence number. Blocks retain their OriginLevel under moves.
type ID struct {
	OriginLevel uint32
	BlockID     uint32
}

// Filename derives the on-disk name of a block, per spec.md §6.
func (id ID) Filename() string {
	return fmt.Sprintf("lv%d_%d.msst", id.OriginLevel, id.BlockID)
}

// Block is a finite, non-empty, sorted sequence of pairs backed by a file.
// Only the key-range metadata is kept resident; contents are read through
// the block cache (see package cache).
type Block struct {
	ID
	Dir string // directory the block file lives in
	Lo  string // first.Key
	Hi  string // last.Key
}

// Path returns the block's file path.
func (b Block) Path() string {
	return filepath.Join(b.Dir, b.Filename())
}

// Create writes pairs (which must be non-empty and strictly increasing by
// key) to a new block file, truncating any existing file of the same
// identity, and returns the resulting Block.
func Create(dir string, id ID, pairs []model.Pair) (Block, error) {
	if len(pairs) == 0 {
		return Block{}, ErrEmptyPairs
	}
	for i := 1; i < len(pairs); i++ {
		if pairs[i-1].Key >= pairs[i].Key {
			return Block{}, errors.Wrapf(ErrUnsorted, "pairs[%d].Key=%q >= pairs[%d].Key=%q", i-1, pairs[i-1].Key, i, pairs[i].Key)
		}
	}

	b := Block{ID: id, Dir: dir, Lo: pairs[0].Key, Hi: pairs[len(pairs)-1].Key}

	f, err := os.Create(b.Path())
	if err != nil {
		return Block{}, errors.Wrapf(err, "block: create %s", b.Path())
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, p := range pairs {
		if _, err := w.WriteString(p.Line()); err != nil {
			return Block{}, errors.Wrapf(err, "block: write %s", b.Path())
		}
	}
	if err := w.Flush(); err != nil {
		return Block{}, errors.Wrapf(err, "block: flush %s", b.Path())
	}
	return b, nil
}

// InRange reports whether key falls within [Lo, Hi].
func (b Block) InRange(key string) bool {
	return b.Lo <= key && key <= b.Hi
}

// Get returns the value for key, loading (or reusing) this block's
// materialized contents through cache. It short-circuits on range without
// touching the cache at all, per spec.md §4.1.
func (b Block) Get(key string, c Cache) (string, bool, error) {
	if !b.InRange(key) {
		return "", false, nil
	}
	m, err := c.GetOrLoad(b)
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

// Cache is the subset of the block cache's API that Block.Get needs. The
// real implementation lives in package cache; this avoids an import cycle
// between block and cache (cache.BlockCache materializes Blocks).
type Cache interface {
	GetOrLoad(b Block) (map[string]string, error)
}

// Iter returns the block's pairs in file order (= sorted order). It
// reopens the file and never touches the cache, per spec.md §4.1: each
// call is a fresh, single-pass, non-restartable read.
func Iter(path string) ([]model.Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "block: open %s", path)
	}
	defer f.Close()

	var pairs []model.Pair
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			p, perr := model.ParseLine(line)
			if perr != nil {
				return nil, errors.Wrapf(perr, "block: corrupt file %s", path)
			}
			pairs = append(pairs, p)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrapf(err, "block: read %s", path)
		}
	}
	return pairs, nil
}

// Overlaps reports whether the closed key-range intervals of a and b share
// any point, including full containment (spec.md §4.1).
func Overlaps(a, b Block) bool {
	return a.Lo <= b.Hi && b.Lo <= a.Hi
}
