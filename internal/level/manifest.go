package level

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"lsmkv/internal/block"
)

// manifestFilename derives a level's manifest path, per spec.md §6.
func manifestFilename(l uint32) string {
	return fmt.Sprintf("lv%d_meta.mfst", l)
}

// writeManifest rewrites level l's manifest file in full: the allocator
// value on line 1, then one "origin:id:lo:hi" line per block, in the
// level's current block order. Manifests are always rewritten in full
// after a structural change (spec.md §3).
func writeManifest(dir string, l uint32, allocator uint32, blocks []block.Block) error {
	path := filepath.Join(dir, manifestFilename(l))
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "manifest: create %s", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintf(w, "%d\n", allocator); err != nil {
		return errors.Wrapf(err, "manifest: write %s", path)
	}
	for _, b := range blocks {
		if _, err := fmt.Fprintf(w, "%d:%d:%s:%s\n", b.OriginLevel, b.BlockID, b.Lo, b.Hi); err != nil {
			return errors.Wrapf(err, "manifest: write %s", path)
		}
	}
	return w.Flush()
}

// readManifest loads a level's manifest, if present. ok is false if the
// manifest file does not yet exist (a level with no on-disk state).
func readManifest(dir string, l uint32) (allocator uint32, blocks []block.Block, ok bool, err error) {
	path := filepath.Join(dir, manifestFilename(l))
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, false, nil
		}
		return 0, nil, false, errors.Wrapf(err, "manifest: open %s", path)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return 0, nil, false, errors.Errorf("manifest: %s missing allocator line", path)
	}
	allocVal, perr := strconv.ParseUint(strings.TrimSpace(sc.Text()), 10, 32)
	if perr != nil {
		return 0, nil, false, errors.Wrapf(perr, "manifest: corrupt allocator line in %s", path)
	}
	allocator = uint32(allocVal)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) != 4 {
			return 0, nil, false, errors.Errorf("manifest: corrupt record line %q in %s", line, path)
		}
		origin, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return 0, nil, false, errors.Wrapf(err, "manifest: corrupt origin_level in %s", path)
		}
		id, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return 0, nil, false, errors.Wrapf(err, "manifest: corrupt block_id in %s", path)
		}
		blocks = append(blocks, block.Block{
			ID:  block.ID{OriginLevel: uint32(origin), BlockID: uint32(id)},
			Dir: dir,
			Lo:  parts[2],
			Hi:  parts[3],
		})
	}
	if err := sc.Err(); err != nil {
		return 0, nil, false, errors.Wrapf(err, "manifest: scan %s", path)
	}
	return allocator, blocks, true, nil
}
