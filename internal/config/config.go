// Package config holds the store's tuning parameters (spec.md §6).
//
// The JSON-file load/default-value-fallback shape is adapted from the
// teacher's utils/config/config.go, flattened to this store's single set
// of knobs instead of the teacher's per-subsystem nested struct (this
// store has one tunable surface, not one config blob shared across many
// independent subsystems).
package config

import (
	"encoding/json"
	"log"
	"os"

	"github.com/pkg/errors"
)

// Config enumerates the tuning parameters of spec.md §6.
type Config struct {
	// DBName is an identifier that may be used as a path prefix
	// (implementation-defined; this store uses it as the data directory
	// name when Dir is empty).
	DBName string `json:"db_name"`

	// Level1Size is the max number of blocks at level 1 before cascade.
	Level1Size int `json:"level1_size"`

	// Level2Size is the base capacity for level 2.
	Level2Size int `json:"level2_size"`

	// SizeScale is the geometric growth factor per level, >= 2.
	SizeScale int `json:"size_scale"`

	// BlockSize is the max pairs per block and the mutable-table flush
	// threshold.
	BlockSize int `json:"block_size"`

	// MergeStepSize is the number of source-level blocks moved per
	// cascade step; must satisfy MergeStepSize <= Level2Size.
	MergeStepSize int `json:"merge_step_size"`

	// MaxCacheSize is the max number of blocks cached.
	MaxCacheSize int `json:"max_cache_size"`

	// Dir is the on-disk directory block and manifest files live in. Not
	// part of spec.md's enumerated config, but every implementation needs
	// somewhere to put its files; defaults to DBName if empty.
	Dir string `json:"dir"`
}

// Default returns the example configuration from spec.md §6.
func Default() Config {
	return Config{
		DBName:        "lsmkv",
		Level1Size:    4,
		Level2Size:    10,
		SizeScale:     10,
		BlockSize:     1024,
		MergeStepSize: 4,
		MaxCacheSize:  100,
		Dir:           "lsmkv-data",
	}
}

// Validate enforces the Contract errors of spec.md §7: fatal at
// construction, never at runtime.
func (c Config) Validate() error {
	if c.SizeScale < 2 {
		return errors.Errorf("config: size_scale must be >= 2, got %d", c.SizeScale)
	}
	if c.MergeStepSize > c.Level2Size {
		return errors.Errorf("config: merge_step_size (%d) must be <= level2_size (%d)", c.MergeStepSize, c.Level2Size)
	}
	if c.Level1Size <= 0 || c.Level2Size <= 0 {
		return errors.New("config: level1_size and level2_size must be positive")
	}
	if c.BlockSize <= 0 {
		return errors.New("config: block_size must be positive")
	}
	if c.MergeStepSize <= 0 {
		return errors.New("config: merge_step_size must be positive")
	}
	if c.MaxCacheSize <= 0 {
		return errors.New("config: max_cache_size must be positive")
	}
	return nil
}

// Load reads a JSON config file, falling back to Default on a missing,
// unreadable or malformed file - matching the teacher's
// utils/config/config.go default-on-failure behavior. A missing file falls
// back silently; the other two cases log a warning first.
func Load(path string) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("config: failed to read %s, using defaults: %v", path, err)
		}
		return Default()
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		log.Printf("config: failed to parse %s, using defaults: %v", path, err)
		return Default()
	}
	return c
}

// Save writes c to path as indented JSON.
func Save(c Config, path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "config: marshal")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "config: write %s", path)
	}
	return nil
}
