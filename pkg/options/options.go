// Package options provides data structures and functions for configuring
// the strata key-value store. It defines the parameters that control the
// engine's durability, rotation, and compaction-hint behavior, and supports
// both functional-option construction and loading from a JSONC config file.
package options

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tailscale/hujson"
)

// FsyncPolicy controls when an append is durably flushed to stable storage.
type FsyncPolicy string

const (
	// FsyncAlways fsyncs the active segment after every append. This is the
	// default and the only policy covered by the durability testable
	// properties in spec §8 (P3).
	FsyncAlways FsyncPolicy = "always"

	// FsyncBatch skips the per-append fsync. The current engine issues no
	// fsync on rotation or on Close either, so it behaves like FsyncNever.
	FsyncBatch FsyncPolicy = "batch"

	// FsyncNever forgoes fsync entirely. Not crash-safe.
	FsyncNever FsyncPolicy = "never"
)

func (p FsyncPolicy) valid() bool {
	switch p {
	case FsyncAlways, FsyncBatch, FsyncNever:
		return true
	default:
		return false
	}
}

// Options defines the configuration parameters for a store. DataDir is the
// only required field; everything else has a spec-mandated default.
type Options struct {
	// DataDir is the base path where segment files are stored. Required.
	DataDir string `json:"dataDir"`

	// SegmentSize is the byte threshold above which a segment is
	// considered full (spec §6). Advisory: a record that would cross the
	// limit is written in full; only the next append rotates.
	//
	// Default: 1 MiB.
	SegmentSize int64 `json:"segmentSize"`

	// FsyncPolicy is the durability knob described in spec §6.
	//
	// Default: "always".
	FsyncPolicy FsyncPolicy `json:"fsyncPolicy"`

	// CompactionThreshold is a hint only; the core never auto-compacts on
	// its own (spec §6). Reserved for callers that want to decide when to
	// invoke Compact, e.g. "compact once total_bytes exceeds this".
	//
	// Default: 0 (no hint).
	CompactionThreshold int64 `json:"compactionThreshold"`
}

// OptionFunc is a function that modifies a store's configuration.
type OptionFunc func(*Options)

// WithDefaultOptions resets Options to the package defaults.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		defaults := NewDefaultOptions()
		*o = defaults
	}
}

// WithDataDir sets the store's root directory.
func WithDataDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.DataDir = directory
		}
	}
}

// WithSegmentSize sets the advisory segment size limit, in bytes.
func WithSegmentSize(size int64) OptionFunc {
	return func(o *Options) {
		if size > 0 {
			o.SegmentSize = size
		}
	}
}

// WithFsyncPolicy sets the durability policy. Invalid values are ignored.
func WithFsyncPolicy(policy FsyncPolicy) OptionFunc {
	return func(o *Options) {
		if policy.valid() {
			o.FsyncPolicy = policy
		}
	}
}

// WithCompactionThreshold sets the caller-facing compaction hint.
func WithCompactionThreshold(threshold int64) OptionFunc {
	return func(o *Options) {
		if threshold >= 0 {
			o.CompactionThreshold = threshold
		}
	}
}

// Validate checks that Options is usable to open a store.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.DataDir) == "" {
		return fmt.Errorf("options: dataDir is required")
	}
	if o.SegmentSize <= 0 {
		return fmt.Errorf("options: segmentSize must be positive")
	}
	if !o.FsyncPolicy.valid() {
		return fmt.Errorf("options: unrecognized fsyncPolicy %q", o.FsyncPolicy)
	}
	return nil
}

// LoadConfigFile reads a JSONC (JSON-with-comments) configuration file at
// path, standardizes it to plain JSON via hujson, and unmarshals it over a
// copy of the package defaults so that unset fields keep their defaults.
func LoadConfigFile(path string) (Options, error) {
	opts := NewDefaultOptions()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("options: read config %q: %w", path, err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return Options{}, fmt.Errorf("options: parse jsonc config %q: %w", path, err)
	}

	if err := json.Unmarshal(standardized, &opts); err != nil {
		return Options{}, fmt.Errorf("options: decode config %q: %w", path, err)
	}

	return opts, nil
}
