// Package engine provides the core database engine for the strata
// key-value store.
//
// The engine is the top-level coordinator owning the segment set (via
// internal/storage) and the in-memory index (internal/index). It services
// Set/Get/Delete/ListKeys/Stats by routing to segments and updating the
// index, handles segment rotation on size limit, and delegates Compact to
// internal/compaction (spec §2, §4.4).
package engine

import (
	"context"
	"sync/atomic"

	"github.com/arvindnair/strata/internal/compaction"
	"github.com/arvindnair/strata/internal/index"
	"github.com/arvindnair/strata/internal/storage"
	"github.com/arvindnair/strata/pkg/errors"
	"github.com/arvindnair/strata/pkg/options"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Engine is the main database engine. It is designed for one logical
// writer at a time (spec §5); the compacting flag only guards against a
// caller violating that assumption, it is not a substitute for external
// mutual exclusion.
type Engine struct {
	options options.Options
	log     *zap.SugaredLogger
	dataDir string

	closed     atomic.Bool
	compacting atomic.Bool

	storage *storage.Storage
	index   *index.Index
}

// Config holds the parameters needed to open an Engine.
type Config struct {
	Options options.Options
	Logger  *zap.SugaredLogger
}

// Open validates config, discovers (or creates) the segments under
// config.Options.DataDir, and rebuilds the index by prefix-scanning every
// segment in ascending id order (spec §4.4 Open).
func Open(ctx context.Context, config Config) (*Engine, error) {
	if config.Logger == nil {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "logger is required").
			WithField("Logger").WithRule("required")
	}
	if err := config.Options.Validate(); err != nil {
		return nil, errors.NewValidationError(err, errors.ErrorCodeInvalidInput, "invalid engine configuration").
			WithField("Options")
	}

	st, err := storage.New(&storage.Config{
		Dir:         config.Options.DataDir,
		SegmentSize: config.Options.SegmentSize,
		Logger:      config.Logger,
	})
	if err != nil {
		return nil, err
	}

	idx, err := index.New(index.Config{Logger: config.Logger})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	if err := compaction.RebuildIndex(idx, st.Snapshot(), config.Logger); err != nil {
		_ = st.Close()
		_ = idx.Close()
		return nil, err
	}

	config.Logger.Infow("engine opened", "dataDir", config.Options.DataDir, "segments", len(st.IDs()))

	return &Engine{
		options: config.Options,
		log:     config.Logger,
		dataDir: config.Options.DataDir,
		storage: st,
		index:   idx,
	}, nil
}

// Set stores value under key, rotating the active segment first if it has
// reached its size limit (spec §4.4 Set).
func (e *Engine) Set(key string, value []byte) error {
	if e.closed.Load() {
		return errors.ErrEngineClosed
	}
	if e.compacting.Load() {
		return errors.ErrCompactionInProgress
	}

	if err := e.storage.RotateIfFull(); err != nil {
		return err
	}

	active, err := e.storage.Active()
	if err != nil {
		return err
	}

	offset, err := active.Append([]byte(key), value, e.fsyncNow())
	if err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to append record").
			WithSegmentID(int(active.ID()))
	}

	return e.index.Insert(key, index.Location{
		SegmentID: active.ID(),
		Offset:    offset,
		ValueLen:  int64(len(value)),
	})
}

// Get returns the value stored under key, or ErrKeyNotFound if absent
// (spec §4.4 Get). A checksum mismatch or a key mismatch between the
// index and the decoded record is a hard error, never silently dropped.
func (e *Engine) Get(key string) ([]byte, error) {
	if e.closed.Load() {
		return nil, errors.ErrEngineClosed
	}

	loc, ok, err := e.index.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrKeyNotFound
	}

	seg, ok := e.storage.Get(loc.SegmentID)
	if !ok {
		return nil, errors.NewStorageError(nil, errors.ErrorCodeSegmentNotFound, "index references unknown segment").
			WithSegmentID(int(loc.SegmentID))
	}

	decodedKey, value, err := seg.ReadValueAt(loc.Offset)
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeChecksumMismatch, "failed to read record").
			WithSegmentID(int(loc.SegmentID)).WithOffset(int(loc.Offset))
	}

	if string(decodedKey) != key {
		return nil, errors.NewStorageError(nil, errors.ErrorCodeCorruptedData, "index points at mismatched key").
			WithSegmentID(int(loc.SegmentID)).WithOffset(int(loc.Offset))
	}

	return value, nil
}

// Delete marks key as deleted. Deleting an absent key is a no-op and
// returns nil (spec §4.4 Delete step 1, §7 "a delete of an absent key is
// not an error").
func (e *Engine) Delete(key string) error {
	if e.closed.Load() {
		return errors.ErrEngineClosed
	}
	if e.compacting.Load() {
		return errors.ErrCompactionInProgress
	}

	present, err := e.index.Contains(key)
	if err != nil {
		return err
	}
	if !present {
		return nil
	}

	if err := e.storage.RotateIfFull(); err != nil {
		return err
	}

	active, err := e.storage.Active()
	if err != nil {
		return err
	}

	if _, err := active.AppendTombstone([]byte(key), e.fsyncNow()); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to append tombstone").
			WithSegmentID(int(active.ID()))
	}

	return e.index.Remove(key)
}

// ListKeys returns a snapshot of the live key set. Order is unspecified.
func (e *Engine) ListKeys() ([]string, error) {
	if e.closed.Load() {
		return nil, errors.ErrEngineClosed
	}
	return e.index.Keys()
}

// Stats reports the current size and shape of the store.
func (e *Engine) Stats() (Stats, error) {
	if e.closed.Load() {
		return Stats{}, errors.ErrEngineClosed
	}

	numKeys, err := e.index.Len()
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		NumKeys:         numKeys,
		NumSegments:     len(e.storage.IDs()),
		TotalBytes:      e.storage.TotalBytes(),
		ActiveSegmentID: e.storage.ActiveID(),
		OldestSegmentID: e.storage.OldestID(),
	}, nil
}

// Compact runs the offline compaction pipeline (spec §4.5), rejecting any
// concurrent Set/Delete/Compact for its duration.
func (e *Engine) Compact() error {
	if e.closed.Load() {
		return errors.ErrEngineClosed
	}
	if !e.compacting.CompareAndSwap(false, true) {
		return errors.ErrCompactionInProgress
	}
	defer e.compacting.Store(false)

	e.log.Infow("compaction starting", "dataDir", e.dataDir)
	return compaction.Run(e.storage, e.index, e.dataDir, e.options.SegmentSize, e.log)
}

// Close flushes and releases all engine resources. Idempotent.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return errors.ErrEngineClosed
	}
	return multierr.Combine(e.index.Close(), e.storage.Close())
}

// fsyncNow reports whether the configured durability policy calls for an
// fsync after this append. "batch" and "never" skip the per-append fsync,
// and neither rotation nor Close issues an fsync either: under both
// policies the engine never fsyncs a segment.
func (e *Engine) fsyncNow() bool {
	return e.options.FsyncPolicy == options.FsyncAlways
}
