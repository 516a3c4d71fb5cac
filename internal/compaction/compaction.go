// Package compaction implements the offline rewrite that reclaims space
// from superseded Puts and Tombstones (spec §4.5). Compaction is never
// automatic and never runs concurrently with writes: the Engine rejects
// Set, Delete and Compact for the duration of Run. Get, ListKeys and Stats
// are not blocked by the Engine.
package compaction

import (
	"path/filepath"
	"slices"

	"github.com/arvindnair/strata/internal/index"
	"github.com/arvindnair/strata/internal/segment"
	"github.com/arvindnair/strata/internal/storage"
	"github.com/arvindnair/strata/pkg/errors"
	"github.com/arvindnair/strata/pkg/filesys"
	"github.com/arvindnair/strata/pkg/seginfo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// stagingDir is the name of the temporary subdirectory new segments are
// written into before the atomic swap (spec §4.5 step 1).
const stagingDir = ".compacting"

// Run rewrites every live key in idx into fresh segments under dataDir,
// then swaps them in for the segments currently held by st using the
// "old-first-remove-then-move" discipline (spec §4.5 step 5), and finally
// rebuilds idx from the new segments.
//
// On success, st and idx reflect the compacted store. On failure, st and
// idx are left unmodified if the failure occurred before the swap phase;
// a failure during or after the swap phase is unrecoverable within this
// call and is reported as CompactionFailed, matching the invariant that a
// crash at that point is repaired by the next Open rather than by this
// function (spec §4.5 "Failure semantics of compaction").
func Run(st *storage.Storage, idx *index.Index, dataDir string, segmentSize int64, log *zap.SugaredLogger) error {
	temp := filepath.Join(dataDir, stagingDir)

	if exists, err := filesys.Exists(temp); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeCompactionFailed, "failed to stat staging directory").WithPath(temp)
	} else if exists {
		if err := filesys.DeleteDir(temp); err != nil {
			return errors.NewStorageError(err, errors.ErrorCodeCompactionFailed, "failed to clear stale staging directory").WithPath(temp)
		}
	}
	if err := filesys.CreateDir(temp, 0o755, true); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeCompactionFailed, "failed to create staging directory").WithPath(temp)
	}

	tempSegments, err := writeLiveEntries(st, idx, temp, segmentSize, log)
	if err != nil {
		_ = filesys.DeleteDir(temp)
		return errors.NewStorageError(err, errors.ErrorCodeCompactionFailed, "failed to rewrite live entries").WithPath(temp)
	}

	if err := syncAndClose(temp, tempSegments); err != nil {
		_ = filesys.DeleteDir(temp)
		return errors.NewStorageError(err, errors.ErrorCodeCompactionFailed, "failed to flush staged segments").WithPath(temp)
	}

	oldIDs := st.IDs()
	if err := st.Swap(map[uint64]*segment.Segment{}, 0); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeCompactionFailed, "failed to release old segments").WithPath(dataDir)
	}

	// Old-first-remove-then-move: a surviving old segment with a higher id
	// than a new segment would shadow it on replay, so every old file must
	// be gone before any new file is promoted (spec §4.5 step 5).
	for _, id := range oldIDs {
		if err := filesys.DeleteFile(segment.Path(dataDir, id)); err != nil {
			return errors.NewStorageError(err, errors.ErrorCodeCompactionFailed, "failed to remove superseded segment").
				WithSegmentID(int(id)).WithPath(dataDir)
		}
	}

	newIDs := make([]uint64, 0, len(tempSegments))
	for id := range tempSegments {
		newIDs = append(newIDs, id)
	}
	slices.Sort(newIDs)

	for _, id := range newIDs {
		src := segment.Path(temp, id)
		dst := segment.Path(dataDir, id)
		if err := filesys.MoveFile(src, dst); err != nil {
			return errors.NewStorageError(err, errors.ErrorCodeCompactionFailed, "failed to promote staged segment").
				WithSegmentID(int(id)).WithPath(dst)
		}
	}
	_ = filesys.DeleteDir(temp)

	if err := idx.Clear(); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeCompactionFailed, "failed to clear index after swap")
	}

	reopened, activeID, err := reopenAll(dataDir, log)
	if err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeCompactionFailed, "failed to reopen compacted segments").WithPath(dataDir)
	}
	if err := st.Swap(reopened, activeID); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeCompactionFailed, "failed to install compacted segments")
	}

	if err := RebuildIndex(idx, reopened, log); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeCompactionFailed, "failed to rebuild index after compaction")
	}

	log.Infow("compaction complete", "segments", len(reopened), "activeID", activeID)
	return nil
}

// writeLiveEntries resolves each live key's current value through st and
// appends it as a Put into fresh, size-rotated segments under temp,
// starting at id 0 (spec §4.5 steps 2-3).
func writeLiveEntries(st *storage.Storage, idx *index.Index, temp string, segmentSize int64, log *zap.SugaredLogger) (map[uint64]*segment.Segment, error) {
	keys, err := idx.Keys()
	if err != nil {
		return nil, err
	}

	segments := make(map[uint64]*segment.Segment)
	var activeID uint64

	active, err := segment.Open(temp, 0, log)
	if err != nil {
		return nil, err
	}
	segments[0] = active

	for _, key := range keys {
		loc, ok, err := idx.Get(key)
		if err != nil {
			return segments, err
		}
		if !ok {
			continue
		}

		src, ok := st.Get(loc.SegmentID)
		if !ok {
			return segments, errors.NewStorageError(nil, errors.ErrorCodeSegmentNotFound, "live entry references unknown segment").
				WithSegmentID(int(loc.SegmentID))
		}

		_, value, err := src.ReadValueAt(loc.Offset)
		if err != nil {
			return segments, err
		}

		if active.IsFull(segmentSize) {
			activeID++
			next, err := segment.Open(temp, activeID, log)
			if err != nil {
				return segments, err
			}
			segments[activeID] = next
			active = next
		}

		if _, err := active.Append([]byte(key), value, false); err != nil {
			return segments, err
		}
	}

	return segments, nil
}

func syncAndClose(temp string, segments map[uint64]*segment.Segment) error {
	var err error
	for _, seg := range segments {
		if serr := seg.Sync(); serr != nil {
			err = multierr.Append(err, serr)
		}
		if cerr := seg.Close(); cerr != nil {
			err = multierr.Append(err, cerr)
		}
	}
	if err != nil {
		return err
	}
	return filesys.SyncDir(temp)
}

// reopenAll re-discovers and opens every segment file under dir, matching
// Engine.Open's segment-discovery step (spec §4.4 steps 2-4).
func reopenAll(dir string, log *zap.SugaredLogger) (map[uint64]*segment.Segment, uint64, error) {
	ids, err := seginfo.ListSegmentIDs(dir)
	if err != nil {
		return nil, 0, err
	}

	segments := make(map[uint64]*segment.Segment, len(ids))
	for _, id := range ids {
		seg, err := segment.Open(dir, id, log)
		if err != nil {
			return segments, 0, err
		}
		segments[id] = seg
	}

	var activeID uint64
	if len(ids) > 0 {
		activeID = slices.Max(ids)
	}
	return segments, activeID, nil
}

// RebuildIndex replays every segment in ascending id order, matching
// Engine.Open's index-rebuild step (spec §4.4 step 5).
func RebuildIndex(idx *index.Index, segments map[uint64]*segment.Segment, log *zap.SugaredLogger) error {
	ids := make([]uint64, 0, len(segments))
	for id := range segments {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		seg := segments[id]
		records, err := seg.ScanFromStart()
		if err != nil {
			return err
		}
		for _, rec := range records {
			key := string(rec.Key)
			if rec.Tombstone {
				if err := idx.Remove(key); err != nil {
					return err
				}
				continue
			}
			loc := index.Location{SegmentID: id, Offset: rec.Offset, ValueLen: int64(len(rec.Value))}
			if err := idx.Insert(key, loc); err != nil {
				return err
			}
		}
	}

	log.Infow("index rebuilt", "segments", len(ids))
	return nil
}
