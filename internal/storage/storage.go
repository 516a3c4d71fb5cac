// Package storage manages the set of open Segment files backing a store
// directory: discovering them on open, tracking which one is active for
// appends, rotating when the active segment fills, and performing the
// wholesale swap a compaction produces.
//
// Storage owns exactly the filesystem-facing half of the Engine's job; it
// has no notion of keys. The Engine combines Storage with an Index to
// service point operations (spec §4.4).
package storage

import (
	"fmt"
	"slices"

	"github.com/arvindnair/strata/internal/segment"
	"github.com/arvindnair/strata/pkg/errors"
	"github.com/arvindnair/strata/pkg/filesys"
	"github.com/arvindnair/strata/pkg/seginfo"
	"go.uber.org/multierr"
)

// ErrClosed is returned by any operation on a Storage after Close.
var ErrClosed = fmt.Errorf("operation failed: cannot access closed storage")

// New discovers existing segments under config.Dir, opens them all, and
// determines the active segment: the highest-id existing segment, or a
// fresh segment 0 if the directory held none (spec §4.4 step 4).
func New(config *Config) (*Storage, error) {
	if config == nil || config.Dir == "" || config.SegmentSize <= 0 || config.Logger == nil {
		return nil, fmt.Errorf("storage: invalid configuration")
	}

	if err := filesys.CreateDir(config.Dir, 0o755, true); err != nil {
		return nil, errors.ClassifyDirectoryCreationError(err, config.Dir)
	}

	ids, err := seginfo.ListSegmentIDs(config.Dir)
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to discover segments").
			WithPath(config.Dir)
	}

	s := &Storage{
		dir:         config.Dir,
		segmentSize: config.SegmentSize,
		segments:    make(map[uint64]*segment.Segment, len(ids)+1),
		log:         config.Logger,
	}

	for _, id := range ids {
		seg, err := segment.Open(config.Dir, id, config.Logger)
		if err != nil {
			_ = s.closeAll()
			return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to open segment").
				WithSegmentID(int(id)).WithPath(config.Dir)
		}
		s.segments[id] = seg
	}

	if len(ids) == 0 {
		seg, err := segment.Open(config.Dir, 0, config.Logger)
		if err != nil {
			return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to create initial segment").
				WithSegmentID(0).WithPath(config.Dir)
		}
		s.segments[0] = seg
		s.activeID = 0
		config.Logger.Infow("storage bootstrapped with fresh segment", "dir", config.Dir)
		return s, nil
	}

	s.activeID = slices.Max(ids)
	config.Logger.Infow("storage opened existing segments",
		"dir", config.Dir, "count", len(ids), "activeID", s.activeID)
	return s, nil
}

// Active returns the current active segment.
func (s *Storage) Active() (*segment.Segment, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	seg, ok := s.segments[s.activeID]
	if !ok {
		return nil, errors.NewStorageError(nil, errors.ErrorCodeSegmentNotFound, "active segment missing").
			WithSegmentID(int(s.activeID))
	}
	return seg, nil
}

// Get returns the segment for id, if open.
func (s *Storage) Get(id uint64) (*segment.Segment, bool) {
	seg, ok := s.segments[id]
	return seg, ok
}

// RotateIfFull seals the active segment and opens the next one if the
// active segment has reached segmentSize (spec §4.4 Set step 1, §4.2
// "advisory" limit — a record that crosses the limit during append is
// still written in full; only the *next* write observes IsFull).
func (s *Storage) RotateIfFull() error {
	if s.closed.Load() {
		return ErrClosed
	}

	active, err := s.Active()
	if err != nil {
		return err
	}
	if !active.IsFull(s.segmentSize) {
		return nil
	}

	nextID := s.activeID + 1
	seg, err := segment.Open(s.dir, nextID, s.log)
	if err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to rotate to new segment").
			WithSegmentID(int(nextID)).WithPath(s.dir)
	}

	s.segments[nextID] = seg
	s.activeID = nextID
	s.log.Infow("segment rotated", "newActiveID", nextID)
	return nil
}

// Snapshot returns a shallow copy of the currently open segment map, used
// by the Engine to rebuild its Index from segment content.
func (s *Storage) Snapshot() map[uint64]*segment.Segment {
	out := make(map[uint64]*segment.Segment, len(s.segments))
	for id, seg := range s.segments {
		out[id] = seg
	}
	return out
}

// IDs returns all open segment ids in ascending order.
func (s *Storage) IDs() []uint64 {
	ids := make([]uint64, 0, len(s.segments))
	for id := range s.segments {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ActiveID returns the id of the current active segment.
func (s *Storage) ActiveID() uint64 { return s.activeID }

// OldestID returns the smallest open segment id.
func (s *Storage) OldestID() uint64 {
	ids := s.IDs()
	if len(ids) == 0 {
		return 0
	}
	return ids[0]
}

// TotalBytes sums the cached length of every open segment.
func (s *Storage) TotalBytes() int64 {
	var total int64
	for _, seg := range s.segments {
		total += seg.Size()
	}
	return total
}

// Swap closes every currently-open segment and installs newSegments, with
// newActiveID as the active id. The compactor calls it twice: with an
// empty set to release the old handles before the on-disk swap, and with
// the reopened set (active id = its highest id) afterwards (spec §4.5
// step 6).
func (s *Storage) Swap(newSegments map[uint64]*segment.Segment, newActiveID uint64) error {
	if err := s.closeAll(); err != nil {
		return err
	}
	s.segments = newSegments
	s.activeID = newActiveID
	return nil
}

func (s *Storage) closeAll() error {
	var err error
	for id, seg := range s.segments {
		if cerr := seg.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("segment %d: %w", id, cerr))
		}
	}
	s.segments = make(map[uint64]*segment.Segment)
	return err
}

// Close closes every open segment.
func (s *Storage) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return s.closeAll()
}
