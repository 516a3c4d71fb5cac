// Package segment implements an append-only log file of records. A Segment
// caches its own byte length, supports positional reads, sequential
// append, and a prefix-scan used to rebuild the in-memory index.
package segment

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/arvindnair/strata/internal/record"
	"go.uber.org/zap"
)

// NamePattern is the printf pattern used to name segment files. Zero-padding
// does not affect correctness (spec.md §9) but must be applied consistently
// within one store; replay tolerates any decimal id regardless of width.
const NamePattern = "segment-%010d.dat"

// ErrClosed is returned by any operation on a Segment after Close.
var ErrClosed = errors.New("segment: closed")

// Segment wraps a single append-only file named by NamePattern.
type Segment struct {
	id   uint64
	path string
	file *os.File
	size int64

	log    *zap.SugaredLogger
	closed bool
}

// Path returns the filesystem path of the segment named id under dir.
func Path(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf(NamePattern, id))
}

// Open opens or creates the segment file named id under dir in read-write
// mode (appends are positional writes at the cached end), seeks to its
// end, and caches its length. It is idempotent: calling
// it again on an existing non-empty file picks up where the file left off.
func Open(dir string, id uint64, log *zap.SugaredLogger) (*Segment, error) {
	path := Path(dir, id)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("segment: open %q: %w", path, err)
	}

	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("segment: seek to end of %q: %w", path, err)
	}

	if log != nil {
		log.Infow("segment opened", "id", id, "path", path, "size", size)
	}

	return &Segment{id: id, path: path, file: file, size: size, log: log}, nil
}

// ID returns the segment's numeric identifier.
func (s *Segment) ID() uint64 { return s.id }

// Path returns the segment's filesystem path.
func (s *Segment) Path() string { return s.path }

// Size returns the segment's cached byte length.
func (s *Segment) Size() int64 { return s.size }

// IsFull reports whether the segment's cached length has reached limit.
func (s *Segment) IsFull(limit int64) bool {
	return s.size >= limit
}

// Append writes a Put record for key/value, flushes, and (subject to fsync)
// fsyncs the file. It returns the offset of the record's first byte.
func (s *Segment) Append(key, value []byte, fsync bool) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}

	buf, n, err := record.EncodePut(key, value)
	if err != nil {
		return 0, err
	}

	return s.write(buf, n, fsync)
}

// AppendTombstone writes a Tombstone record for key.
func (s *Segment) AppendTombstone(key []byte, fsync bool) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}

	buf, n, err := record.EncodeTombstone(key)
	if err != nil {
		return 0, err
	}

	return s.write(buf, n, fsync)
}

func (s *Segment) write(buf []byte, n int64, fsync bool) (int64, error) {
	offset := s.size

	if _, err := s.file.WriteAt(buf, offset); err != nil {
		return 0, fmt.Errorf("segment %d: write at %d: %w", s.id, offset, err)
	}

	if fsync {
		if err := s.file.Sync(); err != nil {
			return 0, fmt.Errorf("segment %d: fsync: %w", s.id, err)
		}
	}

	s.size += n
	return offset, nil
}

// ReadRecordAt decodes one record at offset and returns (key, value,
// isTombstone). ChecksumMismatch is surfaced as a hard error, never
// swallowed, matching spec.md §4.2.
func (s *Segment) ReadRecordAt(offset int64) (key, value []byte, tombstone bool, err error) {
	if s.closed {
		return nil, nil, false, ErrClosed
	}

	sr := io.NewSectionReader(s.file, offset, s.size-offset)
	rec, err := record.Decode(sr)
	if err != nil {
		return nil, nil, false, fmt.Errorf("segment %d: read record at %d: %w", s.id, offset, err)
	}

	if rec.Kind == record.KindTombstone {
		return rec.Key, nil, true, nil
	}
	return rec.Key, rec.Value, false, nil
}

// ReadValueAt is a specialization of ReadRecordAt returning only the value,
// or nil for a Tombstone.
func (s *Segment) ReadValueAt(offset int64) (key, value []byte, err error) {
	key, value, tombstone, err := s.ReadRecordAt(offset)
	if err != nil {
		return nil, nil, err
	}
	if tombstone {
		return key, nil, nil
	}
	return key, value, nil
}

// ScannedRecord is one entry yielded by a prefix scan, carrying enough
// information for the Engine to update its index.
type ScannedRecord struct {
	Key       []byte
	Value     []byte
	Tombstone bool
	Offset    int64
	Size      int64
}

// ScanFromStart decodes records sequentially from the start of the segment
// until EndOfFile or Truncated. Per spec.md I6, a Truncated or
// ChecksumMismatch tail stops the scan without returning an error — the
// prefix of successfully-decoded records is authoritative, and anything
// after the bad record (even if individually well-formed) must not be
// consumed, since it could only exist behind a gap left by a torn write.
func (s *Segment) ScanFromStart() ([]ScannedRecord, error) {
	if s.closed {
		return nil, ErrClosed
	}

	sr := io.NewSectionReader(s.file, 0, s.size)

	var (
		out    []ScannedRecord
		offset int64
	)

	for {
		rec, err := record.Decode(sr)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			// Truncated tail or checksum mismatch: stop here, keep what
			// decoded cleanly before it.
			if s.log != nil {
				s.log.Warnw("segment scan stopped on bad tail",
					"id", s.id, "offset", offset, "reason", err)
			}
			return out, nil
		}

		size := record.EncodedSize(len(rec.Key), len(rec.Value))
		out = append(out, ScannedRecord{
			Key:       rec.Key,
			Value:     rec.Value,
			Tombstone: rec.Kind == record.KindTombstone,
			Offset:    offset,
			Size:      size,
		})
		offset += size
	}
}

// Sync flushes the segment file to stable storage.
func (s *Segment) Sync() error {
	if s.closed {
		return ErrClosed
	}
	return s.file.Sync()
}

// Close closes the underlying file handle. Idempotent.
func (s *Segment) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}
