// Package seginfo discovers and names segment files in a store directory.
//
// Filename format: segment-NNNNNNNNNN.dat, where NNNNNNNNNN is a decimal,
// zero-padded (for tidy directory listings only — parsing tolerates any
// width) segment id. Ids are unique within a directory and filesystem sort
// order of the names matches replay order (spec.md I4).
package seginfo

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/arvindnair/strata/pkg/filesys"
)

const (
	filePrefix = "segment-"
	fileSuffix = ".dat"
)

// GenerateName returns the filename (not full path) for segment id.
func GenerateName(id uint64) string {
	return fmt.Sprintf("%s%010d%s", filePrefix, id, fileSuffix)
}

// IsSegmentFile reports whether name matches the segment filename pattern.
func IsSegmentFile(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix)
}

// ParseSegmentID extracts the numeric id from a segment filename (or full
// path — only the base name is inspected).
func ParseSegmentID(pathOrName string) (uint64, error) {
	name := filepath.Base(pathOrName)
	if !IsSegmentFile(name) {
		return 0, fmt.Errorf("seginfo: %q is not a segment filename", name)
	}

	idStr := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("seginfo: parse id from %q: %w", name, err)
	}
	return id, nil
}

// ListSegmentIDs enumerates the segment files directly under dir and
// returns their ids in ascending order. Unknown files in dir are ignored,
// per spec.md §6 ("unknown files in the directory are ignored").
func ListSegmentIDs(dir string) ([]uint64, error) {
	exists, err := filesys.Exists(dir)
	if err != nil {
		return nil, fmt.Errorf("seginfo: stat %q: %w", dir, err)
	}
	if !exists {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("seginfo: read dir %q: %w", dir, err)
	}

	var ids []uint64
	for _, entry := range entries {
		if entry.IsDir() || !IsSegmentFile(entry.Name()) {
			continue
		}

		id, err := ParseSegmentID(entry.Name())
		if err != nil {
			// Malformed but prefix/suffix-matching name: treat as an
			// unrelated, ignorable file rather than failing the whole scan.
			continue
		}
		ids = append(ids, id)
	}

	slices.Sort(ids)
	return ids, nil
}

// HighestSegmentID returns the largest id in dir and whether any segment
// file was found at all.
func HighestSegmentID(dir string) (id uint64, found bool, err error) {
	ids, err := ListSegmentIDs(dir)
	if err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[len(ids)-1], true, nil
}
