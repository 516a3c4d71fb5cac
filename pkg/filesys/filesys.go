// Package filesys provides the small set of filesystem primitives the
// storage engine and compactor need: directory creation, existence checks,
// recursive removal, and a rename-based file move for the compaction swap.
package filesys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrIsNotDir is returned when a path expected to be a directory is not.
var ErrIsNotDir = errors.New("path isn't a directory")

// CreateDir creates a directory at dirPath with the given permissions.
//
// If the directory already exists:
//   - If force is true, it proceeds without error.
//   - If force is false, it returns an error wrapping os.ErrExist.
//
// It also returns an error if the existing path is a file, not a directory.
func CreateDir(dirPath string, permission os.FileMode, force bool) error {
	stat, err := os.Stat(dirPath)
	if !force && !os.IsNotExist(err) {
		if err == nil {
			return fmt.Errorf("filesys: %q: %w", dirPath, os.ErrExist)
		}
		return err
	}

	if stat != nil && !stat.IsDir() {
		return ErrIsNotDir
	}

	return os.MkdirAll(dirPath, permission)
}

// DeleteDir removes a directory and all of its contents recursively.
func DeleteDir(path string) error {
	return os.RemoveAll(path)
}

// DeleteFile removes the file at filePath. Removing an already-absent file
// is not an error, matching the tolerant cleanup semantics compaction needs
// when resuming after a crash mid-swap.
func DeleteFile(filePath string) error {
	err := os.Remove(filePath)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// MoveFile renames src to dst, creating dst's parent directory if absent.
// Used by compaction to promote a freshly-written segment from the
// `.compacting` staging directory into the store directory.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("filesys: create parent of %q: %w", dst, err)
	}
	return os.Rename(src, dst)
}

// Exists reports whether a file or directory exists at path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// SyncDir fsyncs a directory so that entries created, removed, or renamed
// within it are durable — renaming a file into place is not itself crash-safe
// without this.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("filesys: open dir %q: %w", dir, err)
	}
	defer d.Close()
	return d.Sync()
}
