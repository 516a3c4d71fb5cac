package engine

import (
	"context"
	"errors"
	"os"
	"testing"

	kverrors "github.com/arvindnair/strata/pkg/errors"
	"github.com/arvindnair/strata/pkg/options"
	"go.uber.org/zap"
)

func testLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	return zap.NewNop().Sugar()
}

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "engine_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func openEngine(t *testing.T, dir string, segmentSize int64) *Engine {
	t.Helper()
	eng, err := Open(context.Background(), Config{
		Logger: testLogger(t),
		Options: options.Options{
			DataDir:     dir,
			SegmentSize: segmentSize,
			FsyncPolicy: options.FsyncAlways,
		},
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return eng
}

func TestSetAndGet(t *testing.T) {
	dir := tempDir(t)
	eng := openEngine(t, dir, 1024*1024)
	defer eng.Close()

	if err := eng.Set("foo", []byte("bar")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, err := eng.Get("foo")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(value) != "bar" {
		t.Errorf("expected 'bar', got %q", value)
	}
}

func TestGetMissingKeyReturnsErrKeyNotFound(t *testing.T) {
	dir := tempDir(t)
	eng := openEngine(t, dir, 1024*1024)
	defer eng.Close()

	_, err := eng.Get("missing")
	if !errors.Is(err, kverrors.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestSetOverwritesPriorValue(t *testing.T) {
	dir := tempDir(t)
	eng := openEngine(t, dir, 1024*1024)
	defer eng.Close()

	eng.Set("key", []byte("first"))
	eng.Set("key", []byte("second"))

	value, err := eng.Get("key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(value) != "second" {
		t.Errorf("expected 'second', got %q", value)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	dir := tempDir(t)
	eng := openEngine(t, dir, 1024*1024)
	defer eng.Close()

	eng.Set("foo", []byte("bar"))
	if err := eng.Delete("foo"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := eng.Get("foo"); !errors.Is(err, kverrors.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
	}
}

func TestDeleteAbsentKeyIsNoOp(t *testing.T) {
	dir := tempDir(t)
	eng := openEngine(t, dir, 1024*1024)
	defer eng.Close()

	if err := eng.Delete("never-existed"); err != nil {
		t.Errorf("expected nil error deleting an absent key, got %v", err)
	}
}

// TestPersistsAcrossReopen exercises spec scenario P1/P2: data written in one
// session must still be present, via index rebuild from segments, after a
// fresh Open against the same directory.
func TestPersistsAcrossReopen(t *testing.T) {
	dir := tempDir(t)

	eng := openEngine(t, dir, 1024*1024)
	eng.Set("foo", []byte("bar"))
	eng.Set("baz", []byte("qux"))
	eng.Delete("baz")
	if err := eng.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := openEngine(t, dir, 1024*1024)
	defer reopened.Close()

	value, err := reopened.Get("foo")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(value) != "bar" {
		t.Errorf("expected 'bar' after reopen, got %q", value)
	}

	if _, err := reopened.Get("baz"); !errors.Is(err, kverrors.ErrKeyNotFound) {
		t.Errorf("expected deleted key to stay deleted after reopen, got %v", err)
	}
}

func TestSegmentRotationKeepsOldDataReadable(t *testing.T) {
	dir := tempDir(t)
	eng := openEngine(t, dir, 16) // tiny segment size forces rotation quickly
	defer eng.Close()

	eng.Set("a", []byte("aaaaaaaaaaaaaaaaaaaa"))
	eng.Set("b", []byte("bbbbbbbbbbbbbbbbbbbb"))
	eng.Set("c", []byte("cccccccccccccccccccc"))

	stats, err := eng.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.NumSegments < 2 {
		t.Fatalf("expected rotation to have produced multiple segments, got %d", stats.NumSegments)
	}

	for _, key := range []string{"a", "b", "c"} {
		if _, err := eng.Get(key); err != nil {
			t.Errorf("expected %q readable across segment boundaries, got %v", key, err)
		}
	}
}

// TestCompactPreservesLatestValuesAndReclaimsTombstones exercises spec
// scenario P5/P6: after Compact, only live keys with their latest values
// remain, and the result is still correct after a subsequent reopen.
func TestCompactPreservesLatestValuesAndReclaimsTombstones(t *testing.T) {
	dir := tempDir(t)
	eng := openEngine(t, dir, 1024*1024)

	eng.Set("foo", []byte("v1"))
	eng.Set("foo", []byte("v2"))
	eng.Set("bar", []byte("stays"))
	eng.Set("gone", []byte("temp"))
	eng.Delete("gone")

	if err := eng.Compact(); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	value, err := eng.Get("foo")
	if err != nil {
		t.Fatalf("Get('foo') after compact failed: %v", err)
	}
	if string(value) != "v2" {
		t.Errorf("expected latest value 'v2' after compact, got %q", value)
	}

	if _, err := eng.Get("gone"); !errors.Is(err, kverrors.ErrKeyNotFound) {
		t.Errorf("expected tombstoned key to stay gone after compact, got %v", err)
	}

	if err := eng.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := openEngine(t, dir, 1024*1024)
	defer reopened.Close()

	value, err = reopened.Get("bar")
	if err != nil {
		t.Fatalf("Get('bar') after compact+reopen failed: %v", err)
	}
	if string(value) != "stays" {
		t.Errorf("expected 'stays', got %q", value)
	}
}

func TestListKeysReflectsLiveSetOnly(t *testing.T) {
	dir := tempDir(t)
	eng := openEngine(t, dir, 1024*1024)
	defer eng.Close()

	eng.Set("a", []byte("1"))
	eng.Set("b", []byte("2"))
	eng.Delete("a")

	keys, err := eng.ListKeys()
	if err != nil {
		t.Fatalf("ListKeys failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != "b" {
		t.Errorf("expected only ['b'], got %v", keys)
	}
}

func TestOperationsFailAfterClose(t *testing.T) {
	dir := tempDir(t)
	eng := openEngine(t, dir, 1024*1024)

	if err := eng.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := eng.Set("foo", []byte("bar")); !errors.Is(err, kverrors.ErrEngineClosed) {
		t.Errorf("expected ErrEngineClosed, got %v", err)
	}
	if _, err := eng.Get("foo"); !errors.Is(err, kverrors.ErrEngineClosed) {
		t.Errorf("expected ErrEngineClosed, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := tempDir(t)
	eng := openEngine(t, dir, 1024*1024)

	if err := eng.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := eng.Close(); !errors.Is(err, kverrors.ErrEngineClosed) {
		t.Errorf("expected ErrEngineClosed on second Close, got %v", err)
	}
}
