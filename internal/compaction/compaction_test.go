package compaction

import (
	"os"
	"testing"

	"github.com/arvindnair/strata/internal/index"
	"github.com/arvindnair/strata/internal/storage"
	"go.uber.org/zap"
)

func testLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	return zap.NewNop().Sugar()
}

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "compaction_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func openStorageAndIndex(t *testing.T, dir string, segmentSize int64) (*storage.Storage, *index.Index) {
	t.Helper()
	log := testLogger(t)

	st, err := storage.New(&storage.Config{Dir: dir, SegmentSize: segmentSize, Logger: log})
	if err != nil {
		t.Fatalf("storage.New failed: %v", err)
	}
	idx, err := index.New(index.Config{Logger: log})
	if err != nil {
		t.Fatalf("index.New failed: %v", err)
	}
	if err := RebuildIndex(idx, st.Snapshot(), log); err != nil {
		t.Fatalf("RebuildIndex failed: %v", err)
	}
	return st, idx
}

func mustSet(t *testing.T, st *storage.Storage, idx *index.Index, key, value string) {
	t.Helper()
	if err := st.RotateIfFull(); err != nil {
		t.Fatalf("RotateIfFull failed: %v", err)
	}
	active, err := st.Active()
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	offset, err := active.Append([]byte(key), []byte(value), true)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := idx.Insert(key, index.Location{SegmentID: active.ID(), Offset: offset, ValueLen: int64(len(value))}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
}

func mustDelete(t *testing.T, st *storage.Storage, idx *index.Index, key string) {
	t.Helper()
	active, err := st.Active()
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if _, err := active.AppendTombstone([]byte(key), true); err != nil {
		t.Fatalf("AppendTombstone failed: %v", err)
	}
	if err := idx.Remove(key); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
}

func TestRunPreservesLatestValuePerKey(t *testing.T) {
	dir := tempDir(t)
	st, idx := openStorageAndIndex(t, dir, 1024*1024)
	defer st.Close()

	mustSet(t, st, idx, "foo", "v1")
	mustSet(t, st, idx, "foo", "v2")
	mustSet(t, st, idx, "bar", "other")

	if err := Run(st, idx, dir, 1024*1024, testLogger(t)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	loc, ok, err := idx.Get("foo")
	if err != nil || !ok {
		t.Fatalf("expected 'foo' to survive compaction, ok=%v err=%v", ok, err)
	}
	seg, ok := st.Get(loc.SegmentID)
	if !ok {
		t.Fatalf("expected segment %d to be open after compaction", loc.SegmentID)
	}
	_, value, err := seg.ReadValueAt(loc.Offset)
	if err != nil {
		t.Fatalf("ReadValueAt failed: %v", err)
	}
	if string(value) != "v2" {
		t.Errorf("expected latest value 'v2', got %q", value)
	}
}

func TestRunDropsTombstonedKeys(t *testing.T) {
	dir := tempDir(t)
	st, idx := openStorageAndIndex(t, dir, 1024*1024)
	defer st.Close()

	mustSet(t, st, idx, "foo", "v1")
	mustSet(t, st, idx, "bar", "v2")
	mustDelete(t, st, idx, "foo")

	if err := Run(st, idx, dir, 1024*1024, testLogger(t)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, ok, _ := idx.Get("foo"); ok {
		t.Error("expected tombstoned key 'foo' to be gone after compaction")
	}
	if _, ok, _ := idx.Get("bar"); !ok {
		t.Error("expected live key 'bar' to survive compaction")
	}
}

func TestRunRestartsSegmentIDsAtZero(t *testing.T) {
	dir := tempDir(t)
	st, idx := openStorageAndIndex(t, dir, 10)
	defer st.Close()

	mustSet(t, st, idx, "a", "aaaaaaaaaaaa")
	mustSet(t, st, idx, "b", "bbbbbbbbbbbb")
	mustSet(t, st, idx, "c", "cccccccccccc")

	if len(st.IDs()) < 2 {
		t.Fatalf("expected writes to span multiple segments before compaction, got %d", len(st.IDs()))
	}

	if err := Run(st, idx, dir, 1024*1024, testLogger(t)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	ids := st.IDs()
	if len(ids) == 0 || ids[0] != 0 {
		t.Errorf("expected compacted segments to restart at id 0, got %v", ids)
	}
}

func TestRunCleansUpStagingDirectory(t *testing.T) {
	dir := tempDir(t)
	st, idx := openStorageAndIndex(t, dir, 1024*1024)
	defer st.Close()

	mustSet(t, st, idx, "foo", "bar")

	if err := Run(st, idx, dir, 1024*1024, testLogger(t)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, err := os.Stat(dir + "/" + stagingDir); !os.IsNotExist(err) {
		t.Errorf("expected staging directory to be removed after compaction, stat err=%v", err)
	}
}
