package index

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New(Config{Logger: zap.NewNop().Sugar()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return idx
}

func TestNewRequiresLogger(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error when Logger is nil")
	}
}

func TestInsertAndGet(t *testing.T) {
	idx := newTestIndex(t)
	loc := Location{SegmentID: 1, Offset: 42, ValueLen: 3}

	if err := idx.Insert("foo", loc); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, ok, err := idx.Get("foo")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected key to be present")
	}
	if got != loc {
		t.Errorf("expected %+v, got %+v", loc, got)
	}
}

func TestInsertOverwritesPriorLocation(t *testing.T) {
	idx := newTestIndex(t)
	idx.Insert("foo", Location{SegmentID: 0, Offset: 0, ValueLen: 1})
	idx.Insert("foo", Location{SegmentID: 1, Offset: 99, ValueLen: 2})

	got, _, _ := idx.Get("foo")
	if got.SegmentID != 1 || got.Offset != 99 {
		t.Errorf("expected latest location to win, got %+v", got)
	}
}

func TestRemove(t *testing.T) {
	idx := newTestIndex(t)
	idx.Insert("foo", Location{SegmentID: 0, Offset: 0, ValueLen: 1})

	if err := idx.Remove("foo"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	_, ok, _ := idx.Get("foo")
	if ok {
		t.Error("expected key to be absent after Remove")
	}
}

func TestRemoveAbsentKeyIsNoOp(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.Remove("missing"); err != nil {
		t.Errorf("expected nil error removing absent key, got %v", err)
	}
}

func TestLenAndKeys(t *testing.T) {
	idx := newTestIndex(t)
	idx.Insert("a", Location{})
	idx.Insert("b", Location{})

	n, err := idx.Len()
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected Len() == 2, got %d", n)
	}

	keys, err := idx.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 keys, got %d", len(keys))
	}
}

func TestClearRemovesAllEntriesButStaysOpen(t *testing.T) {
	idx := newTestIndex(t)
	idx.Insert("a", Location{})
	idx.Insert("b", Location{})

	if err := idx.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	n, err := idx.Len()
	if err != nil {
		t.Fatalf("Len after Clear failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty index after Clear, got %d entries", n)
	}

	if err := idx.Insert("c", Location{}); err != nil {
		t.Fatalf("expected Index to remain usable after Clear, got %v", err)
	}
}

func TestOperationsFailAfterClose(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := idx.Insert("foo", Location{}); !errors.Is(err, ErrIndexClosed) {
		t.Errorf("expected ErrIndexClosed, got %v", err)
	}
	if _, _, err := idx.Get("foo"); !errors.Is(err, ErrIndexClosed) {
		t.Errorf("expected ErrIndexClosed, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := idx.Close(); !errors.Is(err, ErrIndexClosed) {
		t.Errorf("expected second Close to report ErrIndexClosed, got %v", err)
	}
}
