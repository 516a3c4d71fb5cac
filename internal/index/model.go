package index

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Location identifies the disk position of a key's most recent live
// record: which segment holds it, the byte offset of the record's start,
// and the length of its value (spec §4.3).
type Location struct {
	SegmentID uint64
	Offset    int64
	ValueLen  int64
}

// Index is the in-memory hash table mapping keys to their disk Location.
// It has no persistent representation; the Engine rebuilds it from
// segments on every open (spec §4.4).
type Index struct {
	log     *zap.SugaredLogger
	entries map[string]Location
	mu      sync.RWMutex
	closed  atomic.Bool
}

// Config configures a new Index.
type Config struct {
	Logger *zap.SugaredLogger
}
