package storage

import (
	"sync/atomic"

	"github.com/arvindnair/strata/internal/segment"
	"go.uber.org/zap"
)

// Storage owns the Engine's set of open Segments and tracks which one is
// currently active for appends. It knows nothing about keys or the index;
// it only manages segment lifecycle: discovery on open, rotation on size
// limit, and the wholesale swap a compaction performs.
type Storage struct {
	dir         string
	segmentSize int64

	segments map[uint64]*segment.Segment
	activeID uint64

	closed atomic.Bool
	log    *zap.SugaredLogger
}

// Config encapsulates the parameters required to initialize a Storage.
type Config struct {
	Dir         string
	SegmentSize int64
	Logger      *zap.SugaredLogger
}
