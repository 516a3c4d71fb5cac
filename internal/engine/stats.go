package engine

import "fmt"

// Stats reports the current size and shape of a store (spec §4.4 stats).
type Stats struct {
	NumKeys         int
	NumSegments     int
	TotalBytes      int64
	ActiveSegmentID uint64
	OldestSegmentID uint64
}

// TotalMB is a floating-point convenience view of TotalBytes.
func (s Stats) TotalMB() float64 {
	return float64(s.TotalBytes) / (1024 * 1024)
}

// String renders a human-readable one-line summary, used by the REPL's
// "stats" command.
func (s Stats) String() string {
	return fmt.Sprintf(
		"keys=%d segments=%d size=%.2fMB active=%d oldest=%d",
		s.NumKeys, s.NumSegments, s.TotalMB(), s.ActiveSegmentID, s.OldestSegmentID,
	)
}
