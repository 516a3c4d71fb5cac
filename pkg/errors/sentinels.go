package errors

import "errors"

// Sentinel errors checked with errors.Is, used where a structured error
// type would be overkill: simple conditions the caller branches on by
// identity rather than by inspecting fields.
var (
	// ErrKeyNotFound is returned by Get when the index holds no live entry
	// for the requested key (spec §4.4 Get step 1).
	ErrKeyNotFound = errors.New("key not found")

	// ErrEngineClosed is returned by any Engine operation after Close.
	ErrEngineClosed = errors.New("operation failed: cannot access closed engine")

	// ErrCompactionInProgress is returned by Set/Delete/Compact when a
	// compaction is already running (spec §4.5 "not concurrent with writes").
	ErrCompactionInProgress = errors.New("operation failed: compaction in progress")
)
