// Package index provides the in-memory hash table implementation for the
// strata key-value store. It embodies the core Bitcask architectural
// principle: keep all keys in memory with minimal metadata while storing
// actual values on disk.
//
// The Index enables O(1) key lookups while keeping storage overhead
// minimal. It is rebuilt from segments on every open, never persisted
// itself (spec §4.3).
package index

import "errors"

// ErrIndexClosed is returned by any operation on an Index after Close.
var ErrIndexClosed = errors.New("operation failed: cannot access closed index")

// New creates an empty Index ready for concurrent use.
func New(config Config) (*Index, error) {
	if config.Logger == nil {
		return nil, errors.New("index: logger is required")
	}

	return &Index{
		log:     config.Logger,
		entries: make(map[string]Location, 1024),
	}, nil
}

// Insert records key's current Location, overwriting any prior entry.
func (idx *Index) Insert(key string, loc Location) error {
	if idx.closed.Load() {
		return ErrIndexClosed
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries[key] = loc
	return nil
}

// Get returns key's current Location and whether it is present.
func (idx *Index) Get(key string) (Location, bool, error) {
	if idx.closed.Load() {
		return Location{}, false, ErrIndexClosed
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	loc, ok := idx.entries[key]
	return loc, ok, nil
}

// Remove deletes key's entry, if present. Removing an absent key is a no-op.
func (idx *Index) Remove(key string) error {
	if idx.closed.Load() {
		return ErrIndexClosed
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.entries, key)
	return nil
}

// Contains reports whether key currently has a live entry.
func (idx *Index) Contains(key string) (bool, error) {
	if idx.closed.Load() {
		return false, ErrIndexClosed
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.entries[key]
	return ok, nil
}

// Len returns the number of live keys.
func (idx *Index) Len() (int, error) {
	if idx.closed.Load() {
		return 0, ErrIndexClosed
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries), nil
}

// Keys returns a snapshot of the live key set. Order is unspecified.
func (idx *Index) Keys() ([]string, error) {
	if idx.closed.Load() {
		return nil, ErrIndexClosed
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	keys := make([]string, 0, len(idx.entries))
	for k := range idx.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

// Clear removes every entry, leaving the Index empty but open. Used by the
// compactor between the swap and the index rebuild (spec §4.5 step 6).
func (idx *Index) Clear() error {
	if idx.closed.Load() {
		return ErrIndexClosed
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	clear(idx.entries)
	return nil
}

// Close gracefully shuts down the Index, releasing its backing map.
func (idx *Index) Close() error {
	if !idx.closed.CompareAndSwap(false, true) {
		return ErrIndexClosed
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	clear(idx.entries)
	idx.entries = nil

	idx.log.Infow("index closed")
	return nil
}
