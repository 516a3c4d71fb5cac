// Package kvstore is the public entry point for the strata embedded
// key-value store. It wraps the internal engine with the service-level
// constructor shape (named logger, functional options) that the rest of
// the module's commands (cmd/kvcli, cmd/kvhttpd) build against.
package kvstore

import (
	"context"

	"github.com/arvindnair/strata/internal/engine"
	"github.com/arvindnair/strata/pkg/logger"
	"github.com/arvindnair/strata/pkg/options"
)

// Stats is re-exported so callers never need to import internal/engine
// directly.
type Stats = engine.Stats

// Store is an open instance of the key-value store, rooted at a single
// filesystem directory.
type Store struct {
	engine  *engine.Engine
	options options.Options
}

// Open creates and initializes a Store for the given service name (used
// only to tag log lines) and configuration overrides.
func Open(ctx context.Context, service string, opts ...options.OptionFunc) (*Store, error) {
	log := logger.New(service)

	cfg := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	eng, err := engine.Open(ctx, engine.Config{Logger: log, Options: cfg})
	if err != nil {
		return nil, err
	}

	return &Store{engine: eng, options: cfg}, nil
}

// Set stores key/value durably, per the configured fsync policy.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.engine.Set(key, value)
}

// Get retrieves the value associated with key, or errors.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.engine.Get(key)
}

// Delete removes key. Deleting an absent key is a silent no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.engine.Delete(key)
}

// ListKeys returns every live key, in unspecified order.
func (s *Store) ListKeys(ctx context.Context) ([]string, error) {
	return s.engine.ListKeys()
}

// Stats reports the current size and shape of the store.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	return s.engine.Stats()
}

// Compact runs offline compaction, rejecting concurrent writes for its
// duration.
func (s *Store) Compact(ctx context.Context) error {
	return s.engine.Compact()
}

// Close flushes and releases all resources held by the store.
func (s *Store) Close(ctx context.Context) error {
	return s.engine.Close()
}
