// kvhttpd exposes a strata store as a small HTTP blob façade.
//
// Routes:
//
//	PUT    /blobs/{key}   Store the request body under key
//	GET    /blobs/{key}   Retrieve the value, with an ETag header
//	DELETE /blobs/{key}   Remove key
//	GET    /stats         Store statistics as JSON
//	POST   /compact       Run offline compaction
//
// All engine access is serialized behind a single mutex (spec §5: one
// logical writer at a time); this daemon trades away concurrent readers
// for the simplicity of never needing to reason about concurrent Get
// against an in-flight Compact.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"

	kverrors "github.com/arvindnair/strata/pkg/errors"
	"github.com/arvindnair/strata/pkg/kvstore"
	"github.com/arvindnair/strata/pkg/options"
	flag "github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dataDir := flag.StringP("data-dir", "d", "", "store directory (required)")
	addr := flag.StringP("addr", "a", ":8080", "listen address")
	segmentSize := flag.Int64P("segment-size", "s", options.DefaultSegmentSize, "segment size limit in bytes")
	fsyncPolicy := flag.StringP("fsync-policy", "f", string(options.DefaultFsyncPolicy), "fsync policy: always, batch, never")
	flag.Parse()

	if strings.TrimSpace(*dataDir) == "" {
		flag.Usage()
		return errors.New("missing --data-dir")
	}

	ctx := context.Background()
	store, err := kvstore.Open(ctx, "kvhttpd",
		options.WithDataDir(*dataDir),
		options.WithSegmentSize(*segmentSize),
		options.WithFsyncPolicy(options.FsyncPolicy(*fsyncPolicy)),
	)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close(ctx)

	srv := &server{store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("/blobs/", srv.handleBlob)
	mux.HandleFunc("/stats", srv.handleStats)
	mux.HandleFunc("/compact", srv.handleCompact)

	log.Printf("kvhttpd listening on %s, data-dir=%s", *addr, *dataDir)
	return http.ListenAndServe(*addr, mux)
}

// server serializes every store access behind mu: compaction must never
// run concurrently with a Get/Set/Delete (spec §5).
type server struct {
	mu    sync.Mutex
	store *kvstore.Store
}

func (s *server) handleBlob(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/blobs/")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		s.putBlob(w, r, key)
	case http.MethodGet:
		s.getBlob(w, r, key)
	case http.MethodDelete:
		s.deleteBlob(w, r, key)
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *server) putBlob(w http.ResponseWriter, r *http.Request, key string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if err := s.store.Set(r.Context(), key, body); err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("ETag", quoteETag(body))
	w.WriteHeader(http.StatusCreated)
}

func (s *server) getBlob(w http.ResponseWriter, r *http.Request, key string) {
	value, err := s.store.Get(r.Context(), key)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("ETag", quoteETag(value))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(value)
}

func (s *server) deleteBlob(w http.ResponseWriter, r *http.Request, key string) {
	if err := s.store.Delete(r.Context(), key); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	stats, err := s.store.Stats(r.Context())
	s.mu.Unlock()
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (s *server) handleCompact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	err := s.store.Compact(r.Context())
	s.mu.Unlock()
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// quoteETag renders a CRC32/IEEE checksum of value as a quoted ETag, the
// same checksum algorithm the wire format uses for record integrity.
func quoteETag(value []byte) string {
	return fmt.Sprintf("%q", fmt.Sprintf("%08x", crc32.ChecksumIEEE(value)))
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, kverrors.ErrKeyNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, kverrors.ErrCompactionInProgress):
		http.Error(w, "compaction in progress", http.StatusServiceUnavailable)
	case errors.Is(err, kverrors.ErrEngineClosed):
		http.Error(w, "store closed", http.StatusServiceUnavailable)
	default:
		http.Error(w, fmt.Sprintf("internal error: %v", err), http.StatusInternalServerError)
	}
}
