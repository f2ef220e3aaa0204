// Package snapshot persists the aggregated snapshot and reads it back for display.
// Readers get an empty snapshot for a missing or broken artifact, never a failure they have to handle.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater/v2"
	"github.com/go-pkgz/rest"

	"github.com/umputun/feedsnap/pkg/domain"
)

// DefaultPath is where the display layer expects the snapshot
const DefaultPath = "static/rss-feed-cache.json"

// WriteError means the snapshot could not be persisted, the run has failed
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write snapshot %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Writer replaces the snapshot file atomically
type Writer struct {
	path     string
	attempts int
	delay    time.Duration
}

// NewWriter makes a writer for the given destination
func NewWriter(path string) *Writer {
	return &Writer{path: path, attempts: 3, delay: 50 * time.Millisecond}
}

// Write serialises the snapshot into a temp file next to the destination and renames it over.
// Readers see either the previous snapshot or the new one, never a partial file.
func (w *Writer) Write(ctx context.Context, snap domain.Snapshot) error {
	data, err := Marshal(snap)
	if err != nil {
		return &WriteError{Path: w.path, Err: err}
	}

	retrier := repeater.NewBackoff(w.attempts, w.delay, repeater.WithMaxDelay(time.Second))
	if err := retrier.Do(ctx, func() error { return writeAtomic(w.path, data) }); err != nil {
		return &WriteError{Path: w.path, Err: err}
	}
	lgr.Printf("[DEBUG] snapshot written to %s, %d bytes", w.path, len(data))
	return nil
}

// Marshal encodes snapshot the way it is stored, indented JSON
func Marshal(snap domain.Snapshot) ([]byte, error) {
	if snap.Groups == nil {
		snap.Groups = []domain.Group{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("make dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Chmod(0o644); err != nil { //nolint:gosec // snapshot is served as a public static file
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Decode reads a snapshot, rejecting documents with inconsistent totals
func Decode(r io.Reader) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return domain.EmptySnapshot(), fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Groups == nil {
		snap.Groups = []domain.Group{}
	}
	if snap.Count() != snap.TotalArticles {
		return domain.EmptySnapshot(), fmt.Errorf("inconsistent snapshot, %d items but totalArticles=%d",
			snap.Count(), snap.TotalArticles)
	}
	return snap, nil
}

// Load reads the snapshot file. On any problem it returns the empty snapshot along with the error,
// callers can render the empty state without checking the error.
func Load(path string) (domain.Snapshot, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is configured, not user input
	if err != nil {
		return domain.EmptySnapshot(), fmt.Errorf("read snapshot: %w", err)
	}
	return Decode(bytes.NewReader(data))
}

// Reader polls a published snapshot over HTTP
type Reader struct {
	client *http.Client
}

// NewReader makes a reader with the given request timeout
func NewReader(timeout time.Duration) *Reader {
	return &Reader{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads and decodes the snapshot, empty snapshot and error on any failure
func (r *Reader) Fetch(ctx context.Context, snapURL string) (domain.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, snapURL, http.NoBody)
	if err != nil {
		return domain.EmptySnapshot(), fmt.Errorf("create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return domain.EmptySnapshot(), fmt.Errorf("get snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.EmptySnapshot(), fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return Decode(resp.Body)
}

// Handler serves the snapshot file as JSON for a display layer,
// the empty snapshot is served when the file is missing or corrupt.
func Handler(path string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, err := Load(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				lgr.Printf("[DEBUG] no snapshot at %s yet", path)
			} else {
				lgr.Printf("[WARN] serving empty snapshot, %v", err)
			}
		}
		w.Header().Set("Cache-Control", "no-cache")
		rest.RenderJSON(w, snap)
	})
}
