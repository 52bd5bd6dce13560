// Package blob implements domain.Store backends for action outputs too
// large or binary to inline in an invocation's JSON output: a local
// filesystem backend (the default) and an optional S3-compatible backend
// for deployments that want object storage instead. Supplements spec.md §3
// (Blob contract, "not detailed beyond contract level") and is grounded on
// original_source/src/labthings_fastapi/outputs/blob.py and file_manager.py
// for the local-file and streaming-download behavior.
package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/oriys/labthings/internal/domain"
)

// LocalStore persists blobs as files under a directory, one file per blob
// ID, plus an in-memory index of content type and size (small enough to
// keep resident; content never is).
type LocalStore struct {
	dir string

	mu    sync.RWMutex
	index map[string]domain.Blob
}

// NewLocalStore creates a LocalStore rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create local store dir: %w", err)
	}
	return &LocalStore{dir: dir, index: make(map[string]domain.Blob)}, nil
}

func (s *LocalStore) path(id string) string {
	return filepath.Join(s.dir, id)
}

// Put streams data to a new file under a freshly generated blob ID.
func (s *LocalStore) Put(contentType string, data io.Reader) (domain.Blob, error) {
	id := uuid.New().String()
	dest := s.path(id)

	f, err := os.Create(dest)
	if err != nil {
		return domain.Blob{}, fmt.Errorf("blob: create %s: %w", dest, err)
	}
	defer f.Close()

	n, err := io.Copy(f, data)
	if err != nil {
		os.Remove(dest)
		return domain.Blob{}, fmt.Errorf("blob: write %s: %w", dest, err)
	}

	b := domain.Blob{ID: id, ContentType: contentType, Size: n, Backend: "local", Key: dest}
	s.mu.Lock()
	s.index[id] = b
	s.mu.Unlock()
	return b, nil
}

// Open returns a streaming reader for a previously stored blob, suitable
// for chunked transfer on GET /blob/{id} without buffering the whole file.
func (s *LocalStore) Open(id string) (domain.Reader, domain.Blob, error) {
	s.mu.RLock()
	b, ok := s.index[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.Blob{}, domain.ErrNotFound
	}

	f, err := os.Open(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.Blob{}, domain.ErrNotFound
		}
		return nil, domain.Blob{}, fmt.Errorf("blob: open %s: %w", id, err)
	}
	return f, b, nil
}

// Delete removes a blob's file and index entry. Deleting an unknown ID is
// not an error, matching domain.Store's contract.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	delete(s.index, id)
	s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob: delete %s: %w", id, err)
	}
	return nil
}
