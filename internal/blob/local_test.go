package blob

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/oriys/labthings/internal/domain"
)

func TestLocalStorePutOpenRoundTrip(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	b, err := s.Put("text/plain", bytes.NewReader([]byte("hello blob")))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if b.Size != int64(len("hello blob")) || b.ContentType != "text/plain" || b.Backend != "local" {
		t.Fatalf("unexpected blob descriptor: %+v", b)
	}

	r, got, err := s.Open(b.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if got.ID != b.ID {
		t.Fatalf("expected descriptor for %s, got %s", b.ID, got.ID)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello blob" {
		t.Fatalf("expected hello blob, got %q", data)
	}
}

func TestLocalStoreOpenUnknownIDReturnsNotFound(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if _, _, err := s.Open("nonexistent"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalStoreDeleteRemovesBlobAndIsIdempotent(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	b, err := s.Put("application/octet-stream", bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := s.Open(b.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(b.ID); err != nil {
		t.Fatalf("expected deleting an already-deleted blob to be a no-op, got %v", err)
	}
	if err := s.Delete("never-existed"); err != nil {
		t.Fatalf("expected deleting an unknown id to be a no-op, got %v", err)
	}
}
