package blob

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gracechapel/treasury/internal/domain"
)

// MemoryStore is an in-memory Store for tests and local development.
// Contents are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Store implements the Store interface.
func (s *MemoryStore) Store(ctx context.Context, up Upload) (domain.BlobRef, error) {
	if err := validateUpload(up); err != nil {
		return domain.BlobRef{}, err
	}

	data, err := io.ReadAll(io.LimitReader(up.Content, MaxProofSize+1))
	if err != nil {
		return domain.BlobRef{}, domain.WrapErr(domain.ErrStoreFailure, err, "reading upload")
	}
	if int64(len(data)) > MaxProofSize {
		return domain.BlobRef{}, domain.Errf(domain.ErrValidationFailed, "proof file exceeds %d byte limit", MaxProofSize)
	}

	name := objectName(up.Filename, time.Now().UTC())

	s.mu.Lock()
	s.objects[name] = data
	s.mu.Unlock()

	return domain.BlobRef{
		Name:         name,
		OriginalName: up.Filename,
		ContentType:  up.ContentType,
		Size:         int64(len(data)),
	}, nil
}

// Fetch implements the Store interface.
func (s *MemoryStore) Fetch(ctx context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[name]
	if !ok {
		return nil, domain.Errf(domain.ErrNotFound, "proof %s not found", name)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Delete implements the Store interface.
func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	delete(s.objects, name)
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored objects. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
