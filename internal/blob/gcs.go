package blob

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"

	"github.com/gracechapel/treasury/internal/domain"
)

// GCSStore persists proof files in a Google Cloud Storage bucket. It assumes
// Application Default Credentials are configured.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a GCS-backed store with a shared storage client.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStore: creating storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Store implements the Store interface.
func (s *GCSStore) Store(ctx context.Context, up Upload) (domain.BlobRef, error) {
	if err := validateUpload(up); err != nil {
		return domain.BlobRef{}, err
	}

	name := objectName(up.Filename, time.Now().UTC())

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = up.ContentType

	// The declared size was validated above; the limited copy guards against
	// a reader that keeps producing past it.
	written, err := io.Copy(w, io.LimitReader(up.Content, MaxProofSize+1))
	if err != nil {
		_ = w.Close()
		return domain.BlobRef{}, domain.WrapErr(domain.ErrStoreFailure, err, "writing proof %s", name)
	}
	if written > MaxProofSize {
		_ = w.Close()
		_ = s.Delete(ctx, name)
		return domain.BlobRef{}, domain.Errf(domain.ErrValidationFailed, "proof file exceeds %d byte limit", MaxProofSize)
	}
	if err := w.Close(); err != nil {
		return domain.BlobRef{}, domain.WrapErr(domain.ErrStoreFailure, err, "finalizing proof %s", name)
	}

	return domain.BlobRef{
		Name:         name,
		OriginalName: up.Filename,
		ContentType:  up.ContentType,
		Size:         written,
	}, nil
}

// Fetch implements the Store interface.
func (s *GCSStore) Fetch(ctx context.Context, name string) ([]byte, error) {
	rc, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, domain.Errf(domain.ErrNotFound, "proof %s not found", name)
		}
		return nil, domain.WrapErr(domain.ErrStoreFailure, err, "opening proof %s", name)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, domain.WrapErr(domain.ErrStoreFailure, err, "reading proof %s", name)
	}
	return data, nil
}

// Delete implements the Store interface.
func (s *GCSStore) Delete(ctx context.Context, name string) error {
	err := s.client.Bucket(s.bucket).Object(name).Delete(ctx)
	if err != nil && err != storage.ErrObjectNotExist {
		return domain.WrapErr(domain.ErrStoreFailure, err, "deleting proof %s", name)
	}
	return nil
}
