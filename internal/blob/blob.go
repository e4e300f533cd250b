// Package blob stores proof-of-payment attachments. Files are validated for
// content type and size before they are accepted; once stored they are
// referenced by a generated object name and never rewritten.
package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gracechapel/treasury/internal/domain"
)

// MaxProofSize is the upload size limit for proof files.
const MaxProofSize = 5 << 20 // 5 MiB

// allowedContentTypes are the accepted proof file types: images, PDFs and
// Word documents.
var allowedContentTypes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".pdf":  true,
	".doc":  true,
	".docx": true,
}

// Upload is an inbound file to store.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Store accepts uploads and serves stored proofs.
type Store interface {
	// Store validates and persists the upload, returning its reference.
	// Rejections carry domain.ErrValidationFailed.
	Store(ctx context.Context, up Upload) (domain.BlobRef, error)

	// Fetch returns the stored bytes for a previously issued reference.
	Fetch(ctx context.Context, name string) ([]byte, error)

	// Delete removes a stored blob. Used to clean up after failed submissions.
	Delete(ctx context.Context, name string) error
}

// validateUpload enforces the shared type/size rules for all Store
// implementations.
func validateUpload(up Upload) error {
	if up.Content == nil || up.Filename == "" {
		return domain.Errf(domain.ErrValidationFailed, "payment proof file is required")
	}
	if up.Size > MaxProofSize {
		return domain.Errf(domain.ErrValidationFailed, "proof file exceeds %d byte limit", MaxProofSize)
	}
	ext := strings.ToLower(path.Ext(up.Filename))
	if !allowedExtensions[ext] || !allowedContentTypes[up.ContentType] {
		return domain.Errf(domain.ErrValidationFailed,
			"invalid file type %q; only images, PDFs and documents are allowed", up.ContentType)
	}
	return nil
}

// objectName generates a unique, date-prefixed object name for an upload.
func objectName(filename string, now time.Time) string {
	return fmt.Sprintf("proofs/%s/%s%s",
		now.Format("2006/01/02"), uuid.New().String(), strings.ToLower(path.Ext(filename)))
}
