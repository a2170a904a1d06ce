package serviceinterfaces

import (
	"context"
	"io"

	"collegefeedback/internal/authz"
	"collegefeedback/internal/models"
)

// BlobStore persists attachment bytes under opaque keys
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// AttachmentServiceInterface validates, stores and serves uploads
type AttachmentServiceInterface interface {
	Upload(ctx context.Context, actor authz.Actor, filename string, body io.Reader) (*models.Attachment, error)
	Open(ctx context.Context, actor authz.Actor, key string) (*models.Attachment, io.ReadCloser, error)
	Get(ctx context.Context, key string) (*models.Attachment, error)
}
