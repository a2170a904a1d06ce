package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"collegefeedback/internal/config"
	"collegefeedback/internal/serviceinterfaces"
	contextutils "collegefeedback/internal/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// NewBlobStore builds the attachment store selected by configuration
func NewBlobStore(ctx context.Context, cfg config.AttachmentConfig) (serviceinterfaces.BlobStore, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalBlobStore(cfg.Dir)
	case "s3":
		return NewS3BlobStore(ctx, cfg)
	default:
		return nil, contextutils.ErrorWithContextf("unknown attachment backend %q", cfg.Backend)
	}
}

// LocalBlobStore keeps attachments as files in one directory
type LocalBlobStore struct {
	dir string
}

var _ serviceinterfaces.BlobStore = (*LocalBlobStore)(nil)

// NewLocalBlobStore creates the directory if needed
func NewLocalBlobStore(dir string) (*LocalBlobStore, error) {
	if dir == "" {
		dir = config.DefaultAttachmentDir
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to create attachment dir %s", dir)
	}
	return &LocalBlobStore{dir: dir}, nil
}

func (s *LocalBlobStore) path(key string) (string, error) {
	if key == "" || filepath.Base(key) != key || key == "." || key == ".." {
		return "", contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid attachment key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

// Put writes the body to a temp file and renames it into place
func (s *LocalBlobStore) Put(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return contextutils.WrapError(err, "failed to create temp file")
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		return contextutils.WrapError(err, "failed to write attachment")
	}
	if err := tmp.Close(); err != nil {
		return contextutils.WrapError(err, "failed to close attachment")
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return contextutils.WrapError(err, "failed to store attachment")
	}
	return nil
}

// Open returns the stored file
func (s *LocalBlobStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "attachment %s not found", key)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to open attachment")
	}
	return f, nil
}

// Delete removes the file; a missing file is not an error
func (s *LocalBlobStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return contextutils.WrapError(err, "failed to delete attachment")
	}
	return nil
}

// S3BlobStore keeps attachments in an S3-compatible bucket
type S3BlobStore struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ serviceinterfaces.BlobStore = (*S3BlobStore)(nil)

// NewS3BlobStore creates a new S3-backed attachment store.
func NewS3BlobStore(ctx context.Context, cfg config.AttachmentConfig) (*S3BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "attachments.bucket is required for the s3 backend")
	}
	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
		),
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3BlobStore{client: client, bucket: cfg.Bucket, prefix: cfg.KeyPrefix}, nil
}

// Put uploads the object
func (s *S3BlobStore) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.prefix + key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return contextutils.WrapErrorf(err, "s3 put failed for %s", key)
	}
	return nil
}

// Open streams the object
func (s *S3BlobStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "attachment %s not found", key)
		}
		return nil, contextutils.WrapErrorf(err, "s3 get failed for %s", key)
	}
	return out.Body, nil
}

// Delete removes the object
func (s *S3BlobStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		return contextutils.WrapErrorf(err, "s3 delete failed for %s", key)
	}
	return nil
}
