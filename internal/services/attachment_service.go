package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"collegefeedback/internal/authz"
	"collegefeedback/internal/config"
	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	contextutils "collegefeedback/internal/utils"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

var _ serviceinterfaces.AttachmentServiceInterface = (*AttachmentService)(nil)

// AttachmentService validates uploads, stores their bytes in a BlobStore and
// their metadata in the attachments table.
type AttachmentService struct {
	db      *sql.DB
	blobs   serviceinterfaces.BlobStore
	logger  *observability.Logger
	maxSize int64
	allowed map[string]bool
}

// NewAttachmentService creates a new AttachmentService instance.
func NewAttachmentService(db *sql.DB, blobs serviceinterfaces.BlobStore, cfg config.AttachmentConfig, logger *observability.Logger) *AttachmentService {
	if db == nil {
		panic("NewAttachmentService: db is nil")
	}
	if blobs == nil {
		panic("NewAttachmentService: blobs is nil")
	}
	maxSize := cfg.MaxBytes
	if maxSize <= 0 {
		maxSize = config.DefaultMaxAttachmentBytes
	}
	types := cfg.AllowedTypes
	if len(types) == 0 {
		types = config.DefaultAllowedAttachmentTypes
	}
	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		allowed[normalizeExtension(t)] = true
	}
	return &AttachmentService{db: db, blobs: blobs, logger: logger, maxSize: maxSize, allowed: allowed}
}

// normalizeExtension lowercases, strips the dot and folds jpeg into jpg
func normalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}

// Upload checks size, extension and sniffed content type, then stores the file
func (s *AttachmentService) Upload(ctx context.Context, actor authz.Actor, filename string, body io.Reader) (result0 *models.Attachment, err error) {
	ctx, span := observability.TraceAttachmentFunction(ctx, "upload_attachment",
		observability.AttributeUserID(actor.ID),
		attribute.String("attachment.name", filename),
	)
	defer observability.FinishSpan(span, &err)

	if !actor.Role.Valid() {
		return nil, contextutils.WrapErrorf(contextutils.ErrForbidden, "user %d may not upload attachments", actor.ID)
	}

	name := filepath.Base(strings.TrimSpace(filename))
	ext := normalizeExtension(filepath.Ext(name))
	if name == "" || name == "." || !s.allowed[ext] {
		return nil, contextutils.WrapErrorf(contextutils.ErrUnsupportedMediaType, "file type %q is not allowed", filepath.Ext(name))
	}

	data, err := io.ReadAll(io.LimitReader(body, s.maxSize+1))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to read upload")
	}
	if int64(len(data)) > s.maxSize {
		return nil, contextutils.WrapErrorf(contextutils.ErrPayloadTooLarge, "file exceeds %d bytes", s.maxSize)
	}
	if len(data) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "file is empty")
	}

	detected := mimetype.Detect(data)
	if normalizeExtension(detected.Extension()) != ext {
		return nil, contextutils.WrapErrorf(contextutils.ErrUnsupportedMediaType,
			"file content (%s) does not match extension .%s", detected.String(), ext)
	}

	a := &models.Attachment{
		Key:         uuid.NewString() + "." + ext,
		Name:        name,
		ContentType: detected.String(),
		Extension:   ext,
		Size:        int64(len(data)),
		UploadedBy:  actor.ID,
	}
	span.SetAttributes(attribute.String("attachment.key", a.Key), attribute.Int64("attachment.size", a.Size))

	if err := s.blobs.Put(ctx, a.Key, a.ContentType, bytes.NewReader(data), a.Size); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO attachments (key, name, content_type, extension, size, uploaded_by) VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		a.Key, a.Name, a.ContentType, a.Extension, a.Size, a.UploadedBy).Scan(&a.CreatedAt)
	if err != nil {
		if delErr := s.blobs.Delete(ctx, a.Key); delErr != nil {
			s.logger.Warn(ctx, "Failed to remove orphaned attachment", map[string]interface{}{"key": a.Key, "error": delErr.Error()})
		}
		return nil, contextutils.WrapError(err, "failed to record attachment")
	}

	s.logger.Info(ctx, "Attachment uploaded", map[string]interface{}{
		"key":          a.Key,
		"content_type": a.ContentType,
		"size":         a.Size,
		"uploaded_by":  actor.ID,
	})
	return a, nil
}

// Get returns attachment metadata
func (s *AttachmentService) Get(ctx context.Context, key string) (result0 *models.Attachment, err error) {
	ctx, span := observability.TraceAttachmentFunction(ctx, "get_attachment", attribute.String("attachment.key", key))
	defer observability.FinishSpan(span, &err)

	var a models.Attachment
	err = s.db.QueryRowContext(ctx,
		`SELECT key, name, content_type, extension, size, uploaded_by, created_at FROM attachments WHERE key = $1`, key).
		Scan(&a.Key, &a.Name, &a.ContentType, &a.Extension, &a.Size, &a.UploadedBy, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "attachment %s not found", key)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load attachment")
	}
	return &a, nil
}

// Open returns the attachment if the actor uploaded it or can see a ticket or
// comment that references it.
func (s *AttachmentService) Open(ctx context.Context, actor authz.Actor, key string) (result0 *models.Attachment, result1 io.ReadCloser, err error) {
	ctx, span := observability.TraceAttachmentFunction(ctx, "open_attachment", attribute.String("attachment.key", key))
	defer observability.FinishSpan(span, &err)

	a, err := s.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if a.UploadedBy != actor.ID {
		ok, err := s.visibleTo(ctx, actor, key)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			s.logger.Security(ctx, "Attachment access denied", map[string]interface{}{"actor_id": actor.ID, "key": key})
			// Indistinguishable from a missing file
			return nil, nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "attachment %s not found", key)
		}
	}

	rc, err := s.blobs.Open(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	return a, rc, nil
}

func (s *AttachmentService) visibleTo(ctx context.Context, actor authz.Actor, key string) (bool, error) {
	tickets, err := queryFeedbackList(ctx, s.db, feedbackSelect+` WHERE f.attachment_key = $1`, key)
	if err != nil {
		return false, err
	}
	for i := range tickets {
		if authz.Resolve(actor, &tickets[i]).Has(authz.CapView) {
			return true, nil
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT feedback_id, is_internal FROM comments WHERE attachment_key = $1`, key)
	if err != nil {
		return false, contextutils.WrapError(err, "failed to query comment attachments")
	}
	type ref struct {
		feedbackID int
		internal   bool
	}
	var refs []ref
	for rows.Next() {
		var r ref
		if err := rows.Scan(&r.feedbackID, &r.internal); err != nil {
			_ = rows.Close()
			return false, contextutils.WrapError(err, "scan comment attachment")
		}
		refs = append(refs, r)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}

	for _, r := range refs {
		t, err := loadFeedback(ctx, s.db, r.feedbackID, false)
		if err != nil {
			continue
		}
		caps := authz.Resolve(actor, t)
		if caps.Has(authz.CapView) && (!r.internal || caps.Has(authz.CapCommentInternal)) {
			return true, nil
		}
	}
	return false, nil
}
