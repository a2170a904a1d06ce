package services

import (
	"bytes"
	"context"
	"io"
	"regexp"
	"strings"
	"testing"

	"collegefeedback/internal/authz"
	"collegefeedback/internal/config"
	"collegefeedback/internal/models"
	contextutils "collegefeedback/internal/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)

var attachmentColumns = []string{"key", "name", "content_type", "extension", "size", "uploaded_by", "created_at"}

func newTestAttachmentService(t *testing.T, cfg config.AttachmentConfig) (*AttachmentService, *LocalBlobStore, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	blobs, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	cleanup := func() {
		mock.ExpectClose()
		require.NoError(t, db.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	}
	return NewAttachmentService(db, blobs, cfg, testLogger()), blobs, mock, cleanup
}

func TestAttachmentService_UploadStoresBlobAndRow(t *testing.T) {
	service, blobs, mock, cleanup := newTestAttachmentService(t, config.AttachmentConfig{})
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attachments")).
		WithArgs(sqlmock.AnyArg(), "photo.PNG", "image/png", "png", int64(len(pngBytes)), studentActor.ID).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(testNow))

	a, err := service.Upload(context.Background(), studentActor, "photo.PNG", bytes.NewReader(pngBytes))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(a.Key, ".png"))
	assert.Equal(t, "image/png", a.ContentType)

	rc, err := blobs.Open(context.Background(), a.Key)
	require.NoError(t, err)
	defer rc.Close()
	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, stored)
}

func TestAttachmentService_UploadRejections(t *testing.T) {
	service, _, _, cleanup := newTestAttachmentService(t, config.AttachmentConfig{MaxBytes: 32})
	defer cleanup()
	ctx := context.Background()

	_, err := service.Upload(ctx, studentActor, "virus.exe", bytes.NewReader([]byte("MZ")))
	assert.True(t, contextutils.IsError(err, contextutils.ErrUnsupportedMediaType))

	_, err = service.Upload(ctx, studentActor, "big.png", bytes.NewReader(pngBytes))
	assert.True(t, contextutils.IsError(err, contextutils.ErrPayloadTooLarge))

	_, err = service.Upload(ctx, studentActor, "empty.pdf", bytes.NewReader(nil))
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))

	// content does not match the claimed extension
	_, err = service.Upload(ctx, studentActor, "report.pdf", bytes.NewReader(pngBytes[:24]))
	assert.True(t, contextutils.IsError(err, contextutils.ErrUnsupportedMediaType))
}

func TestAttachmentService_OpenHiddenFromUnrelatedStudent(t *testing.T) {
	service, _, mock, cleanup := newTestAttachmentService(t, config.AttachmentConfig{})
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM attachments WHERE key = $1")).WithArgs("k.png").
		WillReturnRows(sqlmock.NewRows(attachmentColumns).AddRow("k.png", "k.png", "image/png", "png", 10, 1, testNow))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE f.attachment_key = $1")).WithArgs("k.png").
		WillReturnRows(feedbackRows(sampleTicket(7, models.StatusPending)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT feedback_id, is_internal FROM comments WHERE attachment_key = $1")).WithArgs("k.png").
		WillReturnRows(sqlmock.NewRows([]string{"feedback_id", "is_internal"}))

	other := authz.Actor{ID: 2, Role: models.RoleStudent}
	_, _, err := service.Open(context.Background(), other, "k.png")
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrRecordNotFound))
}

func TestAttachmentService_OpenByTicketViewer(t *testing.T) {
	service, blobs, mock, cleanup := newTestAttachmentService(t, config.AttachmentConfig{})
	defer cleanup()
	require.NoError(t, blobs.Put(context.Background(), "k.png", "image/png", bytes.NewReader(pngBytes), int64(len(pngBytes))))

	mock.ExpectQuery(regexp.QuoteMeta("FROM attachments WHERE key = $1")).WithArgs("k.png").
		WillReturnRows(sqlmock.NewRows(attachmentColumns).AddRow("k.png", "k.png", "image/png", "png", len(pngBytes), 1, testNow))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE f.attachment_key = $1")).WithArgs("k.png").
		WillReturnRows(feedbackRows(sampleTicket(7, models.StatusPending)))

	a, rc, err := service.Open(context.Background(), academicAdmin, "k.png")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "image/png", a.ContentType)
}

func TestLocalBlobStore_RejectsTraversal(t *testing.T) {
	blobs, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	_, err = blobs.Open(context.Background(), "../etc/passwd")
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))

	_, err = blobs.Open(context.Background(), "missing.png")
	assert.True(t, contextutils.IsError(err, contextutils.ErrRecordNotFound))

	assert.NoError(t, blobs.Delete(context.Background(), "missing.png"))
}
