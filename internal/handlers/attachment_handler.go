package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	contextutils "collegefeedback/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// multipart overhead allowed on top of the file itself
const uploadEnvelopeBytes = 64 * 1024

// AttachmentHandler accepts uploads and serves stored files
type AttachmentHandler struct {
	attachments serviceinterfaces.AttachmentServiceInterface
	maxBytes    int64
	logger      *observability.Logger
}

// NewAttachmentHandler creates a new AttachmentHandler
func NewAttachmentHandler(attachments serviceinterfaces.AttachmentServiceInterface, maxBytes int64, logger *observability.Logger) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments, maxBytes: maxBytes, logger: logger}
}

// Upload stores the multipart "file" field and returns its key
func (h *AttachmentHandler) Upload(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "upload_attachment")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+uploadEnvelopeBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			HandleAppError(c, contextutils.WrapErrorf(contextutils.ErrPayloadTooLarge, "file exceeds %d bytes", h.maxBytes))
			return
		}
		HandleAppError(c, contextutils.WrapError(contextutils.ErrMissingRequired, "multipart field \"file\" is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to open upload"))
		return
	}
	defer func() { _ = f.Close() }()

	a, err := h.attachments.Upload(ctx, actor, fh.Filename, f)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(attribute.String("attachment.key", a.Key))
	c.JSON(http.StatusCreated, a)
}

// Download streams a stored file to a caller allowed to see it
func (h *AttachmentHandler) Download(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "download_attachment")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	a, rc, err := h.attachments.Open(ctx, actor, c.Param("key"))
	if err != nil {
		HandleAppError(c, err)
		return
	}
	defer func() { _ = rc.Close() }()

	c.Header("Content-Type", a.ContentType)
	c.Header("Content-Length", strconv.FormatInt(a.Size, 10))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Name))
	c.Header("X-Content-Type-Options", "nosniff")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.logger.Warn(ctx, "Attachment download interrupted", map[string]interface{}{"key": a.Key, "error": err.Error()})
	}
}
