package handlers

import (
	"net/http"
	"strconv"

	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"

	"github.com/gin-gonic/gin"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// MarkReadRequest marks the listed notifications, or all of them, as read
type MarkReadRequest struct {
	IDs []int `json:"ids"`
	All bool  `json:"all"`
}

// LiveUpdates upgrades a request into a push connection for one user
type LiveUpdates interface {
	Serve(w http.ResponseWriter, r *http.Request, userID int) error
}

// NotificationHandler serves the in-app inbox and its live stream
type NotificationHandler struct {
	notifications serviceinterfaces.NotificationServiceInterface
	live          LiveUpdates
	logger        *observability.Logger
}

// NewNotificationHandler creates a new NotificationHandler. live may be nil.
func NewNotificationHandler(notifications serviceinterfaces.NotificationServiceInterface, live LiveUpdates, logger *observability.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, live: live, logger: logger}
}

// List returns the caller's notifications, newest first
func (h *NotificationHandler) List(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_notifications")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultNotificationLimit)))
	if err != nil || limit < 1 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	list, err := h.notifications.List(ctx, actor.ID, c.Query("unread_only") == "true", limit)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	unread, err := h.notifications.UnreadCount(ctx, actor.ID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "unread_count": unread})
}

// MarkRead marks notifications read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "mark_notifications_read")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	if !req.All && len(req.IDs) == 0 {
		HandleValidationError(c, "ids", req.IDs, "provide ids or set all")
		return
	}

	var (
		n   int
		err error
	)
	if req.All {
		n, err = h.notifications.MarkAllRead(ctx, actor.ID)
	} else {
		n, err = h.notifications.MarkRead(ctx, actor.ID, req.IDs)
	}
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// Stream upgrades to a websocket that pushes ticket events as they happen
func (h *NotificationHandler) Stream(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if h.live == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "live updates are disabled"})
		return
	}
	if err := h.live.Serve(c.Writer, c.Request, actor.ID); err != nil {
		// The upgrader has already written the handshake failure
		h.logger.Warn(c.Request.Context(), "Websocket upgrade failed", map[string]interface{}{
			"user_id": actor.ID,
			"error":   err.Error(),
		})
	}
}
