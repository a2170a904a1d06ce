package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	"collegefeedback/internal/services"
	contextutils "collegefeedback/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// CreateFeedbackRequest is the body of a new ticket
type CreateFeedbackRequest struct {
	CategoryID    int    `json:"category_id" binding:"required,min=1"`
	Title         string `json:"title" binding:"required,max=200"`
	Description   string `json:"description" binding:"required"`
	Priority      string `json:"priority" binding:"omitempty,feedback_priority"`
	IsAnonymous   bool   `json:"is_anonymous"`
	AttachmentKey string `json:"attachment_key"`
}

// optionalID tells an explicit null apart from an absent field
type optionalID struct {
	Set   bool
	Value *int
}

// UnmarshalJSON records presence and accepts null
func (o *optionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var id int
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	o.Value = &id
	return nil
}

// UpdateFeedbackRequest is an admin change; absent fields stay unchanged
type UpdateFeedbackRequest struct {
	Status     *string    `json:"status" binding:"omitempty,feedback_status"`
	Priority   *string    `json:"priority" binding:"omitempty,feedback_priority"`
	AssignedTo optionalID `json:"assigned_to"`
	Notes      string     `json:"notes" binding:"max=2000"`
}

// NotesRequest carries the optional notes of resolve and reopen
type NotesRequest struct {
	Notes string `json:"notes" binding:"max=2000"`
}

// AssignRequest names the new assignee
type AssignRequest struct {
	AssigneeID int    `json:"assignee_id" binding:"required,min=1"`
	Notes      string `json:"notes" binding:"max=2000"`
}

// RateRequest is the submitter's satisfaction rating
type RateRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=2000"`
}

// AddCommentRequest is a new comment on a ticket
type AddCommentRequest struct {
	Body          string `json:"body" binding:"required"`
	IsInternal    bool   `json:"is_internal"`
	AttachmentKey string `json:"attachment_key"`
}

// FeedbackHandler serves tickets, their comments and their history
type FeedbackHandler struct {
	feedback serviceinterfaces.FeedbackServiceInterface
	comments serviceinterfaces.CommentServiceInterface
	history  serviceinterfaces.HistoryServiceInterface
	logger   *observability.Logger
	now      func() time.Time
}

// NewFeedbackHandler creates a new FeedbackHandler
func NewFeedbackHandler(feedback serviceinterfaces.FeedbackServiceInterface, comments serviceinterfaces.CommentServiceInterface,
	history serviceinterfaces.HistoryServiceInterface, logger *observability.Logger,
) *FeedbackHandler {
	return &FeedbackHandler{
		feedback: feedback,
		comments: comments,
		history:  history,
		logger:   logger,
		now:      time.Now,
	}
}

// Create files a new ticket for the caller
func (h *FeedbackHandler) Create(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "create_feedback")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req CreateFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}

	view, err := h.feedback.Create(ctx, actor, serviceinterfaces.CreateFeedbackRequest{
		CategoryID:    req.CategoryID,
		Title:         req.Title,
		Description:   req.Description,
		Priority:      models.FeedbackPriority(req.Priority),
		IsAnonymous:   req.IsAnonymous,
		AttachmentKey: req.AttachmentKey,
	})
	if err != nil {
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(observability.AttributeFeedbackID(view.ID))
	c.JSON(http.StatusCreated, convertFeedbackToAPI(view))
}

// parseFilter reads the list filters from the query string
func parseFilter(c *gin.Context) (models.FeedbackFilter, bool) {
	var filter models.FeedbackFilter
	if raw := c.Query("status"); raw != "" {
		st, err := models.ParseFeedbackStatus(raw)
		if err != nil {
			HandleValidationError(c, "status", raw, "unknown status")
			return filter, false
		}
		filter.Status = st
	}
	if raw := c.Query("priority"); raw != "" {
		p, err := models.ParseFeedbackPriority(raw)
		if err != nil {
			HandleValidationError(c, "priority", raw, "unknown priority")
			return filter, false
		}
		filter.Priority = p
	}
	if raw := c.Query("category_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			HandleValidationError(c, "category_id", raw, "must be a positive integer")
			return filter, false
		}
		filter.CategoryID = id
	}
	filter.Search = c.Query("search")
	return filter, true
}

func (h *FeedbackHandler) list(c *gin.Context, spanName string, mineOnly bool) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), spanName)
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	filter, ok := parseFilter(c)
	if !ok {
		return
	}
	if mineOnly {
		filter.SubmittedBy = actor.ID
	}
	page, pageSize := ParsePagination(c, 1, services.DefaultPageSize, services.MaxPageSize)

	views, total, err := h.feedback.List(ctx, actor, filter, page, pageSize)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(attribute.Int("feedback.count", len(views)), attribute.Int("feedback.total", total))
	WritePaginated(c, "feedback", convertFeedbackListToAPI(views), NewPagination(page, pageSize, total), nil)
}

// List returns the tickets visible to the caller
func (h *FeedbackHandler) List(c *gin.Context) {
	h.list(c, "list_feedback", false)
}

// Mine returns the tickets the caller submitted
func (h *FeedbackHandler) Mine(c *gin.Context) {
	h.list(c, "list_my_feedback", true)
}

// Get returns one ticket
func (h *FeedbackHandler) Get(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_feedback")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.feedback.Get(ctx, actor, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertFeedbackToAPI(view))
}

// Update changes status, priority or assignee
func (h *FeedbackHandler) Update(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "update_feedback")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}

	update := serviceinterfaces.UpdateFeedbackRequest{
		AssigneeSet: req.AssignedTo.Set,
		AssigneeID:  req.AssignedTo.Value,
		Notes:       req.Notes,
	}
	if req.Status != nil {
		st := models.FeedbackStatus(*req.Status)
		update.Status = &st
	}
	if req.Priority != nil {
		p := models.FeedbackPriority(*req.Priority)
		update.Priority = &p
	}
	if update.Status == nil && update.Priority == nil && !update.AssigneeSet {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrMissingRequired, "one of status, priority or assigned_to is required"))
		return
	}

	view, err := h.feedback.Update(ctx, actor, id, update)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertFeedbackToAPI(view))
}

// bindNotes reads an optional notes body
func bindNotes(c *gin.Context) (string, bool) {
	var req NotesRequest
	if c.Request.ContentLength == 0 {
		return "", true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return "", false
	}
	return req.Notes, true
}

// Resolve marks the ticket resolved
func (h *FeedbackHandler) Resolve(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "resolve_feedback")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	notes, ok := bindNotes(c)
	if !ok {
		return
	}
	view, err := h.feedback.Resolve(ctx, actor, id, notes)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertFeedbackToAPI(view))
}

// Reopen moves a finished ticket back to in progress
func (h *FeedbackHandler) Reopen(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "reopen_feedback")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	notes, ok := bindNotes(c)
	if !ok {
		return
	}
	view, err := h.feedback.Reopen(ctx, actor, id, notes)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertFeedbackToAPI(view))
}

// Assign hands the ticket to an admin
func (h *FeedbackHandler) Assign(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "assign_feedback")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	view, err := h.feedback.Assign(ctx, actor, id, req.AssigneeID, req.Notes)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertFeedbackToAPI(view))
}

// Rate records the submitter's rating of a resolved ticket
func (h *FeedbackHandler) Rate(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "rate_feedback")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	view, err := h.feedback.Rate(ctx, actor, id, req.Rating, req.Comment)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertFeedbackToAPI(view))
}

// Dashboard summarizes the tickets visible to the caller
func (h *FeedbackHandler) Dashboard(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "feedback_dashboard")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	stats, err := h.feedback.Dashboard(ctx, actor)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	now := h.now()
	c.JSON(http.StatusOK, gin.H{
		"total":       stats.Total,
		"by_status":   stats.ByStatus,
		"by_priority": stats.ByPriority,
		"by_category": stats.ByCategory,
		"recent":      convertTicketsToAPI(stats.Recent, now),
		"urgent_open": convertTicketsToAPI(stats.UrgentOpen, now),
	})
}

// ListComments returns the thread the caller may see
func (h *FeedbackHandler) ListComments(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_comments")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	list, err := h.comments.List(ctx, actor, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	out := make([]CommentResponse, 0, len(list))
	for i := range list {
		out = append(out, convertCommentToAPI(&list[i]))
	}
	c.JSON(http.StatusOK, gin.H{"comments": out})
}

// AddComment posts to the ticket's thread
func (h *FeedbackHandler) AddComment(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "add_comment")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	comment, err := h.comments.Add(ctx, actor, id, req.Body, req.IsInternal, req.AttachmentKey)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, convertCommentToAPI(comment))
}

// History returns the ticket's status and assignment ledger
func (h *FeedbackHandler) History(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "feedback_history")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	list, err := h.history.List(ctx, actor, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	out := make([]HistoryResponse, 0, len(list))
	for i := range list {
		out = append(out, convertHistoryToAPI(&list[i]))
	}
	c.JSON(http.StatusOK, gin.H{"history": out})
}
