package handlers

import (
	"database/sql"
	"time"

	"collegefeedback/internal/models"
	"collegefeedback/internal/serviceinterfaces"
)

// FeedbackResponse is the wire form of a ticket as seen by the caller
type FeedbackResponse struct {
	ID            int                     `json:"id"`
	Title         string                  `json:"title"`
	Description   string                  `json:"description"`
	CategoryID    int                     `json:"category_id"`
	CategoryName  string                  `json:"category_name"`
	SubmitterID   *int                    `json:"submitter_id"`
	AssignedTo    *int                    `json:"assigned_to"`
	Status        models.FeedbackStatus   `json:"status"`
	Priority      models.FeedbackPriority `json:"priority"`
	IsAnonymous   bool                    `json:"is_anonymous"`
	Rating        *int                    `json:"rating"`
	AttachmentKey *string                 `json:"attachment_key"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	ResolvedAt    *time.Time              `json:"resolved_at"`
	DaysOpen      int                     `json:"days_open"`
	Capabilities  []string                `json:"capabilities"`
}

// CommentResponse is the wire form of a comment
type CommentResponse struct {
	ID            int       `json:"id"`
	FeedbackID    int       `json:"feedback_id"`
	AuthorID      int       `json:"author_id"`
	Body          string    `json:"body"`
	IsInternal    bool      `json:"is_internal"`
	AttachmentKey *string   `json:"attachment_key"`
	CreatedAt     time.Time `json:"created_at"`
}

// HistoryResponse is the wire form of a history entry
type HistoryResponse struct {
	ID            int                   `json:"id"`
	FeedbackID    int                   `json:"feedback_id"`
	ChangedBy     int                   `json:"changed_by"`
	OldStatus     models.FeedbackStatus `json:"old_status"`
	NewStatus     models.FeedbackStatus `json:"new_status"`
	OldAssignedTo *int                  `json:"old_assigned_to"`
	NewAssignedTo *int                  `json:"new_assigned_to"`
	Notes         *string               `json:"notes"`
	Timestamp     time.Time             `json:"timestamp"`
}

// CategoryResponse is the wire form of a category
type CategoryResponse struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Icon        *string   `json:"icon"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func convertFeedbackToAPI(v *serviceinterfaces.FeedbackView) FeedbackResponse {
	resp := FeedbackResponse{
		ID:            v.ID,
		Title:         v.Title,
		Description:   v.Description,
		CategoryID:    v.CategoryID,
		CategoryName:  v.CategoryName,
		AssignedTo:    v.AssignedTo,
		Status:        v.Status,
		Priority:      v.Priority,
		IsAnonymous:   v.IsAnonymous,
		AttachmentKey: stringPtr(v.AttachmentKey),
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
		ResolvedAt:    timePtr(v.ResolvedAt),
		DaysOpen:      v.DaysOpen,
		Capabilities:  v.Capabilities.Names(),
	}
	if !v.SubmitterHidden {
		id := v.SubmitterID
		resp.SubmitterID = &id
	}
	if v.Rating.Valid {
		r := int(v.Rating.Int32)
		resp.Rating = &r
	}
	return resp
}

func convertFeedbackListToAPI(views []serviceinterfaces.FeedbackView) []FeedbackResponse {
	out := make([]FeedbackResponse, 0, len(views))
	for i := range views {
		out = append(out, convertFeedbackToAPI(&views[i]))
	}
	return out
}

// convertTicketsToAPI renders dashboard tickets, which are already masked but carry no capabilities
func convertTicketsToAPI(tickets []models.Feedback, now time.Time) []FeedbackResponse {
	out := make([]FeedbackResponse, 0, len(tickets))
	for i := range tickets {
		t := tickets[i]
		out = append(out, convertFeedbackToAPI(&serviceinterfaces.FeedbackView{
			Feedback:        t,
			SubmitterHidden: t.SubmitterID == 0,
			DaysOpen:        t.DaysOpen(now),
		}))
	}
	return out
}

func convertCommentToAPI(c *models.Comment) CommentResponse {
	return CommentResponse{
		ID:            c.ID,
		FeedbackID:    c.FeedbackID,
		AuthorID:      c.AuthorID,
		Body:          c.Body,
		IsInternal:    c.IsInternal,
		AttachmentKey: stringPtr(c.AttachmentKey),
		CreatedAt:     c.CreatedAt,
	}
}

func convertHistoryToAPI(h *models.HistoryEntry) HistoryResponse {
	return HistoryResponse{
		ID:            h.ID,
		FeedbackID:    h.FeedbackID,
		ChangedBy:     h.ChangedBy,
		OldStatus:     h.OldStatus,
		NewStatus:     h.NewStatus,
		OldAssignedTo: h.OldAssignedTo,
		NewAssignedTo: h.NewAssignedTo,
		Notes:         stringPtr(h.Notes),
		Timestamp:     h.Timestamp,
	}
}

func convertCategoryToAPI(c *models.Category) CategoryResponse {
	return CategoryResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: stringPtr(c.Description),
		Icon:        stringPtr(c.Icon),
		Active:      c.Active,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
