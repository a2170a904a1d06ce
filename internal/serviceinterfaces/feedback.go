package serviceinterfaces

import (
	"context"

	"collegefeedback/internal/authz"
	"collegefeedback/internal/models"
)

// CreateFeedbackRequest carries the submitter-provided fields of a new ticket
type CreateFeedbackRequest struct {
	CategoryID    int
	Title         string
	Description   string
	Priority      models.FeedbackPriority
	IsAnonymous   bool
	AttachmentKey string
}

// UpdateFeedbackRequest is an admin change of status, assignee and priority.
// AssigneeSet distinguishes "leave alone" from "clear" (AssigneeID nil).
type UpdateFeedbackRequest struct {
	Status      *models.FeedbackStatus
	AssigneeSet bool
	AssigneeID  *int
	Priority    *models.FeedbackPriority
	Notes       string
}

// FeedbackView is a ticket as presented to one actor
type FeedbackView struct {
	models.Feedback
	Capabilities authz.CapabilitySet
	// SubmitterHidden is set when the actor may not learn who filed an anonymous ticket
	SubmitterHidden bool
	DaysOpen        int
}

// FeedbackServiceInterface defines the ticket store and lifecycle operations
type FeedbackServiceInterface interface {
	Create(ctx context.Context, actor authz.Actor, req CreateFeedbackRequest) (*FeedbackView, error)
	Get(ctx context.Context, actor authz.Actor, id int) (*FeedbackView, error)
	List(ctx context.Context, actor authz.Actor, filter models.FeedbackFilter, page, pageSize int) ([]FeedbackView, int, error)
	Dashboard(ctx context.Context, actor authz.Actor) (*models.DashboardStats, error)
	Resolve(ctx context.Context, actor authz.Actor, id int, notes string) (*FeedbackView, error)
	Reopen(ctx context.Context, actor authz.Actor, id int, notes string) (*FeedbackView, error)
	Update(ctx context.Context, actor authz.Actor, id int, req UpdateFeedbackRequest) (*FeedbackView, error)
	Assign(ctx context.Context, actor authz.Actor, id, assigneeID int, notes string) (*FeedbackView, error)
	Rate(ctx context.Context, actor authz.Actor, id, rating int, comment string) (*FeedbackView, error)
}

// CommentServiceInterface defines the comment thread operations
type CommentServiceInterface interface {
	Add(ctx context.Context, actor authz.Actor, feedbackID int, body string, internal bool, attachmentKey string) (*models.Comment, error)
	List(ctx context.Context, actor authz.Actor, feedbackID int) ([]models.Comment, error)
}

// HistoryServiceInterface defines read access to the history ledger
type HistoryServiceInterface interface {
	List(ctx context.Context, actor authz.Actor, feedbackID int) ([]models.HistoryEntry, error)
}
