package models

import (
	"time"
)

// NotificationType classifies ticket events delivered to users
type NotificationType string

const (
	NotificationFeedbackCreated       NotificationType = "feedback_created"
	NotificationFeedbackStatusChanged NotificationType = "feedback_status_changed"
	NotificationFeedbackAssigned      NotificationType = "feedback_assigned"
	NotificationFeedbackComment       NotificationType = "feedback_comment"
	NotificationFeedbackRated         NotificationType = "feedback_rated"
)

// Notification is an in-app message stored for a user
type Notification struct {
	ID         int              `json:"id"`
	UserID     int              `json:"user_id"`
	FeedbackID *int             `json:"feedback_id,omitempty"`
	Type       NotificationType `json:"type"`
	Message    string           `json:"message"`
	IsRead     bool             `json:"is_read"`
	CreatedAt  time.Time        `json:"created_at"`
}

// TicketEvent describes a committed ticket change delivered to observers
type TicketEvent struct {
	Type       NotificationType `json:"type"`
	Feedback   Feedback         `json:"feedback"`
	ActorID    int              `json:"actor_id"`
	ActorLabel string           `json:"actor"`
	Recipients []int            `json:"-"`
	Message    string           `json:"message"`
	// Internal marks events that only admins may see (internal comments)
	Internal   bool             `json:"internal,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
