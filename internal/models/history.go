package models

import (
	"database/sql"
	"time"
)

// HistoryEntry is an immutable record of one status and/or assignment change
type HistoryEntry struct {
	ID            int            `json:"id"`
	FeedbackID    int            `json:"feedback_id"`
	ChangedBy     int            `json:"changed_by"`
	OldStatus     FeedbackStatus `json:"old_status,omitempty"`
	NewStatus     FeedbackStatus `json:"new_status"`
	OldAssignedTo *int           `json:"old_assigned_to,omitempty"`
	NewAssignedTo *int           `json:"new_assigned_to,omitempty"`
	Notes         sql.NullString `json:"-"`
	Timestamp     time.Time      `json:"timestamp"`
}

// StatusChanged reports whether the entry records a status change
func (h *HistoryEntry) StatusChanged() bool {
	return h.OldStatus != h.NewStatus
}

// AssigneeChanged reports whether the entry records a reassignment
func (h *HistoryEntry) AssigneeChanged() bool {
	return !SameInt(h.OldAssignedTo, h.NewAssignedTo)
}
