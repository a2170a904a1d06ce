package models

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// FeedbackStatus is the lifecycle state of a ticket
type FeedbackStatus string

const (
	// StatusPending is the initial state of every ticket
	StatusPending FeedbackStatus = "pending"
	// StatusInProgress means an admin or a comment has picked the ticket up
	StatusInProgress FeedbackStatus = "in_progress"
	// StatusResolved means the issue was addressed; the submitter may rate it
	StatusResolved FeedbackStatus = "resolved"
	// StatusClosed is a terminal state reached from resolved
	StatusClosed FeedbackStatus = "closed"
	// StatusRejected is a terminal state for tickets that will not be addressed
	StatusRejected FeedbackStatus = "rejected"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []FeedbackStatus{StatusPending, StatusInProgress, StatusResolved, StatusClosed, StatusRejected}

// ParseFeedbackStatus validates a status string
func ParseFeedbackStatus(s string) (FeedbackStatus, error) {
	st := FeedbackStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return st, nil
}

// Valid reports whether s is a known status
func (s FeedbackStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusClosed, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether reopen is the only way forward from s
func (s FeedbackStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusClosed || s == StatusRejected
}

// FeedbackPriority ranks ticket urgency
type FeedbackPriority string

const (
	PriorityLow    FeedbackPriority = "low"
	PriorityMedium FeedbackPriority = "medium"
	PriorityHigh   FeedbackPriority = "high"
	PriorityUrgent FeedbackPriority = "urgent"
)

// AllPriorities lists every priority from lowest to highest
var AllPriorities = []FeedbackPriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// ParseFeedbackPriority validates a priority string
func ParseFeedbackPriority(s string) (FeedbackPriority, error) {
	p := FeedbackPriority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("invalid priority %q", s)
	}
	return p, nil
}

// Valid reports whether p is a known priority
func (p FeedbackPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

const (
	// MinRating is the lowest satisfaction rating
	MinRating = 1
	// MaxRating is the highest satisfaction rating
	MaxRating = 5
)

// Feedback is a ticket submitted by a user
type Feedback struct {
	ID            int              `json:"id"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	CategoryID    int              `json:"category_id"`
	CategoryName  string           `json:"category_name"`
	SubmitterID   int              `json:"submitter_id"`
	AssignedTo    *int             `json:"assigned_to,omitempty"`
	Status        FeedbackStatus   `json:"status"`
	Priority      FeedbackPriority `json:"priority"`
	IsAnonymous   bool             `json:"is_anonymous"`
	Rating        sql.NullInt32    `json:"-"`
	AttachmentKey sql.NullString   `json:"-"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	ResolvedAt    sql.NullTime     `json:"-"`
}

// DaysOpen is the number of whole days the ticket has been (or was) open.
// Resolved tickets count up to resolved_at, closed and rejected ones up to
// their last update, and open ones up to now.
func (f *Feedback) DaysOpen(now time.Time) int {
	end := now
	switch f.Status {
	case StatusResolved:
		if f.ResolvedAt.Valid {
			end = f.ResolvedAt.Time
		}
	case StatusClosed, StatusRejected:
		end = f.UpdatedAt
	}
	if end.Before(f.CreatedAt) {
		return 0
	}
	return int(end.Sub(f.CreatedAt).Hours() / 24)
}

// IsAssignedTo reports whether the ticket is assigned to the given user
func (f *Feedback) IsAssignedTo(userID int) bool {
	return f.AssignedTo != nil && *f.AssignedTo == userID
}

// FeedbackFilter narrows ticket listings
type FeedbackFilter struct {
	Status     FeedbackStatus
	Priority   FeedbackPriority
	CategoryID int
	Search     string
	// SubmittedBy restricts to one submitter regardless of the actor's wider scope
	SubmittedBy int
}

// CacheKey renders the filter in a stable form for memoized listings
func (f FeedbackFilter) CacheKey() string {
	return fmt.Sprintf("s=%s|p=%s|c=%d|q=%s|u=%d", f.Status, f.Priority, f.CategoryID, strings.ToLower(f.Search), f.SubmittedBy)
}

// DashboardStats summarizes the tickets visible to an actor
type DashboardStats struct {
	Total      int                      `json:"total"`
	ByStatus   map[FeedbackStatus]int   `json:"by_status"`
	ByPriority map[FeedbackPriority]int `json:"by_priority"`
	ByCategory map[string]int           `json:"by_category"`
	Recent     []Feedback               `json:"recent"`
	UrgentOpen []Feedback               `json:"urgent_open"`
}
