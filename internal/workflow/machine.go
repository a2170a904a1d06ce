// Package workflow implements the feedback ticket lifecycle.
//
// The Machine is pure: it takes the current ticket (as read under a row lock),
// the actor and the requested action, and returns the next ticket state plus
// the history entry and notification event the change produces. The caller
// persists the outcome atomically.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"collegefeedback/internal/authz"
	"collegefeedback/internal/models"
	contextutils "collegefeedback/internal/utils"
)

// Action names a lifecycle operation
type Action string

const (
	ActionCreate       Action = "create"
	ActionComment      Action = "comment"
	ActionResolve      Action = "resolve"
	ActionReopen       Action = "reopen"
	ActionChangeStatus Action = "change_status"
	ActionAssign       Action = "assign"
	ActionRate         Action = "rate"
)

// Outcome is the result of applying an action
type Outcome struct {
	Action Action
	Before models.Feedback
	After  models.Feedback
	// History is nil when neither status nor assignee changed
	History *models.HistoryEntry
	// Event is empty when the action should not notify anyone
	Event models.NotificationType
	// Internal events are only delivered to admins
	Internal bool
}

// Changed reports whether the ticket row needs to be written
func (o Outcome) Changed() bool {
	b, a := o.Before, o.After
	return b.Status != a.Status ||
		!models.SameInt(b.AssignedTo, a.AssignedTo) ||
		b.Priority != a.Priority ||
		b.Rating != a.Rating ||
		b.ResolvedAt != a.ResolvedAt
}

// transitions lists the status edges change_status may take
var transitions = map[models.FeedbackStatus][]models.FeedbackStatus{
	models.StatusPending:    {models.StatusInProgress, models.StatusResolved, models.StatusRejected},
	models.StatusInProgress: {models.StatusResolved, models.StatusRejected},
	models.StatusResolved:   {models.StatusClosed, models.StatusInProgress},
	models.StatusClosed:     {models.StatusInProgress},
	models.StatusRejected:   {models.StatusInProgress},
}

// CanTransition reports whether change_status may move a ticket from one status to another
func CanTransition(from, to models.FeedbackStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Machine applies lifecycle actions
type Machine struct {
	now func() time.Time
}

// NewMachine creates a Machine. A nil clock uses time.Now.
func NewMachine(clock func() time.Time) *Machine {
	if clock == nil {
		clock = time.Now
	}
	return &Machine{now: clock}
}

// Now exposes the machine clock so callers stamp related rows consistently
func (m *Machine) Now() time.Time {
	return m.now().UTC()
}

// CreateInput carries a new ticket's fields
type CreateInput struct {
	Title         string
	Description   string
	Priority      models.FeedbackPriority
	IsAnonymous   bool
	AttachmentKey string
}

// Create builds a new pending ticket. The category must be active; an optional
// auto-assignee is part of the initial state and produces no history.
func (m *Machine) Create(actor authz.Actor, category *models.Category, in CreateInput, autoAssignee *int) (models.Feedback, error) {
	if category == nil {
		return models.Feedback{}, contextutils.WrapError(contextutils.ErrValidationFailed, "category is required")
	}
	if !category.Active {
		return models.Feedback{}, contextutils.WrapErrorf(contextutils.ErrCategoryInactive, "category %q is inactive", category.Name)
	}
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if title == "" || description == "" {
		return models.Feedback{}, contextutils.WrapError(contextutils.ErrValidationFailed, "title and description are required")
	}
	if len(title) > MaxTitleLength {
		return models.Feedback{}, contextutils.WrapErrorf(contextutils.ErrValidationFailed, "title exceeds %d characters", MaxTitleLength)
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return models.Feedback{}, contextutils.WrapErrorf(contextutils.ErrValidationFailed, "invalid priority %q", priority)
	}

	now := m.Now()
	return models.Feedback{
		Title:         title,
		Description:   description,
		CategoryID:    category.ID,
		CategoryName:  category.Name,
		SubmitterID:   actor.ID,
		AssignedTo:    autoAssignee,
		Status:        models.StatusPending,
		Priority:      priority,
		IsAnonymous:   in.IsAnonymous,
		AttachmentKey: models.NullString(in.AttachmentKey),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// MaxTitleLength bounds ticket titles
const MaxTitleLength = 200

// Comment checks that the actor may post (an internal) comment and, for a
// pending ticket, moves it to in_progress.
func (m *Machine) Comment(actor authz.Actor, t models.Feedback, internal bool) (Outcome, error) {
	caps := authz.Resolve(actor, &t)
	if !caps.Has(authz.CapComment) {
		return Outcome{}, authz.Denied(actor, &t, authz.CapComment)
	}
	if internal && !caps.Has(authz.CapCommentInternal) {
		return Outcome{}, authz.Denied(actor, &t, authz.CapCommentInternal)
	}

	out := m.begin(ActionComment, t)
	out.Event = models.NotificationFeedbackComment
	out.Internal = internal
	if t.Status == models.StatusPending {
		out.After.Status = models.StatusInProgress
		m.record(&out, actor, fmt.Sprintf("Status changed to in progress due to new comment by %s", actor.Email))
	}
	return out, nil
}

// Resolve marks a pending or in-progress ticket resolved
func (m *Machine) Resolve(actor authz.Actor, t models.Feedback, notes string) (Outcome, error) {
	if err := authz.Require(actor, &t, authz.CapResolve); err != nil {
		return Outcome{}, err
	}
	switch t.Status {
	case models.StatusResolved:
		return Outcome{}, contextutils.WrapErrorf(contextutils.ErrConflict, "feedback %d is already resolved", t.ID)
	case models.StatusClosed, models.StatusRejected:
		return Outcome{}, contextutils.WrapErrorf(contextutils.ErrConflict, "feedback %d is %s and must be reopened first", t.ID, t.Status)
	}

	out := m.begin(ActionResolve, t)
	m.setStatus(&out, models.StatusResolved)
	out.Event = models.NotificationFeedbackStatusChanged
	m.record(&out, actor, noteOr(notes, fmt.Sprintf("Marked as resolved by %s", actor.Email)))
	return out, nil
}

// Reopen returns a terminal ticket to in_progress
func (m *Machine) Reopen(actor authz.Actor, t models.Feedback, notes string) (Outcome, error) {
	caps := authz.Resolve(actor, &t)
	if !caps.Has(authz.CapView) {
		return Outcome{}, authz.Denied(actor, &t, authz.CapReopen)
	}
	if !t.Status.IsTerminal() {
		return Outcome{}, contextutils.WrapErrorf(contextutils.ErrConflict, "feedback %d is %s and cannot be reopened", t.ID, t.Status)
	}
	if !caps.Has(authz.CapReopen) {
		return Outcome{}, authz.Denied(actor, &t, authz.CapReopen)
	}

	out := m.begin(ActionReopen, t)
	m.setStatus(&out, models.StatusInProgress)
	out.Event = models.NotificationFeedbackStatusChanged
	m.record(&out, actor, noteOr(notes, fmt.Sprintf("Reopened by %s", actor.Email)))
	return out, nil
}

// Assignment describes a requested assignee change. Set=false leaves the assignee alone.
type Assignment struct {
	Set  bool
	User *models.User // nil clears the assignee
}

// ChangeRequest is an admin update of status, assignee and/or priority
type ChangeRequest struct {
	Status   *models.FeedbackStatus
	Assignee Assignment
	Priority *models.FeedbackPriority
	Notes    string
}

// ChangeStatus applies an admin update. A history entry is produced only when
// status or assignee actually changes.
func (m *Machine) ChangeStatus(actor authz.Actor, t models.Feedback, req ChangeRequest) (Outcome, error) {
	caps := authz.Resolve(actor, &t)
	if !caps.Has(authz.CapChangeStatus) {
		return Outcome{}, authz.Denied(actor, &t, authz.CapChangeStatus)
	}

	out := m.begin(ActionChangeStatus, t)

	if req.Priority != nil {
		if !req.Priority.Valid() {
			return Outcome{}, contextutils.WrapErrorf(contextutils.ErrValidationFailed, "invalid priority %q", *req.Priority)
		}
		out.After.Priority = *req.Priority
	}

	if req.Assignee.Set {
		if !caps.Has(authz.CapAssign) {
			return Outcome{}, authz.Denied(actor, &t, authz.CapAssign)
		}
		if req.Assignee.User == nil {
			out.After.AssignedTo = nil
		} else {
			if err := validateAssignee(req.Assignee.User); err != nil {
				return Outcome{}, err
			}
			id := req.Assignee.User.ID
			out.After.AssignedTo = &id
		}
	}

	if req.Status != nil && *req.Status != t.Status {
		next := *req.Status
		if !next.Valid() {
			return Outcome{}, contextutils.WrapErrorf(contextutils.ErrValidationFailed, "invalid status %q", next)
		}
		if !CanTransition(t.Status, next) {
			return Outcome{}, contextutils.WrapErrorf(contextutils.ErrConflict, "cannot move feedback %d from %s to %s", t.ID, t.Status, next)
		}
		m.setStatus(&out, next)
	}

	statusChanged := out.After.Status != t.Status
	assigneeChanged := !models.SameInt(out.After.AssignedTo, t.AssignedTo)
	switch {
	case statusChanged:
		out.Event = models.NotificationFeedbackStatusChanged
	case assigneeChanged:
		out.Event = models.NotificationFeedbackAssigned
	}
	if statusChanged || assigneeChanged {
		m.record(&out, actor, noteOr(req.Notes, fmt.Sprintf("Updated by %s", actor.Email)))
	} else if out.Changed() {
		out.After.UpdatedAt = m.Now()
	}
	return out, nil
}

// Assign sets the assignee; a pending ticket also moves to in_progress
func (m *Machine) Assign(actor authz.Actor, t models.Feedback, assignee *models.User, notes string) (Outcome, error) {
	if err := authz.Require(actor, &t, authz.CapAssign); err != nil {
		return Outcome{}, err
	}
	if assignee == nil {
		return Outcome{}, contextutils.WrapError(contextutils.ErrValidationFailed, "assignee is required")
	}
	if err := validateAssignee(assignee); err != nil {
		return Outcome{}, err
	}

	out := m.begin(ActionAssign, t)
	id := assignee.ID
	out.After.AssignedTo = &id
	if t.Status == models.StatusPending {
		out.After.Status = models.StatusInProgress
	}

	if !models.SameInt(t.AssignedTo, out.After.AssignedTo) || out.After.Status != t.Status {
		out.Event = models.NotificationFeedbackAssigned
		m.record(&out, actor, noteOr(notes, fmt.Sprintf("Assigned to %s by %s", assignee.Email, actor.Email)))
	}
	return out, nil
}

// Rate records the submitter's satisfaction with a resolved ticket.
// Repeated ratings overwrite the previous one.
func (m *Machine) Rate(actor authz.Actor, t models.Feedback, rating int) (Outcome, error) {
	caps := authz.Resolve(actor, &t)
	if !caps.Has(authz.CapView) {
		return Outcome{}, authz.Denied(actor, &t, authz.CapRate)
	}
	if t.Status != models.StatusResolved {
		return Outcome{}, contextutils.WrapErrorf(contextutils.ErrConflict, "feedback %d is %s; only resolved feedback can be rated", t.ID, t.Status)
	}
	if rating < models.MinRating || rating > models.MaxRating {
		return Outcome{}, contextutils.WrapErrorf(contextutils.ErrValidationFailed, "rating must be between %d and %d", models.MinRating, models.MaxRating)
	}
	if !caps.Has(authz.CapRate) {
		return Outcome{}, authz.Denied(actor, &t, authz.CapRate)
	}

	out := m.begin(ActionRate, t)
	out.After.Rating.Int32 = int32(rating)
	out.After.Rating.Valid = true
	out.After.UpdatedAt = m.Now()
	out.Event = models.NotificationFeedbackRated
	return out, nil
}

func (m *Machine) begin(action Action, t models.Feedback) Outcome {
	return Outcome{Action: action, Before: t, After: t}
}

// setStatus moves the ticket and keeps resolved_at set exactly while resolved
func (m *Machine) setStatus(out *Outcome, next models.FeedbackStatus) {
	out.After.Status = next
	if next == models.StatusResolved {
		out.After.ResolvedAt.Time = m.Now()
		out.After.ResolvedAt.Valid = true
	} else {
		out.After.ResolvedAt.Time = time.Time{}
		out.After.ResolvedAt.Valid = false
	}
}

// record stamps the ticket and attaches the single history entry for this action
func (m *Machine) record(out *Outcome, actor authz.Actor, notes string) {
	now := m.Now()
	out.After.UpdatedAt = now
	out.History = &models.HistoryEntry{
		FeedbackID:    out.Before.ID,
		ChangedBy:     actor.ID,
		OldStatus:     out.Before.Status,
		NewStatus:     out.After.Status,
		OldAssignedTo: out.Before.AssignedTo,
		NewAssignedTo: out.After.AssignedTo,
		Notes:         models.NullString(notes),
		Timestamp:     now,
	}
}

func validateAssignee(u *models.User) error {
	if !u.Role.IsAdmin() {
		return contextutils.WrapErrorf(contextutils.ErrValidationFailed, "user %d is not an admin and cannot be assigned feedback", u.ID)
	}
	if !u.IsActive {
		return contextutils.WrapErrorf(contextutils.ErrValidationFailed, "user %d is inactive", u.ID)
	}
	return nil
}

func noteOr(notes, fallback string) string {
	if n := strings.TrimSpace(notes); n != "" {
		return n
	}
	return fallback
}
