package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"collegefeedback/internal/authz"
	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	"collegefeedback/internal/workflow"
	contextutils "collegefeedback/internal/utils"

	"github.com/lib/pq"
)

const feedbackSelect = `SELECT f.id, f.title, f.description, f.category_id, c.name, f.submitter_id, f.assigned_to, f.status, f.priority,
       f.is_anonymous, f.rating, f.attachment_key, f.created_at, f.updated_at, f.resolved_at
FROM feedback f JOIN categories c ON c.id = f.category_id`

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func scanFeedback(row rowScanner) (*models.Feedback, error) {
	var f models.Feedback
	var assigned sql.NullInt64
	var status, priority string
	err := row.Scan(&f.ID, &f.Title, &f.Description, &f.CategoryID, &f.CategoryName, &f.SubmitterID, &assigned,
		&status, &priority, &f.IsAnonymous, &f.Rating, &f.AttachmentKey, &f.CreatedAt, &f.UpdatedAt, &f.ResolvedAt)
	if err != nil {
		return nil, err
	}
	f.AssignedTo = models.IntFromNull(assigned)
	f.Status = models.FeedbackStatus(status)
	f.Priority = models.FeedbackPriority(priority)
	return &f, nil
}

// loadFeedback reads one ticket; lock takes the row lock for the rest of the transaction
func loadFeedback(ctx context.Context, q queryer, id int, lock bool) (*models.Feedback, error) {
	query := feedbackSelect + ` WHERE f.id = $1`
	if lock {
		query += ` FOR UPDATE OF f`
	}
	f, err := scanFeedback(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "feedback %d not found", id)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load feedback")
	}
	return f, nil
}

func queryFeedbackList(ctx context.Context, q queryer, query string, args ...interface{}) ([]models.Feedback, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query feedback list")
	}
	defer func() {
		_ = rows.Close()
	}()

	list := []models.Feedback{}
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "scan feedback list")
		}
		list = append(list, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "iterate feedback list")
	}
	return list, nil
}

// applyOutcome writes the ticket row and its history entry inside tx
func applyOutcome(ctx context.Context, tx queryer, out *workflow.Outcome) error {
	if out.Changed() {
		a := out.After
		_, err := tx.ExecContext(ctx,
			`UPDATE feedback SET status = $1, assigned_to = $2, priority = $3, rating = $4, resolved_at = $5, updated_at = $6 WHERE id = $7`,
			string(a.Status), models.NullInt(a.AssignedTo), string(a.Priority), a.Rating, a.ResolvedAt, a.UpdatedAt, a.ID)
		if err != nil {
			return contextutils.WrapErrorf(err, "failed to update feedback %d", a.ID)
		}
	}
	if out.History != nil {
		if err := insertHistory(ctx, tx, out.History); err != nil {
			return err
		}
	}
	return nil
}

func insertHistory(ctx context.Context, tx queryer, h *models.HistoryEntry) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO feedback_history (feedback_id, changed_by, old_status, new_status, old_assigned_to, new_assigned_to, notes, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		h.FeedbackID, h.ChangedBy, models.NullString(string(h.OldStatus)), string(h.NewStatus),
		models.NullInt(h.OldAssignedTo), models.NullInt(h.NewAssignedTo), h.Notes, h.Timestamp).Scan(&h.ID)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to append history for feedback %d", h.FeedbackID)
	}
	return nil
}

// scopeClause renders a ListScope as a SQL predicate over the f/c aliases
func scopeClause(scope authz.ListScope, idx int) (string, []interface{}, int) {
	switch {
	case scope.None:
		return "FALSE", nil, idx
	case scope.All:
		return "", nil, idx
	}
	var parts []string
	var args []interface{}
	if scope.SubmitterID != 0 {
		parts = append(parts, fmt.Sprintf("f.submitter_id = $%d", idx))
		args = append(args, scope.SubmitterID)
		idx++
	}
	if scope.Category != "" {
		parts = append(parts, fmt.Sprintf("LOWER(c.name) = $%d", idx))
		args = append(args, string(scope.Category))
		idx++
	}
	if scope.AssigneeID != 0 {
		parts = append(parts, fmt.Sprintf("f.assigned_to = $%d", idx))
		args = append(args, scope.AssigneeID)
		idx++
	}
	if len(parts) == 0 {
		return "FALSE", nil, idx
	}
	return "(" + strings.Join(parts, " OR ") + ")", args, idx
}

// filterWhere combines the actor's scope with the requested filters
func filterWhere(scope authz.ListScope, filter models.FeedbackFilter) (string, []interface{}, int) {
	var conditions []string
	clause, args, idx := scopeClause(scope, 1)
	if clause != "" {
		conditions = append(conditions, clause)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("f.status = $%d", idx))
		args = append(args, string(filter.Status))
		idx++
	}
	if filter.Priority != "" {
		conditions = append(conditions, fmt.Sprintf("f.priority = $%d", idx))
		args = append(args, string(filter.Priority))
		idx++
	}
	if filter.CategoryID != 0 {
		conditions = append(conditions, fmt.Sprintf("f.category_id = $%d", idx))
		args = append(args, filter.CategoryID)
		idx++
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		conditions = append(conditions, fmt.Sprintf("(f.title ILIKE $%d OR f.description ILIKE $%d)", idx, idx))
		args = append(args, "%"+s+"%")
		idx++
	}
	if filter.SubmittedBy != 0 {
		conditions = append(conditions, fmt.Sprintf("f.submitter_id = $%d", idx))
		args = append(args, filter.SubmittedBy)
		idx++
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args, idx
}

// ticketMutator runs lifecycle actions: lock, decide, write, commit, then notify
type ticketMutator struct {
	db     *sql.DB
	logger *observability.Logger
	lists  *ListCache
	events *Dispatcher
	users  serviceinterfaces.UserServiceInterface
}

type decideFunc func(t models.Feedback) (workflow.Outcome, error)

// withinFunc writes extra rows in the same transaction (a comment, for example)
type withinFunc func(ctx context.Context, tx *sql.Tx, out *workflow.Outcome) error

func (m *ticketMutator) mutate(ctx context.Context, actor authz.Actor, id int, decide decideFunc, within withinFunc) (*workflow.Outcome, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			m.logger.Error(ctx, "Failed to rollback transaction", rbErr, map[string]interface{}{"feedback_id": id})
		}
	}()

	t, err := loadFeedback(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}

	out, err := decide(*t)
	if err != nil {
		m.reportDenied(ctx, actor, id, err)
		return nil, err
	}

	if err := applyOutcome(ctx, tx, &out); err != nil {
		return nil, err
	}
	if within != nil {
		if err := within(ctx, tx, &out); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, contextutils.WrapError(err, "failed to commit transaction")
	}

	m.afterCommit(ctx, actor, &out)
	return &out, nil
}

// reportDenied logs capability failures as security events
func (m *ticketMutator) reportDenied(ctx context.Context, actor authz.Actor, feedbackID int, err error) {
	if !contextutils.IsError(err, contextutils.ErrForbidden) {
		return
	}
	observability.RecordPermissionDenied(ctx, "feedback", string(actor.Role))
	m.logger.Security(ctx, "Permission denied on feedback", map[string]interface{}{
		"actor_id":    actor.ID,
		"actor_role":  string(actor.Role),
		"feedback_id": feedbackID,
		"reason":      err.Error(),
	})
}

func (m *ticketMutator) afterCommit(ctx context.Context, actor authz.Actor, out *workflow.Outcome) {
	if out.History != nil {
		observability.RecordTransition(ctx, string(out.Action), string(out.History.OldStatus), string(out.History.NewStatus))
		m.logger.Info(ctx, "Feedback transition", map[string]interface{}{
			"feedback_id": out.After.ID,
			"action":      string(out.Action),
			"from":        string(out.History.OldStatus),
			"to":          string(out.History.NewStatus),
			"actor_id":    actor.ID,
		})
	}
	if out.Changed() {
		m.lists.Invalidate(ctx)
	}
	if out.Event != "" {
		m.notify(ctx, actor, out.Event, out.Before, out.After, out.Internal, nil)
	}
}

// notify builds the event for a committed change and hands it to the dispatcher
func (m *ticketMutator) notify(ctx context.Context, actor authz.Actor, typ models.NotificationType, before, after models.Feedback, internal bool, extra []int) {
	if m.events == nil {
		return
	}
	event := models.TicketEvent{
		Type:       typ,
		Feedback:   after,
		ActorID:    actor.ID,
		ActorLabel: actorLabel(actor, &after),
		Internal:   internal,
		OccurredAt: time.Now().UTC(),
	}
	event.Recipients = eventRecipients(actor.ID, before, after, internal, extra)
	event.Message = eventMessage(typ, before, after, event.ActorLabel)
	m.events.Dispatch(ctx, event)
}

// actorLabel names the actor in messages without unmasking anonymous submitters
func actorLabel(actor authz.Actor, t *models.Feedback) string {
	if t.IsAnonymous && actor.ID == t.SubmitterID {
		return "the submitter"
	}
	if actor.Email == "" {
		return fmt.Sprintf("user %d", actor.ID)
	}
	return actor.Email
}

// eventRecipients is the submitter and assignees (old and new) plus extra, minus the actor.
// Internal events skip the submitter unless they are also an assignee.
func eventRecipients(actorID int, before, after models.Feedback, internal bool, extra []int) []int {
	seen := map[int]bool{actorID: true}
	var out []int
	add := func(id int) {
		if id == 0 || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	if !internal {
		add(after.SubmitterID)
	}
	if after.AssignedTo != nil {
		add(*after.AssignedTo)
	}
	if before.AssignedTo != nil {
		add(*before.AssignedTo)
	}
	for _, id := range extra {
		add(id)
	}
	return out
}

func eventMessage(typ models.NotificationType, before, after models.Feedback, actor string) string {
	ref := fmt.Sprintf("Feedback #%d %q", after.ID, after.Title)
	switch typ {
	case models.NotificationFeedbackCreated:
		return fmt.Sprintf("New feedback #%d %q in %s", after.ID, after.Title, after.CategoryName)
	case models.NotificationFeedbackStatusChanged:
		return fmt.Sprintf("%s moved from %s to %s by %s", ref, before.Status, after.Status, actor)
	case models.NotificationFeedbackAssigned:
		return fmt.Sprintf("%s was assigned by %s", ref, actor)
	case models.NotificationFeedbackComment:
		return fmt.Sprintf("New comment on %s by %s", strings.ToLower(ref[:1])+ref[1:], actor)
	case models.NotificationFeedbackRated:
		return fmt.Sprintf("%s was rated %d/5", ref, after.Rating.Int32)
	default:
		return ref + " was updated"
	}
}

// verifyAttachment checks that a referenced upload exists and belongs to the actor
func verifyAttachment(ctx context.Context, q queryer, actor authz.Actor, key string) error {
	if key == "" {
		return nil
	}
	var uploadedBy int
	err := q.QueryRowContext(ctx, `SELECT uploaded_by FROM attachments WHERE key = $1`, key).Scan(&uploadedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return contextutils.WrapErrorf(contextutils.ErrValidationFailed, "attachment %s not found", key)
	}
	if err != nil {
		return contextutils.WrapError(err, "failed to load attachment")
	}
	if uploadedBy != actor.ID {
		return contextutils.WrapErrorf(contextutils.ErrValidationFailed, "attachment %s was uploaded by another user", key)
	}
	return nil
}

// idsArray adapts ticket ids for = ANY($n)
func idsArray(ids []int) interface{} {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return pq.Array(out)
}
