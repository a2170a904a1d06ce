package services

import (
	"context"
	"database/sql"

	"collegefeedback/internal/authz"
	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	contextutils "collegefeedback/internal/utils"
)

var _ serviceinterfaces.HistoryServiceInterface = (*HistoryService)(nil)

// HistoryService reads the append-only change ledger
type HistoryService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewHistoryService creates a new HistoryService instance.
func NewHistoryService(db *sql.DB, logger *observability.Logger) *HistoryService {
	if db == nil {
		panic("NewHistoryService: db is nil")
	}
	if logger == nil {
		panic("NewHistoryService: logger is nil")
	}
	return &HistoryService{db: db, logger: logger}
}

// List returns a ticket's history oldest first
func (s *HistoryService) List(ctx context.Context, actor authz.Actor, feedbackID int) (result0 []models.HistoryEntry, err error) {
	ctx, span := observability.TraceHistoryFunction(ctx, "list_history", observability.AttributeFeedbackID(feedbackID))
	defer observability.FinishSpan(span, &err)

	t, err := loadFeedback(ctx, s.db, feedbackID, false)
	if err != nil {
		return nil, err
	}
	if err := authz.Require(actor, t, authz.CapView); err != nil {
		s.logger.Security(ctx, "History access denied", map[string]interface{}{"actor_id": actor.ID, "feedback_id": feedbackID})
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, feedback_id, changed_by, old_status, new_status, old_assigned_to, new_assigned_to, notes, created_at
         FROM feedback_history WHERE feedback_id = $1 ORDER BY created_at, id`, feedbackID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query history")
	}
	defer func() {
		_ = rows.Close()
	}()

	list := []models.HistoryEntry{}
	for rows.Next() {
		var h models.HistoryEntry
		var oldStatus sql.NullString
		var newStatus string
		var oldAssigned, newAssigned sql.NullInt64
		if err := rows.Scan(&h.ID, &h.FeedbackID, &h.ChangedBy, &oldStatus, &newStatus, &oldAssigned, &newAssigned, &h.Notes, &h.Timestamp); err != nil {
			return nil, contextutils.WrapError(err, "scan history entry")
		}
		h.OldStatus = models.FeedbackStatus(oldStatus.String)
		h.NewStatus = models.FeedbackStatus(newStatus)
		h.OldAssignedTo = models.IntFromNull(oldAssigned)
		h.NewAssignedTo = models.IntFromNull(newAssigned)
		list = append(list, h)
	}
	return list, rows.Err()
}
