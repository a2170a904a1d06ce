package services

import (
	"context"
	"database/sql"

	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	contextutils "collegefeedback/internal/utils"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

var _ serviceinterfaces.NotificationServiceInterface = (*NotificationService)(nil)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// NotificationService stores in-app notifications. It is also the observer
// that turns ticket events into inbox rows.
type NotificationService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewNotificationService creates a new NotificationService instance.
func NewNotificationService(db *sql.DB, logger *observability.Logger) *NotificationService {
	if db == nil {
		panic("NewNotificationService: db is nil")
	}
	if logger == nil {
		panic("NewNotificationService: logger is nil")
	}
	return &NotificationService{db: db, logger: logger}
}

// Name identifies the observer
func (s *NotificationService) Name() string { return "in_app" }

// Notify stores one notification per recipient in a single statement
func (s *NotificationService) Notify(ctx context.Context, event models.TicketEvent) (err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "store_notifications",
		observability.AttributeFeedbackID(event.Feedback.ID),
		attribute.String("event.type", string(event.Type)),
	)
	defer observability.FinishSpan(span, &err)

	if len(event.Recipients) == 0 {
		return nil
	}
	ids := make([]int64, len(event.Recipients))
	for i, id := range event.Recipients {
		ids[i] = int64(id)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, feedback_id, type, message, created_at)
         SELECT u, $2, $3, $4, $5 FROM UNNEST($1::int[]) AS u`,
		pq.Array(ids), event.Feedback.ID, string(event.Type), event.Message, event.OccurredAt)
	if err != nil {
		return contextutils.WrapError(err, "failed to store notifications")
	}
	return nil
}

// List returns a user's notifications, newest first
func (s *NotificationService) List(ctx context.Context, userID int, unreadOnly bool, limit int) (result0 []models.Notification, err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "list_notifications", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	query := `SELECT id, user_id, feedback_id, type, message, is_read, created_at FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND NOT is_read`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query notifications")
	}
	defer func() {
		_ = rows.Close()
	}()

	list := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		var feedbackID sql.NullInt64
		var typ string
		if err := rows.Scan(&n.ID, &n.UserID, &feedbackID, &typ, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "scan notification")
		}
		n.FeedbackID = models.IntFromNull(feedbackID)
		n.Type = models.NotificationType(typ)
		list = append(list, n)
	}
	return list, rows.Err()
}

// UnreadCount returns how many notifications the user has not read
func (s *NotificationService) UnreadCount(ctx context.Context, userID int) (result0 int, err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "unread_notification_count", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&n); err != nil {
		return 0, contextutils.WrapError(err, "failed to count notifications")
	}
	return n, nil
}

// MarkRead marks the given notifications read. Ids owned by other users are ignored.
func (s *NotificationService) MarkRead(ctx context.Context, userID int, ids []int) (result0 int, err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "mark_notifications_read", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	if len(ids) == 0 {
		return 0, nil
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND id = ANY($2) AND NOT is_read`,
		userID, idsArray(ids))
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to mark notifications read")
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// MarkAllRead clears the user's unread inbox
func (s *NotificationService) MarkAllRead(ctx context.Context, userID int) (result0 int, err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "mark_all_notifications_read", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	result, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to mark notifications read")
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
