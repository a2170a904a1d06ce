package services

import (
	"context"
	"database/sql"
	"strings"

	"collegefeedback/internal/authz"
	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	"collegefeedback/internal/workflow"
	contextutils "collegefeedback/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

var _ serviceinterfaces.CommentServiceInterface = (*CommentService)(nil)

// MaxCommentLength bounds comment bodies
const MaxCommentLength = 5000

// CommentService manages ticket comment threads
type CommentService struct {
	ticketMutator
	machine *workflow.Machine
}

// NewCommentService creates a new CommentService instance.
func NewCommentService(db *sql.DB, logger *observability.Logger, users serviceinterfaces.UserServiceInterface,
	machine *workflow.Machine, lists *ListCache, events *Dispatcher,
) *CommentService {
	if db == nil {
		panic("NewCommentService: db is nil")
	}
	if logger == nil {
		panic("NewCommentService: logger is nil")
	}
	if machine == nil {
		machine = workflow.NewMachine(nil)
	}
	return &CommentService{
		ticketMutator: ticketMutator{db: db, logger: logger, lists: lists, events: events, users: users},
		machine:       machine,
	}
}

func insertComment(ctx context.Context, tx queryer, c *models.Comment) (*models.Comment, error) {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO comments (feedback_id, author_id, body, is_internal, attachment_key, created_at)
         VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		c.FeedbackID, c.AuthorID, c.Body, c.IsInternal, c.AttachmentKey, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to insert comment on feedback %d", c.FeedbackID)
	}
	return c, nil
}

// Add posts a comment. Commenting on a pending ticket moves it to in_progress.
func (s *CommentService) Add(ctx context.Context, actor authz.Actor, feedbackID int, body string, internal bool, attachmentKey string) (result0 *models.Comment, err error) {
	ctx, span := observability.TraceCommentFunction(ctx, "add_comment",
		observability.AttributeFeedbackID(feedbackID),
		observability.AttributeUserID(actor.ID),
		attribute.Bool("comment.internal", internal),
	)
	defer observability.FinishSpan(span, &err)

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "comment body is required")
	}
	if len(body) > MaxCommentLength {
		return nil, contextutils.WrapErrorf(contextutils.ErrValidationFailed, "comment exceeds %d characters", MaxCommentLength)
	}
	attachmentKey = strings.TrimSpace(attachmentKey)

	var created *models.Comment
	_, err = s.mutate(ctx, actor, feedbackID, func(t models.Feedback) (workflow.Outcome, error) {
		return s.machine.Comment(actor, t, internal)
	}, func(ctx context.Context, tx *sql.Tx, out *workflow.Outcome) error {
		if err := verifyAttachment(ctx, tx, actor, attachmentKey); err != nil {
			return err
		}
		c, err := insertComment(ctx, tx, &models.Comment{
			FeedbackID:    feedbackID,
			AuthorID:      actor.ID,
			Body:          body,
			IsInternal:    internal,
			AttachmentKey: models.NullString(attachmentKey),
			CreatedAt:     s.machine.Now(),
		})
		created = c
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Comment added", map[string]interface{}{
		"feedback_id": feedbackID,
		"comment_id":  created.ID,
		"internal":    internal,
	})
	return created, nil
}

// List returns the thread oldest first. Internal comments are dropped for
// actors without the comment_internal capability.
func (s *CommentService) List(ctx context.Context, actor authz.Actor, feedbackID int) (result0 []models.Comment, err error) {
	ctx, span := observability.TraceCommentFunction(ctx, "list_comments", observability.AttributeFeedbackID(feedbackID))
	defer observability.FinishSpan(span, &err)

	t, err := loadFeedback(ctx, s.db, feedbackID, false)
	if err != nil {
		return nil, err
	}
	caps := authz.Resolve(actor, t)
	if !caps.Has(authz.CapView) {
		err = authz.Denied(actor, t, authz.CapView)
		s.reportDenied(ctx, actor, feedbackID, err)
		return nil, err
	}

	query := `SELECT id, feedback_id, author_id, body, is_internal, attachment_key, created_at FROM comments WHERE feedback_id = $1`
	if !caps.Has(authz.CapCommentInternal) {
		query += ` AND NOT is_internal`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, feedbackID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query comments")
	}
	defer func() {
		_ = rows.Close()
	}()

	list := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.FeedbackID, &c.AuthorID, &c.Body, &c.IsInternal, &c.AttachmentKey, &c.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "scan comment")
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
