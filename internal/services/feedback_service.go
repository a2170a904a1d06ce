package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"collegefeedback/internal/authz"
	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	"collegefeedback/internal/workflow"
	contextutils "collegefeedback/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

var _ serviceinterfaces.FeedbackServiceInterface = (*FeedbackService)(nil)

const (
	// DefaultPageSize is used when a listing asks for no explicit size
	DefaultPageSize = 20
	// MaxPageSize bounds listing pages
	MaxPageSize = 100

	dashboardRecentLimit = 5
	dashboardUrgentLimit = 10
)

// FeedbackService is the ticket store and lifecycle entry point
type FeedbackService struct {
	ticketMutator
	machine *workflow.Machine
}

// NewFeedbackService creates a new FeedbackService instance.
func NewFeedbackService(db *sql.DB, logger *observability.Logger, users serviceinterfaces.UserServiceInterface,
	machine *workflow.Machine, lists *ListCache, events *Dispatcher,
) *FeedbackService {
	if db == nil {
		panic("NewFeedbackService: db is nil")
	}
	if logger == nil {
		panic("NewFeedbackService: logger is nil")
	}
	if users == nil {
		panic("NewFeedbackService: users is nil")
	}
	if machine == nil {
		machine = workflow.NewMachine(nil)
	}
	return &FeedbackService{
		ticketMutator: ticketMutator{db: db, logger: logger, lists: lists, events: events, users: users},
		machine:       machine,
	}
}

// view presents a ticket to one actor, masking anonymous submitters
func (s *FeedbackService) view(actor authz.Actor, t models.Feedback) *serviceinterfaces.FeedbackView {
	v := &serviceinterfaces.FeedbackView{
		Feedback:     t,
		Capabilities: authz.Resolve(actor, &t),
		DaysOpen:     t.DaysOpen(s.machine.Now()),
	}
	if !authz.CanSeeSubmitter(actor, &t) {
		v.SubmitterID = 0
		v.SubmitterHidden = true
	}
	return v
}

// Create files a new ticket in an active category
func (s *FeedbackService) Create(ctx context.Context, actor authz.Actor, req serviceinterfaces.CreateFeedbackRequest) (result0 *serviceinterfaces.FeedbackView, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "create_feedback",
		observability.AttributeUserID(actor.ID),
		attribute.Int("category.id", req.CategoryID),
	)
	defer observability.FinishSpan(span, &err)

	if !actor.Role.Valid() {
		return nil, contextutils.WrapErrorf(contextutils.ErrForbidden, "user %d may not submit feedback", actor.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error(ctx, "Failed to rollback transaction", rbErr)
		}
	}()

	category, err := scanCategory(tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM categories WHERE id = $1 FOR SHARE", categorySelectFields), req.CategoryID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.WrapErrorf(contextutils.ErrValidationFailed, "category %d does not exist", req.CategoryID)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load category")
	}

	if err := verifyAttachment(ctx, tx, actor, strings.TrimSpace(req.AttachmentKey)); err != nil {
		return nil, err
	}

	assignee, err := autoAssignee(ctx, tx, category.Name)
	if err != nil {
		return nil, err
	}

	t, err := s.machine.Create(actor, category, workflow.CreateInput{
		Title:         req.Title,
		Description:   req.Description,
		Priority:      req.Priority,
		IsAnonymous:   req.IsAnonymous,
		AttachmentKey: strings.TrimSpace(req.AttachmentKey),
	}, assignee)
	if err != nil {
		return nil, err
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO feedback (title, description, category_id, submitter_id, assigned_to, status, priority, is_anonymous, attachment_key, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		t.Title, t.Description, t.CategoryID, t.SubmitterID, models.NullInt(t.AssignedTo), string(t.Status), string(t.Priority),
		t.IsAnonymous, t.AttachmentKey, t.CreatedAt, t.UpdatedAt).Scan(&t.ID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to insert feedback")
	}

	if err := tx.Commit(); err != nil {
		return nil, contextutils.WrapError(err, "failed to commit feedback")
	}
	span.SetAttributes(observability.AttributeFeedbackID(t.ID))

	s.logger.Info(ctx, "Feedback created", map[string]interface{}{
		"feedback_id": t.ID,
		"category":    t.CategoryName,
		"priority":    string(t.Priority),
		"anonymous":   t.IsAnonymous,
		"assigned_to": t.AssignedTo,
	})
	s.lists.Invalidate(ctx)
	s.notify(ctx, actor, models.NotificationFeedbackCreated, t, t, false, s.categoryAdminIDs(ctx, t.CategoryName))

	return s.view(actor, t), nil
}

// autoAssignee picks the longest-standing active admin scoped to the category
func autoAssignee(ctx context.Context, q queryer, categoryName string) (*int, error) {
	var id int
	err := q.QueryRowContext(ctx,
		`SELECT id FROM users WHERE role = $1 AND is_active AND category_scope = $2 ORDER BY id LIMIT 1`,
		string(models.RoleCategoryAdmin), string(models.NewCategoryScope(categoryName))).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to find category admin")
	}
	return &id, nil
}

func (s *FeedbackService) categoryAdminIDs(ctx context.Context, categoryName string) []int {
	admins, err := s.users.ListCategoryAdmins(ctx, categoryName)
	if err != nil {
		s.logger.Warn(ctx, "Failed to load category admins for notification", map[string]interface{}{
			"category": categoryName,
			"error":    err.Error(),
		})
		return nil
	}
	ids := make([]int, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.ID)
	}
	return ids
}

// Get returns one ticket the actor may view
func (s *FeedbackService) Get(ctx context.Context, actor authz.Actor, id int) (result0 *serviceinterfaces.FeedbackView, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "get_feedback", observability.AttributeFeedbackID(id))
	defer observability.FinishSpan(span, &err)

	t, err := loadFeedback(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	if err := authz.Require(actor, t, authz.CapView); err != nil {
		s.reportDenied(ctx, actor, id, err)
		return nil, err
	}
	return s.view(actor, *t), nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// List returns one page of the tickets visible to the actor, newest first
func (s *FeedbackService) List(ctx context.Context, actor authz.Actor, filter models.FeedbackFilter, page, pageSize int) (result0 []serviceinterfaces.FeedbackView, result1 int, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "list_feedback",
		observability.AttributeUserID(actor.ID),
		observability.AttributeActorRole(string(actor.Role)),
	)
	defer observability.FinishSpan(span, &err)

	page, pageSize = normalizePage(page, pageSize)
	scope := authz.ScopeFor(actor)
	if scope.None {
		return []serviceinterfaces.FeedbackView{}, 0, nil
	}

	if ids, total, ok := s.lists.Get(ctx, actor, filter, page, pageSize); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		list, err := s.loadByIDs(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		return s.views(actor, scope, list), total, nil
	}

	where, args, idx := filterWhere(scope, filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM feedback f JOIN categories c ON c.id = f.category_id" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, contextutils.WrapError(err, "failed to count feedback")
	}

	query := feedbackSelect + where + fmt.Sprintf(" ORDER BY f.created_at DESC, f.id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, pageSize, (page-1)*pageSize)
	list, err := queryFeedbackList(ctx, s.db, query, args...)
	if err != nil {
		return nil, 0, err
	}

	ids := make([]int, len(list))
	for i := range list {
		ids[i] = list[i].ID
	}
	s.lists.Put(ctx, actor, filter, page, pageSize, ids, total)

	return s.views(actor, scope, list), total, nil
}

// loadByIDs reads tickets and returns them in the order of ids
func (s *FeedbackService) loadByIDs(ctx context.Context, ids []int) ([]models.Feedback, error) {
	if len(ids) == 0 {
		return []models.Feedback{}, nil
	}
	list, err := queryFeedbackList(ctx, s.db, feedbackSelect+" WHERE f.id = ANY($1)", idsArray(ids))
	if err != nil {
		return nil, err
	}
	byID := make(map[int]models.Feedback, len(list))
	for _, t := range list {
		byID[t.ID] = t
	}
	ordered := make([]models.Feedback, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			ordered = append(ordered, t)
		}
	}
	return ordered, nil
}

// views drops anything the scope does not admit; cached pages can lag a reassignment
func (s *FeedbackService) views(actor authz.Actor, scope authz.ListScope, list []models.Feedback) []serviceinterfaces.FeedbackView {
	out := make([]serviceinterfaces.FeedbackView, 0, len(list))
	for i := range list {
		if !scope.Admits(&list[i]) {
			continue
		}
		out = append(out, *s.view(actor, list[i]))
	}
	return out
}

// Dashboard summarizes the tickets visible to the actor
func (s *FeedbackService) Dashboard(ctx context.Context, actor authz.Actor) (result0 *models.DashboardStats, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "feedback_dashboard", observability.AttributeUserID(actor.ID))
	defer observability.FinishSpan(span, &err)

	stats := &models.DashboardStats{
		ByStatus:   map[models.FeedbackStatus]int{},
		ByPriority: map[models.FeedbackPriority]int{},
		ByCategory: map[string]int{},
		Recent:     []models.Feedback{},
		UrgentOpen: []models.Feedback{},
	}
	scope := authz.ScopeFor(actor)
	if scope.None {
		return stats, nil
	}
	where, args, idx := filterWhere(scope, models.FeedbackFilter{})

	rows, err := s.db.QueryContext(ctx,
		"SELECT f.status, f.priority, c.name, COUNT(*) FROM feedback f JOIN categories c ON c.id = f.category_id"+where+
			" GROUP BY f.status, f.priority, c.name", args...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to aggregate feedback")
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var status, priority, category string
		var n int
		if err := rows.Scan(&status, &priority, &category, &n); err != nil {
			return nil, contextutils.WrapError(err, "scan dashboard row")
		}
		stats.Total += n
		stats.ByStatus[models.FeedbackStatus(status)] += n
		stats.ByPriority[models.FeedbackPriority(priority)] += n
		stats.ByCategory[category] += n
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "iterate dashboard rows")
	}

	recent, err := queryFeedbackList(ctx, s.db,
		feedbackSelect+where+fmt.Sprintf(" ORDER BY f.created_at DESC, f.id DESC LIMIT $%d", idx),
		append(append([]interface{}{}, args...), dashboardRecentLimit)...)
	if err != nil {
		return nil, err
	}

	urgentWhere := " WHERE"
	if where != "" {
		urgentWhere = where + " AND"
	}
	urgent, err := queryFeedbackList(ctx, s.db,
		feedbackSelect+urgentWhere+fmt.Sprintf(" f.priority = $%d AND f.status IN ($%d, $%d) ORDER BY f.created_at LIMIT $%d", idx, idx+1, idx+2, idx+3),
		append(append([]interface{}{}, args...), string(models.PriorityUrgent), string(models.StatusPending), string(models.StatusInProgress), dashboardUrgentLimit)...)
	if err != nil {
		return nil, err
	}

	stats.Recent = s.masked(actor, recent)
	stats.UrgentOpen = s.masked(actor, urgent)
	return stats, nil
}

func (s *FeedbackService) masked(actor authz.Actor, list []models.Feedback) []models.Feedback {
	for i := range list {
		if !authz.CanSeeSubmitter(actor, &list[i]) {
			list[i].SubmitterID = 0
		}
	}
	return list
}

// Resolve marks a ticket resolved
func (s *FeedbackService) Resolve(ctx context.Context, actor authz.Actor, id int, notes string) (result0 *serviceinterfaces.FeedbackView, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "resolve_feedback", observability.AttributeFeedbackID(id), observability.AttributeAction(string(workflow.ActionResolve)))
	defer observability.FinishSpan(span, &err)

	out, err := s.mutate(ctx, actor, id, func(t models.Feedback) (workflow.Outcome, error) {
		return s.machine.Resolve(actor, t, notes)
	}, nil)
	if err != nil {
		return nil, err
	}
	return s.view(actor, out.After), nil
}

// Reopen returns a resolved, closed or rejected ticket to in_progress
func (s *FeedbackService) Reopen(ctx context.Context, actor authz.Actor, id int, notes string) (result0 *serviceinterfaces.FeedbackView, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "reopen_feedback", observability.AttributeFeedbackID(id), observability.AttributeAction(string(workflow.ActionReopen)))
	defer observability.FinishSpan(span, &err)

	out, err := s.mutate(ctx, actor, id, func(t models.Feedback) (workflow.Outcome, error) {
		return s.machine.Reopen(actor, t, notes)
	}, nil)
	if err != nil {
		return nil, err
	}
	return s.view(actor, out.After), nil
}

// lookupAssignee loads a prospective assignee; unknown users are a validation failure
func (s *FeedbackService) lookupAssignee(ctx context.Context, id int) (*models.User, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrRecordNotFound) {
			return nil, contextutils.WrapErrorf(contextutils.ErrValidationFailed, "assignee %d does not exist", id)
		}
		return nil, err
	}
	return u, nil
}

// Update applies an admin change of status, assignee and priority
func (s *FeedbackService) Update(ctx context.Context, actor authz.Actor, id int, req serviceinterfaces.UpdateFeedbackRequest) (result0 *serviceinterfaces.FeedbackView, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "update_feedback", observability.AttributeFeedbackID(id), observability.AttributeAction(string(workflow.ActionChangeStatus)))
	defer observability.FinishSpan(span, &err)

	change := workflow.ChangeRequest{Status: req.Status, Priority: req.Priority, Notes: req.Notes}
	if req.AssigneeSet {
		change.Assignee.Set = true
		if req.AssigneeID != nil {
			u, err := s.lookupAssignee(ctx, *req.AssigneeID)
			if err != nil {
				return nil, err
			}
			change.Assignee.User = u
		}
	}

	out, err := s.mutate(ctx, actor, id, func(t models.Feedback) (workflow.Outcome, error) {
		return s.machine.ChangeStatus(actor, t, change)
	}, nil)
	if err != nil {
		return nil, err
	}
	return s.view(actor, out.After), nil
}

// Assign hands a ticket to an admin
func (s *FeedbackService) Assign(ctx context.Context, actor authz.Actor, id, assigneeID int, notes string) (result0 *serviceinterfaces.FeedbackView, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "assign_feedback", observability.AttributeFeedbackID(id), attribute.Int("assignee.id", assigneeID))
	defer observability.FinishSpan(span, &err)

	assignee, err := s.lookupAssignee(ctx, assigneeID)
	if err != nil {
		return nil, err
	}
	out, err := s.mutate(ctx, actor, id, func(t models.Feedback) (workflow.Outcome, error) {
		return s.machine.Assign(actor, t, assignee, notes)
	}, nil)
	if err != nil {
		return nil, err
	}
	return s.view(actor, out.After), nil
}

// Rate records the submitter's rating. A non-empty comment is posted to the
// thread in the same transaction.
func (s *FeedbackService) Rate(ctx context.Context, actor authz.Actor, id, rating int, comment string) (result0 *serviceinterfaces.FeedbackView, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "rate_feedback", observability.AttributeFeedbackID(id), attribute.Int("rating", rating))
	defer observability.FinishSpan(span, &err)

	comment = strings.TrimSpace(comment)
	var within withinFunc
	if comment != "" {
		within = func(ctx context.Context, tx *sql.Tx, out *workflow.Outcome) error {
			_, err := insertComment(ctx, tx, &models.Comment{
				FeedbackID: id,
				AuthorID:   actor.ID,
				Body:       comment,
				CreatedAt:  s.machine.Now(),
			})
			return err
		}
	}

	out, err := s.mutate(ctx, actor, id, func(t models.Feedback) (workflow.Outcome, error) {
		return s.machine.Rate(actor, t, rating)
	}, within)
	if err != nil {
		return nil, err
	}
	return s.view(actor, out.After), nil
}
