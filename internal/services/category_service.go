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
	contextutils "collegefeedback/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

var _ serviceinterfaces.CategoryServiceInterface = (*CategoryService)(nil)

// CategoryService manages feedback categories
type CategoryService struct {
	db     *sql.DB
	logger *observability.Logger
}

const categorySelectFields = `id, name, description, icon, active, created_at, updated_at`

// maxCategoryNameLength matches the column width
const maxCategoryNameLength = 100

// NewCategoryService creates a new CategoryService instance.
func NewCategoryService(db *sql.DB, logger *observability.Logger) *CategoryService {
	if db == nil {
		panic("NewCategoryService: db is nil")
	}
	if logger == nil {
		panic("NewCategoryService: logger is nil")
	}
	return &CategoryService{db: db, logger: logger}
}

func scanCategory(row rowScanner) (*models.Category, error) {
	var c models.Category
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Icon, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns categories ordered by name
func (s *CategoryService) List(ctx context.Context, includeInactive bool) (result0 []models.Category, err error) {
	ctx, span := observability.TraceCategoryFunction(ctx, "list_categories", attribute.Bool("include_inactive", includeInactive))
	defer observability.FinishSpan(span, &err)

	query := fmt.Sprintf("SELECT %s FROM categories", categorySelectFields)
	if !includeInactive {
		query += " WHERE active"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query categories")
	}
	defer func() {
		_ = rows.Close()
	}()

	list := []models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "scan category")
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// GetByID fetches a single category
func (s *CategoryService) GetByID(ctx context.Context, id int) (result0 *models.Category, err error) {
	ctx, span := observability.TraceCategoryFunction(ctx, "get_category", attribute.Int("category.id", id))
	defer observability.FinishSpan(span, &err)

	c, err := scanCategory(s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM categories WHERE id = $1", categorySelectFields), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "category %d not found", id)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load category")
	}
	return c, nil
}

func requireCategoryManager(ctx context.Context, logger *observability.Logger, actor authz.Actor, action string) error {
	if authz.CanManageUsers(actor) {
		return nil
	}
	observability.RecordPermissionDenied(ctx, action, string(actor.Role))
	logger.Security(ctx, "Category change denied", map[string]interface{}{"actor_id": actor.ID, "action": action})
	return contextutils.WrapErrorf(contextutils.ErrForbidden, "user %d may not manage categories", actor.ID)
}

func validateCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", contextutils.WrapError(contextutils.ErrMissingRequired, "category name is required")
	}
	if len(name) > maxCategoryNameLength {
		return "", contextutils.WrapErrorf(contextutils.ErrValidationFailed, "category name exceeds %d characters", maxCategoryNameLength)
	}
	return name, nil
}

// Create adds a new active category
func (s *CategoryService) Create(ctx context.Context, actor authz.Actor, name, description, icon string) (result0 *models.Category, err error) {
	ctx, span := observability.TraceCategoryFunction(ctx, "create_category", attribute.String("category.name", name))
	defer observability.FinishSpan(span, &err)

	if err := requireCategoryManager(ctx, s.logger, actor, "create_category"); err != nil {
		return nil, err
	}
	if name, err = validateCategoryName(name); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var id int
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO categories (name, description, icon, active, created_at, updated_at) VALUES ($1, $2, $3, TRUE, $4, $4) RETURNING id`,
		name, models.NullString(strings.TrimSpace(description)), models.NullString(strings.TrimSpace(icon)), now).Scan(&id)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, contextutils.WrapErrorf(contextutils.ErrRecordExists, "category %q already exists", name)
		}
		return nil, contextutils.WrapError(err, "failed to insert category")
	}

	s.logger.Info(ctx, "Category created", map[string]interface{}{"category_id": id, "name": name})
	return s.GetByID(ctx, id)
}

// Update changes the provided fields. Renaming keeps existing tickets attached by id.
func (s *CategoryService) Update(ctx context.Context, actor authz.Actor, id int, name, description, icon *string) (result0 *models.Category, err error) {
	ctx, span := observability.TraceCategoryFunction(ctx, "update_category", attribute.Int("category.id", id))
	defer observability.FinishSpan(span, &err)

	if err := requireCategoryManager(ctx, s.logger, actor, "update_category"); err != nil {
		return nil, err
	}

	var sets []string
	var args []interface{}
	idx := 1
	if name != nil {
		n, err := validateCategoryName(*name)
		if err != nil {
			return nil, err
		}
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, n)
		idx++
	}
	if description != nil {
		sets = append(sets, fmt.Sprintf("description = $%d", idx))
		args = append(args, models.NullString(strings.TrimSpace(*description)))
		idx++
	}
	if icon != nil {
		sets = append(sets, fmt.Sprintf("icon = $%d", idx))
		args = append(args, models.NullString(strings.TrimSpace(*icon)))
		idx++
	}
	if len(sets) == 0 {
		return s.GetByID(ctx, id)
	}
	sets = append(sets, fmt.Sprintf("updated_at = $%d", idx))
	args = append(args, time.Now().UTC(), id)

	query := fmt.Sprintf("UPDATE categories SET %s WHERE id = $%d", strings.Join(sets, ", "), idx+1)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, contextutils.WrapError(contextutils.ErrRecordExists, "a category with that name already exists")
		}
		return nil, contextutils.WrapError(err, "failed to update category")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "category %d not found", id)
	}
	return s.GetByID(ctx, id)
}

// SetActive activates or deactivates a category. Inactive categories reject new tickets only.
func (s *CategoryService) SetActive(ctx context.Context, actor authz.Actor, id int, active bool) (result0 *models.Category, err error) {
	ctx, span := observability.TraceCategoryFunction(ctx, "set_category_active", attribute.Int("category.id", id), attribute.Bool("category.active", active))
	defer observability.FinishSpan(span, &err)

	if err := requireCategoryManager(ctx, s.logger, actor, "set_category_active"); err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE categories SET active = $1, updated_at = $2 WHERE id = $3`, active, time.Now().UTC(), id)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to update category")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "category %d not found", id)
	}

	s.logger.Info(ctx, "Category activation changed", map[string]interface{}{"category_id": id, "active": active, "actor_id": actor.ID})
	return s.GetByID(ctx, id)
}

// SeedDefaults inserts the default categories that do not exist yet and returns how many were added
func (s *CategoryService) SeedDefaults(ctx context.Context) (result0 int, err error) {
	ctx, span := observability.TraceCategoryFunction(ctx, "seed_default_categories")
	defer observability.FinishSpan(span, &err)

	added := 0
	for _, c := range models.DefaultCategories {
		result, err := s.db.ExecContext(ctx,
			`INSERT INTO categories (name, description, icon, active) VALUES ($1, $2, $3, TRUE) ON CONFLICT DO NOTHING`,
			c.Name, c.Description, c.Icon)
		if err != nil {
			return added, contextutils.WrapErrorf(err, "failed to seed category %s", c.Name)
		}
		if n, err := result.RowsAffected(); err == nil {
			added += int(n)
		}
	}
	span.SetAttributes(attribute.Int("categories.added", added))
	return added, nil
}
