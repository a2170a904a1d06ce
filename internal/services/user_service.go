package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"collegefeedback/internal/authz"
	"collegefeedback/internal/config"
	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	contextutils "collegefeedback/internal/utils"

	"github.com/lib/pq"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

// UserServiceInterface is kept as an alias so handlers can depend on services.UserServiceInterface
type UserServiceInterface = serviceinterfaces.UserServiceInterface

var _ UserServiceInterface = (*UserService)(nil)

// UserService provides methods for user management.
type UserService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
}

// Shared query constants to eliminate duplication
const (
	userSelectFields = `id, email, first_name, last_name, password_hash, role, COALESCE(category_scope, ''), student_id, department, is_active, last_login_at, created_at, updated_at`
)

// NewUserServiceWithLogger creates a new UserService instance with logger
func NewUserServiceWithLogger(db *sql.DB, cfg *config.Config, logger *observability.Logger) *UserService {
	if db == nil {
		panic("NewUserServiceWithLogger: db is nil")
	}
	if logger == nil {
		panic("NewUserServiceWithLogger: logger is nil")
	}
	return &UserService{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var role, scope string
	err := row.Scan(
		&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.PasswordHash, &role, &scope,
		&user.StudentID, &user.Department, &user.IsActive, &user.LastLoginAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = models.Role(role)
	user.CategoryScope = models.CategoryScope(scope)
	return user, nil
}

// getUserByQuery is a shared method for getting a user by any query
func (s *UserService) getUserByQuery(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrRecordNotFound
		}
		return nil, contextutils.WrapError(err, "failed to load user")
	}
	return user, nil
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to hash password")
	}
	return string(hashed), nil
}

// CreateUser creates an account with any role. Callers gate who may do this.
func (s *UserService) CreateUser(ctx context.Context, nu serviceinterfaces.NewUser) (result0 *models.User, err error) {
	email := contextutils.NormalizeEmail(nu.Email)
	ctx, span := observability.TraceUserFunction(ctx, "create_user",
		attribute.String("user.email", email),
		attribute.String("user.role", string(nu.Role)),
	)
	defer observability.FinishSpan(span, &err)

	if !contextutils.IsValidEmail(email) {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidFormat, "invalid email address %q", nu.Email)
	}
	if err := contextutils.ValidatePasswordStrength(nu.Password); err != nil {
		return nil, err
	}
	role := nu.Role
	if role == "" {
		role = models.RoleStudent
	}
	scope := models.NewCategoryScope(string(nu.Scope))
	if err := models.ValidateRoleScope(role, scope); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrValidationFailed, err.Error())
	}

	hashed, err := hashPassword(nu.Password)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO users (email, first_name, last_name, password_hash, role, category_scope, student_id, department, is_active, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $9) RETURNING id`
	now := time.Now().UTC()
	var id int
	err = s.db.QueryRowContext(ctx, query, email, strings.TrimSpace(nu.FirstName), strings.TrimSpace(nu.LastName), hashed,
		string(role), models.NullString(string(scope)), models.NullString(nu.StudentID), models.NullString(nu.Department), now).Scan(&id)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, contextutils.WrapErrorf(contextutils.ErrRecordExists, "a user with email %s already exists", email)
		}
		return nil, contextutils.WrapError(err, "failed to insert user")
	}

	s.logger.Info(ctx, "User created", map[string]interface{}{
		"user_id": id,
		"role":    string(role),
	})
	return s.GetUserByID(ctx, id)
}

// Register self-registers a student account
func (s *UserService) Register(ctx context.Context, nu serviceinterfaces.NewUser) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "register")
	defer observability.FinishSpan(span, &err)

	if s.cfg != nil && s.cfg.IsSignupDisabled() {
		return nil, contextutils.WrapError(contextutils.ErrForbidden, "self-registration is disabled")
	}
	if s.cfg != nil && !s.cfg.IsEmailHostAllowed(nu.Email) {
		return nil, contextutils.WrapError(contextutils.ErrValidationFailed, "email domain is not allowed to register")
	}
	nu.Role = models.RoleStudent
	nu.Scope = ""
	return s.CreateUser(ctx, nu)
}

// AuthenticateUser verifies credentials. Every failure looks the same to the caller.
func (s *UserService) AuthenticateUser(ctx context.Context, email, password string) (result0 *models.User, err error) {
	email = contextutils.NormalizeEmail(email)
	ctx, span := observability.TraceUserFunction(ctx, "authenticate_user", attribute.String("user.email", email))
	defer observability.FinishSpan(span, &err)

	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrRecordNotFound) {
			return nil, contextutils.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.PasswordHash.Valid {
		return nil, contextutils.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(password)); err != nil {
		return nil, contextutils.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, contextutils.WrapError(contextutils.ErrUnauthorized, "account is deactivated")
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = $1 WHERE id = $2`, time.Now().UTC(), user.ID); err != nil {
		s.logger.Warn(ctx, "Failed to record last login", map[string]interface{}{"user_id": user.ID, "error": err.Error()})
	}
	return user, nil
}

// GetUserByID retrieves a user by their ID
func (s *UserService) GetUserByID(ctx context.Context, id int) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_id", attribute.Int("user.id", id))
	defer observability.FinishSpan(span, &err)
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1", userSelectFields)
	user, err := s.getUserByQuery(ctx, query, id)
	if contextutils.IsError(err, contextutils.ErrRecordNotFound) {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d not found", id)
	}
	return user, err
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (result0 *models.User, err error) {
	email = contextutils.NormalizeEmail(email)
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_email", attribute.String("user.email", email))
	defer observability.FinishSpan(span, &err)
	query := fmt.Sprintf("SELECT %s FROM users WHERE email = $1", userSelectFields)
	return s.getUserByQuery(ctx, query, email)
}

// ChangePassword replaces a password after verifying the current one
func (s *UserService) ChangePassword(ctx context.Context, userID int, current, next string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "change_password", attribute.Int("user.id", userID))
	defer observability.FinishSpan(span, &err)

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.PasswordHash.Valid || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(current)) != nil {
		return contextutils.WrapError(contextutils.ErrInvalidCredentials, "current password is incorrect")
	}
	if current == next {
		return contextutils.WrapError(contextutils.ErrValidationFailed, "new password must differ from the current one")
	}
	return s.SetPassword(ctx, userID, next)
}

// SetPassword sets a new password without checking the old one (administrative reset)
func (s *UserService) SetPassword(ctx context.Context, userID int, password string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "set_password", attribute.Int("user.id", userID))
	defer observability.FinishSpan(span, &err)

	if err := contextutils.ValidatePasswordStrength(password); err != nil {
		return err
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`, hashed, time.Now().UTC(), userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to update user password")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d not found", userID)
	}

	s.logger.Info(ctx, "Password updated successfully", map[string]interface{}{"user_id": userID})
	return nil
}

// SetRole changes a user's role and category scope. Only super admins may do this.
func (s *UserService) SetRole(ctx context.Context, actor authz.Actor, userID int, role models.Role, scope models.CategoryScope) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "set_role",
		attribute.Int("user.id", userID),
		attribute.String("user.role", string(role)),
		observability.AttributeActorRole(string(actor.Role)),
	)
	defer observability.FinishSpan(span, &err)

	if !authz.CanManageUsers(actor) {
		observability.RecordPermissionDenied(ctx, "set_role", string(actor.Role))
		s.logger.Security(ctx, "Role change denied", map[string]interface{}{"actor_id": actor.ID, "target_user_id": userID})
		return nil, contextutils.WrapErrorf(contextutils.ErrForbidden, "user %d may not change roles", actor.ID)
	}
	scope = models.NewCategoryScope(string(scope))
	if err := models.ValidateRoleScope(role, scope); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrValidationFailed, err.Error())
	}

	result, err := s.db.ExecContext(ctx, `UPDATE users SET role = $1, category_scope = $2, updated_at = $3 WHERE id = $4`,
		string(role), models.NullString(string(scope)), time.Now().UTC(), userID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to update user role")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d not found", userID)
	}

	s.logger.Info(ctx, "User role changed", map[string]interface{}{
		"actor_id":       actor.ID,
		"target_user_id": userID,
		"role":           string(role),
		"category_scope": string(scope),
	})
	return s.GetUserByID(ctx, userID)
}

// SetActive enables or disables an account. Only super admins may do this.
func (s *UserService) SetActive(ctx context.Context, actor authz.Actor, userID int, active bool) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "set_active", attribute.Int("user.id", userID), attribute.Bool("user.active", active))
	defer observability.FinishSpan(span, &err)

	if !authz.CanManageUsers(actor) {
		observability.RecordPermissionDenied(ctx, "set_active", string(actor.Role))
		s.logger.Security(ctx, "Account activation change denied", map[string]interface{}{"actor_id": actor.ID, "target_user_id": userID})
		return nil, contextutils.WrapErrorf(contextutils.ErrForbidden, "user %d may not change account status", actor.ID)
	}
	if actor.ID == userID && !active {
		return nil, contextutils.WrapError(contextutils.ErrConflict, "you cannot deactivate your own account")
	}

	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_active = $1, updated_at = $2 WHERE id = $3`, active, time.Now().UTC(), userID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to update user status")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d not found", userID)
	}
	return s.GetUserByID(ctx, userID)
}

// ListUsers returns a page of users filtered by search text and role
func (s *UserService) ListUsers(ctx context.Context, page, pageSize int, search string, role models.Role) (result0 []models.User, result1 int, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "list_users",
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)
	defer observability.FinishSpan(span, &err)

	var conditions []string
	var args []interface{}
	idx := 1
	if search = strings.TrimSpace(search); search != "" {
		conditions = append(conditions, fmt.Sprintf("(email ILIKE $%d OR first_name ILIKE $%d OR last_name ILIKE $%d)", idx, idx, idx))
		args = append(args, "%"+search+"%")
		idx++
	}
	if role != "" {
		conditions = append(conditions, fmt.Sprintf("role = $%d", idx))
		args = append(args, string(role))
		idx++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err = s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM users %s", where), args...).Scan(&total); err != nil {
		return nil, 0, contextutils.WrapError(err, "failed to count users")
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf("SELECT %s FROM users %s ORDER BY id LIMIT $%d OFFSET $%d", userSelectFields, where, idx, idx+1)
	users, err := s.queryUsers(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// ListAdmins returns active users that can be assigned tickets
func (s *UserService) ListAdmins(ctx context.Context) (result0 []models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "list_admins")
	defer observability.FinishSpan(span, &err)
	query := fmt.Sprintf(`SELECT %s FROM users WHERE role IN ('category_admin', 'super_admin') AND is_active ORDER BY role, id`, userSelectFields)
	return s.queryUsers(ctx, query)
}

// ListCategoryAdmins returns the active category admins whose scope covers the category, lowest id first
func (s *UserService) ListCategoryAdmins(ctx context.Context, categoryName string) (result0 []models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "list_category_admins", attribute.String("category.name", categoryName))
	defer observability.FinishSpan(span, &err)
	query := fmt.Sprintf(`SELECT %s FROM users WHERE role = 'category_admin' AND is_active AND LOWER(category_scope) = LOWER($1) ORDER BY id`, userSelectFields)
	return s.queryUsers(ctx, query, strings.TrimSpace(categoryName))
}

func (s *UserService) queryUsers(ctx context.Context, query string, args ...interface{}) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query users")
	}
	defer func() {
		_ = rows.Close()
	}()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan user")
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate users")
	}
	return users, nil
}

// EnsureAdminUserExists creates the bootstrap super admin, or resets its password and role if it drifted
func (s *UserService) EnsureAdminUserExists(ctx context.Context, email, password string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "ensure_admin_user_exists", attribute.String("admin.email", email))
	defer observability.FinishSpan(span, &err)

	if strings.TrimSpace(email) == "" {
		return contextutils.ErrorWithContextf("admin email cannot be empty")
	}
	if password == "" {
		return contextutils.ErrorWithContextf("admin password cannot be empty")
	}

	existing, err := s.GetUserByEmail(ctx, email)
	if err != nil && !contextutils.IsError(err, contextutils.ErrRecordNotFound) {
		return contextutils.WrapError(err, "failed to check if admin user exists")
	}

	if existing == nil {
		if _, err := s.CreateUser(ctx, serviceinterfaces.NewUser{
			Email:     email,
			Password:  password,
			FirstName: "System",
			LastName:  "Administrator",
			Role:      models.RoleSuperAdmin,
		}); err != nil {
			return contextutils.WrapError(err, "failed to create admin user")
		}
		s.logger.Info(ctx, "Created admin user", map[string]interface{}{"email": email})
		return nil
	}

	passwordMatches := existing.PasswordHash.Valid &&
		bcrypt.CompareHashAndPassword([]byte(existing.PasswordHash.String), []byte(password)) == nil
	if passwordMatches && existing.Role == models.RoleSuperAdmin && existing.IsActive {
		s.logger.Info(ctx, "Admin user already exists with correct password", map[string]interface{}{"email": email})
		return nil
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, role = 'super_admin', category_scope = NULL, is_active = TRUE, updated_at = $2 WHERE id = $3`,
		hashed, time.Now().UTC(), existing.ID)
	if err != nil {
		return contextutils.WrapError(err, "failed to update admin user")
	}
	s.logger.Info(ctx, "Updated admin user", map[string]interface{}{"email": email})
	return nil
}

// isDuplicateKeyError checks if the error is a duplicate key constraint violation
func isDuplicateKeyError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// PostgreSQL error code 23505 is for unique constraint violations
		return pqErr.Code == "23505"
	}
	return false
}
