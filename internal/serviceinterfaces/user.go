package serviceinterfaces

import (
	"context"

	"collegefeedback/internal/authz"
	"collegefeedback/internal/models"
)

// NewUser carries the fields of an account being created
type NewUser struct {
	Email      string
	Password   string
	FirstName  string
	LastName   string
	Role       models.Role
	Scope      models.CategoryScope
	StudentID  string
	Department string
}

// UserServiceInterface defines the identity store operations
type UserServiceInterface interface {
	CreateUser(ctx context.Context, nu NewUser) (*models.User, error)
	Register(ctx context.Context, nu NewUser) (*models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ChangePassword(ctx context.Context, userID int, current, next string) error
	SetPassword(ctx context.Context, userID int, password string) error
	SetRole(ctx context.Context, actor authz.Actor, userID int, role models.Role, scope models.CategoryScope) (*models.User, error)
	SetActive(ctx context.Context, actor authz.Actor, userID int, active bool) (*models.User, error)
	ListUsers(ctx context.Context, page, pageSize int, search string, role models.Role) ([]models.User, int, error)
	ListAdmins(ctx context.Context) ([]models.User, error)
	ListCategoryAdmins(ctx context.Context, categoryName string) ([]models.User, error)
	EnsureAdminUserExists(ctx context.Context, email, password string) error
}

// CategoryServiceInterface defines the category registry operations
type CategoryServiceInterface interface {
	List(ctx context.Context, includeInactive bool) ([]models.Category, error)
	GetByID(ctx context.Context, id int) (*models.Category, error)
	Create(ctx context.Context, actor authz.Actor, name, description, icon string) (*models.Category, error)
	Update(ctx context.Context, actor authz.Actor, id int, name, description, icon *string) (*models.Category, error)
	SetActive(ctx context.Context, actor authz.Actor, id int, active bool) (*models.Category, error)
	SeedDefaults(ctx context.Context) (int, error)
}

// NotificationServiceInterface defines the in-app notification inbox
type NotificationServiceInterface interface {
	TicketObserver
	List(ctx context.Context, userID int, unreadOnly bool, limit int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID int) (int, error)
	MarkRead(ctx context.Context, userID int, ids []int) (int, error)
	MarkAllRead(ctx context.Context, userID int) (int, error)
}
