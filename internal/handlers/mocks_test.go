package handlers

import (
	"context"
	"io"

	"collegefeedback/internal/authz"
	"collegefeedback/internal/models"
	"collegefeedback/internal/serviceinterfaces"

	"github.com/stretchr/testify/mock"
)

// MockUserService for testing
type MockUserService struct {
	mock.Mock
}

var _ serviceinterfaces.UserServiceInterface = (*MockUserService)(nil)

func userOrNil(args mock.Arguments) (*models.User, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) CreateUser(ctx context.Context, nu serviceinterfaces.NewUser) (*models.User, error) {
	return userOrNil(m.Called(ctx, nu))
}

func (m *MockUserService) Register(ctx context.Context, nu serviceinterfaces.NewUser) (*models.User, error) {
	return userOrNil(m.Called(ctx, nu))
}

func (m *MockUserService) AuthenticateUser(ctx context.Context, email, password string) (*models.User, error) {
	return userOrNil(m.Called(ctx, email, password))
}

func (m *MockUserService) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	return userOrNil(m.Called(ctx, id))
}

func (m *MockUserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return userOrNil(m.Called(ctx, email))
}

func (m *MockUserService) ChangePassword(ctx context.Context, userID int, current, next string) error {
	return m.Called(ctx, userID, current, next).Error(0)
}

func (m *MockUserService) SetPassword(ctx context.Context, userID int, password string) error {
	return m.Called(ctx, userID, password).Error(0)
}

func (m *MockUserService) SetRole(ctx context.Context, actor authz.Actor, userID int, role models.Role, scope models.CategoryScope) (*models.User, error) {
	return userOrNil(m.Called(ctx, actor, userID, role, scope))
}

func (m *MockUserService) SetActive(ctx context.Context, actor authz.Actor, userID int, active bool) (*models.User, error) {
	return userOrNil(m.Called(ctx, actor, userID, active))
}

func (m *MockUserService) ListUsers(ctx context.Context, page, pageSize int, search string, role models.Role) ([]models.User, int, error) {
	args := m.Called(ctx, page, pageSize, search, role)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]models.User), args.Int(1), args.Error(2)
}

func (m *MockUserService) ListAdmins(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserService) ListCategoryAdmins(ctx context.Context, categoryName string) ([]models.User, error) {
	args := m.Called(ctx, categoryName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserService) EnsureAdminUserExists(ctx context.Context, email, password string) error {
	return m.Called(ctx, email, password).Error(0)
}

// MockFeedbackService for testing
type MockFeedbackService struct {
	mock.Mock
}

var _ serviceinterfaces.FeedbackServiceInterface = (*MockFeedbackService)(nil)

func viewOrNil(args mock.Arguments) (*serviceinterfaces.FeedbackView, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*serviceinterfaces.FeedbackView), args.Error(1)
}

func (m *MockFeedbackService) Create(ctx context.Context, actor authz.Actor, req serviceinterfaces.CreateFeedbackRequest) (*serviceinterfaces.FeedbackView, error) {
	return viewOrNil(m.Called(ctx, actor, req))
}

func (m *MockFeedbackService) Get(ctx context.Context, actor authz.Actor, id int) (*serviceinterfaces.FeedbackView, error) {
	return viewOrNil(m.Called(ctx, actor, id))
}

func (m *MockFeedbackService) List(ctx context.Context, actor authz.Actor, filter models.FeedbackFilter, page, pageSize int) ([]serviceinterfaces.FeedbackView, int, error) {
	args := m.Called(ctx, actor, filter, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]serviceinterfaces.FeedbackView), args.Int(1), args.Error(2)
}

func (m *MockFeedbackService) Dashboard(ctx context.Context, actor authz.Actor) (*models.DashboardStats, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DashboardStats), args.Error(1)
}

func (m *MockFeedbackService) Resolve(ctx context.Context, actor authz.Actor, id int, notes string) (*serviceinterfaces.FeedbackView, error) {
	return viewOrNil(m.Called(ctx, actor, id, notes))
}

func (m *MockFeedbackService) Reopen(ctx context.Context, actor authz.Actor, id int, notes string) (*serviceinterfaces.FeedbackView, error) {
	return viewOrNil(m.Called(ctx, actor, id, notes))
}

func (m *MockFeedbackService) Update(ctx context.Context, actor authz.Actor, id int, req serviceinterfaces.UpdateFeedbackRequest) (*serviceinterfaces.FeedbackView, error) {
	return viewOrNil(m.Called(ctx, actor, id, req))
}

func (m *MockFeedbackService) Assign(ctx context.Context, actor authz.Actor, id, assigneeID int, notes string) (*serviceinterfaces.FeedbackView, error) {
	return viewOrNil(m.Called(ctx, actor, id, assigneeID, notes))
}

func (m *MockFeedbackService) Rate(ctx context.Context, actor authz.Actor, id, rating int, comment string) (*serviceinterfaces.FeedbackView, error) {
	return viewOrNil(m.Called(ctx, actor, id, rating, comment))
}

// MockCommentService for testing
type MockCommentService struct {
	mock.Mock
}

func (m *MockCommentService) Add(ctx context.Context, actor authz.Actor, feedbackID int, body string, internal bool, attachmentKey string) (*models.Comment, error) {
	args := m.Called(ctx, actor, feedbackID, body, internal, attachmentKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Comment), args.Error(1)
}

func (m *MockCommentService) List(ctx context.Context, actor authz.Actor, feedbackID int) ([]models.Comment, error) {
	args := m.Called(ctx, actor, feedbackID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Comment), args.Error(1)
}

// MockHistoryService for testing
type MockHistoryService struct {
	mock.Mock
}

func (m *MockHistoryService) List(ctx context.Context, actor authz.Actor, feedbackID int) ([]models.HistoryEntry, error) {
	args := m.Called(ctx, actor, feedbackID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.HistoryEntry), args.Error(1)
}

// MockCategoryService for testing
type MockCategoryService struct {
	mock.Mock
}

func categoryOrNil(args mock.Arguments) (*models.Category, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Category), args.Error(1)
}

func (m *MockCategoryService) List(ctx context.Context, includeInactive bool) ([]models.Category, error) {
	args := m.Called(ctx, includeInactive)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Category), args.Error(1)
}

func (m *MockCategoryService) GetByID(ctx context.Context, id int) (*models.Category, error) {
	return categoryOrNil(m.Called(ctx, id))
}

func (m *MockCategoryService) Create(ctx context.Context, actor authz.Actor, name, description, icon string) (*models.Category, error) {
	return categoryOrNil(m.Called(ctx, actor, name, description, icon))
}

func (m *MockCategoryService) Update(ctx context.Context, actor authz.Actor, id int, name, description, icon *string) (*models.Category, error) {
	return categoryOrNil(m.Called(ctx, actor, id, name, description, icon))
}

func (m *MockCategoryService) SetActive(ctx context.Context, actor authz.Actor, id int, active bool) (*models.Category, error) {
	return categoryOrNil(m.Called(ctx, actor, id, active))
}

func (m *MockCategoryService) SeedDefaults(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockNotificationService for testing
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) Name() string { return "mock" }

func (m *MockNotificationService) Notify(ctx context.Context, event models.TicketEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockNotificationService) List(ctx context.Context, userID int, unreadOnly bool, limit int) ([]models.Notification, error) {
	args := m.Called(ctx, userID, unreadOnly, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notification), args.Error(1)
}

func (m *MockNotificationService) UnreadCount(ctx context.Context, userID int) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationService) MarkRead(ctx context.Context, userID int, ids []int) (int, error) {
	args := m.Called(ctx, userID, ids)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationService) MarkAllRead(ctx context.Context, userID int) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

// MockAttachmentService for testing
type MockAttachmentService struct {
	mock.Mock
}

func (m *MockAttachmentService) Upload(ctx context.Context, actor authz.Actor, filename string, body io.Reader) (*models.Attachment, error) {
	args := m.Called(ctx, actor, filename, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Attachment), args.Error(1)
}

func (m *MockAttachmentService) Open(ctx context.Context, actor authz.Actor, key string) (*models.Attachment, io.ReadCloser, error) {
	args := m.Called(ctx, actor, key)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.Attachment), args.Get(1).(io.ReadCloser), args.Error(2)
}

func (m *MockAttachmentService) Get(ctx context.Context, key string) (*models.Attachment, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Attachment), args.Error(1)
}
