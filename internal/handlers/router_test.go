package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"collegefeedback/internal/authz"
	"collegefeedback/internal/cache"
	"collegefeedback/internal/config"
	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	"collegefeedback/internal/services"
	contextutils "collegefeedback/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	student = &models.User{ID: 42, Email: "student@college.edu", FirstName: "Grace", Role: models.RoleStudent, IsActive: true}
	warden  = &models.User{ID: 7, Email: "warden@college.edu", Role: models.RoleCategoryAdmin, CategoryScope: "infrastructure", IsActive: true}
	root    = &models.User{ID: 1, Email: "root@college.edu", Role: models.RoleSuperAdmin, IsActive: true}
)

type testEnv struct {
	router        *gin.Engine
	tokens        *services.TokenService
	users         *MockUserService
	feedback      *MockFeedbackService
	comments      *MockCommentService
	history       *MockHistoryService
	categories    *MockCategoryService
	notifications *MockNotificationService
	attachments   *MockAttachmentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	cfg := &config.Config{
		Server:        config.ServerConfig{SessionSecret: "handler-test-secret", Debug: true},
		OpenTelemetry: config.OpenTelemetryConfig{ServiceName: "feedback-test"},
		Attachments:   config.AttachmentConfig{MaxBytes: 1024},
	}
	store := cache.NewMemoryStore()
	env := &testEnv{
		tokens: services.NewTokenService(config.AuthConfig{
			JWTSecret:       "handler-test-jwt",
			JWTIssuer:       "college-feedback",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 24 * time.Hour,
		}, store, logger),
		users:         new(MockUserService),
		feedback:      new(MockFeedbackService),
		comments:      new(MockCommentService),
		history:       new(MockHistoryService),
		categories:    new(MockCategoryService),
		notifications: new(MockNotificationService),
		attachments:   new(MockAttachmentService),
	}
	for _, u := range []*models.User{student, warden, root} {
		env.users.On("GetUserByID", mock.Anything, u.ID).Return(u, nil).Maybe()
	}

	env.router = NewRouter(cfg, RouterDeps{
		Users:         env.users,
		Categories:    env.categories,
		Feedback:      env.feedback,
		Comments:      env.comments,
		History:       env.history,
		Notifications: env.notifications,
		Attachments:   env.attachments,
		Tokens:        env.tokens,
		LoginAttempts: services.NewLoginTracker(store, 2, time.Minute, logger),
	}, logger)
	gin.SetMode(gin.TestMode)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, as *models.User) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		pair, err := e.tokens.IssuePair(as)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func sampleView(anonymous, hidden bool) *serviceinterfaces.FeedbackView {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &serviceinterfaces.FeedbackView{
		Feedback: models.Feedback{
			ID:           4,
			Title:        "Projector broken in room 101",
			Description:  "No signal on HDMI",
			CategoryID:   2,
			CategoryName: "Infrastructure",
			SubmitterID:  42,
			Status:       models.StatusPending,
			Priority:     models.PriorityHigh,
			IsAnonymous:  anonymous,
			CreatedAt:    created,
			UpdatedAt:    created,
		},
		Capabilities:    authz.CapabilitySet(0).With(authz.CapView, authz.CapComment),
		SubmitterHidden: hidden,
		DaysOpen:        3,
	}
}

func TestRouter_HealthAndIndex(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"/v1/feedback/:id/comments"`)
	assert.NotContains(t, w.Body.String(), `"/health"`)

	w = env.do(t, http.MethodGet, "/v1/version", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "feedback-test", body["service"])
	assert.NotEmpty(t, body["goVersion"])
}

func TestRouter_RequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/v1/feedback", "/v1/notifications", "/v1/auth/me", "/v1/admin/users"} {
		w := env.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Equal(t, "UNAUTHORIZED", decode(t, w)["code"], path)
	}
}

func TestRouter_AdminRoutesNeedSuperAdmin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/admin/users", nil, warden)
	assert.Equal(t, http.StatusForbidden, w.Code)

	env.users.On("ListUsers", mock.Anything, 1, 20, "", models.Role("")).Return([]models.User{*student}, 1, nil).Once()
	w = env.do(t, http.MethodGet, "/v1/admin/users", nil, root)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["users"], 1)
	assert.EqualValues(t, 1, body["pagination"].(map[string]interface{})["total"])
}

func TestFeedbackHandler_Create(t *testing.T) {
	env := newTestEnv(t)

	env.feedback.On("Create", mock.Anything, authz.ActorFromUser(student), serviceinterfaces.CreateFeedbackRequest{
		CategoryID:  2,
		Title:       "Projector broken in room 101",
		Description: "No signal on HDMI",
		Priority:    models.PriorityHigh,
		IsAnonymous: true,
	}).Return(sampleView(true, false), nil).Once()

	w := env.do(t, http.MethodPost, "/v1/feedback", gin.H{
		"category_id":  2,
		"title":        "Projector broken in room 101",
		"description":  "No signal on HDMI",
		"priority":     "high",
		"is_anonymous": true,
	}, student)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.EqualValues(t, 4, body["id"])
	assert.EqualValues(t, 42, body["submitter_id"])
	assert.Equal(t, []interface{}{"view", "comment"}, body["capabilities"])
	env.feedback.AssertExpectations(t)
}

func TestFeedbackHandler_CreateValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body gin.H
	}{
		{"missing title", gin.H{"category_id": 2, "description": "x"}},
		{"unknown priority", gin.H{"category_id": 2, "title": "t", "description": "x", "priority": "whenever"}},
		{"title too long", gin.H{"category_id": 2, "title": strings.Repeat("a", 201), "description": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/v1/feedback", tt.body, student)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION_FAILED", decode(t, w)["code"])
		})
	}
	env.feedback.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestFeedbackHandler_GetHidesAnonymousSubmitter(t *testing.T) {
	env := newTestEnv(t)
	env.feedback.On("Get", mock.Anything, authz.ActorFromUser(warden), 4).Return(sampleView(true, true), nil).Once()

	w := env.do(t, http.MethodGet, "/v1/feedback/4", nil, warden)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Nil(t, body["submitter_id"])
	assert.Equal(t, true, body["is_anonymous"])
}

func TestFeedbackHandler_GetErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/feedback/abc", nil, student)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.feedback.On("Get", mock.Anything, authz.ActorFromUser(student), 99).
		Return(nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "feedback %d not found", 99)).Once()
	w = env.do(t, http.MethodGet, "/v1/feedback/99", nil, student)
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.feedback.On("Get", mock.Anything, authz.ActorFromUser(student), 5).
		Return(nil, contextutils.WrapError(contextutils.ErrForbidden, "not yours")).Once()
	w = env.do(t, http.MethodGet, "/v1/feedback/5", nil, student)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFeedbackHandler_ListParsesFilters(t *testing.T) {
	env := newTestEnv(t)
	filter := models.FeedbackFilter{Status: models.StatusInProgress, Priority: models.PriorityUrgent, CategoryID: 3, Search: "wifi"}
	env.feedback.On("List", mock.Anything, authz.ActorFromUser(warden), filter, 2, 10).
		Return([]serviceinterfaces.FeedbackView{*sampleView(false, false)}, 11, nil).Once()

	w := env.do(t, http.MethodGet, "/v1/feedback?status=in_progress&priority=URGENT&category_id=3&search=wifi&page=2&page_size=10", nil, warden)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Len(t, body["feedback"], 1)
	pagination := body["pagination"].(map[string]interface{})
	assert.EqualValues(t, 2, pagination["total_pages"])

	w = env.do(t, http.MethodGet, "/v1/feedback?status=lost", nil, warden)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeedbackHandler_MineRestrictsToSubmitter(t *testing.T) {
	env := newTestEnv(t)
	env.feedback.On("List", mock.Anything, authz.ActorFromUser(student), models.FeedbackFilter{SubmittedBy: 42}, 1, services.DefaultPageSize).
		Return([]serviceinterfaces.FeedbackView{}, 0, nil).Once()

	w := env.do(t, http.MethodGet, "/v1/feedback/mine", nil, student)

	assert.Equal(t, http.StatusOK, w.Code)
	env.feedback.AssertExpectations(t)
}

func TestFeedbackHandler_Update(t *testing.T) {
	env := newTestEnv(t)
	status := models.StatusInProgress
	env.feedback.On("Update", mock.Anything, authz.ActorFromUser(root), 4, serviceinterfaces.UpdateFeedbackRequest{
		Status:      &status,
		AssigneeSet: true,
		AssigneeID:  nil,
		Notes:       "picking up",
	}).Return(sampleView(false, false), nil).Once()

	w := env.do(t, http.MethodPatch, "/v1/feedback/4", gin.H{"status": "in_progress", "assigned_to": nil, "notes": "picking up"}, root)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPatch, "/v1/feedback/4", gin.H{"notes": "nothing to change"}, root)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, "/v1/feedback/4", gin.H{"status": "archived"}, root)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env.feedback.AssertExpectations(t)
}

func TestFeedbackHandler_ResolveReopenAssign(t *testing.T) {
	env := newTestEnv(t)
	env.feedback.On("Resolve", mock.Anything, authz.ActorFromUser(warden), 4, "").Return(sampleView(false, false), nil).Once()
	env.feedback.On("Reopen", mock.Anything, authz.ActorFromUser(student), 4, "still broken").Return(sampleView(false, false), nil).Once()
	env.feedback.On("Assign", mock.Anything, authz.ActorFromUser(root), 4, 7, "").Return(sampleView(false, false), nil).Once()

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/feedback/4/resolve", nil, warden).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/feedback/4/reopen", gin.H{"notes": "still broken"}, student).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/feedback/4/assign", gin.H{"assignee_id": 7}, root).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/feedback/4/assign", gin.H{}, root).Code)
	env.feedback.AssertExpectations(t)
}

func TestFeedbackHandler_Rate(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/feedback/4/rate", gin.H{"rating": 6}, student)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.feedback.On("Rate", mock.Anything, authz.ActorFromUser(student), 4, 2, "").
		Return(nil, contextutils.WrapError(contextutils.ErrConflict, "only resolved tickets can be rated")).Once()
	w = env.do(t, http.MethodPost, "/v1/feedback/4/rate", gin.H{"rating": 2}, student)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFeedbackHandler_Dashboard(t *testing.T) {
	env := newTestEnv(t)
	masked := sampleView(true, false).Feedback
	masked.SubmitterID = 0
	env.feedback.On("Dashboard", mock.Anything, authz.ActorFromUser(warden)).Return(&models.DashboardStats{
		Total:      1,
		ByStatus:   map[models.FeedbackStatus]int{models.StatusPending: 1},
		ByPriority: map[models.FeedbackPriority]int{models.PriorityHigh: 1},
		ByCategory: map[string]int{"Infrastructure": 1},
		Recent:     []models.Feedback{masked},
	}, nil).Once()

	w := env.do(t, http.MethodGet, "/v1/feedback/dashboard", nil, warden)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	recent := body["recent"].([]interface{})
	require.Len(t, recent, 1)
	assert.Nil(t, recent[0].(map[string]interface{})["submitter_id"])
	assert.Empty(t, body["urgent_open"])
}

func TestFeedbackHandler_Comments(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	env.comments.On("Add", mock.Anything, authz.ActorFromUser(warden), 4, "Technician booked", true, "").
		Return(&models.Comment{ID: 9, FeedbackID: 4, AuthorID: 7, Body: "Technician booked", IsInternal: true, CreatedAt: now}, nil).Once()
	env.comments.On("List", mock.Anything, authz.ActorFromUser(student), 4).
		Return([]models.Comment{{ID: 8, FeedbackID: 4, AuthorID: 42, Body: "Any update?", CreatedAt: now}}, nil).Once()
	env.history.On("List", mock.Anything, authz.ActorFromUser(student), 4).
		Return([]models.HistoryEntry{{ID: 1, FeedbackID: 4, ChangedBy: 42, NewStatus: models.StatusPending, Timestamp: now}}, nil).Once()

	w := env.do(t, http.MethodPost, "/v1/feedback/4/comments", gin.H{"body": "Technician booked", "is_internal": true}, warden)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["is_internal"])

	w = env.do(t, http.MethodGet, "/v1/feedback/4/comments", nil, student)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["comments"], 1)

	w = env.do(t, http.MethodGet, "/v1/feedback/4/history", nil, student)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["history"], 1)
}

func TestAuthHandler_LoginLockout(t *testing.T) {
	env := newTestEnv(t)
	env.users.On("AuthenticateUser", mock.Anything, "student@college.edu", "wrong").
		Return(nil, contextutils.ErrInvalidCredentials).Times(2)
	env.users.On("AuthenticateUser", mock.Anything, "student@college.edu", "right").
		Return(student, nil).Once()

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodPost, "/v1/auth/login", gin.H{"email": "Student@College.edu", "password": "wrong"}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := env.do(t, http.MethodPost, "/v1/auth/login", gin.H{"email": "student@college.edu", "password": "right"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	env.users.AssertNumberOfCalls(t, "AuthenticateUser", 2)
}

func TestAuthHandler_LoginRefreshLogout(t *testing.T) {
	env := newTestEnv(t)
	env.users.On("AuthenticateUser", mock.Anything, "student@college.edu", "s3cret-Passw0rd").Return(student, nil).Once()

	w := env.do(t, http.MethodPost, "/v1/auth/login", gin.H{"email": "student@college.edu", "password": "s3cret-Passw0rd"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("Set-Cookie"))

	var login AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	require.NotNil(t, login.Tokens)
	assert.Equal(t, "Bearer", login.Tokens.TokenType)

	w = env.do(t, http.MethodPost, "/v1/auth/refresh", gin.H{"refresh_token": login.Tokens.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var refreshed AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refreshed))

	// The exchanged refresh token is single use
	w = env.do(t, http.MethodPost, "/v1/auth/refresh", gin.H{"refresh_token": login.Tokens.RefreshToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/v1/auth/logout", gin.H{"refresh_token": refreshed.Tokens.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPost, "/v1/auth/refresh", gin.H{"refresh_token": refreshed.Tokens.RefreshToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_Register(t *testing.T) {
	env := newTestEnv(t)
	created := &models.User{ID: 50, Email: "new@college.edu", Role: models.RoleStudent, IsActive: true}
	env.users.On("Register", mock.Anything, serviceinterfaces.NewUser{
		Email:     "new@college.edu",
		Password:  "Str0ng-enough",
		FirstName: "Ada",
	}).Return(created, nil).Once()

	w := env.do(t, http.MethodPost, "/v1/auth/register", gin.H{"email": "new@college.edu", "password": "Str0ng-enough", "first_name": "Ada"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/v1/auth/register", gin.H{"email": "not-an-email", "password": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env.users.AssertExpectations(t)
}

func TestAuthHandler_Me(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/auth/me", nil, student)

	require.Equal(t, http.StatusOK, w.Code)
	user := decode(t, w)["user"].(map[string]interface{})
	assert.Equal(t, "student@college.edu", user["email"])
	assert.NotContains(t, w.Body.String(), "password")
}

func TestAuthHandler_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	env.users.On("ChangePassword", mock.Anything, student.ID, "OldPass123", "NewPass456").Return(nil).Once()
	env.users.On("ChangePassword", mock.Anything, student.ID, "wrong", "NewPass456").
		Return(contextutils.ErrInvalidCredentials).Once()

	w := env.do(t, http.MethodPost, "/v1/auth/change-password",
		ChangePasswordRequest{CurrentPassword: "OldPass123", NewPassword: "NewPass456"}, student)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/v1/auth/change-password",
		ChangePasswordRequest{CurrentPassword: "wrong", NewPassword: "NewPass456"}, student)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/v1/auth/change-password", gin.H{"new_password": "x"}, student)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env.users.AssertExpectations(t)
}

func TestCategoryHandler(t *testing.T) {
	env := newTestEnv(t)
	cats := []models.Category{{ID: 1, Name: "Academic", Active: true}}
	env.categories.On("List", mock.Anything, false).Return(cats, nil).Twice()
	env.categories.On("List", mock.Anything, true).Return(cats, nil).Once()

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/categories", nil, nil).Code)
	// Only admins see inactive categories
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/categories?include_inactive=true", nil, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/admin/categories", nil, root).Code)

	env.categories.On("GetByID", mock.Anything, 1).Return(&cats[0], nil).Once()
	inactive := cats[0]
	inactive.Active = false
	env.categories.On("SetActive", mock.Anything, authz.ActorFromUser(root), 1, false).Return(&inactive, nil).Once()

	w := env.do(t, http.MethodPatch, "/v1/admin/categories/1", gin.H{"active": false}, root)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, decode(t, w)["active"])
	env.categories.AssertExpectations(t)
}

func TestUserAdminHandler_SetRole(t *testing.T) {
	env := newTestEnv(t)
	promoted := *student
	promoted.Role = models.RoleCategoryAdmin
	promoted.CategoryScope = "hostel"
	env.users.On("SetRole", mock.Anything, authz.ActorFromUser(root), 42, models.RoleCategoryAdmin, models.CategoryScope("hostel")).
		Return(&promoted, nil).Once()

	w := env.do(t, http.MethodPut, "/v1/admin/users/42/role", gin.H{"role": "category_admin", "category_scope": " Hostel "}, root)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPut, "/v1/admin/users/42/role", gin.H{"role": "dean"}, root)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserAdminHandler_ListAdmins(t *testing.T) {
	env := newTestEnv(t)
	env.users.On("ListAdmins", mock.Anything).Return([]models.User{*warden, *root}, nil).Once()

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/v1/users/admins", nil, student).Code)
	w := env.do(t, http.MethodGet, "/v1/users/admins", nil, warden)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["users"], 2)
}

func TestNotificationHandler(t *testing.T) {
	env := newTestEnv(t)
	env.notifications.On("List", mock.Anything, 42, true, 50).
		Return([]models.Notification{{ID: 3, UserID: 42, Type: models.NotificationFeedbackComment, Message: "New comment"}}, nil).Once()
	env.notifications.On("UnreadCount", mock.Anything, 42).Return(1, nil).Once()
	env.notifications.On("MarkRead", mock.Anything, 42, []int{3}).Return(1, nil).Once()
	env.notifications.On("MarkAllRead", mock.Anything, 42).Return(4, nil).Once()

	w := env.do(t, http.MethodGet, "/v1/notifications?unread_only=true", nil, student)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["unread_count"])

	w = env.do(t, http.MethodPost, "/v1/notifications/read", gin.H{"ids": []int{3}}, student)
	assert.EqualValues(t, 1, decode(t, w)["updated"])
	w = env.do(t, http.MethodPost, "/v1/notifications/read", gin.H{"all": true}, student)
	assert.EqualValues(t, 4, decode(t, w)["updated"])
	w = env.do(t, http.MethodPost, "/v1/notifications/read", gin.H{}, student)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// No live hub configured
	w = env.do(t, http.MethodGet, "/v1/notifications/ws", nil, student)
	assert.Equal(t, http.StatusNotFound, w.Code)
	env.notifications.AssertExpectations(t)
}

func TestAttachmentHandler(t *testing.T) {
	env := newTestEnv(t)
	att := &models.Attachment{Key: "abc.pdf", Name: "report.pdf", ContentType: "application/pdf", Extension: "pdf", Size: 8, UploadedBy: 42}
	env.attachments.On("Upload", mock.Anything, authz.ActorFromUser(student), "report.pdf", mock.Anything).Return(att, nil).Once()
	env.attachments.On("Open", mock.Anything, authz.ActorFromUser(student), "abc.pdf").
		Return(att, io.NopCloser(strings.NewReader("%PDF-1.4")), nil).Once()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "report.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, mw.Close())

	pair, err := env.tokens.IssuePair(student)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "abc.pdf", decode(t, w)["key"])

	w = env.do(t, http.MethodGet, "/v1/attachments/abc.pdf", nil, student)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4", w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "report.pdf")

	// Missing file field
	w = env.do(t, http.MethodPost, "/v1/attachments", gin.H{}, student)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
