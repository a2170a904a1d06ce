package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"collegefeedback/internal/authz"
	"collegefeedback/internal/cache"
	"collegefeedback/internal/config"
	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/services"
	contextutils "collegefeedback/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUserLoader struct {
	users     map[int]*models.User
	callCount int
}

func (m *mockUserLoader) GetUserByID(_ context.Context, id int) (*models.User, error) {
	m.callCount++
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d not found", id)
}

func testLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
}

func newTestTokens() *services.TokenService {
	return services.NewTokenService(config.AuthConfig{
		JWTSecret:      "middleware-test-secret",
		JWTIssuer:      "college-feedback",
		AccessTokenTTL: time.Hour,
	}, cache.NewMemoryStore(), testLogger())
}

var (
	student = &models.User{ID: 42, Email: "student@college.edu", Role: models.RoleStudent, IsActive: true}
	warden  = &models.User{ID: 7, Email: "warden@college.edu", Role: models.RoleCategoryAdmin, CategoryScope: "hostel", IsActive: true}
	root    = &models.User{ID: 1, Email: "root@college.edu", Role: models.RoleSuperAdmin, IsActive: true}
	retired = &models.User{ID: 9, Email: "old@college.edu", Role: models.RoleStudent, IsActive: false}
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	store := cookie.NewStore([]byte("test-secret"))
	router.Use(sessions.Sessions("test-session", store))
	return router
}

func setSessionCookie(t *testing.T, router *gin.Engine, values map[string]interface{}) *http.Cookie {
	setupPath := "/setup-session-" + t.Name()
	router.GET(setupPath, func(c *gin.Context) {
		session := sessions.Default(c)
		for k, v := range values {
			session.Set(k, v)
		}
		require.NoError(t, session.Save())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", setupPath, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func loaderWithAll() *mockUserLoader {
	return &mockUserLoader{users: map[int]*models.User{
		student.ID: student, warden.ID: warden, root.ID: root, retired.ID: retired,
	}}
}

func TestRequireAuth_SessionSuccess(t *testing.T) {
	router := newTestRouter()
	users := loaderWithAll()
	router.GET("/resource", RequireAuth(newTestTokens(), users, testLogger()), func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		require.True(t, ok)
		assert.Equal(t, authz.Actor{ID: 7, Email: "warden@college.edu", Role: models.RoleCategoryAdmin, Scope: "hostel"}, actor)
		assert.Equal(t, AuthMethodSession, c.GetString(AuthMethodKey))
		assert.Equal(t, 7, contextutils.GetUserIDFromContext(c.Request.Context()))
		c.Status(http.StatusOK)
	})

	cookie := setSessionCookie(t, router, map[string]interface{}{UserIDKey: 7})
	req := httptest.NewRequest("GET", "/resource", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, users.callCount)
}

func TestRequireAuth_BearerToken(t *testing.T) {
	router := newTestRouter()
	tokens := newTestTokens()
	router.GET("/resource", RequireAuth(tokens, loaderWithAll(), testLogger()), func(c *gin.Context) {
		assert.Equal(t, AuthMethodBearer, c.GetString(AuthMethodKey))
		assert.Equal(t, 42, c.GetInt(UserIDKey))
		c.Status(http.StatusOK)
	})

	pair, err := tokens.IssuePair(student)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/resource", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// refresh tokens are not accepted as access tokens
	req = httptest.NewRequest("GET", "/resource", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		session map[string]interface{}
		header  string
	}{
		{name: "no credentials"},
		{name: "garbage bearer", header: "Bearer not-a-jwt"},
		{name: "unknown user", session: map[string]interface{}{UserIDKey: 999}},
		{name: "deactivated user", session: map[string]interface{}{UserIDKey: 9}},
		{name: "wrong session type", session: map[string]interface{}{UserIDKey: "42"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter()
			router.GET("/resource", RequireAuth(newTestTokens(), loaderWithAll(), testLogger()), func(c *gin.Context) {
				t.Fatal("handler must not run")
			})

			req := httptest.NewRequest("GET", "/resource", nil)
			if tt.session != nil {
				req.AddCookie(setSessionCookie(t, router, tt.session))
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
		})
	}
}

func TestRequireSuperAdmin(t *testing.T) {
	for _, tc := range []struct {
		userID int
		want   int
	}{
		{userID: 1, want: http.StatusOK},
		{userID: 7, want: http.StatusForbidden},
		{userID: 42, want: http.StatusForbidden},
	} {
		router := newTestRouter()
		router.GET("/admin", RequireAuth(nil, loaderWithAll(), testLogger()), RequireSuperAdmin(testLogger()), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest("GET", "/admin", nil)
		req.AddCookie(setSessionCookie(t, router, map[string]interface{}{UserIDKey: tc.userID}))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, "user %d", tc.userID)
	}
}

func TestActorFromContext_Missing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := ActorFromContext(c)
	assert.False(t, ok)
}
