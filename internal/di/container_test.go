package di

import (
	"context"
	"testing"
	"time"

	"collegefeedback/internal/config"
	"collegefeedback/internal/middleware"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/services"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{AppBaseURL: "http://localhost:3000"},
		Auth: config.AuthConfig{
			JWTSecret:        "container-test-secret",
			JWTIssuer:        "feedback-test",
			AccessTokenTTL:   time.Minute,
			RefreshTokenTTL:  time.Hour,
			MaxLoginAttempts: 3,
			LoginLockout:     time.Minute,
			ListCacheTTL:     time.Second,
		},
		RateLimit: config.RateLimitConfig{RequestsPerMinute: 60, Burst: 5},
		Attachments: config.AttachmentConfig{
			Backend:  "local",
			Dir:      t.TempDir(),
			MaxBytes: 1 << 20,
		},
		IsTest: true,
	}
}

func newTestContainer(t *testing.T, cfg *config.Config) *ServiceContainer {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sc := NewServiceContainer(cfg, observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false}))
	require.NoError(t, sc.InitializeWithDB(context.Background(), db))
	t.Cleanup(func() { _ = sc.Shutdown(context.Background()) })
	return sc
}

func TestServiceContainer_WiresRouterDeps(t *testing.T) {
	sc := newTestContainer(t, testConfig(t))

	deps, err := sc.RouterDeps()
	require.NoError(t, err)
	assert.NotNil(t, deps.Users)
	assert.NotNil(t, deps.Categories)
	assert.NotNil(t, deps.Feedback)
	assert.NotNil(t, deps.Comments)
	assert.NotNil(t, deps.History)
	assert.NotNil(t, deps.Notifications)
	assert.NotNil(t, deps.Attachments)
	assert.NotNil(t, deps.Tokens)
	assert.NotNil(t, deps.LoginAttempts)
	assert.NotNil(t, deps.Live)
	assert.Nil(t, deps.RateLimiter, "limiter is off unless enabled")
	assert.NotNil(t, sc.GetDatabase())
}

func TestServiceContainer_RateLimiterWhenEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.Enabled = true
	sc := newTestContainer(t, cfg)

	limiter, err := sc.GetRateLimiter()
	require.NoError(t, err)
	require.NotNil(t, limiter)

	deps, err := sc.RouterDeps()
	require.NoError(t, err)
	assert.Same(t, limiter, deps.RateLimiter)
}

func TestServiceContainer_GetService(t *testing.T) {
	sc := newTestContainer(t, testConfig(t))

	_, err := sc.GetService("missing")
	assert.Error(t, err)

	_, err = GetServiceAs[*middleware.RateLimiter](sc, ServiceDispatcher)
	assert.Error(t, err)

	d, err := sc.GetDispatcher()
	require.NoError(t, err)
	assert.IsType(t, &services.Dispatcher{}, d)
}

func TestServiceContainer_ShutdownIsIdempotent(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sc := NewServiceContainer(testConfig(t), observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false}))
	require.NoError(t, sc.InitializeWithDB(context.Background(), db))

	assert.NoError(t, sc.Shutdown(context.Background()))
	assert.NoError(t, sc.Shutdown(context.Background()))
}
