//go:build integration

package services

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"collegefeedback/internal/cache"
	"collegefeedback/internal/config"
	"collegefeedback/internal/database"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/workflow"

	"github.com/stretchr/testify/require"
)

// SharedTestDBSetup provides a clean, migrated database for each integration test
func SharedTestDBSetup(t *testing.T) *sql.DB {
	t.Helper()
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	dbManager := database.NewManager(logger)

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Fatal("TEST_DATABASE_URL environment variable must be set for integration tests")
	}

	db, err := dbManager.InitDB(databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	CleanupTestDatabase(db, t)
	return db
}

// CleanupTestDatabase truncates every table and restarts id sequences
func CleanupTestDatabase(db *sql.DB, t *testing.T) {
	t.Helper()
	_, err := db.ExecContext(context.Background(), `TRUNCATE TABLE
		notifications, comments, feedback_history, feedback, attachments, categories, users
		RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

// integrationStack wires the ticket services over a real database the way the
// container does, with an in-memory keyed cache and no async observers
type integrationStack struct {
	db         *sql.DB
	users      *UserService
	categories *CategoryService
	feedback   *FeedbackService
	comments   *CommentService
	history    *HistoryService
	notifs     *NotificationService
	dispatcher *Dispatcher
}

func newIntegrationStack(t *testing.T) *integrationStack {
	t.Helper()
	db := SharedTestDBSetup(t)
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	cfg := &config.Config{IsTest: true}

	users := NewUserServiceWithLogger(db, cfg, logger)
	notifs := NewNotificationService(db, logger)
	dispatcher := NewDispatcher(logger, notifs)
	machine := workflow.NewMachine(nil)
	lists := NewListCache(cache.NewMemoryStore(), config.DefaultListCacheTTL, logger)

	s := &integrationStack{
		db:         db,
		users:      users,
		categories: NewCategoryService(db, logger),
		feedback:   NewFeedbackService(db, logger, users, machine, lists, dispatcher),
		comments:   NewCommentService(db, logger, users, machine, lists, dispatcher),
		history:    NewHistoryService(db, logger),
		notifs:     notifs,
		dispatcher: dispatcher,
	}
	_, err := s.categories.SeedDefaults(context.Background())
	require.NoError(t, err)
	return s
}
