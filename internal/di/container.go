// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"sync"

	"collegefeedback/internal/cache"
	"collegefeedback/internal/config"
	"collegefeedback/internal/database"
	"collegefeedback/internal/handlers"
	"collegefeedback/internal/middleware"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/realtime"
	"collegefeedback/internal/serviceinterfaces"
	"collegefeedback/internal/services"
	contextutils "collegefeedback/internal/utils"
	"collegefeedback/internal/workflow"
)

// Service names used as container keys
const (
	ServiceUser          = "user"
	ServiceCategory      = "category"
	ServiceFeedback      = "feedback"
	ServiceComment       = "comment"
	ServiceHistory       = "history"
	ServiceNotification  = "notification"
	ServiceAttachment    = "attachment"
	ServiceEmail         = "email"
	ServiceTokens        = "tokens"
	ServiceLoginAttempts = "login_attempts"
	ServiceDispatcher    = "dispatcher"
	ServiceHub           = "hub"
	ServiceRateLimiter   = "rate_limiter"
)

// ServiceContainerInterface defines the interface for service containers
type ServiceContainerInterface interface {
	GetService(name string) (interface{}, error)
	GetUserService() (serviceinterfaces.UserServiceInterface, error)
	GetCategoryService() (serviceinterfaces.CategoryServiceInterface, error)
	GetFeedbackService() (serviceinterfaces.FeedbackServiceInterface, error)
	GetDispatcher() (*services.Dispatcher, error)
	GetRateLimiter() (*middleware.RateLimiter, error)
	RouterDeps() (handlers.RouterDeps, error)
	GetDatabase() *sql.DB
	GetConfig() *config.Config
	GetLogger() *observability.Logger
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	EnsureAdminUser(ctx context.Context) error
	SeedCategories(ctx context.Context) (int, error)
}

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg           *config.Config
	logger        *observability.Logger
	dbManager     *database.Manager
	db            *sql.DB
	store         cache.Store
	services      map[string]interface{}
	mu            sync.RWMutex
	shutdownFuncs []func(context.Context) error
}

var _ ServiceContainerInterface = (*ServiceContainer)(nil)

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger) *ServiceContainer {
	return &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		services: make(map[string]interface{}),
	}
}

// Initialize connects to the database, runs migrations and builds every service
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.dbManager = database.NewManager(sc.logger)
	db, err := sc.dbManager.InitDBWithConfig(sc.cfg.Database)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize database")
	}
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return db.Close()
	})

	return sc.initialize(ctx, db)
}

// InitializeWithDB builds every service over an existing connection. The
// caller keeps ownership of db.
func (sc *ServiceContainer) InitializeWithDB(ctx context.Context, db *sql.DB) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.initialize(ctx, db)
}

func (sc *ServiceContainer) initialize(ctx context.Context, db *sql.DB) error {
	sc.db = db

	store, err := cache.New(ctx, sc.cfg.Redis)
	if err != nil {
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to initialize cache")
	}
	sc.store = store
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return store.Close()
	})

	if err := sc.initializeServices(ctx); err != nil {
		_ = sc.cleanup(ctx)
		return err
	}

	if err := sc.startupServices(ctx); err != nil {
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to startup services")
	}

	return nil
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetUserService returns the user service
func (sc *ServiceContainer) GetUserService() (serviceinterfaces.UserServiceInterface, error) {
	return GetServiceAs[serviceinterfaces.UserServiceInterface](sc, ServiceUser)
}

// GetCategoryService returns the category service
func (sc *ServiceContainer) GetCategoryService() (serviceinterfaces.CategoryServiceInterface, error) {
	return GetServiceAs[serviceinterfaces.CategoryServiceInterface](sc, ServiceCategory)
}

// GetFeedbackService returns the feedback service
func (sc *ServiceContainer) GetFeedbackService() (serviceinterfaces.FeedbackServiceInterface, error) {
	return GetServiceAs[serviceinterfaces.FeedbackServiceInterface](sc, ServiceFeedback)
}

// GetDispatcher returns the ticket event dispatcher
func (sc *ServiceContainer) GetDispatcher() (*services.Dispatcher, error) {
	return GetServiceAs[*services.Dispatcher](sc, ServiceDispatcher)
}

// GetRateLimiter returns the request limiter, or nil when rate limiting is off
func (sc *ServiceContainer) GetRateLimiter() (*middleware.RateLimiter, error) {
	if !sc.cfg.RateLimit.Enabled {
		return nil, nil
	}
	return GetServiceAs[*middleware.RateLimiter](sc, ServiceRateLimiter)
}

// RouterDeps collects the services the HTTP router needs
func (sc *ServiceContainer) RouterDeps() (result0 handlers.RouterDeps, err error) {
	var deps handlers.RouterDeps
	if deps.Users, err = sc.GetUserService(); err != nil {
		return deps, err
	}
	if deps.Categories, err = sc.GetCategoryService(); err != nil {
		return deps, err
	}
	if deps.Feedback, err = sc.GetFeedbackService(); err != nil {
		return deps, err
	}
	if deps.Comments, err = GetServiceAs[serviceinterfaces.CommentServiceInterface](sc, ServiceComment); err != nil {
		return deps, err
	}
	if deps.History, err = GetServiceAs[serviceinterfaces.HistoryServiceInterface](sc, ServiceHistory); err != nil {
		return deps, err
	}
	if deps.Notifications, err = GetServiceAs[serviceinterfaces.NotificationServiceInterface](sc, ServiceNotification); err != nil {
		return deps, err
	}
	if deps.Attachments, err = GetServiceAs[serviceinterfaces.AttachmentServiceInterface](sc, ServiceAttachment); err != nil {
		return deps, err
	}
	if deps.Tokens, err = GetServiceAs[*services.TokenService](sc, ServiceTokens); err != nil {
		return deps, err
	}
	if deps.LoginAttempts, err = GetServiceAs[*services.LoginTracker](sc, ServiceLoginAttempts); err != nil {
		return deps, err
	}
	if deps.RateLimiter, err = sc.GetRateLimiter(); err != nil {
		return deps, err
	}
	if hub, err := GetServiceAs[*realtime.Hub](sc, ServiceHub); err == nil {
		deps.Live = hub
	}
	return deps, nil
}

// GetDatabase returns the database instance
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.cleanup(ctx)
}

// startupServices starts all services that implement the Lifecycle interface
func (sc *ServiceContainer) startupServices(ctx context.Context) error {
	for name, service := range sc.services {
		if lifecycleService, ok := service.(interface{ Startup(context.Context) error }); ok {
			sc.logger.Info(ctx, "Starting service", map[string]interface{}{"service": name})
			if err := lifecycleService.Startup(ctx); err != nil {
				return contextutils.WrapErrorf(err, "failed to startup service %s", name)
			}
		}
	}
	return nil
}

// cleanup handles shutdown of all services
func (sc *ServiceContainer) cleanup(ctx context.Context) error {
	var errors []error

	// Let queued notifications finish before their stores go away
	if d, ok := sc.services[ServiceDispatcher].(*services.Dispatcher); ok {
		if err := d.Wait(ctx); err != nil {
			sc.logger.Warn(ctx, "Pending notifications abandoned at shutdown", map[string]interface{}{"error": err.Error()})
		}
	}
	if hub, ok := sc.services[ServiceHub].(*realtime.Hub); ok {
		hub.Close()
	}

	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			errors = append(errors, err)
		}
	}
	sc.shutdownFuncs = nil

	if len(errors) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errors)
	}
	return nil
}

// initializeServices sets up all service dependencies
func (sc *ServiceContainer) initializeServices(ctx context.Context) error {
	userService := services.NewUserServiceWithLogger(sc.db, sc.cfg, sc.logger)
	sc.services[ServiceUser] = userService

	sc.services[ServiceCategory] = services.NewCategoryService(sc.db, sc.logger)

	// Observers receive committed ticket events in registration order
	notificationService := services.NewNotificationService(sc.db, sc.logger)
	sc.services[ServiceNotification] = notificationService

	emailService := services.NewMailer(sc.cfg, sc.logger)
	sc.services[ServiceEmail] = emailService

	hub := realtime.NewHub(sc.logger, sc.cfg.Server.CORSOrigins)
	sc.services[ServiceHub] = hub

	dispatcher := services.NewDispatcher(sc.logger, notificationService, hub)
	if emailService.IsEnabled() {
		dispatcher.Register(services.NewEmailNotifier(emailService, userService, sc.logger, sc.cfg.Server.AppBaseURL))
	}
	sc.services[ServiceDispatcher] = dispatcher

	machine := workflow.NewMachine(nil)
	lists := services.NewListCache(sc.store, sc.cfg.Auth.ListCacheTTL, sc.logger)

	sc.services[ServiceFeedback] = services.NewFeedbackService(sc.db, sc.logger, userService, machine, lists, dispatcher)
	sc.services[ServiceComment] = services.NewCommentService(sc.db, sc.logger, userService, machine, lists, dispatcher)
	sc.services[ServiceHistory] = services.NewHistoryService(sc.db, sc.logger)

	blobs, err := services.NewBlobStore(ctx, sc.cfg.Attachments)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize attachment store")
	}
	sc.services[ServiceAttachment] = services.NewAttachmentService(sc.db, blobs, sc.cfg.Attachments, sc.logger)

	sc.services[ServiceTokens] = services.NewTokenService(sc.cfg.Auth, sc.store, sc.logger)
	sc.services[ServiceLoginAttempts] = services.NewLoginTracker(sc.store, sc.cfg.Auth.MaxLoginAttempts, sc.cfg.Auth.LoginLockout, sc.logger)
	sc.services[ServiceRateLimiter] = middleware.NewRateLimiter(sc.cfg.RateLimit.RequestsPerMinute, sc.cfg.RateLimit.Burst)

	return nil
}

// EnsureAdminUser creates the admin user if it doesn't exist
func (sc *ServiceContainer) EnsureAdminUser(ctx context.Context) error {
	userService, err := sc.GetUserService()
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to get user service")
	}

	return userService.EnsureAdminUserExists(ctx, sc.cfg.Server.AdminEmail, sc.cfg.Server.AdminPassword)
}

// SeedCategories inserts the default categories that are missing
func (sc *ServiceContainer) SeedCategories(ctx context.Context) (int, error) {
	categories, err := sc.GetCategoryService()
	if err != nil {
		return 0, contextutils.WrapErrorf(err, "failed to get category service")
	}
	return categories.SeedDefaults(ctx)
}
