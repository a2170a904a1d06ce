package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"collegefeedback/internal/config"
	"collegefeedback/internal/middleware"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	"collegefeedback/internal/services"
	"collegefeedback/internal/version"
)

// RouterDeps collects the services the HTTP layer calls
type RouterDeps struct {
	Users         serviceinterfaces.UserServiceInterface
	Categories    serviceinterfaces.CategoryServiceInterface
	Feedback      serviceinterfaces.FeedbackServiceInterface
	Comments      serviceinterfaces.CommentServiceInterface
	History       serviceinterfaces.HistoryServiceInterface
	Notifications serviceinterfaces.NotificationServiceInterface
	Attachments   serviceinterfaces.AttachmentServiceInterface
	Tokens        *services.TokenService
	LoginAttempts *services.LoginTracker
	RateLimiter   *middleware.RateLimiter
	// Live is optional; without it the websocket route answers 404
	Live LiveUpdates
}

// requestLogger logs every request through the observability logger
func requestLogger(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		statusCode := c.Writer.Status()
		elapsed := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		observability.RecordRequestDuration(c.Request.Context(), c.Request.Method, route, statusCode, elapsed)

		fields := map[string]interface{}{
			"http.method":      c.Request.Method,
			"http.path":        c.Request.URL.Path,
			"http.status_code": statusCode,
			"http.latency_ms":  elapsed.Milliseconds(),
			"http.client_ip":   c.ClientIP(),
			"http.user_agent":  c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}

		switch {
		case statusCode >= 500:
			fields["http.error_type"] = "server_error"
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		case statusCode >= 400:
			fields["http.error_type"] = "client_error"
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		default:
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	}
}

// NewRouter creates the gin engine with all middleware and routes
func NewRouter(cfg *config.Config, deps RouterDeps, logger *observability.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}
	RegisterValidators()

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.ErrorRecoveryMiddleware(logger))
	router.Use(requestLogger(logger))

	// Health check endpoint (defined before any middleware)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.OpenTelemetry.ServiceName})
	})

	router.Use(observability.GinMiddleware(cfg.OpenTelemetry.ServiceName))
	router.Use(observability.ErrorAnnotationMiddleware())

	// Disable automatic redirection for trailing slashes, which is better for APIs
	router.RedirectTrailingSlash = false

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader, "Retry-After"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	sessionOpts := sessions.Options{
		Path:     config.SessionPath,
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		HttpOnly: config.SessionHTTPOnly,
		Secure:   config.SessionSecure,
	}
	if cfg.Server.Debug {
		sessionOpts.SameSite = http.SameSiteDefaultMode
	} else {
		sessionOpts.SameSite = http.SameSiteLaxMode
		sessionOpts.Secure = true
	}
	store.Options(sessionOpts)
	router.Use(sessions.Sessions(config.SessionName, store))

	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.IsDevelopment = cfg.Server.Debug
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	if deps.RateLimiter != nil {
		router.Use(deps.RateLimiter.Middleware(logger))
	}

	authHandler := NewAuthHandler(deps.Users, deps.Tokens, deps.LoginAttempts, cfg, logger)
	feedbackHandler := NewFeedbackHandler(deps.Feedback, deps.Comments, deps.History, logger)
	categoryHandler := NewCategoryHandler(deps.Categories, logger)
	userAdminHandler := NewUserAdminHandler(deps.Users, logger)
	notificationHandler := NewNotificationHandler(deps.Notifications, deps.Live, logger)
	attachmentHandler := NewAttachmentHandler(deps.Attachments, cfg.Attachments.MaxBytes, logger)

	requireAuth := middleware.RequireAuth(deps.Tokens, deps.Users, logger)

	v1 := router.Group("/v1")
	{
		v1.GET("/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, version.Get(cfg.OpenTelemetry.ServiceName))
		})

		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", requireAuth, authHandler.Me)
			auth.POST("/change-password", requireAuth, authHandler.ChangePassword)
		}

		v1.GET("/categories", categoryHandler.List)

		authed := v1.Group("")
		authed.Use(requireAuth)
		{
			feedback := authed.Group("/feedback")
			{
				feedback.POST("", feedbackHandler.Create)
				feedback.GET("", feedbackHandler.List)
				feedback.GET("/mine", feedbackHandler.Mine)
				feedback.GET("/dashboard", feedbackHandler.Dashboard)
				feedback.GET("/:id", feedbackHandler.Get)
				feedback.PATCH("/:id", feedbackHandler.Update)
				feedback.POST("/:id/resolve", feedbackHandler.Resolve)
				feedback.POST("/:id/reopen", feedbackHandler.Reopen)
				feedback.POST("/:id/assign", feedbackHandler.Assign)
				feedback.POST("/:id/rate", feedbackHandler.Rate)
				feedback.GET("/:id/comments", feedbackHandler.ListComments)
				feedback.POST("/:id/comments", feedbackHandler.AddComment)
				feedback.GET("/:id/history", feedbackHandler.History)
			}

			notifications := authed.Group("/notifications")
			{
				notifications.GET("", notificationHandler.List)
				notifications.POST("/read", notificationHandler.MarkRead)
				notifications.GET("/ws", notificationHandler.Stream)
			}

			attachments := authed.Group("/attachments")
			{
				attachments.POST("", attachmentHandler.Upload)
				attachments.GET("/:key", attachmentHandler.Download)
			}

			authed.GET("/users/admins", userAdminHandler.ListAdmins)
		}

		admin := v1.Group("/admin")
		admin.Use(requireAuth, middleware.RequireSuperAdmin(logger))
		{
			admin.GET("/users", userAdminHandler.ListUsers)
			admin.POST("/users", userAdminHandler.CreateUser)
			admin.PUT("/users/:id/role", userAdminHandler.SetRole)
			admin.PUT("/users/:id/active", userAdminHandler.SetActive)
			admin.POST("/users/:id/reset-password", userAdminHandler.ResetPassword)

			admin.GET("/categories", categoryHandler.ListAll)
			admin.POST("/categories", categoryHandler.Create)
			admin.PATCH("/categories/:id", categoryHandler.Update)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	index := NewAPIIndex(cfg.OpenTelemetry.ServiceName, router)
	router.GET("/", index.Serve)

	return router
}
