package handlers

import (
	"net/http"
	"strings"

	"collegefeedback/internal/config"
	"collegefeedback/internal/middleware"
	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	"collegefeedback/internal/services"
	contextutils "collegefeedback/internal/utils"

	"github.com/gin-gonic/gin"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"go.opentelemetry.io/otel/attribute"
)

// RegisterRequest is the self-service signup body
type RegisterRequest struct {
	Email      openapi_types.Email `json:"email" binding:"required"`
	Password   string              `json:"password" binding:"required"`
	FirstName  string              `json:"first_name" binding:"max=100"`
	LastName   string              `json:"last_name" binding:"max=100"`
	StudentID  string              `json:"student_id" binding:"max=50"`
	Department string              `json:"department" binding:"max=100"`
}

// LoginRequest carries credentials
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest carries a refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest optionally names a refresh token to revoke
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChangePasswordRequest is the self-service password change body
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// AuthResponse is returned by login, register and refresh
type AuthResponse struct {
	User   *models.User        `json:"user"`
	Tokens *services.TokenPair `json:"tokens"`
}

// AuthHandler handles authentication related HTTP requests
type AuthHandler struct {
	userService serviceinterfaces.UserServiceInterface
	tokens      *services.TokenService
	attempts    *services.LoginTracker
	config      *config.Config
	logger      *observability.Logger
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(userService serviceinterfaces.UserServiceInterface, tokens *services.TokenService, attempts *services.LoginTracker, cfg *config.Config, logger *observability.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		tokens:      tokens,
		attempts:    attempts,
		config:      cfg,
		logger:      logger,
	}
}

// issue opens a browser session and mints a token pair for API clients
func (h *AuthHandler) issue(c *gin.Context, status int, user *models.User) {
	if err := startSession(c, user); err != nil {
		h.logger.Error(c.Request.Context(), "Failed to save session", err, map[string]interface{}{"user_id": user.ID})
		HandleAppError(c, contextutils.WrapError(err, "failed to create session"))
		return
	}
	pair, err := h.tokens.IssuePair(user)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(status, AuthResponse{User: user, Tokens: pair})
}

// Register creates a student account
func (h *AuthHandler) Register(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "register")
	defer observability.FinishSpan(span, nil)

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}

	user, err := h.userService.Register(ctx, serviceinterfaces.NewUser{
		Email:      string(req.Email),
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		StudentID:  req.StudentID,
		Department: req.Department,
	})
	if err != nil {
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(attribute.Int("user.id", user.ID))
	h.logger.Info(ctx, "User registered", map[string]interface{}{"user_id": user.ID})

	h.issue(c, http.StatusCreated, user)
}

// Login authenticates by email and password
func (h *AuthHandler) Login(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "login")
	defer observability.FinishSpan(span, nil)

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	email := contextutils.NormalizeEmail(req.Email)
	span.SetAttributes(attribute.Bool("auth.password_provided", req.Password != ""))

	if err := h.attempts.Check(ctx, email); err != nil {
		HandleAppError(c, err)
		return
	}

	user, err := h.userService.AuthenticateUser(ctx, email, req.Password)
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrInvalidCredentials) {
			h.attempts.Failed(ctx, email)
		}
		HandleAppError(c, err)
		return
	}
	h.attempts.Succeeded(ctx, email)

	span.SetAttributes(
		attribute.Int("user.id", user.ID),
		attribute.String("user.role", string(user.Role)),
	)

	h.issue(c, http.StatusOK, user)
}

// Refresh exchanges a refresh token for a new pair
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "refresh_token")
	defer observability.FinishSpan(span, nil)

	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}

	pair, user, err := h.tokens.Refresh(ctx, strings.TrimSpace(req.RefreshToken), h.userService)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, AuthResponse{User: user, Tokens: pair})
}

// Logout clears the session and revokes the presented tokens
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "logout")
	defer observability.FinishSpan(span, nil)

	if id, ok := sessionUserID(c); ok {
		span.SetAttributes(attribute.Int("user.id", id))
	}

	var req LogoutRequest
	// The body is optional
	_ = c.ShouldBindJSON(&req)

	if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
		if claims, err := h.tokens.Parse(ctx, raw, services.TokenKindRefresh); err == nil {
			if err := h.tokens.Revoke(ctx, claims); err != nil {
				h.logger.Warn(ctx, "Failed to revoke refresh token", map[string]interface{}{"error": err.Error()})
			}
		}
	}
	if bearer, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		if claims, err := h.tokens.Parse(ctx, strings.TrimSpace(bearer), services.TokenKindAccess); err == nil {
			if err := h.tokens.Revoke(ctx, claims); err != nil {
				h.logger.Warn(ctx, "Failed to revoke access token", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	if err := clearSession(c); err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to clear session"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out"})
}

// Me returns the authenticated account
func (h *AuthHandler) Me(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "current_user")
	defer observability.FinishSpan(span, nil)

	userID := c.GetInt(middleware.UserIDKey)
	user, err := h.userService.GetUserByID(ctx, userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// ChangePassword updates the caller's password after checking the current one
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "change_password")
	defer observability.FinishSpan(span, nil)

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	userID := c.GetInt(middleware.UserIDKey)
	if err := h.userService.ChangePassword(ctx, userID, req.CurrentPassword, req.NewPassword); err != nil {
		HandleAppError(c, err)
		return
	}
	h.logger.Security(ctx, "Password changed", map[string]interface{}{"user_id": userID})
	c.JSON(http.StatusOK, gin.H{"success": true})
}
