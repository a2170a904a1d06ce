package handlers

import (
	"net/http"

	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	contextutils "collegefeedback/internal/utils"

	"github.com/gin-gonic/gin"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// UserCreateRequest represents a request to create a new user
type UserCreateRequest struct {
	Email         openapi_types.Email `json:"email" binding:"required"`
	Password      string              `json:"password" binding:"required"`
	FirstName     string              `json:"first_name" binding:"max=100"`
	LastName      string              `json:"last_name" binding:"max=100"`
	Role          string              `json:"role" binding:"required,user_role"`
	CategoryScope string              `json:"category_scope" binding:"max=100"`
	StudentID     string              `json:"student_id" binding:"max=50"`
	Department    string              `json:"department" binding:"max=100"`
}

// RoleUpdateRequest changes a user's role and scope
type RoleUpdateRequest struct {
	Role          string `json:"role" binding:"required,user_role"`
	CategoryScope string `json:"category_scope" binding:"max=100"`
}

// ActiveUpdateRequest activates or deactivates an account
type ActiveUpdateRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// PasswordResetRequest represents a request to reset user password
type PasswordResetRequest struct {
	NewPassword string `json:"new_password" binding:"required"`
}

// UserAdminHandler handles user management operations
type UserAdminHandler struct {
	userService serviceinterfaces.UserServiceInterface
	logger      *observability.Logger
}

// NewUserAdminHandler creates a new UserAdminHandler instance
func NewUserAdminHandler(userService serviceinterfaces.UserServiceInterface, logger *observability.Logger) *UserAdminHandler {
	return &UserAdminHandler{userService: userService, logger: logger}
}

// ListUsers handles GET /admin/users
func (h *UserAdminHandler) ListUsers(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_users")
	defer observability.FinishSpan(span, nil)

	var role models.Role
	if raw := c.Query("role"); raw != "" {
		r, err := models.ParseRole(raw)
		if err != nil {
			HandleValidationError(c, "role", raw, "unknown role")
			return
		}
		role = r
	}
	page, pageSize := ParsePagination(c, 1, 20, 100)

	users, total, err := h.userService.ListUsers(ctx, page, pageSize, c.Query("search"), role)
	if err != nil {
		h.logger.Error(ctx, "Error retrieving users", err, nil)
		HandleAppError(c, err)
		return
	}
	WritePaginated(c, "users", users, NewPagination(page, pageSize, total), nil)
}

// ListAdmins returns every active admin, used to pick assignees
func (h *UserAdminHandler) ListAdmins(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_admins")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		observability.RecordPermissionDenied(ctx, "list_admins", string(actor.Role))
		HandleAppError(c, contextutils.WrapError(contextutils.ErrForbidden, "admin access required"))
		return
	}
	admins, err := h.userService.ListAdmins(ctx)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": admins})
}

// CreateUser handles POST /admin/users
func (h *UserAdminHandler) CreateUser(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "create_user")
	defer observability.FinishSpan(span, nil)

	var req UserCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	user, err := h.userService.CreateUser(ctx, serviceinterfaces.NewUser{
		Email:      string(req.Email),
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Role:       models.Role(req.Role),
		Scope:      models.NewCategoryScope(req.CategoryScope),
		StudentID:  req.StudentID,
		Department: req.Department,
	})
	if err != nil {
		HandleAppError(c, err)
		return
	}
	h.logger.Info(ctx, "User created by admin", map[string]interface{}{"user_id": user.ID, "role": string(user.Role)})
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// SetRole handles PUT /admin/users/:id/role
func (h *UserAdminHandler) SetRole(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "set_user_role")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req RoleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	user, err := h.userService.SetRole(ctx, actor, id, models.Role(req.Role), models.NewCategoryScope(req.CategoryScope))
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// SetActive handles PUT /admin/users/:id/active
func (h *UserAdminHandler) SetActive(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "set_user_active")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ActiveUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	user, err := h.userService.SetActive(ctx, actor, id, *req.Active)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// ResetPassword handles POST /admin/users/:id/reset-password
func (h *UserAdminHandler) ResetPassword(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "reset_user_password")
	defer observability.FinishSpan(span, nil)

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	if err := h.userService.SetPassword(ctx, id, req.NewPassword); err != nil {
		HandleAppError(c, err)
		return
	}
	h.logger.Security(ctx, "Password reset by admin", map[string]interface{}{
		"user_id":  id,
		"actor_id": c.GetInt(observability.ActorIDContextKey),
	})
	c.JSON(http.StatusOK, gin.H{"success": true})
}
