package handlers

import (
	"net/http"

	"collegefeedback/internal/middleware"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"

	"github.com/gin-gonic/gin"
)

// CategoryRequest creates a category
type CategoryRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description" binding:"max=500"`
	Icon        string `json:"icon" binding:"max=50"`
}

// CategoryPatchRequest updates the provided fields only
type CategoryPatchRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=100"`
	Description *string `json:"description" binding:"omitempty,max=500"`
	Icon        *string `json:"icon" binding:"omitempty,max=50"`
	Active      *bool   `json:"active"`
}

// CategoryHandler serves the category registry
type CategoryHandler struct {
	categories serviceinterfaces.CategoryServiceInterface
	logger     *observability.Logger
}

// NewCategoryHandler creates a new CategoryHandler
func NewCategoryHandler(categories serviceinterfaces.CategoryServiceInterface, logger *observability.Logger) *CategoryHandler {
	return &CategoryHandler{categories: categories, logger: logger}
}

// List returns active categories; admins may ask for inactive ones too
func (h *CategoryHandler) List(c *gin.Context) {
	includeInactive := false
	if c.Query("include_inactive") == "true" {
		actor, ok := middleware.ActorFromContext(c)
		includeInactive = ok && actor.IsAdmin()
	}
	h.list(c, includeInactive)
}

// ListAll returns every category including inactive ones
func (h *CategoryHandler) ListAll(c *gin.Context) {
	h.list(c, true)
}

func (h *CategoryHandler) list(c *gin.Context, includeInactive bool) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_categories")
	defer observability.FinishSpan(span, nil)

	list, err := h.categories.List(ctx, includeInactive)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	out := make([]CategoryResponse, 0, len(list))
	for i := range list {
		out = append(out, convertCategoryToAPI(&list[i]))
	}
	c.JSON(http.StatusOK, gin.H{"categories": out})
}

// Create adds a category
func (h *CategoryHandler) Create(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "create_category")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	cat, err := h.categories.Create(ctx, actor, req.Name, req.Description, req.Icon)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, convertCategoryToAPI(cat))
}

// Update edits a category and toggles its active flag
func (h *CategoryHandler) Update(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "update_category")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req CategoryPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}

	cat, err := h.categories.GetByID(ctx, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if req.Name != nil || req.Description != nil || req.Icon != nil {
		if cat, err = h.categories.Update(ctx, actor, id, req.Name, req.Description, req.Icon); err != nil {
			HandleAppError(c, err)
			return
		}
	}
	if req.Active != nil && *req.Active != cat.Active {
		if cat, err = h.categories.SetActive(ctx, actor, id, *req.Active); err != nil {
			HandleAppError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, convertCategoryToAPI(cat))
}
