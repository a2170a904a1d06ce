// Package middleware provides authentication and authorization middleware for the Gin web framework.
package middleware

import (
	"context"
	"strings"

	"collegefeedback/internal/authz"
	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/services"
	contextutils "collegefeedback/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Session and context keys for storing user information
const (
	// UserIDKey is the key used to store user ID in session
	UserIDKey = "user_id"
	// UserEmailKey is the key used to store the email in session
	UserEmailKey = "user_email"
	// ActorKey holds the resolved authz.Actor in the gin context
	ActorKey = "actor"
	// AuthMethodKey records how the request authenticated
	AuthMethodKey = "auth_method"
)

// Authentication methods stored under AuthMethodKey
const (
	AuthMethodSession = "session"
	AuthMethodBearer  = "bearer"
)

// TokenParser validates bearer access tokens
type TokenParser interface {
	Parse(ctx context.Context, raw, kind string) (*services.Claims, error)
}

// UserLoader loads the current account for each request
type UserLoader interface {
	GetUserByID(ctx context.Context, id int) (*models.User, error)
}

// RequireAuth authenticates the request from the session cookie or, failing
// that, an "Authorization: Bearer" access token. The account is reloaded so
// role changes and deactivation take effect immediately.
func RequireAuth(tokens TokenParser, users UserLoader, logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		userID, method, err := identify(c, tokens)
		if err != nil {
			HandleAppError(c, err)
			c.Abort()
			return
		}

		user, err := users.GetUserByID(ctx, userID)
		if err != nil {
			if contextutils.IsError(err, contextutils.ErrRecordNotFound) {
				err = contextutils.WrapError(contextutils.ErrUnauthorized, "account no longer exists")
			}
			HandleAppError(c, err)
			c.Abort()
			return
		}
		if !user.IsActive {
			logger.Security(ctx, "Deactivated account attempted access", map[string]interface{}{"user_id": user.ID})
			HandleAppError(c, contextutils.WrapError(contextutils.ErrUnauthorized, "account is deactivated"))
			c.Abort()
			return
		}

		actor := authz.ActorFromUser(user)
		c.Set(UserIDKey, user.ID)
		c.Set(UserEmailKey, user.Email)
		c.Set(ActorKey, actor)
		c.Set(AuthMethodKey, method)
		c.Set(observability.ActorIDContextKey, user.ID)
		c.Request = c.Request.WithContext(contextutils.WithUserID(ctx, user.ID))

		c.Next()
	}
}

func identify(c *gin.Context, tokens TokenParser) (int, string, error) {
	session := sessions.Default(c)
	if raw := session.Get(UserIDKey); raw != nil {
		switch id := raw.(type) {
		case int:
			return id, AuthMethodSession, nil
		case float64:
			return int(id), AuthMethodSession, nil
		}
	}

	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && tokens != nil {
		claims, err := tokens.Parse(c.Request.Context(), strings.TrimSpace(token), services.TokenKindAccess)
		if err != nil {
			return 0, "", err
		}
		return claims.UserID(), AuthMethodBearer, nil
	}
	return 0, "", contextutils.WrapError(contextutils.ErrUnauthorized, "authentication required")
}

// RequireSuperAdmin must run after RequireAuth
func RequireSuperAdmin(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			HandleAppError(c, contextutils.WrapError(contextutils.ErrUnauthorized, "authentication required"))
			c.Abort()
			return
		}
		if !authz.CanManageUsers(actor) {
			observability.RecordPermissionDenied(c.Request.Context(), c.FullPath(), string(actor.Role))
			logger.Security(c.Request.Context(), "Super admin route denied", map[string]interface{}{
				"actor_id": actor.ID,
				"path":     c.FullPath(),
			})
			HandleAppError(c, contextutils.WrapError(contextutils.ErrForbidden, "super admin access required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// ActorFromContext returns the actor set by RequireAuth
func ActorFromContext(c *gin.Context) (authz.Actor, bool) {
	raw, exists := c.Get(ActorKey)
	if !exists {
		return authz.Actor{}, false
	}
	actor, ok := raw.(authz.Actor)
	return actor, ok
}
