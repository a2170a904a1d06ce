package handlers

import (
	"collegefeedback/internal/authz"
	"collegefeedback/internal/middleware"
	"collegefeedback/internal/models"
	contextutils "collegefeedback/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// sessionUserID returns the user stored in the cookie session, if any
func sessionUserID(c *gin.Context) (int, bool) {
	id, ok := sessions.Default(c).Get(middleware.UserIDKey).(int)
	return id, ok && id > 0
}

// currentActor returns the actor resolved by RequireAuth, writing a 401 when absent
func currentActor(c *gin.Context) (authz.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrUnauthorized, "authentication required"))
		return authz.Actor{}, false
	}
	return actor, true
}

func startSession(c *gin.Context, user *models.User) error {
	session := sessions.Default(c)
	session.Set(middleware.UserIDKey, user.ID)
	session.Set(middleware.UserEmailKey, user.Email)
	return session.Save()
}

func clearSession(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	return session.Save()
}
