package handlers

import (
	"sync"

	"collegefeedback/internal/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	feedbackStatusTag   = "feedback_status"
	feedbackPriorityTag = "feedback_priority"
	userRoleTag         = "user_role"
)

var registerValidatorsOnce sync.Once

// RegisterValidators adds the domain validation tags to gin's validator engine
func RegisterValidators() {
	registerValidatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation(feedbackStatusTag, func(fl validator.FieldLevel) bool {
			return models.FeedbackStatus(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation(feedbackPriorityTag, func(fl validator.FieldLevel) bool {
			return models.FeedbackPriority(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation(userRoleTag, func(fl validator.FieldLevel) bool {
			return models.Role(fl.Field().String()).Valid()
		})
	})
}
