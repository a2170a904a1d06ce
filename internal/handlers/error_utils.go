package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"collegefeedback/internal/middleware"
	contextutils "collegefeedback/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// HandleAppError handles any AppError and sends appropriate HTTP response
func HandleAppError(c *gin.Context, err error) {
	middleware.HandleAppError(c, err)
}

// HandleValidationError handles input validation errors consistently
func HandleValidationError(c *gin.Context, field string, value interface{}, reason string) {
	appErr := contextutils.NewAppError(
		contextutils.ErrorCodeInvalidInput,
		contextutils.SeverityWarn,
		fmt.Sprintf("Invalid %s", field),
		fmt.Sprintf("Value '%v' is invalid: %s", value, reason),
	)
	middleware.StandardizeAppError(c, appErr)
}

// HandleBindError reports a request body that failed to decode or validate.
// Validator failures list every offending field.
func HandleBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, describeFieldError(fe))
		}
		middleware.StandardizeAppError(c, contextutils.NewAppError(
			contextutils.ErrorCodeValidationFailed,
			contextutils.SeverityWarn,
			"Invalid request body",
			strings.Join(fields, "; "),
		))
		return
	}
	middleware.StandardizeAppError(c, contextutils.NewAppErrorWithCause(
		contextutils.ErrorCodeInvalidInput,
		contextutils.SeverityWarn,
		"Invalid request body",
		err.Error(),
		err,
	))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "max":
		return fmt.Sprintf("%s must be %s %s", field, map[string]string{"min": "at least", "max": "at most"}[fe.Tag()], fe.Param())
	case "email":
		return field + " must be a valid email address"
	case feedbackStatusTag:
		return fmt.Sprintf("%s must be a valid status, got %v", field, fe.Value())
	case feedbackPriorityTag:
		return fmt.Sprintf("%s must be a valid priority, got %v", field, fe.Value())
	case userRoleTag:
		return fmt.Sprintf("%s must be a valid role, got %v", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// pathID parses a positive integer path parameter
func pathID(c *gin.Context, name string) (int, bool) {
	raw := c.Param(name)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		HandleValidationError(c, name, raw, "must be a positive integer")
		return 0, false
	}
	return id, true
}
