package contextutils

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		expected string
	}{
		{
			name: "error with details",
			appError: &AppError{
				Code:     ErrorCodeInvalidInput,
				Severity: SeverityError,
				Message:  "Invalid input",
				Details:  "Field 'title' is required",
			},
			expected: "INVALID_INPUT: Invalid input - Field 'title' is required",
		},
		{
			name: "error without details",
			appError: &AppError{
				Code:     ErrorCodeRecordNotFound,
				Severity: SeverityInfo,
				Message:  "Record not found",
			},
			expected: "RECORD_NOT_FOUND: Record not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appError.Error())
		})
	}
}

func TestAppError_Is(t *testing.T) {
	err1 := &AppError{Code: ErrorCodeConflict}
	err2 := &AppError{Code: ErrorCodeConflict}
	err3 := &AppError{Code: ErrorCodeRecordNotFound}

	assert.True(t, err1.Is(err2))
	assert.False(t, err1.Is(err3))
	assert.False(t, err1.Is(errors.New("regular error")))
}

func TestWrapError_PreservesCode(t *testing.T) {
	wrapped := WrapError(ErrForbidden, "cannot resolve feedback 7")

	assert.True(t, IsError(wrapped, ErrForbidden))
	assert.True(t, errors.Is(wrapped, ErrForbidden))
	assert.Equal(t, ErrorCodeForbidden, GetErrorCode(wrapped))
	assert.Equal(t, SeverityWarn, GetErrorSeverity(wrapped))

	twice := WrapErrorf(wrapped, "transaction for %d", 7)
	assert.True(t, IsError(twice, ErrForbidden))
}

func TestWrapError_PlainErrorBecomesInternal(t *testing.T) {
	wrapped := WrapError(errors.New("boom"), "query failed")

	assert.Equal(t, ErrorCodeInternalError, GetErrorCode(wrapped))
	assert.Contains(t, wrapped.Error(), "boom")
	assert.Nil(t, WrapError(nil, "nothing"))
}

func TestWrapErrorf_WithWrapVerb(t *testing.T) {
	inner := errors.New("inner")
	wrapped := WrapErrorf(ErrConflict, "ticket busy: %w", inner)

	assert.True(t, IsError(wrapped, ErrConflict))
	assert.True(t, errors.Is(wrapped, inner))
}

func TestIsError_ThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("handler: %w", ErrRecordNotFound)
	assert.True(t, IsError(err, ErrRecordNotFound))
	assert.False(t, IsError(err, ErrConflict))

	var appErr *AppError
	require.True(t, AsError(err, &appErr))
	assert.Equal(t, ErrorCodeRecordNotFound, appErr.Code)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrServiceUnavailable))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.False(t, IsRetryable(ErrValidationFailed))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestAppError_ToJSON(t *testing.T) {
	cause := errors.New("pq: connection refused")
	appErr := NewAppErrorWithCause(ErrorCodeDatabaseConnection, SeverityError, "Database connection failed", "dial", cause)

	result := appErr.ToJSON()
	assert.Equal(t, "DATABASE_CONNECTION_ERROR", result["code"])
	assert.Equal(t, "Database connection failed", result["error"])
	assert.Equal(t, "dial", result["details"])
	assert.Equal(t, true, result["retryable"])
	assert.Equal(t, "pq: connection refused", result["cause"])

	warn := ErrForbidden.ToJSON()
	_, hasCause := warn["cause"]
	assert.False(t, hasCause)
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, 0, GetUserIDFromContext(ctx))
	assert.Equal(t, "", GetRequestIDFromContext(ctx))

	ctx = WithUserID(ctx, 42)
	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, 42, GetUserIDFromContext(ctx))
	assert.Equal(t, "req-1", GetRequestIDFromContext(ctx))
}
