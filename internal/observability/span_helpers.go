package observability

import (
	contextutils "collegefeedback/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FinishSpan ends a span and records any error pointed to by errPtr.
// Use with a named error return: `defer observability.FinishSpan(span, &err)`
//
// Caller mistakes (validation, permission, not found, conflict) are recorded
// as events with their code but leave the span status unset.
func FinishSpan(span trace.Span, errPtr *error) {
	if span == nil {
		return
	}
	if errPtr != nil && *errPtr != nil {
		err := *errPtr
		code := contextutils.GetErrorCode(err)
		span.SetAttributes(attribute.String("error.code", string(code)))
		if isClientErrorCode(code) {
			span.AddEvent("request rejected", trace.WithAttributes(attribute.String("error.message", err.Error())))
		} else {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

func isClientErrorCode(code contextutils.ErrorCode) bool {
	switch code {
	case contextutils.ErrorCodeInvalidInput,
		contextutils.ErrorCodeMissingRequired,
		contextutils.ErrorCodeInvalidFormat,
		contextutils.ErrorCodeValidationFailed,
		contextutils.ErrorCodeWeakPassword,
		contextutils.ErrorCodePayloadTooLarge,
		contextutils.ErrorCodeUnsupportedMediaType,
		contextutils.ErrorCodeUnauthorized,
		contextutils.ErrorCodeForbidden,
		contextutils.ErrorCodeInvalidCredentials,
		contextutils.ErrorCodeSessionExpired,
		contextutils.ErrorCodeRecordNotFound,
		contextutils.ErrorCodeRecordExists,
		contextutils.ErrorCodeConflict,
		contextutils.ErrorCodeRateLimit,
		contextutils.ErrorCodeCategoryInactive:
		return true
	}
	return false
}
