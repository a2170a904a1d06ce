package observability

import (
	"context"
	"errors"
	"testing"

	"collegefeedback/internal/config"
	contextutils "collegefeedback/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &Logger{Logger: zap.New(core)}, logs
}

func TestLogWithContextAddsTraceInfo(t *testing.T) {
	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	tracer := tp.Tracer("test-tracer")

	logger, logs := newObservedLogger()

	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	logger.Info(ctx, "ticket resolved", nil)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])
}

func TestLogWithContextNoSpan(t *testing.T) {
	logger, logs := newObservedLogger()

	logger.Info(context.Background(), "plain message", nil)

	fields := logs.All()[0].ContextMap()
	assert.NotContains(t, fields, "trace_id")
	assert.NotContains(t, fields, "span_id")
}

func TestLogWithContextAddsRequestAndUser(t *testing.T) {
	logger, logs := newObservedLogger()
	ctx := contextutils.WithUserID(contextutils.WithRequestID(context.Background(), "req-12345678"), 42)

	logger.Info(ctx, "comment added", nil)
	logger.Info(ctx, "explicit user wins", map[string]interface{}{"user_id": 7})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-12345678", entries[0].ContextMap()["request_id"])
	assert.EqualValues(t, 42, entries[0].ContextMap()["user_id"])
	assert.EqualValues(t, 7, entries[1].ContextMap()["user_id"])
}

func TestLogBelowLevelIsDropped(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := &Logger{Logger: zap.New(core)}

	logger.Debug(context.Background(), "noisy", nil)

	assert.Zero(t, logs.Len())
}

func TestLoggerErrorDoesNotMutateCallerFields(t *testing.T) {
	logger, logs := newObservedLogger()
	fields := map[string]interface{}{"feedback_id": 3}

	logger.Error(context.Background(), "update failed", errors.New("boom"), fields)

	assert.NotContains(t, fields, "error")
	entry := logs.All()[0]
	assert.Equal(t, "boom", entry.ContextMap()["error"])
	assert.Equal(t, zap.ErrorLevel, entry.Level)
}

func TestLoggerSecurityEvent(t *testing.T) {
	logger, logs := newObservedLogger()

	logger.Security(context.Background(), "permission denied", map[string]interface{}{"actor_id": 9, "action": "resolve"})

	entry := logs.All()[0]
	assert.Equal(t, zap.WarnLevel, entry.Level)
	assert.Equal(t, true, entry.ContextMap()["security_event"])
	assert.Equal(t, "resolve", entry.ContextMap()["action"])
}

func TestNewLogger_DisabledIsNop(t *testing.T) {
	logger := NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	require.NotNil(t, logger)
	logger.Info(context.Background(), "dropped")

	assert.NotNil(t, NewLogger(nil))
}
