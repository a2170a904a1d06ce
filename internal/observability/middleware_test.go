package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	contextutils "collegefeedback/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newSpanRouter(t *testing.T, handler gin.HandlerFunc) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "request")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.Use(ErrorAnnotationMiddleware())
	r.GET("/x", handler)
	return r, recorder
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestErrorAnnotationMiddleware_ClientError(t *testing.T) {
	r, recorder := newSpanRouter(t, func(c *gin.Context) {
		c.Set(ActorIDContextKey, 12)
		_ = c.Error(contextutils.ErrForbidden)
		c.AbortWithStatus(http.StatusForbidden)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := spans[0].Attributes()

	code, ok := attrValue(attrs, "error.code")
	require.True(t, ok)
	assert.Equal(t, string(contextutils.ErrorCodeForbidden), code.AsString())

	actor, ok := attrValue(attrs, "error.actor_id")
	require.True(t, ok)
	assert.Equal(t, int64(12), actor.AsInt64())

	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
}

func TestErrorAnnotationMiddleware_ServerError(t *testing.T) {
	r, recorder := newSpanRouter(t, func(c *gin.Context) {
		c.AbortWithStatus(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	severity, _ := attrValue(spans[0].Attributes(), "error.severity")
	assert.Equal(t, "error", severity.AsString())
}

func TestErrorAnnotationMiddleware_SuccessUntouched(t *testing.T) {
	r, recorder := newSpanRouter(t, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	_, ok := attrValue(spans[0].Attributes(), "http.status_code")
	assert.False(t, ok)
}
