package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bindProbe struct {
	Title    string  `json:"title" binding:"required"`
	Status   *string `json:"status" binding:"omitempty,feedback_status"`
	Priority string  `json:"priority" binding:"omitempty,feedback_priority"`
}

func bindRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	RegisterValidators()
	r := gin.New()
	r.POST("/bind", func(c *gin.Context) {
		var req bindProbe
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleBindError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	r.GET("/items/:id", func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	})
	return r
}

func TestHandleBindError(t *testing.T) {
	r := bindRouter()

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
		details  string
	}{
		{"valid", `{"title":"x","status":"resolved","priority":"low"}`, http.StatusNoContent, "", ""},
		{"missing title", `{}`, http.StatusBadRequest, "VALIDATION_FAILED", "Title is required"},
		{"bad status", `{"title":"x","status":"done"}`, http.StatusBadRequest, "VALIDATION_FAILED", "Status must be a valid status"},
		{"bad priority", `{"title":"x","priority":"asap"}`, http.StatusBadRequest, "VALIDATION_FAILED", "Priority must be a valid priority"},
		{"malformed json", `{"title":`, http.StatusBadRequest, "INVALID_INPUT", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/bind", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantErr == "" {
				return
			}
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantErr, body["code"])
			if tt.details != "" {
				assert.Contains(t, body["details"], tt.details)
			}
		})
	}
}

func TestPathID(t *testing.T) {
	r := bindRouter()

	for path, want := range map[string]int{"/items/12": http.StatusOK, "/items/0": http.StatusBadRequest, "/items/x1": http.StatusBadRequest} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, w.Code, path)
	}
}
