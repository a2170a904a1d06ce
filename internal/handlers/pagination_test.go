package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestParsePagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		query    string
		page     int
		pageSize int
	}{
		{"", 1, 20},
		{"?page=abc&page_size=-5", 1, 20},
		{"?page=0&page_size=0", 1, 20},
		{"?page=3&page_size=50", 3, 50},
		{"?page=2&page_size=5000", 2, 100},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/v1/feedback"+tt.query, nil)

			page, size := ParsePagination(c, 1, 20, 100)
			assert.Equal(t, tt.page, page)
			assert.Equal(t, tt.pageSize, size)
		})
	}
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		page, size, total int
		wantPages         int
	}{
		{1, 20, 0, 0},
		{1, 20, 20, 1},
		{2, 20, 21, 2},
		{1, 0, 5, 0},
	}
	for _, tt := range tests {
		p := NewPagination(tt.page, tt.size, tt.total)
		assert.Equal(t, tt.wantPages, p.TotalPages, "total=%d size=%d", tt.total, tt.size)
		assert.Equal(t, tt.total, p.Total)
	}
}

func TestWritePaginated_BuildsStandardResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.GET("/v1/notifications", func(c *gin.Context) {
		WritePaginated(c, "items", []int{1, 2, 3}, NewPagination(1, 20, 3), gin.H{"unread": 2})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/notifications", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"items":[1,2,3]`)
	assert.Contains(t, body, `"pagination":{"page":1,"page_size":20,"total":3,"total_pages":1}`)
	assert.Contains(t, body, `"unread":2`)
}
