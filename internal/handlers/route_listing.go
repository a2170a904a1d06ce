package handlers

import (
	"net/http"
	"sort"
	"strings"

	"collegefeedback/internal/observability"
	"collegefeedback/internal/version"

	"github.com/gin-gonic/gin"
)

// Endpoint is one registered route in the API index
type Endpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// APIIndex serves the list of registered /v1 endpoints at the root path
type APIIndex struct {
	service   string
	endpoints []Endpoint
}

// NewAPIIndex snapshots the engine's /v1 routes, grouped by path
func NewAPIIndex(service string, engine *gin.Engine) *APIIndex {
	idx := &APIIndex{service: service}
	for _, r := range engine.Routes() {
		if !strings.HasPrefix(r.Path, "/v1/") {
			continue
		}
		idx.endpoints = append(idx.endpoints, Endpoint{Method: r.Method, Path: r.Path})
	}
	sort.Slice(idx.endpoints, func(i, j int) bool {
		if idx.endpoints[i].Path == idx.endpoints[j].Path {
			return idx.endpoints[i].Method < idx.endpoints[j].Method
		}
		return idx.endpoints[i].Path < idx.endpoints[j].Path
	})
	return idx
}

// Serve writes the index
func (idx *APIIndex) Serve(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "api_index")
	defer observability.FinishSpan(span, nil)

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.JSON(http.StatusOK, gin.H{
		"service":   idx.service,
		"version":   version.Get(idx.service).Version,
		"endpoints": idx.endpoints,
	})
}
