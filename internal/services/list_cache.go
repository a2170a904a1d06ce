package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"collegefeedback/internal/authz"
	"collegefeedback/internal/cache"
	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
)

const listGenerationKey = "feedback_list:generation"

// ListCache memoizes ticket listings per actor, filter and page. Any ticket
// mutation bumps a generation counter so stale pages are never read again;
// the old entries simply expire.
type ListCache struct {
	store  cache.Store
	ttl    time.Duration
	logger *observability.Logger
}

// NewListCache creates a ListCache. A zero ttl disables memoization.
func NewListCache(store cache.Store, ttl time.Duration, logger *observability.Logger) *ListCache {
	return &ListCache{store: store, ttl: ttl, logger: logger}
}

type cachedPage struct {
	IDs   []int `json:"ids"`
	Total int   `json:"total"`
}

func (c *ListCache) enabled() bool {
	return c != nil && c.store != nil && c.ttl > 0
}

func (c *ListCache) generation(ctx context.Context) string {
	v, ok, err := c.store.Get(ctx, listGenerationKey)
	if err != nil || !ok {
		return "0"
	}
	return v
}

func (c *ListCache) key(ctx context.Context, actor authz.Actor, filter models.FeedbackFilter, page, pageSize int) string {
	return fmt.Sprintf("feedback_list:%s:%d:%s:%s:%d:%d",
		c.generation(ctx), actor.ID, actor.Role, filter.CacheKey(), page, pageSize)
}

// Get returns the memoized ticket ids and total for a listing
func (c *ListCache) Get(ctx context.Context, actor authz.Actor, filter models.FeedbackFilter, page, pageSize int) ([]int, int, bool) {
	if !c.enabled() {
		return nil, 0, false
	}
	ctx, span := observability.TraceCacheFunction(ctx, "list_cache_get")
	defer span.End()

	raw, ok, err := c.store.Get(ctx, c.key(ctx, actor, filter, page, pageSize))
	if err != nil {
		c.logger.Warn(ctx, "List cache read failed", map[string]interface{}{"error": err.Error()})
		return nil, 0, false
	}
	if !ok {
		return nil, 0, false
	}
	var p cachedPage
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, 0, false
	}
	return p.IDs, p.Total, true
}

// Put memoizes a listing
func (c *ListCache) Put(ctx context.Context, actor authz.Actor, filter models.FeedbackFilter, page, pageSize int, ids []int, total int) {
	if !c.enabled() {
		return
	}
	ctx, span := observability.TraceCacheFunction(ctx, "list_cache_put")
	defer span.End()

	raw, err := json.Marshal(cachedPage{IDs: ids, Total: total})
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, c.key(ctx, actor, filter, page, pageSize), string(raw), c.ttl); err != nil {
		c.logger.Warn(ctx, "List cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

// Invalidate makes every memoized listing stale
func (c *ListCache) Invalidate(ctx context.Context) {
	if !c.enabled() {
		return
	}
	if _, err := c.store.Incr(ctx, listGenerationKey, 0); err != nil {
		c.logger.Warn(ctx, "List cache invalidation failed", map[string]interface{}{"error": err.Error()})
	}
}

// Generation exposes the current generation for diagnostics
func (c *ListCache) Generation(ctx context.Context) int64 {
	if !c.enabled() {
		return 0
	}
	n, _ := strconv.ParseInt(c.generation(ctx), 10, 64)
	return n
}
