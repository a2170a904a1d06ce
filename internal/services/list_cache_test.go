package services

import (
	"context"
	"testing"
	"time"

	"collegefeedback/internal/cache"
	"collegefeedback/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestListCache_PutGetInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewListCache(cache.NewMemoryStore(), time.Minute, testLogger())
	filter := models.FeedbackFilter{Status: models.StatusPending}

	_, _, ok := c.Get(ctx, studentActor, filter, 1, 20)
	assert.False(t, ok)

	c.Put(ctx, studentActor, filter, 1, 20, []int{3, 2}, 7)
	ids, total, ok := c.Get(ctx, studentActor, filter, 1, 20)
	assert.True(t, ok)
	assert.Equal(t, []int{3, 2}, ids)
	assert.Equal(t, 7, total)

	// other actors, filters and pages do not share entries
	_, _, ok = c.Get(ctx, superActor, filter, 1, 20)
	assert.False(t, ok)
	_, _, ok = c.Get(ctx, studentActor, models.FeedbackFilter{}, 1, 20)
	assert.False(t, ok)
	_, _, ok = c.Get(ctx, studentActor, filter, 2, 20)
	assert.False(t, ok)

	c.Invalidate(ctx)
	assert.Equal(t, int64(1), c.Generation(ctx))
	_, _, ok = c.Get(ctx, studentActor, filter, 1, 20)
	assert.False(t, ok)
}

func TestListCache_DisabledWithoutTTL(t *testing.T) {
	ctx := context.Background()
	c := NewListCache(cache.NewMemoryStore(), 0, testLogger())

	c.Put(ctx, studentActor, models.FeedbackFilter{}, 1, 20, []int{1}, 1)
	_, _, ok := c.Get(ctx, studentActor, models.FeedbackFilter{}, 1, 20)
	assert.False(t, ok)
	c.Invalidate(ctx)
	assert.Zero(t, c.Generation(ctx))

	var nilCache *ListCache
	nilCache.Invalidate(ctx)
	_, _, ok = nilCache.Get(ctx, studentActor, models.FeedbackFilter{}, 1, 20)
	assert.False(t, ok)
}
