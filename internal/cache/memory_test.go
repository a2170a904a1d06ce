package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"collegefeedback/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedStore() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore()
	s.now = clock.now
	return s, clock
}

func TestMemoryStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newClockedStore()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, s.Delete(ctx, "k", "never-set"))
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s, clock := newClockedStore()

	require.NoError(t, s.Set(ctx, "k", "v", 30*time.Second))
	ttl, err := s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, ttl)

	clock.advance(29 * time.Second)
	_, ok, _ := s.Get(ctx, "k")
	assert.True(t, ok)

	clock.advance(time.Second)
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok)

	ttl, err = s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, ttl)
}

func TestMemoryStore_IncrKeepsFirstTTL(t *testing.T) {
	ctx := context.Background()
	s, clock := newClockedStore()

	n, err := s.Incr(ctx, "attempts", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	clock.advance(40 * time.Second)
	n, err = s.Incr(ctx, "attempts", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	ttl, _ := s.TTL(ctx, "attempts")
	assert.Equal(t, 20*time.Second, ttl, "the window is not extended by later increments")

	clock.advance(20 * time.Second)
	n, err = s.Incr(ctx, "attempts", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "a new window starts after expiry")
}

func TestMemoryStore_IncrNonNumeric(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "k", "abc", 0))
	_, err := s.Incr(ctx, "k", 0)
	assert.Error(t, err)
}

func TestNew_FallsBackToMemory(t *testing.T) {
	s, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}

func TestMemoryStore_SweepsKeysNeverReadAgain(t *testing.T) {
	ctx := context.Background()
	s, clock := newClockedStore()

	// Generation-stamped list pages: each page key is written once and
	// abandoned when the generation moves on.
	for i := 0; i < 1000; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("feedback_list:%d:1:student::1:20", i), "{}", 30*time.Second))
		_, err := s.Incr(ctx, "feedback_list:generation", 0)
		require.NoError(t, err)
		clock.advance(time.Second)
	}

	s.mu.Lock()
	remaining := len(s.entries)
	s.mu.Unlock()
	assert.LessOrEqual(t, remaining, 1+int((sweepInterval+30*time.Second)/time.Second))

	v, ok, err := s.Get(ctx, "feedback_list:generation")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1000", v, "entries without a ttl survive sweeps")
}

func TestMemoryStore_SetNX(t *testing.T) {
	ctx := context.Background()
	s, clock := newClockedStore()

	ok, err := s.SetNX(ctx, "revoked:abc", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "revoked:abc", "1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second writer loses")

	clock.advance(time.Minute)
	ok, err = s.SetNX(ctx, "revoked:abc", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "an expired key is absent")
}
