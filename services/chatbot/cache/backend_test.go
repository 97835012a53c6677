package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withFakeClock replaces the backend clock with a manually advanced one.
func withFakeClock(c *InMemoryBackend) func(time.Duration) {
	current := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }
	return func(d time.Duration) { current = current.Add(d) }
}

func TestInMemoryBackend_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryBackend(10, time.Hour)

	ok := c.Set(ctx, "k1", []byte(`{"answer":"42"}`), 0)
	require.True(t, ok)

	value, hit := c.Get(ctx, "k1")
	require.True(t, hit)
	assert.Equal(t, []byte(`{"answer":"42"}`), value)

	_, hit = c.Get(ctx, "missing")
	assert.False(t, hit)
}

func TestInMemoryBackend_LazyExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryBackend(10, time.Hour)
	advance := withFakeClock(c)

	c.Set(ctx, "k1", []byte("v1"), 10*time.Second)

	advance(5 * time.Second)
	_, hit := c.Get(ctx, "k1")
	assert.True(t, hit, "entry should still be live")

	advance(6 * time.Second)
	_, hit = c.Get(ctx, "k1")
	assert.False(t, hit, "expired entry reads as a miss")
	assert.Equal(t, 0, c.Size(), "expired entry is removed on read")
}

func TestInMemoryBackend_LRUEviction(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryBackend(3, time.Hour)
	advance := withFakeClock(c)

	c.Set(ctx, "a", []byte("1"), 0)
	advance(time.Second)
	c.Set(ctx, "b", []byte("2"), 0)
	advance(time.Second)
	c.Set(ctx, "c", []byte("3"), 0)
	advance(time.Second)

	// Touch "a" so "b" becomes least recently used.
	c.Get(ctx, "a")
	advance(time.Second)

	c.Set(ctx, "d", []byte("4"), 0)

	assert.True(t, c.Exists(ctx, "a"))
	assert.False(t, c.Exists(ctx, "b"), "least recently accessed entry evicted")
	assert.True(t, c.Exists(ctx, "c"))
	assert.True(t, c.Exists(ctx, "d"))
}

func TestInMemoryBackend_OverwriteDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryBackend(2, time.Hour)

	c.Set(ctx, "a", []byte("1"), 0)
	c.Set(ctx, "b", []byte("2"), 0)
	c.Set(ctx, "a", []byte("1b"), 0)

	assert.Equal(t, 2, c.Size())
	assert.True(t, c.Exists(ctx, "b"))
	value, _ := c.Get(ctx, "a")
	assert.Equal(t, []byte("1b"), value)
}

func TestInMemoryBackend_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryBackend(10, time.Hour)

	c.Set(ctx, "a", []byte("1"), 0)
	c.Set(ctx, "b", []byte("2"), 0)

	assert.True(t, c.Delete(ctx, "a"))
	assert.False(t, c.Delete(ctx, "a"), "second delete reports absence")

	c.Clear(ctx)
	assert.Equal(t, 0, c.Size())
	assert.False(t, c.Exists(ctx, "b"))
}
