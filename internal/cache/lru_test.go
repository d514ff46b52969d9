package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLRU(size int, ttl time.Duration) (*LRU[string, int], *time.Time) {
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	c := NewLRU[string, int](size, ttl)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestLRU_GetSet(t *testing.T) {
	c, _ := newTestLRU(2, time.Hour)
	c.Set("a", 1)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	c.Set("a", 2)
	v, _ = c.Get("a")
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestLRU(2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRU_Expiry(t *testing.T) {
	c, now := newTestLRU(10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	*now = now.Add(30 * time.Second)
	c.Set("c", 3)

	*now = now.Add(45 * time.Second)
	_, ok := c.Get("a")
	assert.False(t, ok)

	assert.Equal(t, 1, c.CleanExpired(), "only b is left to expire")
	assert.Equal(t, 1, c.Len())
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRU_Delete(t *testing.T) {
	c, _ := newTestLRU(10, time.Minute)
	c.Set("a", 1)
	c.Delete("a")
	c.Delete("never-set")
	assert.Equal(t, 0, c.Len())
}
