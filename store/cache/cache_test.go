package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_BasicOperations(t *testing.T) {
	c := New[int32, string](Config{MaxItems: 10, DefaultTTL: time.Minute})

	t.Run("SetAndGet", func(t *testing.T) {
		c.Set(1, "alice", 0)

		val, ok := c.Get(1)
		assert.True(t, ok)
		assert.Equal(t, "alice", val)
	})

	t.Run("GetNonExistent", func(t *testing.T) {
		val, ok := c.Get(42)
		assert.False(t, ok)
		assert.Empty(t, val)
	})

	t.Run("UpdateExisting", func(t *testing.T) {
		c.Set(2, "original", 0)
		c.Set(2, "updated", 0)

		val, ok := c.Get(2)
		assert.True(t, ok)
		assert.Equal(t, "updated", val)
	})

	t.Run("Delete", func(t *testing.T) {
		c.Set(3, "gone", 0)
		c.Delete(3)
		_, ok := c.Get(3)
		assert.False(t, ok)
	})
}

func TestCache_Expiration(t *testing.T) {
	c := New[string, int](Config{DefaultTTL: time.Minute})

	c.Set("expiring", 7, 30*time.Millisecond)
	val, ok := c.Get("expiring")
	require.True(t, ok)
	assert.Equal(t, 7, val)

	time.Sleep(50 * time.Millisecond)

	_, ok = c.Get("expiring")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Eviction(t *testing.T) {
	c := New[int, int](Config{MaxItems: 3})

	c.Set(1, 1, 0)
	c.Set(2, 2, 0)
	c.Set(3, 3, 0)

	// Touch 1 so that 2 becomes the least recently used entry.
	_, ok := c.Get(1)
	require.True(t, ok)

	c.Set(4, 4, 0)

	assert.Equal(t, 3, c.Len())
	_, ok = c.Get(2)
	assert.False(t, ok, "least recently used entry should be evicted")
	for _, k := range []int{1, 3, 4} {
		_, ok := c.Get(k)
		assert.True(t, ok, "key %d should survive", k)
	}
}

func TestCache_Clear(t *testing.T) {
	c := New[int, int](Config{})
	c.Set(1, 1, 0)
	c.Set(2, 2, 0)
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCache_Concurrent(t *testing.T) {
	c := New[int, int](Config{MaxItems: 50})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(n*100+j, j, 0)
				c.Get(n*100 + j)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}
