// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMemoryCache_GetSetDelete(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "key1", "value1", 5*time.Minute)
	val, ok := c.Get(ctx, "key1")
	require.True(t, ok)
	assert.Equal(t, "value1", val)

	_, ok = c.Get(ctx, "nonexistent")
	assert.False(t, ok)

	c.Delete(ctx, "key1")
	_, ok = c.Get(ctx, "key1")
	assert.False(t, ok)

	st := c.Stats()
	assert.EqualValues(t, 1, st.Hits)
	assert.EqualValues(t, 2, st.Misses)
	assert.EqualValues(t, 1, st.Sets)
}

func TestMemoryCache_ExpiryAndSweep(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set(ctx, "short", true, time.Minute)
	c.Set(ctx, "long", true, time.Hour)

	now = now.Add(2 * time.Minute)
	_, ok := c.Get(ctx, "short")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "long")
	assert.True(t, ok)

	assert.Equal(t, 1, c.deleteExpired())
	assert.Equal(t, 1, c.Len())
	assert.EqualValues(t, 1, c.Stats().Evictions)
}

func TestMemoryCache_NonPositiveTTLIsIgnored(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	c.Set(context.Background(), "k", 1, 0)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_JanitorStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewMemoryCache(5 * time.Millisecond)
	c.Set(context.Background(), "k", 1, time.Millisecond)
	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := NewMemoryCache(time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := string(rune('a' + (i+j)%8))
				c.Set(ctx, key, j, time.Millisecond)
				c.Get(ctx, key)
				c.Delete(ctx, key)
			}
		}(i)
	}
	wg.Wait()
}
