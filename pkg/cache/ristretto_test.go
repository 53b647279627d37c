package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestCache(t *testing.T) *RistrettoCache {
	t.Helper()
	c, err := NewRistrettoCache(&RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c.(*RistrettoCache)
}

func TestSetAndGet(t *testing.T) {
	c := newTestCache(t)

	require.True(t, c.Set("nba-lal-bos-2026-08-26", "market-payload", time.Minute))
	c.Wait()

	value, found := c.Get("nba-lal-bos-2026-08-26")
	require.True(t, found)
	assert.Equal(t, "market-payload", value)
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(t)

	_, found := c.Get("never-set")
	assert.False(t, found)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t)

	require.True(t, c.Set("short-lived", 1, 50*time.Millisecond))
	c.Wait()

	_, found := c.Get("short-lived")
	require.True(t, found)

	time.Sleep(100 * time.Millisecond)
	_, found = c.Get("short-lived")
	assert.False(t, found)
}

func TestDelete(t *testing.T) {
	c := newTestCache(t)

	require.True(t, c.Set("key", "value", time.Minute))
	c.Wait()

	c.Delete("key")
	_, found := c.Get("key")
	assert.False(t, found)
}

func TestClear(t *testing.T) {
	c := newTestCache(t)

	require.True(t, c.Set("a", 1, time.Minute))
	require.True(t, c.Set("b", 2, time.Minute))
	c.Wait()

	c.Clear()

	_, foundA := c.Get("a")
	_, foundB := c.Get("b")
	assert.False(t, foundA)
	assert.False(t, foundB)
}
