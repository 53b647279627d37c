package markets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFetchTickSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tick-size", r.URL.Path)
		assert.Equal(t, "token-1", r.URL.Query().Get("token_id"))
		w.Write([]byte(`{"minimum_tick_size": 0.001}`))
	}))
	defer server.Close()

	client := NewMetadataClient(server.URL, zaptest.NewLogger(t))

	tick, err := client.FetchTickSize(context.Background(), "token-1")
	require.NoError(t, err)
	assert.True(t, tick.Equal(decimal.RequireFromString("0.001")), "got %s", tick)
}

func TestFetchTickSizeRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"minimum_tick_size": 0.01}`))
	}))
	defer server.Close()

	client := NewMetadataClient(server.URL, zaptest.NewLogger(t))

	tick, err := client.FetchTickSize(context.Background(), "token-1")
	require.NoError(t, err)
	assert.True(t, tick.Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, int64(3), calls.Load())
}

func TestFetchTickSizeExhaustsRetries(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewMetadataClient(server.URL, zaptest.NewLogger(t))

	_, err := client.FetchTickSize(context.Background(), "token-1")
	require.Error(t, err)
	assert.Equal(t, int64(fetchAttempts), calls.Load())
}

func TestFetchTickSizeRejectsZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"minimum_tick_size": 0}`))
	}))
	defer server.Close()

	client := NewMetadataClient(server.URL, zaptest.NewLogger(t))

	_, err := client.FetchTickSize(context.Background(), "token-1")
	require.Error(t, err)
}

func TestFetchMinOrderSize(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		want string
	}{
		{"top level min_size", `{"min_size": 15}`, http.StatusOK, "15"},
		{"nested market min size", `{"market": {"minimum_order_size": 10}}`, http.StatusOK, "10"},
		{"absent falls back to default", `{}`, http.StatusOK, "5"},
		{"error falls back to default", ``, http.StatusNotFound, "5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewMetadataClient(server.URL, zaptest.NewLogger(t))

			size, err := client.FetchMinOrderSize(context.Background(), "token-1")
			require.NoError(t, err)
			assert.True(t, size.Equal(decimal.RequireFromString(tt.want)), "got %s", size)
		})
	}
}

func TestFetchTokenMetadataDefaultsOnTickFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tick-size" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"min_size": 20}`))
	}))
	defer server.Close()

	client := NewMetadataClient(server.URL, zaptest.NewLogger(t))

	tick, minSize, err := client.FetchTokenMetadata(context.Background(), "token-1")
	require.NoError(t, err)
	assert.True(t, tick.Equal(defaultTickSize))
	assert.True(t, minSize.Equal(decimal.NewFromInt(20)))
}

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		price string
		tick  string
		want  string
	}{
		{"0.523", "0.01", "0.52"},
		{"0.527", "0.01", "0.53"},
		{"0.5234", "0.001", "0.523"},
		{"0.52", "0", "0.52"},
	}

	for _, tt := range tests {
		got := RoundToTick(decimal.RequireFromString(tt.price), decimal.RequireFromString(tt.tick))
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
			"RoundToTick(%s, %s) = %s, want %s", tt.price, tt.tick, got, tt.want)
	}
}

type mapCache struct {
	items map[string]interface{}
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string]interface{})}
}

func (c *mapCache) Get(key string) (interface{}, bool) {
	v, ok := c.items[key]
	return v, ok
}

func (c *mapCache) Set(key string, value interface{}, _ time.Duration) bool {
	c.items[key] = value
	return true
}

func (c *mapCache) Delete(key string) { delete(c.items, key) }
func (c *mapCache) Clear()            { c.items = make(map[string]interface{}) }
func (c *mapCache) Close()            {}

func TestCachedMetadataClientServesFromCache(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tick-size" {
			calls.Add(1)
			w.Write([]byte(`{"minimum_tick_size": 0.01}`))
			return
		}
		w.Write([]byte(`{"min_size": 5}`))
	}))
	defer server.Close()

	client := NewCachedMetadataClient(NewMetadataClient(server.URL, zaptest.NewLogger(t)), newMapCache())

	for i := 0; i < 3; i++ {
		tick, minSize, err := client.GetTokenMetadata(context.Background(), "token-1")
		require.NoError(t, err)
		assert.True(t, tick.Equal(decimal.RequireFromString("0.01")))
		assert.True(t, minSize.Equal(decimal.NewFromInt(5)))
	}

	assert.Equal(t, int64(1), calls.Load(), "API should only be hit once")
}

func TestCachedMetadataClientUpdateTickSize(t *testing.T) {
	c := newMapCache()
	client := NewCachedMetadataClient(nil, c)

	// Not cached yet: no-op.
	client.UpdateTickSize("token-1", decimal.RequireFromString("0.001"))
	_, ok := c.Get("metadata:token-1")
	assert.False(t, ok)

	c.Set("metadata:token-1", &TokenMetadata{
		TickSize:     decimal.RequireFromString("0.01"),
		MinOrderSize: decimal.NewFromInt(5),
		FetchedAt:    time.Now(),
	}, time.Hour)

	client.UpdateTickSize("token-1", decimal.RequireFromString("0.001"))

	cached, ok := c.Get("metadata:token-1")
	require.True(t, ok)
	meta := cached.(*TokenMetadata)
	assert.True(t, meta.TickSize.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, meta.MinOrderSize.Equal(decimal.NewFromInt(5)))
}
