package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// RistrettoCache backs the Cache interface with a ristretto TinyLFU
// cache. Cost is counted in items, not bytes.
type RistrettoCache struct {
	inner  *ristretto.Cache
	logger *zap.Logger
}

// RistrettoConfig holds configuration for the ristretto cache.
type RistrettoConfig struct {
	NumCounters int64 // keys tracked for admission, ~10x expected items
	MaxCost     int64 // maximum number of items
	BufferItems int64
	Logger      *zap.Logger
}

// NewRistrettoCache creates a new ristretto-backed cache.
func NewRistrettoCache(cfg *RistrettoConfig) (Cache, error) {
	inner, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	return &RistrettoCache{inner: inner, logger: cfg.Logger}, nil
}

func (r *RistrettoCache) Get(key string) (any, bool) {
	value, found := r.inner.Get(key)
	if found {
		CacheHitsTotal.Inc()
	} else {
		CacheMissesTotal.Inc()
	}
	return value, found
}

func (r *RistrettoCache) Set(key string, value any, ttl time.Duration) bool {
	ok := r.inner.SetWithTTL(key, value, 1, ttl)
	if ok {
		CacheSetsTotal.Inc()
	} else {
		r.logger.Debug("cache-set-rejected", zap.String("key", key))
	}
	return ok
}

func (r *RistrettoCache) Delete(key string) {
	r.inner.Del(key)
	CacheDeletesTotal.Inc()
}

func (r *RistrettoCache) Clear() {
	r.inner.Clear()
	r.logger.Info("cache-cleared")
}

func (r *RistrettoCache) Close() {
	r.inner.Close()
	r.logger.Info("cache-closed")
}

// Wait blocks until pending writes are applied. Ristretto applies sets
// asynchronously, so tests call this before reading back.
func (r *RistrettoCache) Wait() {
	r.inner.Wait()
}
