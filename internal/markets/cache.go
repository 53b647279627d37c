package markets

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-sportsbot/pkg/cache"
	"github.com/shopspring/decimal"
)

// CachedMetadataClient wraps MetadataClient with a 24 hour cache.
type CachedMetadataClient struct {
	client *MetadataClient
	cache  cache.Cache
	ttl    time.Duration
}

// NewCachedMetadataClient creates a new cached metadata client.
func NewCachedMetadataClient(client *MetadataClient, cache cache.Cache) *CachedMetadataClient {
	return &CachedMetadataClient{
		client: client,
		cache:  cache,
		ttl:    24 * time.Hour,
	}
}

// TokenMetadata holds cached metadata for a token.
type TokenMetadata struct {
	TickSize     decimal.Decimal
	MinOrderSize decimal.Decimal
	FetchedAt    time.Time
}

// GetTokenMetadata fetches token metadata, serving from cache when warm.
func (c *CachedMetadataClient) GetTokenMetadata(ctx context.Context, tokenID string) (tickSize, minOrderSize decimal.Decimal, err error) {
	cacheKey := fmt.Sprintf("metadata:%s", tokenID)

	if c.cache != nil {
		if cached, ok := c.cache.Get(cacheKey); ok {
			if meta, ok := cached.(*TokenMetadata); ok {
				MetadataCacheHitsTotal.Inc()
				return meta.TickSize, meta.MinOrderSize, nil
			}
		}
		MetadataCacheMissesTotal.Inc()
	}

	tickSize, minOrderSize, err = c.client.FetchTokenMetadata(ctx, tokenID)
	if err != nil {
		return tickSize, minOrderSize, err
	}

	if c.cache != nil {
		meta := &TokenMetadata{
			TickSize:     tickSize,
			MinOrderSize: minOrderSize,
			FetchedAt:    time.Now(),
		}
		c.cache.Set(cacheKey, meta, c.ttl)
	}

	return tickSize, minOrderSize, nil
}

// UpdateTickSize rewrites the cached tick size for a token without
// refetching, for tick_size_change events. Tokens not yet cached are a
// no-op and pick up the new value on the next fetch.
func (c *CachedMetadataClient) UpdateTickSize(tokenID string, newTickSize decimal.Decimal) {
	if c.cache == nil {
		return
	}

	cacheKey := fmt.Sprintf("metadata:%s", tokenID)
	cached, ok := c.cache.Get(cacheKey)
	if !ok {
		return
	}
	meta, ok := cached.(*TokenMetadata)
	if !ok {
		return
	}

	c.cache.Set(cacheKey, &TokenMetadata{
		TickSize:     newTickSize,
		MinOrderSize: meta.MinOrderSize,
		FetchedAt:    time.Now(),
	}, c.ttl)
}
