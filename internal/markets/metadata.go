package markets

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MetadataClient fetches per-token trading metadata from the CLOB API:
// the minimum tick size and the minimum order size.
type MetadataClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewMetadataClient creates a new metadata client.
func NewMetadataClient(baseURL string, logger *zap.Logger) *MetadataClient {
	if baseURL == "" {
		baseURL = "https://clob.polymarket.com"
	}
	return &MetadataClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

const fetchAttempts = 3

var (
	defaultTickSize     = decimal.RequireFromString("0.01")
	defaultMinOrderSize = decimal.NewFromInt(5)
)

// FetchTickSize fetches the minimum tick size for a token, retrying
// transient failures.
func (c *MetadataClient) FetchTickSize(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/tick-size?token_id=%s", c.baseURL, tokenID)

	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return decimal.Zero, ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}

		var data struct {
			MinimumTickSize float64 `json:"minimum_tick_size"`
		}
		if lastErr = c.getJSON(ctx, url, &data); lastErr != nil {
			continue
		}
		if data.MinimumTickSize <= 0 {
			return decimal.Zero, fmt.Errorf("invalid tick size %f for token %s", data.MinimumTickSize, tokenID)
		}
		return decimal.NewFromFloat(data.MinimumTickSize), nil
	}

	return decimal.Zero, fmt.Errorf("fetch tick size for %s: %w", tokenID, lastErr)
}

// FetchMinOrderSize fetches the minimum order size for a token. The
// book endpoint carries it; absent or unparseable values fall back to
// the exchange default.
func (c *MetadataClient) FetchMinOrderSize(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/book?token_id=%s", c.baseURL, tokenID)

	var data struct {
		MinSize float64 `json:"min_size"`
		Market  struct {
			MinSize float64 `json:"minimum_order_size"`
		} `json:"market"`
	}
	if err := c.getJSON(ctx, url, &data); err != nil {
		return defaultMinOrderSize, nil
	}

	if data.MinSize > 0 {
		return decimal.NewFromFloat(data.MinSize), nil
	}
	if data.Market.MinSize > 0 {
		return decimal.NewFromFloat(data.Market.MinSize), nil
	}
	return defaultMinOrderSize, nil
}

// FetchTokenMetadata fetches tick size and min order size, substituting
// defaults on failure.
func (c *MetadataClient) FetchTokenMetadata(ctx context.Context, tokenID string) (tickSize, minOrderSize decimal.Decimal, err error) {
	start := time.Now()
	defer func() {
		MetadataFetchDuration.Observe(time.Since(start).Seconds())
	}()

	tickSize, err = c.FetchTickSize(ctx, tokenID)
	if err != nil {
		MetadataFetchErrorsTotal.Inc()
		c.logger.Warn("tick-size-fetch-failed-using-default",
			zap.String("token-id", tokenID),
			zap.Error(err))
		tickSize = defaultTickSize
	}

	minOrderSize, err = c.FetchMinOrderSize(ctx, tokenID)
	if err != nil {
		minOrderSize = defaultMinOrderSize
	}

	return tickSize, minOrderSize, nil
}

func (c *MetadataClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// RoundToTick snaps a price onto the token's tick grid.
func RoundToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.Sign() <= 0 {
		return price
	}
	return price.Div(tick).Round(0).Mul(tick)
}
