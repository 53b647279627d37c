package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"go.uber.org/zap"
)

// MaxBatchSize is the maximum number of markets one Gamma API request
// returns.
const MaxBatchSize = 100

// Client is an HTTP client for the Gamma markets API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new Gamma API client.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// getMarkets issues one GET /markets request with the given query
// parameters and decodes the response, which is a bare JSON array.
func (c *Client) getMarkets(ctx context.Context, params url.Values) ([]types.Market, error) {
	requestURL := fmt.Sprintf("%s/markets?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "polymarket-sportsbot/1.0")

	c.logger.Debug("fetching-markets", zap.String("url", requestURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var markets []types.Market
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return markets, nil
}

func activeMarketParams(limit, offset int, orderBy string) url.Values {
	params := url.Values{}
	params.Set("closed", "false")
	params.Set("active", "true")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("order", orderBy)
	// endDate ascending surfaces markets expiring soonest; everything
	// else descending for highest volume or newest first.
	if orderBy == "endDate" {
		params.Set("ascending", "true")
	} else {
		params.Set("ascending", "false")
	}
	return params
}

// FetchActiveMarkets fetches active markets, paginating as needed. A
// limit of 0 fetches everything available. orderBy is one of
// "volume24hr", "createdAt" or "endDate".
func (c *Client) FetchActiveMarkets(ctx context.Context, limit int, offset int, orderBy string) (*types.MarketsResponse, error) {
	var all []types.Market
	fetchAll := limit == 0

	for page := 0; ; page++ {
		batch := MaxBatchSize
		if !fetchAll {
			remaining := limit - len(all)
			if remaining <= 0 {
				break
			}
			if remaining < batch {
				batch = remaining
			}
		}

		pageOffset := offset + page*MaxBatchSize
		markets, err := c.getMarkets(ctx, activeMarketParams(batch, pageOffset, orderBy))
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		all = append(all, markets...)

		c.logger.Debug("fetched-page",
			zap.Int("page", page),
			zap.Int("markets", len(markets)),
			zap.Int("total", len(all)))

		// A short page means the API ran out of data.
		if len(markets) < batch {
			break
		}
	}

	return &types.MarketsResponse{
		Data:   all,
		Count:  len(all),
		Limit:  limit,
		Offset: offset,
	}, nil
}

// FetchMarketBySlug looks up a single market through the slug query
// parameter. Some gateways ignore the filter, so the response is
// matched against the requested slug before returning.
func (c *Client) FetchMarketBySlug(ctx context.Context, slug string) (*types.Market, error) {
	params := url.Values{}
	params.Set("slug", slug)
	params.Set("limit", strconv.Itoa(MaxBatchSize))

	markets, err := c.getMarkets(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("fetch market %s: %w", slug, err)
	}

	for i := range markets {
		if markets[i].Slug == slug {
			return &markets[i], nil
		}
	}
	return nil, fmt.Errorf("market not found: %s", slug)
}
