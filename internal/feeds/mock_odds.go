package feeds

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mselser95/polymarket-sportsbot/internal/eventbus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MockOddsFeed emits deterministic sportsbook probabilities drifting
// around 0.50 for a fixed set of markets.
type MockOddsFeed struct {
	bus      *eventbus.Bus
	monitor  *Monitor
	logger   *zap.Logger
	slugs    []string
	interval time.Duration

	mu   sync.Mutex
	tick int

	ctx context.Context
	wg  sync.WaitGroup
}

// MockOddsFeedConfig holds mock odds feed configuration.
type MockOddsFeedConfig struct {
	Bus         *eventbus.Bus
	Monitor     *Monitor
	Logger      *zap.Logger
	MarketSlugs []string
	Interval    time.Duration
}

// NewMockOddsFeed creates a new mock odds feed.
func NewMockOddsFeed(cfg *MockOddsFeedConfig) (*MockOddsFeed, error) {
	if cfg.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 3 * time.Second
	}

	return &MockOddsFeed{
		bus:      cfg.Bus,
		monitor:  cfg.Monitor,
		logger:   cfg.Logger,
		slugs:    append([]string(nil), cfg.MarketSlugs...),
		interval: interval,
	}, nil
}

// Name returns the feed name.
func (f *MockOddsFeed) Name() string {
	return "mock_odds_feed"
}

// AddMarket registers a newly discovered market with the feed.
func (f *MockOddsFeed) AddMarket(slug string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.slugs {
		if s == slug {
			return
		}
	}
	f.slugs = append(f.slugs, slug)
}

// Start begins the emission loop.
func (f *MockOddsFeed) Start(ctx context.Context) error {
	f.ctx = ctx
	f.logger.Info("mock-odds-feed-starting", zap.Int("markets", len(f.slugs)))

	f.wg.Add(1)
	go f.run()
	return nil
}

func (f *MockOddsFeed) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			f.logger.Info("mock-odds-feed-stopping")
			return
		case <-ticker.C:
			f.EmitOnce()
		}
	}
}

// EmitOnce publishes one odds snapshot per market. The implied
// probability drifts in a five-step cycle around 0.50.
func (f *MockOddsFeed) EmitOnce() {
	f.mu.Lock()
	f.tick++
	tick := f.tick
	f.mu.Unlock()

	drift := decimal.NewFromFloat(0.01).Mul(decimal.NewFromInt(int64(tick%5 - 2)))
	base := decimal.NewFromFloat(0.50)

	floor := decimal.NewFromFloat(0.05)
	ceil := decimal.NewFromFloat(0.95)

	for _, slug := range f.slugs {
		eventID := slug
		if parts := strings.SplitN(slug, "-", 2); len(parts) == 2 {
			eventID = parts[1]
		}

		prob := decimal.Max(floor, decimal.Min(ceil, base.Add(drift)))
		snapshot := &OddsSnapshot{
			EventID:        eventID,
			Provider:       "mock",
			YesProbability: prob,
			MarketSlug:     slug,
			Confidence:     0.6,
			UpdatedAt:      time.Now(),
		}

		f.bus.Publish(eventbus.TopicOddsSnapshot, snapshot)
		OddsUpdatesTotal.Inc()
		if f.monitor != nil {
			f.monitor.MarkUpdate(f.Name(), snapshot.UpdatedAt)
		}
	}
}

// Close stops the feed.
func (f *MockOddsFeed) Close() error {
	f.wg.Wait()
	f.logger.Info("mock-odds-feed-closed")
	return nil
}
