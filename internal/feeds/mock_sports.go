package feeds

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mselser95/polymarket-sportsbot/internal/eventbus"
	"go.uber.org/zap"
)

// MockSportsFeed emits a deterministic score sequence for a fixed set
// of markets. Used for paper trading and tests.
type MockSportsFeed struct {
	bus      *eventbus.Bus
	monitor  *Monitor
	logger   *zap.Logger
	slugs    []string
	interval time.Duration

	mu     sync.Mutex
	tick   int
	states map[string]*GameState

	ctx context.Context
	wg  sync.WaitGroup
}

// MockSportsFeedConfig holds mock sports feed configuration.
type MockSportsFeedConfig struct {
	Bus         *eventbus.Bus
	Monitor     *Monitor
	Logger      *zap.Logger
	MarketSlugs []string
	Interval    time.Duration
}

// NewMockSportsFeed creates a new mock sports feed.
func NewMockSportsFeed(cfg *MockSportsFeedConfig) (*MockSportsFeed, error) {
	if cfg.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	return &MockSportsFeed{
		bus:      cfg.Bus,
		monitor:  cfg.Monitor,
		logger:   cfg.Logger,
		slugs:    append([]string(nil), cfg.MarketSlugs...),
		interval: interval,
		states:   make(map[string]*GameState),
	}, nil
}

// Name returns the feed name.
func (f *MockSportsFeed) Name() string {
	return "mock_sports_feed"
}

// AddMarket registers a newly discovered market with the feed.
func (f *MockSportsFeed) AddMarket(slug string) {
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
func (f *MockSportsFeed) Start(ctx context.Context) error {
	f.ctx = ctx
	f.logger.Info("mock-sports-feed-starting", zap.Int("markets", len(f.slugs)))

	f.wg.Add(1)
	go f.run()
	return nil
}

func (f *MockSportsFeed) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			f.logger.Info("mock-sports-feed-stopping")
			return
		case <-ticker.C:
			f.EmitOnce()
		}
	}
}

// EmitOnce publishes one game state per market, alternating which team
// scores so the lead oscillates deterministically.
func (f *MockSportsFeed) EmitOnce() {
	f.mu.Lock()
	f.tick++
	tick := f.tick

	updates := make([]*GameState, 0, len(f.slugs))
	for _, slug := range f.slugs {
		eventID := eventIDFromSlug(slug)
		current, ok := f.states[eventID]
		if !ok {
			home, away := teamsFromSlug(slug)
			current = &GameState{
				EventID:    eventID,
				HomeTeam:   home,
				AwayTeam:   away,
				Period:     "Q1",
				Clock:      "12:00",
				Status:     GameInProgress,
				MarketSlug: slug,
				HomeIsYes:  true,
			}
		}

		updated := *current
		if tick%2 == 0 {
			updated.HomeScore++
		} else {
			updated.AwayScore++
		}
		updated.UpdatedAt = time.Now()

		f.states[eventID] = &updated
		updates = append(updates, &updated)
	}
	f.mu.Unlock()

	for _, state := range updates {
		f.bus.Publish(eventbus.TopicGameState, state)
		SportsUpdatesTotal.Inc()
		if f.monitor != nil {
			f.monitor.MarkUpdate(f.Name(), state.UpdatedAt)
		}
	}
}

// Close stops the feed.
func (f *MockSportsFeed) Close() error {
	f.wg.Wait()
	f.logger.Info("mock-sports-feed-closed")
	return nil
}

// eventIDFromSlug derives a stable event identifier from a market slug
// like "nba-dal-mil-2026-01-25".
func eventIDFromSlug(slug string) string {
	parts := strings.Split(slug, "-")
	if len(parts) >= 6 {
		return strings.Join(parts[1:6], "-")
	}
	if len(parts) >= 2 {
		return strings.Join(parts[1:], "-")
	}
	return slug
}

func teamsFromSlug(slug string) (string, string) {
	parts := strings.Split(slug, "-")
	if len(parts) >= 3 {
		return strings.ToUpper(parts[2]), strings.ToUpper(parts[1])
	}
	return "HOME", "AWAY"
}
