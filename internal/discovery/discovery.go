package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mselser95/polymarket-sportsbot/pkg/cache"
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"go.uber.org/zap"
)

// Service discovers tradeable sports markets by polling the Gamma API.
// Markets pass three gates before subscription: they must carry both
// outcome tokens, belong to a configured league, and have a slug date
// that is not in the past.
type Service struct {
	client       *Client
	cache        cache.Cache
	pollInterval time.Duration
	marketLimit  int
	leagues      map[string]struct{}
	allowInGame  bool
	logger       *zap.Logger
	subscribed   map[string]*types.MarketSubscription
	mu           sync.RWMutex
	newMarketsCh chan *types.Market
	singleMarket string // debugging: track only this slug
	now          func() time.Time
}

// Config holds discovery service configuration.
type Config struct {
	Client       *Client
	Cache        cache.Cache
	PollInterval time.Duration
	MarketLimit  int

	// Leagues are the slug prefixes to accept, e.g. "nba", "nfl".
	// Empty accepts every league.
	Leagues []string

	// AllowInGame admits markets whose slug date is today.
	AllowInGame bool

	Logger       *zap.Logger
	SingleMarket string // debugging: slug of single market to track
}

// New creates a new discovery service.
func New(cfg *Config) *Service {
	leagues := make(map[string]struct{}, len(cfg.Leagues))
	for _, l := range cfg.Leagues {
		leagues[strings.ToLower(l)] = struct{}{}
	}

	return &Service{
		client:       cfg.Client,
		cache:        cfg.Cache,
		pollInterval: cfg.PollInterval,
		marketLimit:  cfg.MarketLimit,
		leagues:      leagues,
		allowInGame:  cfg.AllowInGame,
		logger:       cfg.Logger,
		subscribed:   make(map[string]*types.MarketSubscription),
		newMarketsCh: make(chan *types.Market, 100),
		singleMarket: cfg.SingleMarket,
		now:          time.Now,
	}
}

// Run starts the discovery polling loop.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("discovery-service-starting",
		zap.Duration("poll-interval", s.pollInterval),
		zap.Int("market-limit", s.marketLimit),
		zap.Int("leagues", len(s.leagues)),
		zap.Bool("allow-in-game", s.allowInGame),
		zap.String("single-market", s.singleMarket))

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	if err := s.poll(ctx); err != nil {
		s.logger.Error("initial-poll-failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("discovery-service-stopping")
			close(s.newMarketsCh)
			return ctx.Err()
		case <-ticker.C:
			if err := s.poll(ctx); err != nil {
				s.logger.Error("poll-failed", zap.Error(err))
			}
		}
	}
}

// poll fetches markets from the API and identifies new tradeable ones.
func (s *Service) poll(ctx context.Context) error {
	start := time.Now()
	defer func() {
		PollDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	if s.singleMarket != "" {
		return s.pollSingleMarket(ctx)
	}

	resp, err := s.client.FetchActiveMarkets(ctx, s.marketLimit, 0, "volume24hr")
	if err != nil {
		PollErrorsTotal.Inc()
		return fmt.Errorf("fetch active markets: %w", err)
	}

	MarketsDiscoveredTotal.Add(float64(len(resp.Data)))

	newMarkets := s.identifyNewMarkets(resp.Data)

	for i := range newMarkets {
		s.cacheMarket(newMarkets[i])

		select {
		case s.newMarketsCh <- newMarkets[i]:
			NewMarketsTotal.Inc()
			s.logger.Info("new-market-discovered",
				zap.String("market-slug", newMarkets[i].Slug),
				zap.String("question", newMarkets[i].Question))
		default:
			s.logger.Warn("new-markets-channel-full",
				zap.String("market-slug", newMarkets[i].Slug))
		}
	}

	s.logger.Debug("poll-complete",
		zap.Int("total-markets", len(resp.Data)),
		zap.Int("new-markets", len(newMarkets)),
		zap.Duration("duration", time.Since(start)))

	return nil
}

// pollSingleMarket tracks only the configured slug, for debugging.
func (s *Service) pollSingleMarket(ctx context.Context) error {
	s.mu.RLock()
	_, exists := s.subscribed[s.singleMarket]
	s.mu.RUnlock()
	if exists {
		return nil
	}

	market, err := s.client.FetchMarketBySlug(ctx, s.singleMarket)
	if err != nil {
		PollErrorsTotal.Inc()
		return fmt.Errorf("fetch market by slug %q: %w", s.singleMarket, err)
	}

	MarketsDiscoveredTotal.Inc()

	yesToken := market.GetTokenByOutcome("YES")
	noToken := market.GetTokenByOutcome("NO")
	if yesToken == nil || noToken == nil {
		return fmt.Errorf("market %q missing YES or NO token", s.singleMarket)
	}

	s.subscribe(market, yesToken, noToken)
	s.cacheMarket(market)

	select {
	case s.newMarketsCh <- market:
		NewMarketsTotal.Inc()
		s.logger.Info("single-market-discovered",
			zap.String("slug", market.Slug),
			zap.String("question", market.Question))
	default:
		s.logger.Warn("new-markets-channel-full")
	}

	return nil
}

// identifyNewMarkets filters a page of markets down to newly tradeable
// subscriptions.
func (s *Service) identifyNewMarkets(markets []types.Market) []*types.Market {
	now := s.now()

	var newMarkets []*types.Market
	for i := range markets {
		market := &markets[i]

		s.mu.RLock()
		_, exists := s.subscribed[market.Slug]
		s.mu.RUnlock()
		if exists {
			continue
		}

		yesToken := market.GetTokenByOutcome("YES")
		noToken := market.GetTokenByOutcome("NO")
		if yesToken == nil || noToken == nil {
			MarketsFilteredTotal.WithLabelValues("missing-tokens").Inc()
			s.logger.Debug("skipping-market-missing-tokens",
				zap.String("market-slug", market.Slug))
			continue
		}

		if !s.leagueAllowed(market.Slug) {
			MarketsFilteredTotal.WithLabelValues("league").Inc()
			continue
		}

		if !types.IsTradeableSlug(market.Slug, now, s.allowInGame) {
			MarketsFilteredTotal.WithLabelValues("slug-date").Inc()
			s.logger.Debug("skipping-market-by-date",
				zap.String("market-slug", market.Slug))
			continue
		}

		s.subscribe(market, yesToken, noToken)
		newMarkets = append(newMarkets, market)
	}

	return newMarkets
}

// leagueAllowed matches the slug's league prefix against the
// configured set. The league is the segment before the first dash.
func (s *Service) leagueAllowed(slug string) bool {
	if len(s.leagues) == 0 {
		return true
	}

	league := slug
	if idx := strings.IndexByte(slug, '-'); idx > 0 {
		league = slug[:idx]
	}
	_, ok := s.leagues[strings.ToLower(league)]
	return ok
}

func (s *Service) subscribe(market *types.Market, yesToken, noToken *types.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribed[market.Slug] = &types.MarketSubscription{
		MarketID:     market.ID,
		MarketSlug:   market.Slug,
		Question:     market.Question,
		TokenIDYes:   yesToken.TokenID,
		TokenIDNo:    noToken.TokenID,
		SubscribedAt: time.Now(),
	}
}

// NewMarketsChan returns the channel for receiving new markets.
func (s *Service) NewMarketsChan() <-chan *types.Market {
	return s.newMarketsCh
}

// GetSubscribedMarkets returns all currently subscribed markets.
func (s *Service) GetSubscribedMarkets() []*types.MarketSubscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := make([]*types.MarketSubscription, 0, len(s.subscribed))
	for _, sub := range s.subscribed {
		subs = append(subs, sub)
	}
	return subs
}

// cacheMarket stores a market in the cache with a 24 hour TTL.
func (s *Service) cacheMarket(market *types.Market) {
	if s.cache == nil {
		return
	}

	const cacheTTL = 24 * time.Hour
	if ok := s.cache.Set(market.Slug, market, cacheTTL); !ok {
		s.logger.Warn("failed-to-cache-market", zap.String("market-slug", market.Slug))
	}
}

// GetMarket retrieves a market from cache, nil when absent.
func (s *Service) GetMarket(slug string) *types.Market {
	if s.cache == nil {
		return nil
	}

	value, found := s.cache.Get(slug)
	if !found {
		return nil
	}

	market, ok := value.(*types.Market)
	if !ok {
		s.logger.Warn("invalid-market-type-in-cache", zap.String("market-slug", slug))
		return nil
	}
	return market
}
