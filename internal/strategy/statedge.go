package strategy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mselser95/polymarket-sportsbot/internal/eventbus"
	"github.com/mselser95/polymarket-sportsbot/internal/feeds"
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StatisticalEdge compares sportsbook implied probabilities against
// market prices and buys whichever side trades below fair value by at
// least the minimum edge.
type StatisticalEdge struct {
	cfg    *StatisticalEdgeConfig
	view   MarketView
	bus    *eventbus.Bus
	logger *zap.Logger

	mu           sync.Mutex
	pending      map[string]struct{}
	latestOdds   map[string]*feeds.OddsSnapshot
	lastSignalAt map[string]time.Time

	ctx context.Context
	wg  sync.WaitGroup
}

// StatisticalEdgeConfig holds statistical edge tunables.
type StatisticalEdgeConfig struct {
	Logger *zap.Logger
	View   MarketView
	Bus    *eventbus.Bus

	MinEdge   decimal.Decimal
	OrderSize decimal.Decimal
	Cooldown  time.Duration
}

// NewStatisticalEdge creates a new statistical edge strategy.
func NewStatisticalEdge(cfg *StatisticalEdgeConfig) (*StatisticalEdge, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.View == nil {
		return nil, fmt.Errorf("market view is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}

	c := *cfg
	if c.Cooldown <= 0 {
		c.Cooldown = 10 * time.Second
	}

	return &StatisticalEdge{
		cfg:          &c,
		view:         c.View,
		bus:          c.Bus,
		logger:       c.Logger,
		pending:      make(map[string]struct{}),
		latestOdds:   make(map[string]*feeds.OddsSnapshot),
		lastSignalAt: make(map[string]time.Time),
	}, nil
}

// Name returns the strategy name.
func (s *StatisticalEdge) Name() string {
	return "statistical_edge"
}

// Start subscribes to odds snapshots and begins the listener.
func (s *StatisticalEdge) Start(ctx context.Context) error {
	s.ctx = ctx
	ch := s.bus.Subscribe(eventbus.TopicOddsSnapshot)

	s.wg.Add(1)
	go s.listen(ch)

	s.logger.Info("statistical-edge-starting")
	return nil
}

func (s *StatisticalEdge) listen(ch <-chan interface{}) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			if snapshot, ok := payload.(*feeds.OddsSnapshot); ok {
				s.IngestOddsSnapshot(snapshot)
			}
		}
	}
}

// IngestOddsSnapshot records the latest odds and marks them pending.
func (s *StatisticalEdge) IngestOddsSnapshot(snapshot *feeds.OddsSnapshot) {
	key := snapshot.MarketSlug
	if key == "" {
		key = snapshot.EventID
	}

	s.mu.Lock()
	s.latestOdds[key] = snapshot
	s.pending[key] = struct{}{}
	s.mu.Unlock()
}

// OnMarketUpdate is a no-op; signals are generated from odds updates.
func (s *StatisticalEdge) OnMarketUpdate(_ *types.MarketState, _ time.Time) []*Signal {
	return nil
}

// OnTick drains pending odds snapshots and emits edge signals.
func (s *StatisticalEdge) OnTick(now time.Time) []*Signal {
	s.mu.Lock()
	pending := make([]*feeds.OddsSnapshot, 0, len(s.pending))
	for key := range s.pending {
		if snapshot, ok := s.latestOdds[key]; ok {
			pending = append(pending, snapshot)
		}
	}
	s.pending = make(map[string]struct{})
	s.mu.Unlock()

	var signals []*Signal
	for _, snapshot := range pending {
		slug := s.resolveMarketSlug(snapshot)
		if slug == "" {
			continue
		}

		s.mu.Lock()
		last, seen := s.lastSignalAt[slug]
		s.mu.Unlock()
		if seen && now.Sub(last) < s.cfg.Cooldown {
			continue
		}

		market, ok := s.view.GetMarket(slug)
		if !ok {
			continue
		}

		signal := s.generateSignal(market, snapshot, now)
		if signal != nil {
			signals = append(signals, signal)
			s.mu.Lock()
			s.lastSignalAt[slug] = now
			s.mu.Unlock()
		}
	}

	if len(signals) > 0 {
		SignalsTotal.WithLabelValues(s.Name()).Add(float64(len(signals)))
	}
	return signals
}

func (s *StatisticalEdge) resolveMarketSlug(snapshot *feeds.OddsSnapshot) string {
	if snapshot.MarketSlug != "" {
		return snapshot.MarketSlug
	}
	for _, market := range s.view.AllMarkets() {
		if strings.Contains(market.MarketSlug, snapshot.EventID) {
			return market.MarketSlug
		}
	}
	return ""
}

func (s *StatisticalEdge) generateSignal(market *types.MarketState, snapshot *feeds.OddsSnapshot, now time.Time) *Signal {
	if market.YesAsk == nil && market.NoAsk == nil {
		return nil
	}

	fairYes := snapshot.YesProbability
	var best *Signal
	bestEdge := decimal.Zero

	if market.YesAsk != nil {
		edge := fairYes.Sub(*market.YesAsk)
		if edge.GreaterThanOrEqual(s.cfg.MinEdge) && edge.GreaterThan(bestEdge) {
			price := ClampPrice(*market.YesAsk)
			if qty := s.cfg.OrderSize.Div(price).IntPart(); qty > 0 {
				prob := fairYes
				bestEdge = edge
				best = &Signal{
					Strategy:        s.Name(),
					MarketSlug:      market.MarketSlug,
					Action:          ActionBuyYes,
					Price:           price,
					Quantity:        qty,
					Urgency:         UrgencyMedium,
					Confidence:      snapshot.Confidence,
					Reason:          fmt.Sprintf("odds edge %s vs %s", edge.StringFixed(3), snapshot.Provider),
					TrueProbability: &prob,
					CreatedAt:       now,
				}
			}
		}
	}

	if noAsk := market.BestAsk(types.SideNo); noAsk != nil {
		fairNo := decimal.NewFromInt(1).Sub(fairYes)
		edge := fairNo.Sub(*noAsk)
		if edge.GreaterThanOrEqual(s.cfg.MinEdge) && edge.GreaterThan(bestEdge) {
			price := ClampPrice(*noAsk)
			if qty := s.cfg.OrderSize.Div(price).IntPart(); qty > 0 {
				prob := fairNo
				best = &Signal{
					Strategy:        s.Name(),
					MarketSlug:      market.MarketSlug,
					Action:          ActionBuyNo,
					Price:           price,
					Quantity:        qty,
					Urgency:         UrgencyMedium,
					Confidence:      snapshot.Confidence,
					Reason:          fmt.Sprintf("odds edge %s vs %s", edge.StringFixed(3), snapshot.Provider),
					TrueProbability: &prob,
					CreatedAt:       now,
				}
			}
		}
	}

	return best
}

// Close waits for the listener to stop.
func (s *StatisticalEdge) Close() error {
	s.wg.Wait()
	s.logger.Info("statistical-edge-closed")
	return nil
}
