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

// LiveArbitrage trades on real-time score changes before market prices
// catch up. A score lead shifts the fair YES probability; when the
// shifted fair value clears the quoted ask by the minimum edge, it
// buys the cheap side with high urgency.
type LiveArbitrage struct {
	cfg    *LiveArbitrageConfig
	view   MarketView
	bus    *eventbus.Bus
	logger *zap.Logger

	mu           sync.Mutex
	pending      map[string]struct{}
	latestStates map[string]*feeds.GameState
	lastSignalAt map[string]time.Time

	ctx context.Context
	wg  sync.WaitGroup
}

// LiveArbitrageConfig holds live arbitrage tunables.
type LiveArbitrageConfig struct {
	Logger *zap.Logger
	View   MarketView
	Bus    *eventbus.Bus

	MinEdge       decimal.Decimal
	OrderSize     decimal.Decimal
	LeadMult      decimal.Decimal // probability shift per point of lead
	MaxProbShift  decimal.Decimal
	Cooldown      time.Duration
}

// NewLiveArbitrage creates a new live arbitrage strategy.
func NewLiveArbitrage(cfg *LiveArbitrageConfig) (*LiveArbitrage, error) {
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
		c.Cooldown = 5 * time.Second
	}

	return &LiveArbitrage{
		cfg:          &c,
		view:         c.View,
		bus:          c.Bus,
		logger:       c.Logger,
		pending:      make(map[string]struct{}),
		latestStates: make(map[string]*feeds.GameState),
		lastSignalAt: make(map[string]time.Time),
	}, nil
}

// Name returns the strategy name.
func (s *LiveArbitrage) Name() string {
	return "live_arbitrage"
}

// Start subscribes to game state events and begins the listener.
func (s *LiveArbitrage) Start(ctx context.Context) error {
	s.ctx = ctx
	ch := s.bus.Subscribe(eventbus.TopicGameState)

	s.wg.Add(1)
	go s.listen(ch)

	s.logger.Info("live-arbitrage-starting")
	return nil
}

func (s *LiveArbitrage) listen(ch <-chan interface{}) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			if state, ok := payload.(*feeds.GameState); ok {
				s.IngestGameState(state)
			}
		}
	}
}

// IngestGameState records the latest game state and marks it pending
// for the next tick.
func (s *LiveArbitrage) IngestGameState(state *feeds.GameState) {
	s.mu.Lock()
	s.latestStates[state.EventID] = state
	s.pending[state.EventID] = struct{}{}
	s.mu.Unlock()
}

// OnMarketUpdate is a no-op; signals are generated from game events.
func (s *LiveArbitrage) OnMarketUpdate(_ *types.MarketState, _ time.Time) []*Signal {
	return nil
}

// OnTick drains pending game events and emits edge signals.
func (s *LiveArbitrage) OnTick(now time.Time) []*Signal {
	s.mu.Lock()
	pending := make([]*feeds.GameState, 0, len(s.pending))
	for eventID := range s.pending {
		if state, ok := s.latestStates[eventID]; ok {
			pending = append(pending, state)
		}
	}
	s.pending = make(map[string]struct{})
	s.mu.Unlock()

	var signals []*Signal
	for _, state := range pending {
		slug := s.resolveMarketSlug(state)
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

		signal := s.generateSignal(market, state, now)
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

func (s *LiveArbitrage) resolveMarketSlug(state *feeds.GameState) string {
	if state.MarketSlug != "" {
		return state.MarketSlug
	}
	for _, market := range s.view.AllMarkets() {
		if strings.Contains(market.MarketSlug, state.EventID) {
			return market.MarketSlug
		}
	}
	return ""
}

// estimateYesProbability maps the score lead to a fair YES probability:
// 0.5 shifted by LeadMult per point of lead, capped at MaxProbShift and
// bounded to [0.05, 0.95]. Flipped when the home team maps to NO.
func (s *LiveArbitrage) estimateYesProbability(state *feeds.GameState) decimal.Decimal {
	lead := state.ScoreDiff()
	absLead := lead
	if absLead < 0 {
		absLead = -absLead
	}

	shift := decimal.Min(s.cfg.MaxProbShift, s.cfg.LeadMult.Mul(decimal.NewFromInt(int64(absLead))))
	half := decimal.RequireFromString("0.5")

	probYes := half.Add(shift)
	if lead < 0 {
		probYes = half.Sub(shift)
	}
	if !state.HomeIsYes {
		probYes = decimal.NewFromInt(1).Sub(probYes)
	}

	floor := decimal.RequireFromString("0.05")
	ceil := decimal.RequireFromString("0.95")
	return decimal.Max(floor, decimal.Min(ceil, probYes))
}

func (s *LiveArbitrage) generateSignal(market *types.MarketState, state *feeds.GameState, now time.Time) *Signal {
	if market.YesAsk == nil && market.NoAsk == nil {
		return nil
	}

	fairYes := s.estimateYesProbability(state)
	lead := state.ScoreDiff()
	if lead < 0 {
		lead = -lead
	}
	confidence := 0.55 + float64(lead)*0.05
	if confidence > 0.9 {
		confidence = 0.9
	}

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
					Urgency:         UrgencyHigh,
					Confidence:      confidence,
					Reason:          fmt.Sprintf("live edge %s on score update", edge.StringFixed(3)),
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
					Urgency:         UrgencyHigh,
					Confidence:      confidence,
					Reason:          fmt.Sprintf("live edge %s on score update", edge.StringFixed(3)),
					TrueProbability: &prob,
					CreatedAt:       now,
				}
			}
		}
	}

	return best
}

// Close waits for the listener to stop.
func (s *LiveArbitrage) Close() error {
	s.wg.Wait()
	s.logger.Info("live-arbitrage-closed")
	return nil
}
