package strategy

import (
	"fmt"
	"sync"
	"time"

	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// quoteState tracks the quotes currently resting for one market.
type quoteState struct {
	BidPrice    *decimal.Decimal
	AskPrice    *decimal.Decimal
	BidQuantity int64
	AskQuantity int64
	LastRefresh time.Time
	LastMid     *decimal.Decimal
}

func (q *quoteState) active() bool {
	return q.BidPrice != nil || q.AskPrice != nil
}

// MarketMaker posts two-sided quotes around the YES mid price,
// capturing the spread when both sides fill. Quotes are skewed against
// the current inventory and never cross the spread.
type MarketMaker struct {
	cfg    *MarketMakerConfig
	view   MarketView
	logger *zap.Logger

	mu     sync.Mutex
	quotes map[string]*quoteState
}

// MarketMakerConfig holds market maker tunables.
type MarketMakerConfig struct {
	Logger *zap.Logger
	View   MarketView

	Spread             decimal.Decimal // full quoted spread
	OrderSize          decimal.Decimal // notional per quote side
	MaxInventory       decimal.Decimal // max position value per market
	InventorySkew      decimal.Decimal // skew per unit of inventory ratio
	RefreshInterval    time.Duration
	PriceTolerance     decimal.Decimal // mid move that forces a refresh
	MinSpreadToQuote   decimal.Decimal // minimum relative market spread
	StopLossPct        decimal.Decimal
	MaxHoldTime        time.Duration // max time underwater before exit
}

// NewMarketMaker creates a new market making strategy.
func NewMarketMaker(cfg *MarketMakerConfig) (*MarketMaker, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.View == nil {
		return nil, fmt.Errorf("market view is required")
	}
	if cfg.Spread.Sign() <= 0 {
		return nil, fmt.Errorf("spread must be positive, got %s", cfg.Spread)
	}
	if cfg.OrderSize.Sign() <= 0 {
		return nil, fmt.Errorf("order size must be positive, got %s", cfg.OrderSize)
	}

	c := *cfg
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 5 * time.Second
	}
	if c.PriceTolerance.Sign() <= 0 {
		c.PriceTolerance = decimal.RequireFromString("0.005")
	}
	if c.MaxHoldTime <= 0 {
		c.MaxHoldTime = 10 * time.Minute
	}

	return &MarketMaker{
		cfg:    &c,
		view:   c.View,
		logger: c.Logger,
		quotes: make(map[string]*quoteState),
	}, nil
}

// Name returns the strategy name.
func (s *MarketMaker) Name() string {
	return "market_maker"
}

// OnTick refreshes quotes whose interval elapsed.
func (s *MarketMaker) OnTick(now time.Time) []*Signal {
	s.mu.Lock()
	due := make([]string, 0, len(s.quotes))
	for slug, qs := range s.quotes {
		if now.Sub(qs.LastRefresh) >= s.cfg.RefreshInterval {
			due = append(due, slug)
		}
	}
	s.mu.Unlock()

	var signals []*Signal
	for _, slug := range due {
		market, ok := s.view.GetMarket(slug)
		if !ok || !hasValidYesPrices(market) {
			continue
		}
		signals = append(signals, s.refreshQuotes(market, now)...)
	}
	return signals
}

// OnMarketUpdate re-quotes a market when its book moved, and checks the
// held position for risk exits.
func (s *MarketMaker) OnMarketUpdate(market *types.MarketState, now time.Time) []*Signal {
	if exits := s.checkPosition(market, now); len(exits) > 0 {
		return exits
	}

	if !hasValidYesPrices(market) {
		return nil
	}

	if !s.shouldRefresh(market, now) {
		return nil
	}
	return s.refreshQuotes(market, now)
}

// ClearQuotes drops the cached quote state for a market so the next
// update re-quotes from scratch. Called when a resting quote fills.
func (s *MarketMaker) ClearQuotes(slug string) {
	s.mu.Lock()
	delete(s.quotes, slug)
	s.mu.Unlock()
}

func (s *MarketMaker) shouldRefresh(market *types.MarketState, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	qs, ok := s.quotes[market.MarketSlug]
	if !ok || !qs.active() {
		return true
	}
	if now.Sub(qs.LastRefresh) >= s.cfg.RefreshInterval {
		return true
	}

	if mid, ok := market.MidPrice(); ok && qs.LastMid != nil {
		if mid.Sub(*qs.LastMid).Abs().GreaterThanOrEqual(s.cfg.PriceTolerance) {
			return true
		}
	}
	return false
}

// refreshQuotes cancels the previous quotes and posts a new pair.
func (s *MarketMaker) refreshQuotes(market *types.MarketState, now time.Time) []*Signal {
	if pct, ok := marketSpreadPct(market); !ok || pct.LessThan(s.cfg.MinSpreadToQuote) {
		return nil
	}

	position, _ := s.view.GetPosition(market.MarketSlug)
	bid, ask := s.calculateQuotes(market, position)
	bid, ask = s.applyMakerOnly(market, bid, ask, position)

	bidQty := s.quantityFor(bid)
	askQty := s.quantityFor(ask)

	// At max inventory only quote the reducing side.
	if position != nil && s.cfg.MaxInventory.Sign() > 0 {
		if position.CostBasis().GreaterThanOrEqual(s.cfg.MaxInventory) {
			if position.Side == types.SideYes {
				bidQty = 0
			} else {
				askQty = 0
			}
		}
	}

	s.mu.Lock()
	qs, ok := s.quotes[market.MarketSlug]
	if !ok {
		qs = &quoteState{}
		s.quotes[market.MarketSlug] = qs
	}
	wasActive := qs.active()

	qs.BidPrice, qs.AskPrice = nil, nil
	if bidQty > 0 {
		b := bid
		qs.BidPrice = &b
	}
	if askQty > 0 {
		a := ask
		qs.AskPrice = &a
	}
	qs.BidQuantity = bidQty
	qs.AskQuantity = askQty
	qs.LastRefresh = now
	if mid, ok := market.MidPrice(); ok {
		qs.LastMid = &mid
	}
	s.mu.Unlock()

	var signals []*Signal
	if wasActive {
		signals = append(signals, &Signal{
			Strategy:   s.Name(),
			MarketSlug: market.MarketSlug,
			Action:     ActionCancel,
			Urgency:    UrgencyLow,
			Confidence: 1.0,
			Reason:     "refreshing market maker quotes",
			CreatedAt:  now,
		})
	}

	if bidQty > 0 {
		signals = append(signals, &Signal{
			Strategy:   s.Name(),
			MarketSlug: market.MarketSlug,
			Action:     ActionBuyYes,
			Price:      bid,
			Quantity:   bidQty,
			Urgency:    UrgencyLow,
			Confidence: 0.8,
			Reason:     fmt.Sprintf("market making bid at %s", bid),
			CreatedAt:  now,
		})
	}
	if askQty > 0 {
		signals = append(signals, &Signal{
			Strategy:   s.Name(),
			MarketSlug: market.MarketSlug,
			Action:     ActionSellYes,
			Price:      ask,
			Quantity:   askQty,
			Urgency:    UrgencyLow,
			Confidence: 0.8,
			Reason:     fmt.Sprintf("market making ask at %s", ask),
			CreatedAt:  now,
		})
	}

	QuoteRefreshesTotal.Inc()
	s.logger.Debug("market-maker-quotes-refreshed",
		zap.String("market-slug", market.MarketSlug),
		zap.String("bid", bid.String()),
		zap.String("ask", ask.String()),
		zap.Int64("bid-qty", bidQty),
		zap.Int64("ask-qty", askQty))

	return signals
}

// calculateQuotes centers the pair on the YES mid and skews it against
// inventory: long YES lowers both prices, long NO raises them.
func (s *MarketMaker) calculateQuotes(market *types.MarketState, position *types.PositionState) (decimal.Decimal, decimal.Decimal) {
	mid, _ := market.MidPrice()
	halfSpread := s.cfg.Spread.Div(decimal.NewFromInt(2))

	skew := decimal.Zero
	if position != nil && position.Quantity > 0 && s.cfg.MaxInventory.Sign() > 0 {
		ratio := decimal.Min(position.CostBasis().Div(s.cfg.MaxInventory), decimal.NewFromInt(2))
		amt := ratio.Mul(s.cfg.InventorySkew).Mul(halfSpread)
		if position.Side == types.SideYes {
			skew = amt.Neg()
		} else {
			skew = amt
		}
	}

	bid := ClampPrice(mid.Sub(halfSpread).Add(skew))
	ask := ClampPrice(mid.Add(halfSpread).Add(skew))

	if bid.GreaterThanOrEqual(ask) {
		bid = ClampPrice(mid.Sub(halfSpread))
		ask = ClampPrice(mid.Add(halfSpread))
	}
	return bid, ask
}

// applyMakerOnly keeps the bid at or below the best bid and the ask at
// or above the best ask so resting quotes never cross the spread.
func (s *MarketMaker) applyMakerOnly(market *types.MarketState, bid, ask decimal.Decimal, position *types.PositionState) (decimal.Decimal, decimal.Decimal) {
	if position != nil && position.Quantity > 0 {
		if position.Side == types.SideYes && market.YesAsk != nil {
			ask = decimal.Min(ask, *market.YesAsk)
		}
		if position.Side == types.SideNo && market.YesBid != nil {
			bid = decimal.Max(bid, *market.YesBid)
		}
	}

	if market.YesBid != nil {
		bid = decimal.Min(bid, *market.YesBid)
	}
	if market.YesAsk != nil {
		ask = decimal.Max(ask, *market.YesAsk)
	}

	bid = ClampPrice(bid)
	ask = ClampPrice(ask)

	if bid.GreaterThanOrEqual(ask) {
		mid, _ := market.MidPrice()
		half := s.cfg.Spread.Div(decimal.NewFromInt(2))
		bid = ClampPrice(decimal.Min(mid.Sub(half), *market.YesBid))
		ask = ClampPrice(decimal.Max(mid.Add(half), *market.YesAsk))
	}
	return bid, ask
}

func (s *MarketMaker) quantityFor(price decimal.Decimal) int64 {
	if price.Sign() <= 0 {
		return 0
	}
	qty := s.cfg.OrderSize.Div(price).IntPart()
	if qty < 1 {
		return 1
	}
	return qty
}

// checkPosition emits risk exits: stop-loss when the executable close
// price is far enough underwater, time exit when a losing position has
// been held too long, and gradual reduction above max inventory.
func (s *MarketMaker) checkPosition(market *types.MarketState, now time.Time) []*Signal {
	position, ok := s.view.GetPosition(market.MarketSlug)
	if !ok || position.Quantity <= 0 || position.AvgEntryPrice.Sign() <= 0 {
		return nil
	}

	// Executable close price: YES exits at the YES bid, NO closes by
	// buying YES at the ask, worth 1 - ask per NO contract.
	var closePrice *decimal.Decimal
	if position.Side == types.SideYes {
		closePrice = market.YesBid
	} else if market.YesAsk != nil {
		derived := decimal.NewFromInt(1).Sub(*market.YesAsk)
		closePrice = &derived
	}
	if closePrice == nil {
		return nil
	}

	pnlPct := closePrice.Sub(position.AvgEntryPrice).Div(position.AvgEntryPrice)
	age := now.Sub(position.OpenedAt)

	stopLoss := pnlPct.LessThanOrEqual(s.cfg.StopLossPct.Neg())
	timeExit := age >= s.cfg.MaxHoldTime && pnlPct.Sign() < 0

	if stopLoss || timeExit {
		reason := fmt.Sprintf("stop-loss exit: unrealized %s", pnlPct)
		if !stopLoss {
			reason = fmt.Sprintf("time-based exit: age=%s unrealized %s", age.Truncate(time.Second), pnlPct)
		}

		var exit *Signal
		if position.Side == types.SideYes && market.YesBid != nil {
			exit = &Signal{
				Strategy:   s.Name(),
				MarketSlug: market.MarketSlug,
				Action:     ActionSellYes,
				Price:      ClampPrice(*market.YesBid),
				Quantity:   position.Quantity,
				Urgency:    UrgencyHigh,
				Confidence: 0.95,
				Reason:     reason,
				CreatedAt:  now,
			}
		} else if position.Side == types.SideNo && market.YesAsk != nil {
			exit = &Signal{
				Strategy:   s.Name(),
				MarketSlug: market.MarketSlug,
				Action:     ActionBuyYes,
				Price:      ClampPrice(*market.YesAsk),
				Quantity:   position.Quantity,
				Urgency:    UrgencyHigh,
				Confidence: 0.95,
				Reason:     reason,
				CreatedAt:  now,
			}
		}

		if exit != nil {
			RiskExitsTotal.Inc()
			s.logger.Info("market-maker-risk-exit",
				zap.String("market-slug", market.MarketSlug),
				zap.String("side", string(position.Side)),
				zap.Int64("quantity", position.Quantity),
				zap.String("pnl-pct", pnlPct.String()))
			return []*Signal{exit}
		}
		return nil
	}

	// Gradual inventory reduction: work off half the excess at a time.
	if s.cfg.MaxInventory.Sign() > 0 && position.CostBasis().GreaterThan(s.cfg.MaxInventory) {
		excess := position.CostBasis().Sub(s.cfg.MaxInventory)
		reduceValue := excess.Div(decimal.NewFromInt(2))

		var price *decimal.Decimal
		action := ActionSellYes
		if position.Side == types.SideYes {
			price = market.YesAsk
		} else {
			price = market.YesBid
			action = ActionBuyYes
		}
		if price == nil || price.Sign() <= 0 {
			return nil
		}

		reduceQty := reduceValue.Div(*price).IntPart()
		if half := position.Quantity / 2; reduceQty > half {
			reduceQty = half
		}
		if reduceQty <= 0 {
			return nil
		}

		s.logger.Info("market-maker-inventory-reduction",
			zap.String("market-slug", market.MarketSlug),
			zap.String("excess", excess.String()),
			zap.Int64("reduce-qty", reduceQty))

		return []*Signal{{
			Strategy:   s.Name(),
			MarketSlug: market.MarketSlug,
			Action:     action,
			Price:      ClampPrice(*price),
			Quantity:   reduceQty,
			Urgency:    UrgencyHigh,
			Confidence: 0.9,
			Reason:     fmt.Sprintf("inventory reduction: excess=%s", excess),
			CreatedAt:  now,
		}}
	}

	return nil
}

func hasValidYesPrices(market *types.MarketState) bool {
	return market.YesBid != nil && market.YesAsk != nil &&
		market.YesBid.Sign() > 0 && market.YesAsk.Sign() > 0 &&
		market.YesBid.LessThan(*market.YesAsk)
}

// marketSpreadPct is the YES spread relative to the mid price.
func marketSpreadPct(market *types.MarketState) (decimal.Decimal, bool) {
	if !hasValidYesPrices(market) {
		return decimal.Decimal{}, false
	}
	mid, ok := market.MidPrice()
	if !ok || mid.Sign() <= 0 {
		return decimal.Decimal{}, false
	}
	return market.YesAsk.Sub(*market.YesBid).Div(mid), true
}
