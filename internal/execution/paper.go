package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/polymarket-sportsbot/internal/orderbook"
	"github.com/mselser95/polymarket-sportsbot/internal/state"
	"github.com/mselser95/polymarket-sportsbot/internal/strategy"
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaperExecutor simulates execution against the live order books
// without touching the exchange. Marketable orders are walked through
// the tracked ask or bid ladder so fills pay real spread and depth
// costs; the unfilled remainder rests as a limit order and fills
// deterministically as the book trades through it.
type PaperExecutor struct {
	state    *state.Manager
	tracker  *orderbook.Tracker
	logger   *zap.Logger
	takerFee decimal.Decimal
	makerFee decimal.Decimal

	// makerFillFraction is the share of a resting order's remainder
	// filled per tick once the book crosses it.
	makerFillFraction   decimal.Decimal
	liquidationDiscount decimal.Decimal

	mu        sync.Mutex
	listeners []FillListener
	stats     Stats
}

// PaperConfig holds paper executor configuration.
type PaperConfig struct {
	State               *state.Manager
	Tracker             *orderbook.Tracker
	Logger              *zap.Logger
	TakerFeeRate        decimal.Decimal
	MakerFeeRate        decimal.Decimal
	MakerFillFraction   decimal.Decimal
	LiquidationDiscount decimal.Decimal
}

// NewPaperExecutor creates a new paper trading executor.
func NewPaperExecutor(cfg *PaperConfig) (*PaperExecutor, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("state manager is required")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("orderbook tracker is required")
	}
	if cfg.TakerFeeRate.Sign() < 0 || cfg.MakerFeeRate.Sign() < 0 {
		return nil, fmt.Errorf("fee rates cannot be negative")
	}

	one := decimal.NewFromInt(1)
	if cfg.MakerFillFraction.Sign() <= 0 || cfg.MakerFillFraction.GreaterThan(one) {
		return nil, fmt.Errorf("maker fill fraction must be in (0, 1], got %s", cfg.MakerFillFraction)
	}
	if cfg.LiquidationDiscount.Sign() <= 0 || cfg.LiquidationDiscount.GreaterThan(one) {
		return nil, fmt.Errorf("liquidation discount must be in (0, 1], got %s", cfg.LiquidationDiscount)
	}

	return &PaperExecutor{
		state:               cfg.State,
		tracker:             cfg.Tracker,
		logger:              cfg.Logger,
		takerFee:            cfg.TakerFeeRate,
		makerFee:            cfg.MakerFeeRate,
		makerFillFraction:   cfg.MakerFillFraction,
		liquidationDiscount: cfg.LiquidationDiscount,
		stats: Stats{
			Volume:   decimal.Zero,
			FeesPaid: decimal.Zero,
		},
	}, nil
}

// Mode returns the execution mode.
func (p *PaperExecutor) Mode() string { return "paper" }

// AddFillListener registers a fill callback.
func (p *PaperExecutor) AddFillListener(l FillListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Stats returns a copy of the cumulative execution counters.
func (p *PaperExecutor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// PlaceOrder executes a trade signal against the simulated books.
//
// Orders are normalized before execution: a sell with no backing
// position becomes a buy of the opposite outcome at one minus the
// price, and a buy against a position held on the opposite side first
// closes that position at one minus the price before opening the new
// one. Both transformations preserve the economic intent on a binary
// pair.
func (p *PaperExecutor) PlaceOrder(ctx context.Context, sig *strategy.Signal) (*types.OrderState, error) {
	if sig.Action == strategy.ActionCancel {
		if sig.CancelOrderID == "" {
			return nil, p.cancelMarket(ctx, sig.MarketSlug)
		}
		return nil, p.CancelOrder(ctx, sig.CancelOrderID)
	}
	if sig.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", sig.Quantity)
	}

	market, ok := p.state.GetMarket(sig.MarketSlug)
	if !ok {
		return nil, fmt.Errorf("place order for %s: %w", sig.MarketSlug, types.ErrMarketNotFound)
	}

	side := sig.Action.Side()
	buy := sig.Action.IsBuy()
	price := sig.Price
	quantity := sig.Quantity
	now := time.Now()

	one := decimal.NewFromInt(1)
	pos, held := p.state.GetPosition(sig.MarketSlug)

	if !buy {
		if !held || pos.Side != side {
			// Selling an outcome we do not hold is equivalent to
			// buying the opposite outcome at the complement price.
			side = side.Opposite()
			price = one.Sub(price)
			buy = true
			p.logger.Debug("paper-sell-normalized-to-buy",
				zap.String("market-slug", sig.MarketSlug),
				zap.String("side", string(side)),
				zap.String("price", price.String()))
		} else if quantity > pos.Quantity {
			quantity = pos.Quantity
		}
	}

	if buy && held && pos.Side != side {
		// Flip: close the held side at the complement price, then open.
		closePrice := one.Sub(price)
		if err := p.executeSell(market, pos.Side, pos.Quantity, closePrice, sig.Strategy, now); err != nil {
			return nil, fmt.Errorf("close %s before flip: %w", pos.Side, err)
		}
	}

	tokenID := tokenFor(market, side)
	intent := intentFor(side, buy)

	orderType := sig.OrderType
	if orderType == "" {
		orderType = types.OrderTypeLimit
	}

	order := &types.OrderState{
		OrderID:           uuid.NewString(),
		MarketSlug:        sig.MarketSlug,
		TokenID:           tokenID,
		Side:              side,
		Intent:            intent,
		Type:              orderType,
		Price:             price,
		OriginalQuantity:  quantity,
		RemainingQuantity: quantity,
		Status:            types.StatusPending,
		Strategy:          sig.Strategy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	// Market orders sweep the ladder at any price; limit orders stop
	// at the signal price.
	crossLimit := price
	if orderType == types.OrderTypeMarket {
		if buy {
			crossLimit = one
		} else {
			crossLimit = decimal.Zero
		}
	}

	filled, avgPrice, err := p.crossBook(tokenID, buy, quantity, crossLimit)
	if err != nil {
		order.Status = types.StatusRejected
		p.countReject()
		return order, err
	}

	if filled > 0 {
		if err := p.commitFill(order, filled, avgPrice, false, now); err != nil {
			order.Status = types.StatusRejected
			p.countReject()
			return order, err
		}
	}

	if order.RemainingQuantity > 0 {
		if orderType == types.OrderTypeMarket {
			// The unfilled remainder of a market order dies instead
			// of resting.
			if filled == 0 {
				order.Status = types.StatusRejected
				p.countReject()
				return order, fmt.Errorf("market order %s: %w", order.OrderID, types.ErrInsufficientDepth)
			}
			order.Status = types.StatusPartiallyFilled
		} else {
			if filled > 0 {
				order.Status = types.StatusPartiallyFilled
			} else {
				order.Status = types.StatusOpen
			}
			if err := p.state.AddOrder(order); err != nil {
				return order, fmt.Errorf("register resting order: %w", err)
			}
		}
	}

	p.countPlace()
	OrdersPlacedTotal.WithLabelValues(p.Mode(), sig.Strategy).Inc()
	p.logger.Info("paper-order-placed",
		zap.String("order-id", order.OrderID),
		zap.String("market-slug", order.MarketSlug),
		zap.String("side", string(order.Side)),
		zap.String("intent", string(order.Intent)),
		zap.String("price", order.Price.String()),
		zap.Int64("quantity", order.OriginalQuantity),
		zap.Int64("filled", order.FilledQuantity()),
		zap.String("status", string(order.Status)))

	return order, nil
}

// crossBook walks the opposing ladder up to the limit price and
// returns the immediately fillable quantity and its VWAP. A missing
// book or no marketable depth simply means nothing crosses.
func (p *PaperExecutor) crossBook(tokenID string, buy bool, quantity int64, limit decimal.Decimal) (int64, decimal.Decimal, error) {
	qty := decimal.NewFromInt(quantity)

	var (
		walk orderbook.WalkResult
		err  error
	)
	if buy {
		walk, err = p.tracker.WalkAsks(tokenID, qty, limit)
	} else {
		walk, err = p.tracker.WalkBids(tokenID, qty, limit)
	}
	if err != nil {
		if errors.Is(err, types.ErrInsufficientDepth) || errors.Is(err, types.ErrMarketNotFound) {
			return 0, decimal.Zero, nil
		}
		return 0, decimal.Zero, err
	}

	filled := walk.FilledQuantity.IntPart()
	if filled > quantity {
		filled = quantity
	}
	return filled, walk.AvgPrice, nil
}

// commitFill applies a fill to state and notifies listeners. The order
// is mutated in place.
func (p *PaperExecutor) commitFill(order *types.OrderState, quantity int64, price decimal.Decimal, maker bool, now time.Time) error {
	feeRate := p.takerFee
	if maker {
		feeRate = p.makerFee
	}
	notional := price.Mul(decimal.NewFromInt(quantity))
	fee := notional.Mul(feeRate)

	var err error
	if order.Intent.IsBuy() {
		err = p.state.ApplyBuy(order.MarketSlug, order.Side, quantity, price, fee, now)
	} else {
		_, err = p.state.ApplySell(order.MarketSlug, order.Side, quantity, price, fee, now)
	}
	if err != nil {
		return err
	}

	order.RemainingQuantity -= quantity
	order.UpdatedAt = now
	if order.RemainingQuantity == 0 {
		order.Status = types.StatusFilled
	} else {
		order.Status = types.StatusPartiallyFilled
	}

	fill := &types.Fill{
		FillID:     uuid.NewString(),
		OrderID:    order.OrderID,
		MarketSlug: order.MarketSlug,
		Side:       order.Side,
		Intent:     order.Intent,
		Price:      price,
		Quantity:   quantity,
		Fee:        fee,
		Maker:      maker,
		Timestamp:  now,
	}

	p.countFill(notional, fee)
	FillsTotal.WithLabelValues(p.Mode(), fillRole(maker)).Inc()
	VolumeTotal.WithLabelValues(p.Mode()).Add(toFloat(notional))
	p.notify(fill)
	return nil
}

// executeSell runs an immediate taker sell, used for flip closes.
func (p *PaperExecutor) executeSell(market *types.MarketState, side types.Side, quantity int64, price decimal.Decimal, strat string, now time.Time) error {
	order := &types.OrderState{
		OrderID:           uuid.NewString(),
		MarketSlug:        market.MarketSlug,
		TokenID:           tokenFor(market, side),
		Side:              side,
		Intent:            intentFor(side, false),
		Type:              types.OrderTypeMarket,
		Price:             price,
		OriginalQuantity:  quantity,
		RemainingQuantity: quantity,
		Status:            types.StatusPending,
		Strategy:          strat,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return p.commitFill(order, quantity, price, false, now)
}

// CancelOrder cancels one resting order.
func (p *PaperExecutor) CancelOrder(ctx context.Context, orderID string) error {
	order, ok := p.state.GetOrder(orderID)
	if !ok {
		return fmt.Errorf("cancel %s: %w", orderID, types.ErrOrderNotFound)
	}

	order.Status = types.StatusCancelled
	order.UpdatedAt = time.Now()
	if err := p.state.UpdateOrder(order); err != nil {
		return err
	}

	p.countCancel()
	OrdersCancelledTotal.WithLabelValues(p.Mode()).Inc()
	p.logger.Debug("paper-order-cancelled", zap.String("order-id", orderID))
	return nil
}

// cancelMarket cancels every open order resting on one market. Quote
// refreshes issue market-wide cancels without naming order ids.
func (p *PaperExecutor) cancelMarket(ctx context.Context, slug string) error {
	var firstErr error
	for _, order := range p.state.OrdersForMarket(slug) {
		if err := p.CancelOrder(ctx, order.OrderID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CancelAll cancels every resting order.
func (p *PaperExecutor) CancelAll(ctx context.Context) error {
	var firstErr error
	for _, order := range p.state.OpenOrders() {
		if err := p.CancelOrder(ctx, order.OrderID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CheckRestingOrders fills resting limit orders that the book has
// traded through. Each crossed order fills a fixed fraction of its
// remainder per tick, at least one contract, capped by the displayed
// depth at or better than its limit price.
func (p *PaperExecutor) CheckRestingOrders(ctx context.Context, now time.Time) {
	for _, order := range p.state.OpenOrders() {
		buy := order.Intent.IsBuy()

		// A resting buy fills when asks reach down to its price, a
		// resting sell when bids reach up to it.
		depth := p.tracker.DepthWithinPrice(order.TokenID, !buy, order.Price)
		if depth.Sign() <= 0 {
			continue
		}

		target := decimal.NewFromInt(order.RemainingQuantity).
			Mul(p.makerFillFraction).Ceil().IntPart()
		if target < 1 {
			target = 1
		}
		if avail := depth.IntPart(); avail > 0 && target > avail {
			target = avail
		}
		if target > order.RemainingQuantity {
			target = order.RemainingQuantity
		}
		if target <= 0 {
			continue
		}

		if err := p.commitFill(order, target, order.Price, true, now); err != nil {
			p.logger.Warn("paper-maker-fill-failed",
				zap.String("order-id", order.OrderID),
				zap.Error(err))
			if errors.Is(err, types.ErrInsufficientBalance) || errors.Is(err, types.ErrPositionNotFound) {
				_ = p.CancelOrder(ctx, order.OrderID)
			}
			continue
		}

		if err := p.state.UpdateOrder(order); err != nil {
			p.logger.Error("paper-order-update-failed",
				zap.String("order-id", order.OrderID),
				zap.Error(err))
		}

		p.logger.Debug("paper-maker-fill",
			zap.String("order-id", order.OrderID),
			zap.String("market-slug", order.MarketSlug),
			zap.Int64("quantity", target),
			zap.Int64("remaining", order.RemainingQuantity))
	}
}

// LiquidationValue estimates the cash recovered by selling every
// position into the current bids. Quantity beyond the displayed depth
// is valued at the average entry price times the liquidation discount.
func (p *PaperExecutor) LiquidationValue() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.state.AllPositions() {
		market, ok := p.state.GetMarket(pos.MarketSlug)
		if !ok {
			total = total.Add(pos.CostBasis().Mul(p.liquidationDiscount))
			continue
		}

		tokenID := tokenFor(market, pos.Side)
		qty := decimal.NewFromInt(pos.Quantity)

		walk, err := p.tracker.WalkBids(tokenID, qty, decimal.Zero)
		if err != nil {
			total = total.Add(pos.CostBasis().Mul(p.liquidationDiscount))
			continue
		}

		total = total.Add(walk.Notional)
		residual := qty.Sub(walk.FilledQuantity)
		if residual.Sign() > 0 {
			total = total.Add(residual.Mul(pos.AvgEntryPrice).Mul(p.liquidationDiscount))
		}
	}
	return total
}

// Close logs final counters.
func (p *PaperExecutor) Close() error {
	p.mu.Lock()
	stats := p.stats
	p.mu.Unlock()

	p.logger.Info("paper-executor-closed",
		zap.Int64("orders-placed", stats.OrdersPlaced),
		zap.Int64("fills", stats.Fills),
		zap.String("volume", stats.Volume.StringFixed(2)),
		zap.String("fees-paid", stats.FeesPaid.StringFixed(4)))
	return nil
}

func (p *PaperExecutor) notify(fill *types.Fill) {
	p.mu.Lock()
	listeners := make([]FillListener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, l := range listeners {
		l(fill)
	}
}

func (p *PaperExecutor) countPlace() {
	p.mu.Lock()
	p.stats.OrdersPlaced++
	p.mu.Unlock()
}

func (p *PaperExecutor) countCancel() {
	p.mu.Lock()
	p.stats.OrdersCancelled++
	p.mu.Unlock()
}

func (p *PaperExecutor) countReject() {
	p.mu.Lock()
	p.stats.OrdersRejected++
	p.mu.Unlock()
}

func (p *PaperExecutor) countFill(notional, fee decimal.Decimal) {
	p.mu.Lock()
	p.stats.Fills++
	p.stats.Volume = p.stats.Volume.Add(notional)
	p.stats.FeesPaid = p.stats.FeesPaid.Add(fee)
	p.mu.Unlock()
}

func tokenFor(market *types.MarketState, side types.Side) string {
	if side == types.SideNo {
		return market.NoTokenID
	}
	return market.YesTokenID
}

func intentFor(side types.Side, buy bool) types.OrderIntent {
	switch {
	case side == types.SideYes && buy:
		return types.IntentBuyLong
	case side == types.SideYes:
		return types.IntentSellLong
	case buy:
		return types.IntentBuyShort
	default:
		return types.IntentSellShort
	}
}

func fillRole(maker bool) string {
	if maker {
		return "maker"
	}
	return "taker"
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
