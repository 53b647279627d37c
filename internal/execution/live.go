package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/polymarket-sportsbot/internal/markets"
	"github.com/mselser95/polymarket-sportsbot/internal/orderbook"
	"github.com/mselser95/polymarket-sportsbot/internal/state"
	"github.com/mselser95/polymarket-sportsbot/internal/strategy"
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LiveExecutor submits signed orders to the exchange CLOB and
// reconciles fills by polling order status each tick. Portfolio state
// is mirrored locally so the rest of the system sees the same view in
// both execution modes.
type LiveExecutor struct {
	client   *OrderClient
	state    *state.Manager
	tracker  *orderbook.Tracker
	metadata *markets.CachedMetadataClient
	logger   *zap.Logger
	takerFee decimal.Decimal

	liquidationDiscount decimal.Decimal

	// Reconciliation cadence against the exchange-reported account.
	// lastReconcile is touched only from the engine tick goroutine.
	reconcileEvery time.Duration
	lastReconcile  time.Time

	mu        sync.Mutex
	listeners []FillListener
	stats     Stats
}

// LiveConfig holds live executor configuration.
type LiveConfig struct {
	Client  *OrderClient
	State   *state.Manager
	Tracker *orderbook.Tracker

	// Metadata rounds submitted prices onto the token's tick grid.
	// Optional; orders go out unrounded without it.
	Metadata *markets.CachedMetadataClient

	Logger              *zap.Logger
	TakerFeeRate        decimal.Decimal
	LiquidationDiscount decimal.Decimal

	// ReconcileInterval throttles balance and position reconciliation
	// against the exchange account. Zero defaults to 30s.
	ReconcileInterval time.Duration
}

// NewLiveExecutor creates a new live trading executor.
func NewLiveExecutor(cfg *LiveConfig) (*LiveExecutor, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("order client is required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("state manager is required")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("orderbook tracker is required")
	}

	discount := cfg.LiquidationDiscount
	if discount.Sign() <= 0 {
		discount = decimal.RequireFromString("0.9")
	}

	reconcileEvery := cfg.ReconcileInterval
	if reconcileEvery <= 0 {
		reconcileEvery = 30 * time.Second
	}

	return &LiveExecutor{
		client:              cfg.Client,
		state:               cfg.State,
		tracker:             cfg.Tracker,
		metadata:            cfg.Metadata,
		logger:              cfg.Logger,
		takerFee:            cfg.TakerFeeRate,
		liquidationDiscount: discount,
		reconcileEvery:      reconcileEvery,
		stats: Stats{
			Volume:   decimal.Zero,
			FeesPaid: decimal.Zero,
		},
	}, nil
}

// Mode returns the execution mode.
func (l *LiveExecutor) Mode() string { return "live" }

// AddFillListener registers a fill callback.
func (l *LiveExecutor) AddFillListener(fn FillListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Stats returns a copy of the cumulative execution counters.
func (l *LiveExecutor) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// PlaceOrder signs and submits a limit order for a trade signal. The
// same normalization as paper mode applies: unbacked sells become buys
// of the opposite outcome at the complement price, and buys against an
// opposite-side position first close it.
func (l *LiveExecutor) PlaceOrder(ctx context.Context, sig *strategy.Signal) (*types.OrderState, error) {
	if sig.Action == strategy.ActionCancel {
		if sig.CancelOrderID == "" {
			return nil, l.cancelMarket(ctx, sig.MarketSlug)
		}
		return nil, l.CancelOrder(ctx, sig.CancelOrderID)
	}
	if sig.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", sig.Quantity)
	}

	market, ok := l.state.GetMarket(sig.MarketSlug)
	if !ok {
		return nil, fmt.Errorf("place order for %s: %w", sig.MarketSlug, types.ErrMarketNotFound)
	}

	side := sig.Action.Side()
	buy := sig.Action.IsBuy()
	price := sig.Price
	quantity := sig.Quantity
	now := time.Now()

	one := decimal.NewFromInt(1)
	pos, held := l.state.GetPosition(sig.MarketSlug)

	if !buy {
		if !held || pos.Side != side {
			side = side.Opposite()
			price = one.Sub(price)
			buy = true
		} else if quantity > pos.Quantity {
			quantity = pos.Quantity
		}
	}

	if buy && held && pos.Side != side {
		closePrice := l.roundPrice(ctx, tokenFor(market, pos.Side), one.Sub(price))
		closeResp, err := l.client.PlaceLimitOrder(ctx, tokenFor(market, pos.Side), false, closePrice, pos.Quantity)
		if err != nil {
			return nil, fmt.Errorf("close %s before flip: %w", pos.Side, err)
		}
		l.logger.Info("live-flip-close-submitted",
			zap.String("market-slug", sig.MarketSlug),
			zap.String("order-id", closeResp.OrderID),
			zap.String("price", closePrice.String()))
		l.registerOrder(closeResp.OrderID, market, pos.Side, false, closePrice, pos.Quantity, sig.Strategy, now)
	}

	tokenID := tokenFor(market, side)
	price = l.roundPrice(ctx, tokenID, price)
	resp, err := l.client.PlaceLimitOrder(ctx, tokenID, buy, price, quantity)
	if err != nil {
		l.mu.Lock()
		l.stats.OrdersRejected++
		l.mu.Unlock()
		return nil, fmt.Errorf("submit order: %w", err)
	}

	order := l.registerOrder(resp.OrderID, market, side, buy, price, quantity, sig.Strategy, now)

	l.mu.Lock()
	l.stats.OrdersPlaced++
	l.mu.Unlock()
	OrdersPlacedTotal.WithLabelValues(l.Mode(), sig.Strategy).Inc()

	l.logger.Info("live-order-placed",
		zap.String("order-id", order.OrderID),
		zap.String("market-slug", order.MarketSlug),
		zap.String("side", string(order.Side)),
		zap.String("intent", string(order.Intent)),
		zap.String("price", order.Price.String()),
		zap.Int64("quantity", order.OriginalQuantity),
		zap.String("exchange-status", resp.Status))

	return order, nil
}

// roundPrice snaps a price onto the token's tick grid when metadata is
// available. The exchange rejects off-tick prices outright.
func (l *LiveExecutor) roundPrice(ctx context.Context, tokenID string, price decimal.Decimal) decimal.Decimal {
	if l.metadata == nil {
		return price
	}

	tick, _, err := l.metadata.GetTokenMetadata(ctx, tokenID)
	if err != nil {
		l.logger.Warn("tick-size-lookup-failed",
			zap.String("token-id", tokenID),
			zap.Error(err))
		return price
	}
	return markets.RoundToTick(price, tick)
}

func (l *LiveExecutor) registerOrder(orderID string, market *types.MarketState, side types.Side, buy bool, price decimal.Decimal, quantity int64, strat string, now time.Time) *types.OrderState {
	if orderID == "" {
		orderID = uuid.NewString()
	}

	order := &types.OrderState{
		OrderID:           orderID,
		MarketSlug:        market.MarketSlug,
		TokenID:           tokenFor(market, side),
		Side:              side,
		Intent:            intentFor(side, buy),
		Type:              types.OrderTypeLimit,
		Price:             price,
		OriginalQuantity:  quantity,
		RemainingQuantity: quantity,
		Status:            types.StatusOpen,
		Strategy:          strat,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := l.state.AddOrder(order); err != nil {
		l.logger.Error("live-order-register-failed",
			zap.String("order-id", orderID),
			zap.Error(err))
	}
	return order
}

// CancelOrder cancels one open order on the exchange.
func (l *LiveExecutor) CancelOrder(ctx context.Context, orderID string) error {
	if err := l.client.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("cancel %s: %w", orderID, err)
	}

	if order, ok := l.state.GetOrder(orderID); ok {
		order.Status = types.StatusCancelled
		order.UpdatedAt = time.Now()
		if err := l.state.UpdateOrder(order); err != nil {
			l.logger.Error("live-cancel-state-update-failed",
				zap.String("order-id", orderID),
				zap.Error(err))
		}
	}

	l.mu.Lock()
	l.stats.OrdersCancelled++
	l.mu.Unlock()
	OrdersCancelledTotal.WithLabelValues(l.Mode()).Inc()
	return nil
}

// cancelMarket cancels every open order resting on one market. Quote
// refreshes issue market-wide cancels without naming order ids.
func (l *LiveExecutor) cancelMarket(ctx context.Context, slug string) error {
	var firstErr error
	for _, order := range l.state.OrdersForMarket(slug) {
		if err := l.CancelOrder(ctx, order.OrderID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CancelAll cancels every open order on the exchange.
func (l *LiveExecutor) CancelAll(ctx context.Context) error {
	if err := l.client.CancelAllOrders(ctx); err != nil {
		return fmt.Errorf("cancel all: %w", err)
	}

	now := time.Now()
	for _, order := range l.state.OpenOrders() {
		order.Status = types.StatusCancelled
		order.UpdatedAt = now
		if err := l.state.UpdateOrder(order); err != nil {
			l.logger.Error("live-cancel-state-update-failed",
				zap.String("order-id", order.OrderID),
				zap.Error(err))
		}
	}
	return nil
}

// CheckRestingOrders polls the exchange for fills on open orders and
// applies the matched delta to local state.
func (l *LiveExecutor) CheckRestingOrders(ctx context.Context, now time.Time) {
	l.maybeReconcile(ctx, now)

	for _, order := range l.state.OpenOrders() {
		status, err := l.client.GetOrder(ctx, order.OrderID)
		if err != nil {
			l.logger.Warn("live-order-poll-failed",
				zap.String("order-id", order.OrderID),
				zap.Error(err))
			continue
		}

		matched, err := decimal.NewFromString(status.SizeMatched)
		if err != nil {
			l.logger.Warn("live-order-bad-size-matched",
				zap.String("order-id", order.OrderID),
				zap.String("size-matched", status.SizeMatched))
			continue
		}

		delta := matched.IntPart() - order.FilledQuantity()
		if delta > 0 {
			l.applyFill(order, delta, now)
		}

		switch status.Status {
		case "CANCELED", "CANCELLED", "EXPIRED":
			order.Status = types.StatusCancelled
			order.UpdatedAt = now
			if err := l.state.UpdateOrder(order); err != nil {
				l.logger.Error("live-order-state-update-failed",
					zap.String("order-id", order.OrderID),
					zap.Error(err))
			}
		}
	}
}

// maybeReconcile adopts the exchange-reported balance and holdings on
// an interval. Local state drifts when fills land between status polls
// or when the bot restarts mid-session; the exchange account is the
// source of truth in live mode. The first tick reconciles immediately
// so a restart starts from the reported balance, not the configured
// one.
func (l *LiveExecutor) maybeReconcile(ctx context.Context, now time.Time) {
	if !l.lastReconcile.IsZero() && now.Sub(l.lastReconcile) < l.reconcileEvery {
		return
	}
	l.lastReconcile = now

	balance, err := l.client.GetBalance(ctx)
	if err != nil {
		l.logger.Warn("live-balance-reconcile-failed", zap.Error(err))
	} else if err := l.state.SetBalance(balance); err != nil {
		l.logger.Warn("live-balance-adopt-failed", zap.Error(err))
	}

	reported, err := l.client.GetPositions(ctx)
	if err != nil {
		l.logger.Warn("live-position-reconcile-failed", zap.Error(err))
		return
	}

	seen := make(map[string]struct{}, len(reported))
	for _, p := range reported {
		slug, side, ok := l.resolveToken(p.TokenID)
		if !ok {
			l.logger.Debug("live-position-unknown-token",
				zap.String("token-id", p.TokenID))
			continue
		}
		size, err := decimal.NewFromString(p.Size)
		if err != nil || size.Sign() < 0 {
			l.logger.Warn("live-position-bad-size",
				zap.String("token-id", p.TokenID),
				zap.String("size", p.Size))
			continue
		}
		avg, err := decimal.NewFromString(p.AvgPrice)
		if err != nil {
			avg = decimal.Zero
		}

		seen[slug] = struct{}{}
		if err := l.state.ReconcilePosition(slug, side, size.IntPart(), avg, now); err != nil {
			l.logger.Warn("live-position-adopt-failed",
				zap.String("market-slug", slug),
				zap.Error(err))
		}
	}

	// Local positions the exchange no longer reports were closed out
	// from under us.
	for _, pos := range l.state.AllPositions() {
		if _, ok := seen[pos.MarketSlug]; ok {
			continue
		}
		if err := l.state.ReconcilePosition(pos.MarketSlug, pos.Side, 0, decimal.Zero, now); err != nil {
			l.logger.Warn("live-position-close-failed",
				zap.String("market-slug", pos.MarketSlug),
				zap.Error(err))
		}
	}
}

// resolveToken maps an outcome token id onto a tracked market.
func (l *LiveExecutor) resolveToken(tokenID string) (string, types.Side, bool) {
	for _, m := range l.state.AllMarkets() {
		switch tokenID {
		case m.YesTokenID:
			return m.MarketSlug, types.SideYes, true
		case m.NoTokenID:
			return m.MarketSlug, types.SideNo, true
		}
	}
	return "", "", false
}

func (l *LiveExecutor) applyFill(order *types.OrderState, quantity int64, now time.Time) {
	notional := order.Price.Mul(decimal.NewFromInt(quantity))
	fee := notional.Mul(l.takerFee)

	var err error
	if order.Intent.IsBuy() {
		err = l.state.ApplyBuy(order.MarketSlug, order.Side, quantity, order.Price, fee, now)
	} else {
		_, err = l.state.ApplySell(order.MarketSlug, order.Side, quantity, order.Price, fee, now)
	}
	if err != nil {
		l.logger.Error("live-fill-apply-failed",
			zap.String("order-id", order.OrderID),
			zap.Int64("quantity", quantity),
			zap.Error(err))
		return
	}

	order.RemainingQuantity -= quantity
	order.UpdatedAt = now
	if order.RemainingQuantity == 0 {
		order.Status = types.StatusFilled
	} else {
		order.Status = types.StatusPartiallyFilled
	}
	if err := l.state.UpdateOrder(order); err != nil {
		l.logger.Error("live-order-state-update-failed",
			zap.String("order-id", order.OrderID),
			zap.Error(err))
	}

	fill := &types.Fill{
		FillID:     uuid.NewString(),
		OrderID:    order.OrderID,
		MarketSlug: order.MarketSlug,
		Side:       order.Side,
		Intent:     order.Intent,
		Price:      order.Price,
		Quantity:   quantity,
		Fee:        fee,
		Maker:      true,
		Timestamp:  now,
	}

	l.mu.Lock()
	l.stats.Fills++
	l.stats.Volume = l.stats.Volume.Add(notional)
	l.stats.FeesPaid = l.stats.FeesPaid.Add(fee)
	listeners := make([]FillListener, len(l.listeners))
	copy(listeners, l.listeners)
	l.mu.Unlock()

	FillsTotal.WithLabelValues(l.Mode(), "maker").Inc()
	VolumeTotal.WithLabelValues(l.Mode()).Add(toFloat(notional))

	for _, fn := range listeners {
		fn(fill)
	}

	l.logger.Info("live-fill-applied",
		zap.String("order-id", order.OrderID),
		zap.String("market-slug", order.MarketSlug),
		zap.Int64("quantity", quantity),
		zap.String("price", order.Price.String()))
}

// LiquidationValue estimates recovery from unwinding every position
// into the tracked bids, discounting quantity beyond displayed depth.
func (l *LiveExecutor) LiquidationValue() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range l.state.AllPositions() {
		market, ok := l.state.GetMarket(pos.MarketSlug)
		if !ok {
			total = total.Add(pos.CostBasis().Mul(l.liquidationDiscount))
			continue
		}

		qty := decimal.NewFromInt(pos.Quantity)
		walk, err := l.tracker.WalkBids(tokenFor(market, pos.Side), qty, decimal.Zero)
		if err != nil {
			total = total.Add(pos.CostBasis().Mul(l.liquidationDiscount))
			continue
		}

		total = total.Add(walk.Notional)
		residual := qty.Sub(walk.FilledQuantity)
		if residual.Sign() > 0 {
			total = total.Add(residual.Mul(pos.AvgEntryPrice).Mul(l.liquidationDiscount))
		}
	}
	return total
}

// Close logs final counters.
func (l *LiveExecutor) Close() error {
	l.mu.Lock()
	stats := l.stats
	l.mu.Unlock()

	l.logger.Info("live-executor-closed",
		zap.Int64("orders-placed", stats.OrdersPlaced),
		zap.Int64("fills", stats.Fills),
		zap.String("volume", stats.Volume.StringFixed(2)))
	return nil
}
