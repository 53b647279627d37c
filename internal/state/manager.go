package state

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Manager is the single source of truth for portfolio state: tracked
// markets, positions, open orders and cash balance. All fields are
// guarded by one mutex so cross-entity reads are consistent.
type Manager struct {
	mu sync.Mutex

	markets   map[string]*types.MarketState   // key: market_slug
	positions map[string]*types.PositionState // key: market_slug
	orders    map[string]*types.OrderState    // key: order_id

	balance     decimal.Decimal
	realizedPnL decimal.Decimal

	logger *zap.Logger
}

// Config holds state manager configuration.
type Config struct {
	Logger         *zap.Logger
	InitialBalance decimal.Decimal
}

// New creates a new state manager.
func New(cfg *Config) (*Manager, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.InitialBalance.Sign() < 0 {
		return nil, fmt.Errorf("initial balance cannot be negative, got %s", cfg.InitialBalance)
	}

	m := &Manager{
		markets:   make(map[string]*types.MarketState),
		positions: make(map[string]*types.PositionState),
		orders:    make(map[string]*types.OrderState),
		balance:   cfg.InitialBalance,
		logger:    cfg.Logger,
	}
	BalanceGauge.Set(toFloat(m.balance))
	return m, nil
}

// UpsertMarket stores a market update. Older updates than the one
// already held are ignored so the latest snapshot always wins.
func (m *Manager) UpsertMarket(market *types.MarketState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.markets[market.MarketSlug]
	if ok && market.UpdatedAt.Before(existing.UpdatedAt) {
		MarketUpdatesIgnoredTotal.Inc()
		return false
	}

	m.markets[market.MarketSlug] = market.Clone()
	MarketsGauge.Set(float64(len(m.markets)))
	return true
}

// GetMarket returns a copy of the tracked market state.
func (m *Manager) GetMarket(slug string) (*types.MarketState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	market, ok := m.markets[slug]
	if !ok {
		return nil, false
	}
	return market.Clone(), true
}

// AllMarkets returns copies of all tracked markets sorted by slug.
func (m *Manager) AllMarkets() []*types.MarketState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.MarketState, 0, len(m.markets))
	for _, market := range m.markets {
		out = append(out, market.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketSlug < out[j].MarketSlug })
	return out
}

// RemoveMarket drops a market from tracking.
func (m *Manager) RemoveMarket(slug string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.markets, slug)
	MarketsGauge.Set(float64(len(m.markets)))
}

// ApplyBuy opens or increases the position for a market, debiting the
// balance by price*quantity plus fee. The position side must match; a
// side flip must be handled by the caller as a close and reopen.
func (m *Manager) ApplyBuy(slug string, side types.Side, quantity int64, price, fee decimal.Decimal, now time.Time) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	cost := price.Mul(decimal.NewFromInt(quantity)).Add(fee)

	m.mu.Lock()
	defer m.mu.Unlock()

	if cost.GreaterThan(m.balance) {
		return fmt.Errorf("buy %d %s %s at %s: %w", quantity, slug, side, price, types.ErrInsufficientBalance)
	}

	pos, ok := m.positions[slug]
	if ok && pos.Side != side {
		return fmt.Errorf("position side mismatch for %s: held %s, buying %s", slug, pos.Side, side)
	}

	if !ok {
		m.positions[slug] = &types.PositionState{
			MarketSlug:    slug,
			Side:          side,
			Quantity:      quantity,
			AvgEntryPrice: price,
			OpenedAt:      now,
			UpdatedAt:     now,
		}
	} else {
		oldQty := decimal.NewFromInt(pos.Quantity)
		newQty := decimal.NewFromInt(pos.Quantity + quantity)
		pos.AvgEntryPrice = pos.AvgEntryPrice.Mul(oldQty).
			Add(price.Mul(decimal.NewFromInt(quantity))).
			Div(newQty)
		pos.Quantity += quantity
		pos.UpdatedAt = now
	}

	m.balance = m.balance.Sub(cost)
	m.publishGaugesLocked()
	return nil
}

// ApplySell reduces the position for a market, crediting proceeds net
// of fee and realizing PnL against the average entry price. Returns the
// realized PnL delta. The position is removed when quantity reaches zero.
func (m *Manager) ApplySell(slug string, side types.Side, quantity int64, price, fee decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[slug]
	if !ok || pos.Side != side {
		return decimal.Zero, fmt.Errorf("sell %d %s %s: %w", quantity, slug, side, types.ErrPositionNotFound)
	}
	if quantity > pos.Quantity {
		return decimal.Zero, fmt.Errorf("sell %d exceeds held %d for %s", quantity, pos.Quantity, slug)
	}

	qty := decimal.NewFromInt(quantity)
	proceeds := price.Mul(qty).Sub(fee)
	realized := price.Sub(pos.AvgEntryPrice).Mul(qty).Sub(fee)

	pos.Quantity -= quantity
	pos.RealizedPnL = pos.RealizedPnL.Add(realized)
	pos.UpdatedAt = now
	if pos.Quantity == 0 {
		delete(m.positions, slug)
	}

	m.balance = m.balance.Add(proceeds)
	m.realizedPnL = m.realizedPnL.Add(realized)
	m.publishGaugesLocked()
	return realized, nil
}

// GetPosition returns a copy of the position held for a market.
func (m *Manager) GetPosition(slug string) (*types.PositionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[slug]
	if !ok {
		return nil, false
	}
	cp := *pos
	return &cp, true
}

// AllPositions returns copies of all open positions sorted by slug.
func (m *Manager) AllPositions() []*types.PositionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.PositionState, 0, len(m.positions))
	for _, pos := range m.positions {
		cp := *pos
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketSlug < out[j].MarketSlug })
	return out
}

// AddOrder registers a new order.
func (m *Manager) AddOrder(order *types.OrderState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[order.OrderID]; exists {
		return fmt.Errorf("order %s already exists", order.OrderID)
	}

	cp := *order
	m.orders[order.OrderID] = &cp
	m.publishGaugesLocked()
	return nil
}

// UpdateOrder replaces the stored order state. Terminal orders are
// removed from the open set.
func (m *Manager) UpdateOrder(order *types.OrderState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[order.OrderID]; !exists {
		return fmt.Errorf("update order %s: %w", order.OrderID, types.ErrOrderNotFound)
	}

	if order.Status.IsTerminal() {
		delete(m.orders, order.OrderID)
	} else {
		cp := *order
		m.orders[order.OrderID] = &cp
	}
	m.publishGaugesLocked()
	return nil
}

// GetOrder returns a copy of an open order.
func (m *Manager) GetOrder(orderID string) (*types.OrderState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return nil, false
	}
	cp := *order
	return &cp, true
}

// OpenOrders returns copies of all open orders sorted by creation time.
func (m *Manager) OpenOrders() []*types.OrderState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.OrderState, 0, len(m.orders))
	for _, order := range m.orders {
		cp := *order
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// OrdersForMarket returns copies of open orders for one market.
func (m *Manager) OrdersForMarket(slug string) []*types.OrderState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.OrderState, 0, 4)
	for _, order := range m.orders {
		if order.MarketSlug == slug {
			cp := *order
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// Balance returns the current cash balance.
func (m *Manager) Balance() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance
}

// Credit adds cash to the balance.
func (m *Manager) Credit(amount decimal.Decimal) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("credit amount cannot be negative, got %s", amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.balance = m.balance.Add(amount)
	m.publishGaugesLocked()
	return nil
}

// Debit removes cash from the balance, failing on insufficient funds.
func (m *Manager) Debit(amount decimal.Decimal) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("debit amount cannot be negative, got %s", amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if amount.GreaterThan(m.balance) {
		return fmt.Errorf("debit %s from %s: %w", amount, m.balance, types.ErrInsufficientBalance)
	}

	m.balance = m.balance.Sub(amount)
	m.publishGaugesLocked()
	return nil
}

// SetBalance replaces the cash balance with an externally reported
// amount. Live mode adopts the exchange-reported balance on
// reconciliation instead of trusting the local ledger.
func (m *Manager) SetBalance(amount decimal.Decimal) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("balance cannot be negative, got %s", amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !amount.Equal(m.balance) {
		m.logger.Info("balance-reconciled",
			zap.String("local", m.balance.String()),
			zap.String("reported", amount.String()))
	}
	m.balance = amount
	m.publishGaugesLocked()
	return nil
}

// ReconcilePosition overwrites the position for a market with an
// externally reported holding. A zero quantity removes the position.
func (m *Manager) ReconcilePosition(slug string, side types.Side, quantity int64, avgPrice decimal.Decimal, now time.Time) error {
	if quantity < 0 {
		return fmt.Errorf("quantity cannot be negative, got %d", quantity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if quantity == 0 {
		if _, ok := m.positions[slug]; ok {
			m.logger.Info("position-reconciled-closed", zap.String("market-slug", slug))
			delete(m.positions, slug)
			m.publishGaugesLocked()
		}
		return nil
	}

	pos, ok := m.positions[slug]
	if ok && pos.Side == side && pos.Quantity == quantity {
		return nil
	}

	if !ok {
		m.positions[slug] = &types.PositionState{
			MarketSlug:    slug,
			Side:          side,
			Quantity:      quantity,
			AvgEntryPrice: avgPrice,
			OpenedAt:      now,
			UpdatedAt:     now,
		}
	} else {
		pos.Side = side
		pos.Quantity = quantity
		pos.AvgEntryPrice = avgPrice
		pos.UpdatedAt = now
	}

	m.logger.Info("position-reconciled",
		zap.String("market-slug", slug),
		zap.String("side", string(side)),
		zap.Int64("quantity", quantity))
	m.publishGaugesLocked()
	return nil
}

// RealizedPnL returns cumulative realized PnL since start.
func (m *Manager) RealizedPnL() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.realizedPnL
}

// TotalEquity is balance plus all positions marked at the current best
// bid for their side. Positions without a quoted bid are marked at
// their average entry price.
func (m *Manager) TotalEquity() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalEquityLocked()
}

func (m *Manager) totalEquityLocked() decimal.Decimal {
	equity := m.balance
	for _, pos := range m.positions {
		mark := pos.AvgEntryPrice
		if market, ok := m.markets[pos.MarketSlug]; ok {
			if bid := market.BestBid(pos.Side); bid != nil {
				mark = *bid
			}
		}
		equity = equity.Add(mark.Mul(decimal.NewFromInt(pos.Quantity)))
	}
	return equity
}

// Snapshot is a consistent view of the portfolio taken under one lock.
type Snapshot struct {
	Balance     decimal.Decimal
	Equity      decimal.Decimal
	RealizedPnL decimal.Decimal
	Positions   int
	OpenOrders  int
	TakenAt     time.Time
}

// TakeSnapshot captures balance, equity and counts atomically.
func (m *Manager) TakeSnapshot(now time.Time) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		Balance:     m.balance,
		Equity:      m.totalEquityLocked(),
		RealizedPnL: m.realizedPnL,
		Positions:   len(m.positions),
		OpenOrders:  len(m.orders),
		TakenAt:     now,
	}
}

func (m *Manager) publishGaugesLocked() {
	BalanceGauge.Set(toFloat(m.balance))
	PositionsGauge.Set(float64(len(m.positions)))
	OpenOrdersGauge.Set(float64(len(m.orders)))
	RealizedPnLGauge.Set(toFloat(m.realizedPnL))
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
