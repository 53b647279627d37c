package strategy

import (
	"time"

	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"github.com/shopspring/decimal"
)

// Action is what a signal asks the executor to do.
type Action string

const (
	ActionBuyYes  Action = "BUY_YES"
	ActionSellYes Action = "SELL_YES"
	ActionBuyNo   Action = "BUY_NO"
	ActionSellNo  Action = "SELL_NO"
	ActionCancel  Action = "CANCEL"
)

// Side returns the outcome token the action trades.
func (a Action) Side() types.Side {
	switch a {
	case ActionBuyNo, ActionSellNo:
		return types.SideNo
	}
	return types.SideYes
}

// IsBuy reports whether the action opens or increases a position.
func (a Action) IsBuy() bool {
	return a == ActionBuyYes || a == ActionBuyNo
}

// IsSell reports whether the action reduces a position.
func (a Action) IsSell() bool {
	return a == ActionSellYes || a == ActionSellNo
}

// Opposes reports whether two actions pull the same market in opposite
// directions on the same outcome.
func (a Action) Opposes(b Action) bool {
	switch {
	case a == ActionBuyYes && b == ActionSellYes,
		a == ActionSellYes && b == ActionBuyYes,
		a == ActionBuyNo && b == ActionSellNo,
		a == ActionSellNo && b == ActionBuyNo:
		return true
	}
	return false
}

// Urgency orders signals by how quickly they decay.
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyMedium
	UrgencyHigh
)

func (u Urgency) String() string {
	switch u {
	case UrgencyHigh:
		return "high"
	case UrgencyMedium:
		return "medium"
	}
	return "low"
}

// Signal is a trading instruction emitted by a strategy. Quantity is in
// whole contracts. TrueProbability, when set, lets the risk manager
// size the order with the Kelly criterion.
type Signal struct {
	Strategy   string
	MarketSlug string
	Action     Action
	Price      decimal.Decimal
	Quantity   int64
	Urgency    Urgency
	Confidence float64
	Reason     string

	// CancelOrderID identifies the order to cancel for ActionCancel.
	CancelOrderID string

	// OrderType selects limit or market execution. Empty means limit.
	// Market orders consume depth at any price and never rest.
	OrderType types.OrderType

	// TrueProbability is the strategy's probability estimate for the
	// outcome being traded, used for Kelly sizing.
	TrueProbability *decimal.Decimal

	// ResizedFrom is set by the risk manager when it reduced Quantity.
	ResizedFrom int64

	CreatedAt time.Time
}

// MarketView is the read-only market access handed to strategies.
type MarketView interface {
	GetMarket(slug string) (*types.MarketState, bool)
	AllMarkets() []*types.MarketState
	GetPosition(slug string) (*types.PositionState, bool)
}

// Strategy is the interface every trading strategy implements. OnTick
// runs once per engine tick; OnMarketUpdate runs for each market whose
// book changed since the last tick. Both return zero or more signals.
type Strategy interface {
	Name() string
	OnTick(now time.Time) []*Signal
	OnMarketUpdate(market *types.MarketState, now time.Time) []*Signal
}

// Priority used to break ties between strategies competing on the same
// market: faster-decaying information wins.
var priorities = map[string]int{
	"live_arbitrage":   1,
	"statistical_edge": 2,
	"market_maker":     3,
}

// Priority returns the aggregation priority of a strategy, lower is
// stronger. Unknown strategies sort last.
func Priority(name string) int {
	if p, ok := priorities[name]; ok {
		return p
	}
	return 100
}

var (
	minPrice = decimal.RequireFromString("0.01")
	maxPrice = decimal.RequireFromString("0.99")
)

// ClampPrice bounds a price inside the valid contract range.
func ClampPrice(p decimal.Decimal) decimal.Decimal {
	if p.LessThan(minPrice) {
		return minPrice
	}
	if p.GreaterThan(maxPrice) {
		return maxPrice
	}
	return p
}
