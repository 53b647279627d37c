package engine

import (
	"testing"

	"github.com/mselser95/polymarket-sportsbot/internal/strategy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sig(strat, slug string, action strategy.Action, urgency strategy.Urgency, confidence float64) *strategy.Signal {
	return &strategy.Signal{
		Strategy:   strat,
		MarketSlug: slug,
		Action:     action,
		Price:      decimal.RequireFromString("0.50"),
		Quantity:   10,
		Urgency:    urgency,
		Confidence: confidence,
	}
}

func TestAggregateEmpty(t *testing.T) {
	assert.Nil(t, Aggregate(nil))
	assert.Nil(t, Aggregate([]*strategy.Signal{}))
}

func TestAggregateKeepsStrongerDuplicate(t *testing.T) {
	weak := sig("market_maker", "nba-lal-bos-2026-08-25", strategy.ActionBuyYes, strategy.UrgencyLow, 0.8)
	strong := sig("live_arbitrage", "nba-lal-bos-2026-08-25", strategy.ActionBuyYes, strategy.UrgencyHigh, 0.7)

	out := Aggregate([]*strategy.Signal{weak, strong})
	require.Len(t, out, 1)
	assert.Equal(t, "live_arbitrage", out[0].Strategy, "higher urgency wins over higher confidence")
}

func TestAggregateDuplicateTiesBreakOnConfidenceThenPriority(t *testing.T) {
	a := sig("statistical_edge", "slug", strategy.ActionBuyYes, strategy.UrgencyMedium, 0.9)
	b := sig("market_maker", "slug", strategy.ActionBuyYes, strategy.UrgencyMedium, 0.8)
	out := Aggregate([]*strategy.Signal{b, a})
	require.Len(t, out, 1)
	assert.Equal(t, "statistical_edge", out[0].Strategy)

	c := sig("live_arbitrage", "slug", strategy.ActionBuyYes, strategy.UrgencyMedium, 0.8)
	d := sig("market_maker", "slug", strategy.ActionBuyYes, strategy.UrgencyMedium, 0.8)
	out = Aggregate([]*strategy.Signal{d, c})
	require.Len(t, out, 1)
	assert.Equal(t, "live_arbitrage", out[0].Strategy, "equal strength falls back to strategy priority")
}

func TestAggregateDropsWeakerOpposingSignal(t *testing.T) {
	buy := sig("live_arbitrage", "slug", strategy.ActionBuyYes, strategy.UrgencyHigh, 0.9)
	sell := sig("market_maker", "slug", strategy.ActionSellYes, strategy.UrgencyLow, 0.8)

	out := Aggregate([]*strategy.Signal{sell, buy})
	require.Len(t, out, 1)
	assert.Equal(t, strategy.ActionBuyYes, out[0].Action)
}

func TestAggregateNonOpposingActionsBothSurvive(t *testing.T) {
	buyYes := sig("live_arbitrage", "slug", strategy.ActionBuyYes, strategy.UrgencyHigh, 0.9)
	sellNo := sig("market_maker", "slug", strategy.ActionSellNo, strategy.UrgencyLow, 0.8)

	out := Aggregate([]*strategy.Signal{buyYes, sellNo})
	assert.Len(t, out, 2)
}

func TestAggregateCancelsPassThrough(t *testing.T) {
	cancel := &strategy.Signal{
		Strategy:      "market_maker",
		MarketSlug:    "slug",
		Action:        strategy.ActionCancel,
		CancelOrderID: "ord-1",
	}
	buy := sig("market_maker", "slug", strategy.ActionBuyYes, strategy.UrgencyLow, 0.8)

	out := Aggregate([]*strategy.Signal{buy, cancel})
	require.Len(t, out, 2)
	assert.Equal(t, strategy.ActionCancel, out[0].Action, "cancels run before new orders")
}

func TestAggregateOrdersMarketsDeterministically(t *testing.T) {
	first := sig("market_maker", "b-market", strategy.ActionBuyYes, strategy.UrgencyLow, 0.8)
	second := sig("market_maker", "a-market", strategy.ActionBuyYes, strategy.UrgencyLow, 0.8)

	out := Aggregate([]*strategy.Signal{first, second})
	require.Len(t, out, 2)
	assert.Equal(t, "a-market", out[0].MarketSlug)
	assert.Equal(t, "b-market", out[1].MarketSlug)
}

func TestAggregateOrdersByStrategyPriorityWithinMarket(t *testing.T) {
	mm := sig("market_maker", "slug", strategy.ActionSellNo, strategy.UrgencyLow, 0.8)
	arb := sig("live_arbitrage", "slug", strategy.ActionBuyYes, strategy.UrgencyHigh, 0.9)

	out := Aggregate([]*strategy.Signal{mm, arb})
	require.Len(t, out, 2)
	assert.Equal(t, "live_arbitrage", out[0].Strategy, "faster-decaying information executes first")
}
