package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BalanceGauge tracks the current cash balance.
	BalanceGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sportsbot_state_balance",
		Help: "Current cash balance",
	})

	// RealizedPnLGauge tracks cumulative realized PnL.
	RealizedPnLGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sportsbot_state_realized_pnl",
		Help: "Cumulative realized PnL since start",
	})

	// PositionsGauge tracks the number of open positions.
	PositionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sportsbot_state_open_positions",
		Help: "Number of open positions",
	})

	// OpenOrdersGauge tracks the number of open orders.
	OpenOrdersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sportsbot_state_open_orders",
		Help: "Number of open orders",
	})

	// MarketsGauge tracks the number of tracked markets.
	MarketsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sportsbot_state_markets_tracked",
		Help: "Number of markets tracked",
	})

	// MarketUpdatesIgnoredTotal counts stale market updates ignored by
	// the latest-wins rule.
	MarketUpdatesIgnoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sportsbot_state_market_updates_ignored_total",
		Help: "Market updates ignored because a newer snapshot was already held",
	})
)
