package strategy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignalsTotal tracks signals emitted per strategy.
	SignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsbot_strategy_signals_total",
			Help: "Total number of signals emitted per strategy",
		},
		[]string{"strategy"},
	)

	// QuoteRefreshesTotal tracks market maker quote refreshes.
	QuoteRefreshesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sportsbot_strategy_quote_refreshes_total",
		Help: "Total number of market maker quote refreshes",
	})

	// RiskExitsTotal tracks stop-loss and time-based exits.
	RiskExitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sportsbot_strategy_risk_exits_total",
		Help: "Total number of strategy risk exits emitted",
	})
)
