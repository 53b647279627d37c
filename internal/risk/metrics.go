package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignalsEvaluatedTotal tracks risk decisions per strategy and outcome.
	SignalsEvaluatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsbot_risk_signals_evaluated_total",
			Help: "Total number of signals evaluated by the risk manager",
		},
		[]string{"strategy", "outcome"},
	)

	// SignalsResizedTotal tracks signals approved at reduced size.
	SignalsResizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsbot_risk_signals_resized_total",
			Help: "Total number of signals resized by the risk manager",
		},
		[]string{"strategy"},
	)

	// BreakerTrippedGauge is 1 while the circuit breaker is tripped.
	BreakerTrippedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sportsbot_risk_breaker_tripped",
		Help: "Whether the circuit breaker is currently tripped (1) or open (0)",
	})

	// BreakerTripsTotal counts circuit breaker trips.
	BreakerTripsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sportsbot_risk_breaker_trips_total",
		Help: "Total number of circuit breaker trips",
	})

	// DailyPnLGauge tracks PnL since the start of the UTC day.
	DailyPnLGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sportsbot_risk_daily_pnl",
		Help: "Profit and loss since the start of the current UTC day",
	})

	// DrawdownGauge tracks drawdown from the session high-water mark.
	DrawdownGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sportsbot_risk_drawdown_pct",
		Help: "Current drawdown from the session high-water mark as a fraction",
	})
)
