package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal counts completed engine ticks.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sportsbot_engine_ticks_total",
		Help: "Total number of engine ticks completed",
	})

	// TickDurationSeconds tracks time spent per tick.
	TickDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sportsbot_engine_tick_duration_seconds",
		Help:    "Duration of engine ticks in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SignalsDroppedTotal counts signals dropped during aggregation.
	SignalsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsbot_engine_signals_dropped_total",
			Help: "Total number of signals dropped by the aggregator",
		},
		[]string{"reason"},
	)

	// ExecutionErrorsTotal counts failed signal executions.
	ExecutionErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sportsbot_engine_execution_errors_total",
		Help: "Total number of execution errors",
	})
)
