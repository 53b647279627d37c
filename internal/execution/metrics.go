package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersPlacedTotal tracks orders placed per mode and strategy.
	OrdersPlacedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsbot_execution_orders_placed_total",
			Help: "Total number of orders placed",
		},
		[]string{"mode", "strategy"},
	)

	// OrdersCancelledTotal tracks cancelled orders per mode.
	OrdersCancelledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsbot_execution_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		},
		[]string{"mode"},
	)

	// FillsTotal tracks fills per mode and liquidity role.
	FillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsbot_execution_fills_total",
			Help: "Total number of fills",
		},
		[]string{"mode", "role"},
	)

	// VolumeTotal tracks traded notional per mode.
	VolumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsbot_execution_volume_usd_total",
			Help: "Total traded notional in USD",
		},
		[]string{"mode"},
	)
)
