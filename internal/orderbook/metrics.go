package orderbook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal tracks orderbook updates by event type.
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsbot_orderbook_updates_total",
			Help: "Total number of orderbook updates",
		},
		[]string{"event_type"},
	)

	// UpdatesDroppedTotal tracks updates dropped on the way downstream.
	UpdatesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsbot_orderbook_updates_dropped_total",
			Help: "Total number of orderbook updates dropped",
		},
		[]string{"reason"},
	)

	// SnapshotsAppliedTotal tracks snapshots applied to the tracker.
	SnapshotsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sportsbot_orderbook_snapshots_applied_total",
		Help: "Total number of book snapshots applied",
	})

	// StaleSnapshotsTotal tracks snapshots rejected by sequence gating.
	StaleSnapshotsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sportsbot_orderbook_stale_snapshots_total",
		Help: "Total number of book snapshots dropped as stale by sequence",
	})

	// BooksTracked tracks the number of token books in memory.
	BooksTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sportsbot_orderbook_books_tracked",
		Help: "Number of token orderbooks tracked in memory",
	})

	// UpdateProcessingDuration tracks message handling latency.
	UpdateProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sportsbot_orderbook_update_processing_seconds",
		Help:    "Time spent processing orderbook messages",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
	})
)
