package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MarketsDiscoveredTotal tracks total markets seen from the Gamma API.
	MarketsDiscoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sportsbot_discovery_markets_total",
		Help: "Total number of markets discovered from Gamma API",
	})

	// NewMarketsTotal tracks new tradeable markets subscribed.
	NewMarketsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sportsbot_discovery_new_markets_total",
		Help: "Total number of new markets subscribed",
	})

	// MarketsFilteredTotal tracks markets rejected by the sports filter.
	MarketsFilteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsbot_discovery_markets_filtered_total",
			Help: "Total number of markets rejected during discovery",
		},
		[]string{"reason"},
	)

	// PollDurationSeconds tracks API poll latency.
	PollDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sportsbot_discovery_poll_duration_seconds",
		Help:    "Duration of Gamma API poll requests",
		Buckets: prometheus.DefBuckets,
	})

	// PollErrorsTotal tracks API poll failures.
	PollErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sportsbot_discovery_poll_errors_total",
		Help: "Total number of Gamma API poll failures",
	})
)
