package feeds

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SportsUpdatesTotal tracks game state updates published.
	SportsUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sportsbot_feeds_sports_updates_total",
		Help: "Total number of game state updates published",
	})

	// OddsUpdatesTotal tracks odds snapshots published.
	OddsUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sportsbot_feeds_odds_updates_total",
		Help: "Total number of odds snapshots published",
	})

	// FeedLastUpdateGauge records the unix time of the last update per feed.
	FeedLastUpdateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sportsbot_feeds_last_update_timestamp",
			Help: "Unix timestamp of the last update per feed",
		},
		[]string{"feed"},
	)

	// FeedStaleTotal counts staleness checks that flagged a feed.
	FeedStaleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsbot_feeds_stale_total",
			Help: "Total number of times a feed was observed stale",
		},
		[]string{"feed"},
	)
)
