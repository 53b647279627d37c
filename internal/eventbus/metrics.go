package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PublishedTotal tracks events published by topic.
	PublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsbot_eventbus_published_total",
			Help: "Total number of events published to the event bus",
		},
		[]string{"topic"},
	)

	// DroppedTotal tracks events dropped because a subscriber queue was full.
	DroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsbot_eventbus_dropped_total",
			Help: "Total number of events dropped due to full subscriber queues",
		},
		[]string{"topic"},
	)

	// SubscribersGauge tracks the number of subscribers per topic.
	SubscribersGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sportsbot_eventbus_subscribers",
			Help: "Number of active subscribers per topic",
		},
		[]string{"topic"},
	)
)
