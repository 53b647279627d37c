package orderbook

import (
	"testing"
)

// TestMetrics_Registration tests all metrics are initialized
func TestMetrics_Registration(t *testing.T) {
	if UpdatesTotal == nil {
		t.Error("UpdatesTotal not registered")
	}

	if UpdatesDroppedTotal == nil {
		t.Error("UpdatesDroppedTotal not registered")
	}

	if SnapshotsAppliedTotal == nil {
		t.Error("SnapshotsAppliedTotal not registered")
	}

	if StaleSnapshotsTotal == nil {
		t.Error("StaleSnapshotsTotal not registered")
	}

	if BooksTracked == nil {
		t.Error("BooksTracked not registered")
	}

	if UpdateProcessingDuration == nil {
		t.Error("UpdateProcessingDuration not registered")
	}
}

// TestMetrics_CounterIncrement tests counters can be incremented
func TestMetrics_CounterIncrement(t *testing.T) {
	UpdatesTotal.WithLabelValues("book").Inc()
	UpdatesDroppedTotal.WithLabelValues("channel_full").Inc()
	SnapshotsAppliedTotal.Inc()
	StaleSnapshotsTotal.Inc()
}

// TestMetrics_GaugeSet tests gauge can be set
func TestMetrics_GaugeSet(t *testing.T) {
	BooksTracked.Set(4)
}

// TestMetrics_HistogramObserve tests histogram can observe values
func TestMetrics_HistogramObserve(t *testing.T) {
	UpdateProcessingDuration.Observe(0.001)
}

// TestMetrics_Labels tests label values are accepted
func TestMetrics_Labels(t *testing.T) {
	UpdatesTotal.WithLabelValues("book").Inc()
	UpdatesTotal.WithLabelValues("price_change").Inc()

	UpdatesDroppedTotal.WithLabelValues("channel_full").Inc()
	UpdatesDroppedTotal.WithLabelValues("stale_sequence").Inc()
}
