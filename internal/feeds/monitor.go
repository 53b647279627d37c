package feeds

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Monitor tracks the last update time per feed and flags staleness.
type Monitor struct {
	mu         sync.Mutex
	lastUpdate map[string]time.Time
	staleAfter time.Duration
	logger     *zap.Logger
}

// NewMonitor creates a feed freshness monitor.
func NewMonitor(staleAfter time.Duration, logger *zap.Logger) *Monitor {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Second
	}
	return &Monitor{
		lastUpdate: make(map[string]time.Time),
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// MarkUpdate records a feed update.
func (m *Monitor) MarkUpdate(feed string, at time.Time) {
	m.mu.Lock()
	m.lastUpdate[feed] = at
	m.mu.Unlock()

	FeedLastUpdateGauge.WithLabelValues(feed).Set(float64(at.Unix()))
}

// IsStale reports whether a feed has not updated within the threshold.
// Feeds that never reported are stale.
func (m *Monitor) IsStale(feed string, now time.Time) bool {
	m.mu.Lock()
	last, ok := m.lastUpdate[feed]
	m.mu.Unlock()

	return !ok || now.Sub(last) > m.staleAfter
}

// CheckAll logs a warning for every stale feed and returns their names.
func (m *Monitor) CheckAll(now time.Time) []string {
	m.mu.Lock()
	feeds := make(map[string]time.Time, len(m.lastUpdate))
	for name, last := range m.lastUpdate {
		feeds[name] = last
	}
	m.mu.Unlock()

	var stale []string
	for name, last := range feeds {
		if now.Sub(last) > m.staleAfter {
			stale = append(stale, name)
			FeedStaleTotal.WithLabelValues(name).Inc()
			m.logger.Warn("feed-stale",
				zap.String("feed", name),
				zap.Duration("age", now.Sub(last)))
		}
	}
	return stale
}
