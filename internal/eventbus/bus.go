package eventbus

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Topics published on the bus.
const (
	TopicGameState    = "game_state"
	TopicOddsSnapshot = "odds_snapshot"
)

// Bus is an in-memory pub/sub bus with bounded per-subscriber queues.
// Publish never blocks; events for a full subscriber queue are dropped
// and counted.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string][]chan interface{}
	logger      *zap.Logger
	bufferSize  int
}

// Config holds event bus configuration.
type Config struct {
	Logger     *zap.Logger
	BufferSize int
}

// New creates a new event bus.
func New(cfg *Config) (*Bus, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}

	return &Bus{
		subscribers: make(map[string][]chan interface{}),
		logger:      cfg.Logger,
		bufferSize:  bufferSize,
	}, nil
}

// Subscribe registers a new subscriber for a topic and returns its
// receive channel. The channel is closed on Unsubscribe and on Close.
func (b *Bus) Subscribe(topic string) <-chan interface{} {
	ch := make(chan interface{}, b.bufferSize)

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	total := len(b.subscribers[topic])
	b.mu.Unlock()

	SubscribersGauge.WithLabelValues(topic).Set(float64(total))
	b.logger.Debug("eventbus-subscribed",
		zap.String("topic", topic),
		zap.Int("total", total))

	return ch
}

// Unsubscribe removes a subscriber channel from a topic and closes it.
func (b *Bus) Unsubscribe(topic string, ch <-chan interface{}) {
	b.mu.Lock()
	subs := b.subscribers[topic]
	for i, sub := range subs {
		if sub == ch {
			b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	total := len(b.subscribers[topic])
	b.mu.Unlock()

	SubscribersGauge.WithLabelValues(topic).Set(float64(total))
	b.logger.Debug("eventbus-unsubscribed", zap.String("topic", topic))
}

// Publish delivers the payload to every subscriber of the topic without
// blocking. Returns the number of subscribers that received it.
func (b *Bus) Publish(topic string, payload interface{}) int {
	// The sends stay under the lock: Unsubscribe and Close close the
	// channels under the same lock, and a send racing a close panics.
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, ch := range b.subscribers[topic] {
		select {
		case ch <- payload:
			delivered++
		default:
			DroppedTotal.WithLabelValues(topic).Inc()
			b.logger.Warn("eventbus-queue-full-dropping-event",
				zap.String("topic", topic),
				zap.Int("buffer-size", cap(ch)))
		}
	}

	PublishedTotal.WithLabelValues(topic).Inc()
	return delivered
}

// SubscriberCount returns the number of subscribers on a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[topic])
}

// Close closes all subscriber channels.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, topic)
		SubscribersGauge.WithLabelValues(topic).Set(0)
	}

	b.logger.Info("eventbus-closed")
	return nil
}
