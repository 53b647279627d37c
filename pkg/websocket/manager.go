package websocket

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"go.uber.org/zap"
)

// Config holds WebSocket manager configuration.
type Config struct {
	URL                   string
	DialTimeout           time.Duration
	PongTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	MessageBufferSize     int
	Logger                *zap.Logger
}

// Manager maintains one market-data connection to the CLOB WebSocket
// feed. Data frames arrive as JSON arrays of orderbook events;
// heartbeats and control frames are discarded. A supervisor goroutine
// redials with backoff and resubscribes when the read loop dies.
type Manager struct {
	cfg     Config
	logger  *zap.Logger
	backoff *Backoff

	mu         sync.RWMutex
	conn       *websocket.Conn
	subscribed map[string]struct{}

	out  chan *types.OrderbookMessage
	lost chan struct{}

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	connectedAt atomic.Int64
}

// New creates a new WebSocket manager.
func New(cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		cfg:    cfg,
		logger: cfg.Logger,
		backoff: &Backoff{
			Initial:    cfg.ReconnectInitialDelay,
			Max:        cfg.ReconnectMaxDelay,
			Multiplier: cfg.ReconnectBackoffMult,
			Jitter:     0.2,
		},
		subscribed: make(map[string]struct{}),
		out:        make(chan *types.OrderbookMessage, cfg.MessageBufferSize),
		lost:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start dials the feed and launches the read, ping and supervisor
// goroutines. The initial dial failing is fatal; later drops are
// handled by the supervisor.
func (m *Manager) Start() error {
	m.logger.Info("websocket-manager-starting", zap.String("url", m.cfg.URL))

	conn, err := m.dial(m.ctx)
	if err != nil {
		return fmt.Errorf("initial dial: %w", err)
	}
	m.install(conn)

	m.wg.Add(3)
	go m.readLoop(conn)
	go m.pingLoop()
	go m.supervise()

	return nil
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.DialTimeout}

	conn, _, err := dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}

	if m.cfg.PongTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(m.cfg.PongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(m.cfg.PongTimeout))
		})
	}
	return conn, nil
}

func (m *Manager) install(conn *websocket.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	m.connectedAt.Store(time.Now().Unix())
	ActiveConnections.Set(1)
	m.logger.Info("websocket-connected")
}

// Subscribe adds token IDs to the market-data subscription. Tokens
// already subscribed are skipped. The first subscription on a fresh
// connection uses the channel-open form of the message.
func (m *Manager) Subscribe(ctx context.Context, tokenIDs []string) error {
	m.mu.Lock()
	added := make([]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if _, ok := m.subscribed[id]; ok {
			continue
		}
		m.subscribed[id] = struct{}{}
		added = append(added, id)
	}
	initial := len(m.subscribed) == len(added)
	total := len(m.subscribed)
	m.mu.Unlock()

	if len(added) == 0 {
		return nil
	}

	if err := m.writeJSON(subscribePayload(added, initial)); err != nil {
		m.mu.Lock()
		for _, id := range added {
			delete(m.subscribed, id)
		}
		total = len(m.subscribed)
		m.mu.Unlock()
		SubscriptionCount.Set(float64(total))
		return fmt.Errorf("write subscribe: %w", err)
	}

	SubscriptionCount.Set(float64(total))
	m.logger.Info("subscribed-to-tokens",
		zap.Int("new-count", len(added)),
		zap.Int("total-count", total))
	return nil
}

// Unsubscribe removes token IDs from the subscription.
func (m *Manager) Unsubscribe(ctx context.Context, tokenIDs []string) error {
	m.mu.Lock()
	removed := make([]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if _, ok := m.subscribed[id]; ok {
			delete(m.subscribed, id)
			removed = append(removed, id)
		}
	}
	total := len(m.subscribed)
	m.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}

	payload := map[string]any{"assets_ids": removed, "operation": "unsubscribe"}
	if err := m.writeJSON(payload); err != nil {
		m.mu.Lock()
		for _, id := range removed {
			m.subscribed[id] = struct{}{}
		}
		total = len(m.subscribed)
		m.mu.Unlock()
		SubscriptionCount.Set(float64(total))
		return fmt.Errorf("write unsubscribe: %w", err)
	}

	SubscriptionCount.Set(float64(total))
	UnsubscriptionsTotal.Inc()
	m.logger.Info("unsubscribed-from-tokens",
		zap.Int("count", len(removed)),
		zap.Int("remaining-count", total))
	return nil
}

func subscribePayload(tokenIDs []string, initial bool) map[string]any {
	if initial {
		return map[string]any{"assets_ids": tokenIDs, "type": "market"}
	}
	return map[string]any{"assets_ids": tokenIDs, "operation": "subscribe"}
}

func (m *Manager) writeJSON(payload any) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return conn.WriteJSON(payload)
}

// readLoop drains one connection until it errors, then signals the
// supervisor and exits.
func (m *Manager) readLoop(conn *websocket.Conn) {
	defer m.wg.Done()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-m.ctx.Done():
			default:
				m.logger.Warn("read-error", zap.Error(err))
			}
			if start := m.connectedAt.Load(); start > 0 {
				ConnectionDuration.Observe(time.Since(time.Unix(start, 0)).Seconds())
			}
			ActiveConnections.Set(0)
			select {
			case m.lost <- struct{}{}:
			default:
			}
			return
		}

		m.dispatch(raw)
	}
}

// dispatch parses one frame and forwards its orderbook events without
// blocking. The feed sends every data frame as a JSON array.
func (m *Manager) dispatch(raw []byte) {
	start := time.Now()

	var msgs []types.OrderbookMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		// Subscription acks and similar control frames are single
		// objects, heartbeats are empty. Neither carries book data.
		m.logger.Debug("non-data-frame", zap.Int("bytes", len(raw)))
		return
	}

	for i := range msgs {
		msg := &msgs[i]
		MessagesReceivedTotal.WithLabelValues(msg.EventType).Inc()

		select {
		case m.out <- msg:
		default:
			MessagesDroppedTotal.WithLabelValues("channel_full").Inc()
			m.logger.Warn("message-channel-full", zap.String("event-type", msg.EventType))
		}
	}

	MessageLatencySeconds.Observe(time.Since(start).Seconds())
}

func (m *Manager) pingLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			conn := m.conn
			m.mu.RUnlock()
			if conn == nil {
				continue
			}
			deadline := time.Now().Add(time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				m.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

// supervise redials after a connection loss, resubscribes and starts a
// fresh read loop. Backoff resets on every successful dial.
func (m *Manager) supervise() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.lost:
		}

		m.logger.Warn("connection-lost-reconnecting")

		conn, err := m.redial()
		if err != nil {
			return // context cancelled
		}
		m.install(conn)

		if err := m.resubscribe(); err != nil {
			m.logger.Error("resubscribe-failed", zap.Error(err))
			conn.Close()
			select {
			case m.lost <- struct{}{}:
			default:
			}
			continue
		}

		m.wg.Add(1)
		go m.readLoop(conn)
	}
}

func (m *Manager) redial() (*websocket.Conn, error) {
	for {
		delay := m.backoff.Next()
		m.logger.Info("redial-scheduled", zap.Duration("delay", delay))
		ReconnectAttemptsTotal.Inc()

		select {
		case <-m.ctx.Done():
			return nil, m.ctx.Err()
		case <-time.After(delay):
		}

		conn, err := m.dial(m.ctx)
		if err != nil {
			m.logger.Warn("redial-failed", zap.Error(err))
			ReconnectFailuresTotal.Inc()
			continue
		}

		m.backoff.Reset()
		return conn, nil
	}
}

func (m *Manager) resubscribe() error {
	m.mu.RLock()
	tokenIDs := make([]string, 0, len(m.subscribed))
	for id := range m.subscribed {
		tokenIDs = append(tokenIDs, id)
	}
	m.mu.RUnlock()

	if len(tokenIDs) == 0 {
		return nil
	}

	if err := m.writeJSON(subscribePayload(tokenIDs, true)); err != nil {
		return fmt.Errorf("write resubscribe: %w", err)
	}
	m.logger.Info("resubscribed-to-all-markets", zap.Int("count", len(tokenIDs)))
	return nil
}

// MessageChan returns the channel for receiving orderbook messages.
func (m *Manager) MessageChan() <-chan *types.OrderbookMessage {
	return m.out
}

// Close tears down the connection and waits for all goroutines.
func (m *Manager) Close() error {
	m.logger.Info("closing-websocket-manager")

	m.cancel()

	m.mu.RLock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.mu.RUnlock()

	m.wg.Wait()
	close(m.out)
	ActiveConnections.Set(0)

	m.logger.Info("websocket-manager-closed")
	return nil
}
