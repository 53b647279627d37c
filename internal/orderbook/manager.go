package orderbook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// marketBinding maps the two outcome tokens of a market to its slug.
type marketBinding struct {
	MarketSlug string
	YesTokenID string
	NoTokenID  string
	Question   string
}

// Manager consumes raw market data messages, maintains the tracker and
// publishes per-market top-of-book updates.
type Manager struct {
	tracker    *Tracker
	bindings   map[string]*marketBinding // key: token_id, shared per market
	mu         sync.RWMutex
	logger     *zap.Logger
	msgChan    <-chan *types.OrderbookMessage
	updateChan chan *types.MarketState
	ctx        context.Context
	wg         sync.WaitGroup
}

// Config holds orderbook manager configuration.
type Config struct {
	Logger         *zap.Logger
	Tracker        *Tracker
	MessageChannel <-chan *types.OrderbookMessage
	UpdateBuffer   int
}

// New creates a new orderbook manager.
func New(cfg *Config) (*Manager, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}

	buffer := cfg.UpdateBuffer
	if buffer <= 0 {
		buffer = 10000
	}

	return &Manager{
		tracker:    cfg.Tracker,
		bindings:   make(map[string]*marketBinding),
		logger:     cfg.Logger,
		msgChan:    cfg.MessageChannel,
		updateChan: make(chan *types.MarketState, buffer),
	}, nil
}

// RegisterMarket binds a market slug to its YES and NO token IDs so
// that incoming token updates can be attributed to the market.
func (m *Manager) RegisterMarket(slug, yesTokenID, noTokenID, question string) {
	binding := &marketBinding{
		MarketSlug: slug,
		YesTokenID: yesTokenID,
		NoTokenID:  noTokenID,
		Question:   question,
	}

	m.mu.Lock()
	m.bindings[yesTokenID] = binding
	m.bindings[noTokenID] = binding
	m.mu.Unlock()

	m.logger.Info("market-registered",
		zap.String("market-slug", slug),
		zap.String("yes-token", yesTokenID),
		zap.String("no-token", noTokenID))
}

// UnregisterMarket removes the binding and tracked books for a market.
func (m *Manager) UnregisterMarket(slug string) {
	m.mu.Lock()
	for tokenID, binding := range m.bindings {
		if binding.MarketSlug == slug {
			delete(m.bindings, tokenID)
			m.tracker.Remove(tokenID)
		}
	}
	m.mu.Unlock()

	m.logger.Info("market-unregistered", zap.String("market-slug", slug))
}

// Start starts the orderbook manager.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx = ctx
	m.logger.Info("orderbook-manager-starting")

	m.wg.Add(1)
	go m.processMessages()

	return nil
}

// processMessages processes incoming orderbook messages.
func (m *Manager) processMessages() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("orderbook-manager-stopping")
			return
		case msg, ok := <-m.msgChan:
			if !ok {
				m.logger.Info("message-channel-closed")
				return
			}

			err := m.handleMessage(msg)
			if err != nil {
				m.logger.Warn("handle-message-error",
					zap.Error(err),
					zap.String("event-type", msg.EventType),
					zap.String("asset-id", msg.AssetID))
			}
		}
	}
}

// handleMessage processes a single orderbook message.
func (m *Manager) handleMessage(msg *types.OrderbookMessage) error {
	timer := prometheus.NewTimer(UpdateProcessingDuration)
	defer timer.ObserveDuration()

	UpdatesTotal.WithLabelValues(msg.EventType).Inc()

	switch msg.EventType {
	case "book":
		return m.handleBookMessage(msg)
	case "price_change":
		return m.handlePriceChange(msg)
	default:
		// Ignore other message types (last_trade_price, etc.)
		return nil
	}
}

// handlePriceChange republishes the market state for every bound token
// named in the event. The tracked ladders are only replaced by full
// book events; a price_change just signals that the top moved.
func (m *Manager) handlePriceChange(msg *types.OrderbookMessage) error {
	published := make(map[string]struct{}, 1)

	changes := msg.PriceChanges
	if len(changes) == 0 && msg.AssetID != "" {
		changes = []types.PriceChange{{AssetID: msg.AssetID}}
	}

	for _, change := range changes {
		m.mu.RLock()
		binding, bound := m.bindings[change.AssetID]
		m.mu.RUnlock()
		if !bound {
			continue
		}
		if _, done := published[binding.MarketSlug]; done {
			continue
		}
		published[binding.MarketSlug] = struct{}{}

		update := m.buildMarketState(binding)
		select {
		case m.updateChan <- update:
		default:
			UpdatesDroppedTotal.WithLabelValues("channel_full").Inc()
		}
	}

	return nil
}

// handleBookMessage applies a book snapshot and publishes the market update.
func (m *Manager) handleBookMessage(msg *types.OrderbookMessage) error {
	m.mu.RLock()
	binding, bound := m.bindings[msg.AssetID]
	m.mu.RUnlock()

	slug := ""
	if bound {
		slug = binding.MarketSlug
	}

	bids, err := parseLevels(msg.Bids)
	if err != nil {
		return fmt.Errorf("parse bids: %w", err)
	}
	asks, err := parseLevels(msg.Asks)
	if err != nil {
		return fmt.Errorf("parse asks: %w", err)
	}

	applied := m.tracker.ApplySnapshot(msg.AssetID, slug, bids, asks, msg.Timestamp, time.Now())
	if !applied || !bound {
		return nil
	}

	update := m.buildMarketState(binding)
	select {
	case m.updateChan <- update:
	default:
		m.logger.Error("orderbook-update-channel-full-dropping-update",
			zap.String("market-slug", slug),
			zap.Int("buffer-size", cap(m.updateChan)))
		UpdatesDroppedTotal.WithLabelValues("channel_full").Inc()
	}

	return nil
}

// buildMarketState assembles a top-of-book market view from the two
// outcome token books.
func (m *Manager) buildMarketState(binding *marketBinding) *types.MarketState {
	state := &types.MarketState{
		MarketSlug: binding.MarketSlug,
		YesTokenID: binding.YesTokenID,
		NoTokenID:  binding.NoTokenID,
		Question:   binding.Question,
		UpdatedAt:  time.Now(),
	}

	if lvl, ok := m.tracker.BestBid(binding.YesTokenID); ok {
		price := lvl.Price
		state.YesBid = &price
	}
	if lvl, ok := m.tracker.BestAsk(binding.YesTokenID); ok {
		price := lvl.Price
		state.YesAsk = &price
	}
	if lvl, ok := m.tracker.BestBid(binding.NoTokenID); ok {
		price := lvl.Price
		state.NoBid = &price
	}
	if lvl, ok := m.tracker.BestAsk(binding.NoTokenID); ok {
		price := lvl.Price
		state.NoAsk = &price
	}

	return state
}

func parseLevels(levels []types.PriceLevel) ([]types.BookLevel, error) {
	parsed := make([]types.BookLevel, 0, len(levels))
	for _, pl := range levels {
		lvl, err := types.ParseLevel(pl)
		if err != nil {
			return nil, fmt.Errorf("parse level %s@%s: %w", pl.Size, pl.Price, err)
		}
		parsed = append(parsed, lvl)
	}
	return parsed, nil
}

// Tracker exposes the underlying book tracker.
func (m *Manager) Tracker() *Tracker {
	return m.tracker
}

// UpdateChan returns the channel carrying per-market top-of-book updates.
func (m *Manager) UpdateChan() <-chan *types.MarketState {
	return m.updateChan
}

// Close gracefully closes the orderbook manager.
func (m *Manager) Close() error {
	m.logger.Info("closing-orderbook-manager")
	m.wg.Wait()
	close(m.updateChan)
	m.logger.Info("orderbook-manager-closed")
	return nil
}
