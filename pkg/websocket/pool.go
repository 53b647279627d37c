package websocket

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"go.uber.org/zap"
)

// PoolConfig holds WebSocket pool configuration.
type PoolConfig struct {
	Size                  int
	WSUrl                 string
	DialTimeout           time.Duration
	PongTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	MessageBufferSize     int
	Logger                *zap.Logger
}

// Pool spreads market subscriptions across several WebSocket
// connections. Each token ID hashes to a fixed connection, so a
// reconnect on one shard never disturbs the others. Messages from all
// shards are funneled into a single output channel.
type Pool struct {
	cfg      PoolConfig
	shards   []*Manager
	logger   *zap.Logger
	out      chan *types.OrderbookMessage
	wg       sync.WaitGroup
	mu       sync.RWMutex
	assigned map[string]int
}

// NewPool creates a new WebSocket connection pool.
func NewPool(cfg PoolConfig) *Pool {
	p := &Pool{
		cfg:      cfg,
		shards:   make([]*Manager, cfg.Size),
		logger:   cfg.Logger,
		out:      make(chan *types.OrderbookMessage, cfg.Size*cfg.MessageBufferSize),
		assigned: make(map[string]int),
	}

	for i := range cfg.Size {
		p.shards[i] = New(Config{
			URL:                   cfg.WSUrl,
			DialTimeout:           cfg.DialTimeout,
			PongTimeout:           cfg.PongTimeout,
			PingInterval:          cfg.PingInterval,
			ReconnectInitialDelay: cfg.ReconnectInitialDelay,
			ReconnectMaxDelay:     cfg.ReconnectMaxDelay,
			ReconnectBackoffMult:  cfg.ReconnectBackoffMult,
			MessageBufferSize:     cfg.MessageBufferSize,
			Logger:                cfg.Logger.With(zap.Int("shard", i)),
		})
	}
	return p
}

// Start dials every shard and begins forwarding messages. All shards
// must come up for Start to succeed.
func (p *Pool) Start() error {
	p.logger.Info("websocket-pool-starting", zap.Int("pool-size", p.cfg.Size))

	errs := make([]error, len(p.shards))
	var startWg sync.WaitGroup
	for i, shard := range p.shards {
		startWg.Add(1)
		go func(i int, shard *Manager) {
			defer startWg.Done()
			if err := shard.Start(); err != nil {
				errs[i] = fmt.Errorf("shard %d: %w", i, err)
			}
		}(i, shard)
	}
	startWg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("start pool: %w", err)
	}

	for _, shard := range p.shards {
		p.wg.Add(1)
		go p.forward(shard.MessageChan())
	}

	PoolActiveConnections.Set(float64(p.cfg.Size))
	p.logger.Info("websocket-pool-started", zap.Int("shards", p.cfg.Size))
	return nil
}

// forward copies one shard's messages into the shared output channel.
// It exits when the shard's channel closes on shutdown.
func (p *Pool) forward(in <-chan *types.OrderbookMessage) {
	defer p.wg.Done()

	for msg := range in {
		start := time.Now()
		select {
		case p.out <- msg:
			PoolMessageMultiplexLatency.Observe(time.Since(start).Seconds())
		default:
			MessagesDroppedTotal.WithLabelValues("pool_full").Inc()
			p.logger.Warn("pool-channel-full", zap.String("asset-id", msg.AssetID))
		}
	}
}

// Subscribe routes each new token to its shard and subscribes there.
func (p *Pool) Subscribe(ctx context.Context, tokenIDs []string) error {
	byShard := make(map[int][]string)

	p.mu.Lock()
	for _, id := range tokenIDs {
		if _, ok := p.assigned[id]; ok {
			continue
		}
		shard := p.shardFor(id)
		p.assigned[id] = shard
		byShard[shard] = append(byShard[shard], id)
	}
	total := len(p.assigned)
	p.mu.Unlock()

	if len(byShard) == 0 {
		return nil
	}

	var errs []error
	for shard, ids := range byShard {
		if err := p.shards[shard].Subscribe(ctx, ids); err != nil {
			p.mu.Lock()
			for _, id := range ids {
				delete(p.assigned, id)
			}
			total = len(p.assigned)
			p.mu.Unlock()
			errs = append(errs, fmt.Errorf("shard %d subscribe: %w", shard, err))
		}
	}

	SubscriptionCount.Set(float64(total))
	p.observeDistribution()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	p.logger.Info("pool-subscribed",
		zap.Int("total-subscriptions", total),
		zap.Int("shards-touched", len(byShard)))
	return nil
}

// Unsubscribe removes tokens from their shards.
func (p *Pool) Unsubscribe(ctx context.Context, tokenIDs []string) error {
	byShard := make(map[int][]string)

	p.mu.Lock()
	for _, id := range tokenIDs {
		if shard, ok := p.assigned[id]; ok {
			byShard[shard] = append(byShard[shard], id)
			delete(p.assigned, id)
		}
	}
	total := len(p.assigned)
	p.mu.Unlock()

	if len(byShard) == 0 {
		return nil
	}

	var errs []error
	for shard, ids := range byShard {
		if err := p.shards[shard].Unsubscribe(ctx, ids); err != nil {
			errs = append(errs, fmt.Errorf("shard %d unsubscribe: %w", shard, err))
		}
	}

	SubscriptionCount.Set(float64(total))

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	p.logger.Info("pool-unsubscribed",
		zap.Int("total-subscriptions", total),
		zap.Int("shards-touched", len(byShard)))
	return nil
}

// MessageChan returns the multiplexed message channel.
func (p *Pool) MessageChan() <-chan *types.OrderbookMessage {
	return p.out
}

// Close shuts down every shard and drains the forwarders.
func (p *Pool) Close() error {
	p.logger.Info("closing-websocket-pool")

	var closeWg sync.WaitGroup
	for i, shard := range p.shards {
		closeWg.Add(1)
		go func(i int, shard *Manager) {
			defer closeWg.Done()
			if err := shard.Close(); err != nil {
				p.logger.Error("shard-close-failed", zap.Int("shard", i), zap.Error(err))
			}
		}(i, shard)
	}
	closeWg.Wait()

	p.wg.Wait()
	close(p.out)
	PoolActiveConnections.Set(0)

	p.logger.Info("websocket-pool-closed")
	return nil
}

func (p *Pool) shardFor(tokenID string) int {
	h := fnv.New32a()
	h.Write([]byte(tokenID))
	return int(h.Sum32()) % len(p.shards)
}

func (p *Pool) observeDistribution() {
	counts := make([]int, len(p.shards))

	p.mu.RLock()
	for _, shard := range p.assigned {
		counts[shard]++
	}
	p.mu.RUnlock()

	for _, n := range counts {
		if n > 0 {
			PoolSubscriptionDistribution.Observe(float64(n))
		}
	}
}
