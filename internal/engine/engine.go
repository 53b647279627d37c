package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mselser95/polymarket-sportsbot/internal/execution"
	"github.com/mselser95/polymarket-sportsbot/internal/risk"
	"github.com/mselser95/polymarket-sportsbot/internal/state"
	"github.com/mselser95/polymarket-sportsbot/internal/storage"
	"github.com/mselser95/polymarket-sportsbot/internal/strategy"
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"go.uber.org/zap"
)

// Engine drives the trading loop: it feeds market updates into state,
// runs the strategies each tick, pushes their signals through the risk
// manager and hands approved ones to the executor.
type Engine struct {
	logger     *zap.Logger
	state      *state.Manager
	risk       *risk.Manager
	executor   execution.Executor
	store      storage.Storage
	strategies []strategy.Strategy
	mm         *strategy.MarketMaker

	updates          <-chan *types.MarketState
	tickInterval     time.Duration
	snapshotInterval time.Duration

	mu    sync.Mutex
	dirty map[string]struct{}

	ctx context.Context
	wg  sync.WaitGroup
}

// Config holds engine configuration.
type Config struct {
	Logger     *zap.Logger
	State      *state.Manager
	Risk       *risk.Manager
	Executor   execution.Executor
	Storage    storage.Storage
	Strategies []strategy.Strategy

	// MarketMaker, when present, has its quotes cleared on fills so it
	// re-quotes around its new inventory.
	MarketMaker *strategy.MarketMaker

	Updates          <-chan *types.MarketState
	TickInterval     time.Duration
	SnapshotInterval time.Duration
}

// New creates a new trading engine.
func New(cfg *Config) (*Engine, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("state manager is required")
	}
	if cfg.Risk == nil {
		return nil, fmt.Errorf("risk manager is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if len(cfg.Strategies) == 0 {
		return nil, fmt.Errorf("at least one strategy is required")
	}
	if cfg.Updates == nil {
		return nil, fmt.Errorf("market update channel is required")
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %s", cfg.TickInterval)
	}

	snapshotInterval := cfg.SnapshotInterval
	if snapshotInterval <= 0 {
		snapshotInterval = time.Minute
	}

	e := &Engine{
		logger:           cfg.Logger,
		state:            cfg.State,
		risk:             cfg.Risk,
		executor:         cfg.Executor,
		store:            cfg.Storage,
		strategies:       cfg.Strategies,
		mm:               cfg.MarketMaker,
		updates:          cfg.Updates,
		tickInterval:     cfg.TickInterval,
		snapshotInterval: snapshotInterval,
		dirty:            make(map[string]struct{}),
	}

	cfg.Executor.AddFillListener(e.onFill)
	return e, nil
}

// Start launches the update and tick loops.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx = ctx
	e.logger.Info("engine-starting",
		zap.Duration("tick-interval", e.tickInterval),
		zap.Int("strategies", len(e.strategies)),
		zap.String("mode", e.executor.Mode()))

	e.wg.Add(2)
	go e.updateLoop()
	go e.tickLoop()
	return nil
}

// updateLoop consumes market updates, commits them to state and marks
// the market dirty for the next tick.
func (e *Engine) updateLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			e.logger.Info("engine-update-loop-stopping")
			return
		case market, ok := <-e.updates:
			if !ok {
				e.logger.Info("market-update-channel-closed")
				return
			}
			if e.state.UpsertMarket(market) {
				e.mu.Lock()
				e.dirty[market.MarketSlug] = struct{}{}
				e.mu.Unlock()
			}
		}
	}
}

// tickLoop runs the trading cycle at a fixed interval.
func (e *Engine) tickLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	lastSnapshot := time.Now()

	for {
		select {
		case <-e.ctx.Done():
			e.logger.Info("engine-tick-loop-stopping")
			return
		case now := <-ticker.C:
			start := time.Now()
			e.tick(now)
			TickDurationSeconds.Observe(time.Since(start).Seconds())
			TicksTotal.Inc()

			if now.Sub(lastSnapshot) >= e.snapshotInterval {
				e.storeSnapshot(now)
				lastSnapshot = now
			}
		}
	}
}

// tick runs one full trading cycle.
func (e *Engine) tick(now time.Time) {
	dirty := e.swapDirty()

	signals := make([]*strategy.Signal, 0, 8)
	for _, strat := range e.strategies {
		signals = append(signals, strat.OnTick(now)...)
	}

	for _, slug := range dirty {
		market, ok := e.state.GetMarket(slug)
		if !ok {
			continue
		}
		for _, strat := range e.strategies {
			signals = append(signals, strat.OnMarketUpdate(market, now)...)
		}
	}

	for _, sig := range Aggregate(signals) {
		decision := e.risk.Evaluate(sig, now)
		if !decision.Approved {
			continue
		}

		order, err := e.executor.PlaceOrder(e.ctx, decision.Signal)
		if err != nil {
			ExecutionErrorsTotal.Inc()
			e.logger.Error("engine-execution-failed",
				zap.String("strategy", sig.Strategy),
				zap.String("market-slug", sig.MarketSlug),
				zap.String("action", string(sig.Action)),
				zap.Error(err))
			continue
		}
		if order != nil {
			e.logger.Debug("engine-signal-executed",
				zap.String("strategy", sig.Strategy),
				zap.String("market-slug", sig.MarketSlug),
				zap.String("action", string(sig.Action)),
				zap.String("order-id", order.OrderID),
				zap.String("status", string(order.Status)))
		}
	}

	e.executor.CheckRestingOrders(e.ctx, now)
	e.risk.OnStateUpdate(now)
}

// onFill runs for every committed fill. Maker quotes are cleared so
// the market maker re-quotes around its new inventory, and the fill is
// persisted.
func (e *Engine) onFill(fill *types.Fill) {
	if e.mm != nil {
		e.mm.ClearQuotes(fill.MarketSlug)
	}

	if e.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.store.StoreFill(ctx, fill); err != nil {
			e.logger.Warn("engine-fill-store-failed",
				zap.String("fill-id", fill.FillID),
				zap.Error(err))
		}
	}
}

func (e *Engine) storeSnapshot(now time.Time) {
	if e.store == nil {
		return
	}

	snap := e.state.TakeSnapshot(now)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.StorePnLSnapshot(ctx, snap); err != nil {
		e.logger.Warn("engine-snapshot-store-failed", zap.Error(err))
	}
}

// swapDirty atomically drains the dirty market set, sorted for
// deterministic iteration.
func (e *Engine) swapDirty() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.dirty))
	for slug := range e.dirty {
		out = append(out, slug)
	}
	e.dirty = make(map[string]struct{})

	sort.Strings(out)
	return out
}

// Close waits for the engine loops to drain.
func (e *Engine) Close() error {
	e.logger.Info("closing-engine")
	e.wg.Wait()

	snap := e.state.TakeSnapshot(time.Now())
	e.logger.Info("engine-closed",
		zap.String("balance", snap.Balance.StringFixed(2)),
		zap.String("equity", snap.Equity.StringFixed(2)),
		zap.String("realized-pnl", snap.RealizedPnL.StringFixed(2)),
		zap.Int("positions", snap.Positions),
		zap.Int("open-orders", snap.OpenOrders))
	return nil
}
