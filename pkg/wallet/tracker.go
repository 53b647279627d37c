package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Tracker polls the trading wallet and exports its funding state as
// Prometheus gauges. In live mode this is the source of truth for how
// much collateral actually backs the bot.
type Tracker struct {
	client       *Client
	address      common.Address
	pollInterval time.Duration
	minGasPOL    float64
	logger       *zap.Logger
}

// Config holds tracker configuration.
type Config struct {
	RPCEndpoint  string
	Address      common.Address
	PollInterval time.Duration

	// MinGasPOL logs a warning when the POL balance drops below this
	// amount. Zero disables the check.
	MinGasPOL float64

	Logger *zap.Logger
}

// New creates a new wallet tracker.
func New(cfg *Config) (*Tracker, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.RPCEndpoint == "" {
		return nil, errors.New("RPC endpoint cannot be empty")
	}
	if cfg.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}

	client, err := NewClient(cfg.RPCEndpoint, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Tracker{
		client:       client,
		address:      cfg.Address,
		pollInterval: cfg.PollInterval,
		minGasPOL:    cfg.MinGasPOL,
		logger:       cfg.Logger,
	}, nil
}

// Run polls until the context is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info("wallet-tracker-starting",
		zap.Duration("poll-interval", t.pollInterval),
		zap.String("address", t.address.Hex()))

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		if err := t.poll(ctx); err != nil {
			t.logger.Error("wallet-poll-failed", zap.Error(err))
			UpdateErrorsTotal.Inc()
		}

		select {
		case <-ctx.Done():
			t.logger.Info("wallet-tracker-stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *Tracker) poll(ctx context.Context) error {
	start := time.Now()
	defer func() {
		UpdateDuration.Observe(time.Since(start).Seconds())
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	balances, err := t.client.GetBalances(fetchCtx, t.address)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	positions, err := t.client.GetPositions(fetchCtx, t.address.Hex())
	if err != nil {
		return fmt.Errorf("get positions: %w", err)
	}

	t.record(balances, positions)
	LastUpdateTimestamp.Set(float64(time.Now().Unix()))

	t.logger.Debug("wallet-poll-complete",
		zap.Int("position-count", len(positions)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// record converts on-chain units and publishes the gauges.
func (t *Tracker) record(balances *Balances, positions []Position) {
	pol := toFloat(balances.POL, 1e18)
	usdc := toFloat(balances.USDC, 1e6)
	allowance := toFloat(balances.USDCAllowance, 1e6)

	POLBalance.Set(pol)
	USDCBalance.Set(usdc)
	USDCAllowance.Set(allowance)

	if t.minGasPOL > 0 && pol < t.minGasPOL {
		t.logger.Warn("gas-balance-low",
			zap.Float64("pol", pol),
			zap.Float64("threshold", t.minGasPOL))
	}

	var value, cost, pnl float64
	for _, p := range positions {
		value += p.Value
		cost += p.InitialValue
		pnl += p.CashPnL
	}

	ActivePositions.Set(float64(len(positions)))
	TotalPositionValue.Set(value)
	TotalPositionCost.Set(cost)
	UnrealizedPnL.Set(pnl)

	if cost > 0 {
		UnrealizedPnLPercent.Set(pnl / cost * 100)
	} else {
		UnrealizedPnLPercent.Set(0)
	}

	PortfolioValue.Set(usdc + value)
}

func toFloat(v *big.Int, unit float64) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), big.NewFloat(unit)).Float64()
	return f
}
