package storage

import (
	"context"

	"github.com/mselser95/polymarket-sportsbot/internal/state"
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"go.uber.org/zap"
)

// ConsoleStorage implements Storage by logging records instead of
// persisting them. Used in paper mode when no database is configured.
type ConsoleStorage struct {
	logger *zap.Logger
}

// NewConsoleStorage creates a new console storage.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{
		logger: logger,
	}
}

// StoreFill logs one fill.
func (c *ConsoleStorage) StoreFill(ctx context.Context, fill *types.Fill) error {
	c.logger.Info("fill",
		zap.String("fill-id", fill.FillID),
		zap.String("order-id", fill.OrderID),
		zap.String("market-slug", fill.MarketSlug),
		zap.String("side", string(fill.Side)),
		zap.String("intent", string(fill.Intent)),
		zap.String("price", fill.Price.String()),
		zap.Int64("quantity", fill.Quantity),
		zap.String("fee", fill.Fee.String()),
		zap.Bool("maker", fill.Maker))
	return nil
}

// StorePnLSnapshot logs one portfolio snapshot.
func (c *ConsoleStorage) StorePnLSnapshot(ctx context.Context, snap state.Snapshot) error {
	c.logger.Info("pnl-snapshot",
		zap.String("balance", snap.Balance.StringFixed(2)),
		zap.String("equity", snap.Equity.StringFixed(2)),
		zap.String("realized-pnl", snap.RealizedPnL.StringFixed(2)),
		zap.Int("positions", snap.Positions),
		zap.Int("open-orders", snap.OpenOrders),
		zap.Time("taken-at", snap.TakenAt))
	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
