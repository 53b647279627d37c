package storage

import (
	"context"

	"github.com/mselser95/polymarket-sportsbot/internal/state"
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
)

// Storage persists fills and periodic PnL snapshots.
type Storage interface {
	// StoreFill records one executed fill.
	StoreFill(ctx context.Context, fill *types.Fill) error

	// StorePnLSnapshot records a point-in-time portfolio snapshot.
	StorePnLSnapshot(ctx context.Context, snap state.Snapshot) error

	// Close closes the storage connection.
	Close() error
}
