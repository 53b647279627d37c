package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/mselser95/polymarket-sportsbot/internal/state"
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"go.uber.org/zap"
)

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage creates a new PostgreSQL storage.
func NewPostgresStorage(cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresStorage{
		db:     db,
		logger: cfg.Logger,
	}, nil
}

// StoreFill inserts one fill row.
func (p *PostgresStorage) StoreFill(ctx context.Context, fill *types.Fill) error {
	query := `
		INSERT INTO fills (
			id, order_id, market_slug, side, intent,
			price, quantity, fee, maker, executed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := p.db.ExecContext(ctx, query,
		fill.FillID,
		fill.OrderID,
		fill.MarketSlug,
		string(fill.Side),
		string(fill.Intent),
		fill.Price.String(),
		fill.Quantity,
		fill.Fee.String(),
		fill.Maker,
		fill.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert fill: %w", err)
	}

	p.logger.Debug("fill-stored",
		zap.String("fill-id", fill.FillID),
		zap.String("market-slug", fill.MarketSlug))
	return nil
}

// StorePnLSnapshot inserts one portfolio snapshot row.
func (p *PostgresStorage) StorePnLSnapshot(ctx context.Context, snap state.Snapshot) error {
	query := `
		INSERT INTO pnl_snapshots (
			balance, equity, realized_pnl, positions, open_orders, taken_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := p.db.ExecContext(ctx, query,
		snap.Balance.String(),
		snap.Equity.String(),
		snap.RealizedPnL.String(),
		snap.Positions,
		snap.OpenOrders,
		snap.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("insert pnl snapshot: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
