package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mselser95/polymarket-sportsbot/internal/state"
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

func testFill() *types.Fill {
	return &types.Fill{
		FillID:     "fill-1",
		OrderID:    "order-1",
		MarketSlug: "nba-lal-bos-2026-01-15",
		Side:       types.SideYes,
		Intent:     types.IntentBuyLong,
		Price:      decimal.RequireFromString("0.55"),
		Quantity:   100,
		Fee:        decimal.RequireFromString("0.55"),
		Maker:      false,
		Timestamp:  time.Date(2026, 1, 15, 19, 30, 0, 0, time.UTC),
	}
}

func TestConsoleStorage_New(t *testing.T) {
	storage := NewConsoleStorage(zaptest.NewLogger(t))
	if storage == nil {
		t.Fatal("expected non-nil storage")
	}
}

func TestConsoleStorage_StoreFill(t *testing.T) {
	storage := NewConsoleStorage(zaptest.NewLogger(t))
	if err := storage.StoreFill(context.Background(), testFill()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestConsoleStorage_StorePnLSnapshot(t *testing.T) {
	storage := NewConsoleStorage(zaptest.NewLogger(t))

	snap := state.Snapshot{
		Balance:     decimal.RequireFromString("945.00"),
		Equity:      decimal.RequireFromString("1001.50"),
		RealizedPnL: decimal.RequireFromString("1.50"),
		Positions:   1,
		OpenOrders:  2,
		TakenAt:     time.Now(),
	}
	if err := storage.StorePnLSnapshot(context.Background(), snap); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestConsoleStorage_Close(t *testing.T) {
	storage := NewConsoleStorage(zaptest.NewLogger(t))
	if err := storage.Close(); err != nil {
		t.Errorf("expected no error on close, got %v", err)
	}
}

func TestPostgresStorage_StoreFill(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("create sqlmock: %v", err)
	}
	defer db.Close()

	storage := &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}
	fill := testFill()

	mock.ExpectExec("INSERT INTO fills").
		WithArgs(
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
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := storage.StoreFill(context.Background(), fill); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStorage_StoreFill_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("create sqlmock: %v", err)
	}
	defer db.Close()

	storage := &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}

	mock.ExpectExec("INSERT INTO fills").
		WillReturnError(context.DeadlineExceeded)

	if err := storage.StoreFill(context.Background(), testFill()); err == nil {
		t.Error("expected error from failed insert")
	}
}

func TestPostgresStorage_StorePnLSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("create sqlmock: %v", err)
	}
	defer db.Close()

	storage := &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}

	snap := state.Snapshot{
		Balance:     decimal.RequireFromString("945.00"),
		Equity:      decimal.RequireFromString("1001.50"),
		RealizedPnL: decimal.RequireFromString("1.50"),
		Positions:   1,
		OpenOrders:  2,
		TakenAt:     time.Date(2026, 1, 15, 20, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec("INSERT INTO pnl_snapshots").
		WithArgs(
			snap.Balance.String(),
			snap.Equity.String(),
			snap.RealizedPnL.String(),
			snap.Positions,
			snap.OpenOrders,
			snap.TakenAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := storage.StorePnLSnapshot(context.Background(), snap); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStorage_Close(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("create sqlmock: %v", err)
	}

	mock.ExpectClose()
	storage := &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}

	if err := storage.Close(); err != nil {
		t.Errorf("expected no error on close, got %v", err)
	}
}
