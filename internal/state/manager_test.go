package state

import (
	"testing"
	"time"

	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestManager(t *testing.T, balance string) *Manager {
	t.Helper()
	m, err := New(&Config{
		Logger:         zaptest.NewLogger(t),
		InitialBalance: decimal.RequireFromString(balance),
	})
	require.NoError(t, err)
	return m
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNewRejectsNegativeBalance(t *testing.T) {
	_, err := New(&Config{
		Logger:         zaptest.NewLogger(t),
		InitialBalance: decimal.NewFromInt(-1),
	})
	require.Error(t, err)
}

func TestUpsertMarketIgnoresOlderUpdates(t *testing.T) {
	m := newTestManager(t, "1000")
	now := time.Now()

	bid := d("0.55")
	applied := m.UpsertMarket(&types.MarketState{
		MarketSlug: "nba-lal-bos-2026-08-25",
		YesBid:     &bid,
		UpdatedAt:  now,
	})
	assert.True(t, applied)

	staleBid := d("0.40")
	applied = m.UpsertMarket(&types.MarketState{
		MarketSlug: "nba-lal-bos-2026-08-25",
		YesBid:     &staleBid,
		UpdatedAt:  now.Add(-time.Second),
	})
	assert.False(t, applied)

	market, ok := m.GetMarket("nba-lal-bos-2026-08-25")
	require.True(t, ok)
	assert.True(t, market.YesBid.Equal(d("0.55")))
}

func TestApplyBuyAveragesEntryPrice(t *testing.T) {
	m := newTestManager(t, "1000")
	now := time.Now()

	require.NoError(t, m.ApplyBuy("nba-lal-bos-2026-08-25", types.SideYes, 100, d("0.50"), d("1"), now))
	require.NoError(t, m.ApplyBuy("nba-lal-bos-2026-08-25", types.SideYes, 100, d("0.60"), d("1"), now))

	pos, ok := m.GetPosition("nba-lal-bos-2026-08-25")
	require.True(t, ok)
	assert.Equal(t, int64(200), pos.Quantity)
	assert.True(t, pos.AvgEntryPrice.Equal(d("0.55")), "got %s", pos.AvgEntryPrice)

	// 1000 - (50+1) - (60+1)
	assert.True(t, m.Balance().Equal(d("888")), "got %s", m.Balance())
}

func TestApplyBuyRejectsSideMismatch(t *testing.T) {
	m := newTestManager(t, "1000")
	now := time.Now()

	require.NoError(t, m.ApplyBuy("nba-lal-bos-2026-08-25", types.SideYes, 10, d("0.50"), decimal.Zero, now))
	err := m.ApplyBuy("nba-lal-bos-2026-08-25", types.SideNo, 10, d("0.50"), decimal.Zero, now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "side mismatch")
}

func TestApplyBuyInsufficientBalance(t *testing.T) {
	m := newTestManager(t, "10")
	err := m.ApplyBuy("nba-lal-bos-2026-08-25", types.SideYes, 100, d("0.50"), decimal.Zero, time.Now())
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
}

func TestApplySellRealizesPnL(t *testing.T) {
	m := newTestManager(t, "1000")
	now := time.Now()

	require.NoError(t, m.ApplyBuy("nba-lal-bos-2026-08-25", types.SideYes, 100, d("0.50"), decimal.Zero, now))

	realized, err := m.ApplySell("nba-lal-bos-2026-08-25", types.SideYes, 60, d("0.65"), d("0.5"), now)
	require.NoError(t, err)
	// (0.65-0.50)*60 - 0.5
	assert.True(t, realized.Equal(d("8.5")), "got %s", realized)
	assert.True(t, m.RealizedPnL().Equal(d("8.5")))

	pos, ok := m.GetPosition("nba-lal-bos-2026-08-25")
	require.True(t, ok)
	assert.Equal(t, int64(40), pos.Quantity)

	// Close the remainder; the position disappears.
	_, err = m.ApplySell("nba-lal-bos-2026-08-25", types.SideYes, 40, d("0.65"), decimal.Zero, now)
	require.NoError(t, err)
	_, ok = m.GetPosition("nba-lal-bos-2026-08-25")
	assert.False(t, ok)
}

func TestApplySellRejectsOversell(t *testing.T) {
	m := newTestManager(t, "1000")
	now := time.Now()

	require.NoError(t, m.ApplyBuy("nba-lal-bos-2026-08-25", types.SideYes, 10, d("0.50"), decimal.Zero, now))

	_, err := m.ApplySell("nba-lal-bos-2026-08-25", types.SideYes, 11, d("0.60"), decimal.Zero, now)
	require.Error(t, err)

	_, err = m.ApplySell("nba-lal-bos-2026-08-25", types.SideNo, 5, d("0.60"), decimal.Zero, now)
	require.ErrorIs(t, err, types.ErrPositionNotFound)
}

func TestTotalEquityMarksAtBestBid(t *testing.T) {
	m := newTestManager(t, "1000")
	now := time.Now()

	require.NoError(t, m.ApplyBuy("nba-lal-bos-2026-08-25", types.SideYes, 100, d("0.50"), decimal.Zero, now))
	// No market quote yet: marked at entry, equity unchanged.
	assert.True(t, m.TotalEquity().Equal(d("1000")), "got %s", m.TotalEquity())

	bid := d("0.70")
	m.UpsertMarket(&types.MarketState{
		MarketSlug: "nba-lal-bos-2026-08-25",
		YesBid:     &bid,
		UpdatedAt:  now,
	})
	// 950 cash + 100*0.70
	assert.True(t, m.TotalEquity().Equal(d("1020")), "got %s", m.TotalEquity())
}

func TestOrderLifecycle(t *testing.T) {
	m := newTestManager(t, "1000")
	now := time.Now()

	order := &types.OrderState{
		OrderID:           "ord-1",
		MarketSlug:        "nba-lal-bos-2026-08-25",
		Side:              types.SideYes,
		Intent:            types.IntentBuyLong,
		Type:              types.OrderTypeLimit,
		Price:             d("0.55"),
		OriginalQuantity:  100,
		RemainingQuantity: 100,
		Status:            types.StatusOpen,
		CreatedAt:         now,
	}
	require.NoError(t, m.AddOrder(order))
	require.Error(t, m.AddOrder(order), "duplicate order id must fail")

	order.RemainingQuantity = 40
	order.Status = types.StatusPartiallyFilled
	require.NoError(t, m.UpdateOrder(order))

	got, ok := m.GetOrder("ord-1")
	require.True(t, ok)
	assert.Equal(t, int64(40), got.RemainingQuantity)
	assert.Equal(t, int64(60), got.FilledQuantity())

	order.Status = types.StatusFilled
	require.NoError(t, m.UpdateOrder(order))
	_, ok = m.GetOrder("ord-1")
	assert.False(t, ok, "terminal orders leave the open set")

	require.ErrorIs(t, m.UpdateOrder(&types.OrderState{OrderID: "missing"}), types.ErrOrderNotFound)
}

func TestOpenOrdersSortedByCreation(t *testing.T) {
	m := newTestManager(t, "1000")
	base := time.Now()

	for i, id := range []string{"ord-c", "ord-a", "ord-b"} {
		require.NoError(t, m.AddOrder(&types.OrderState{
			OrderID:    id,
			MarketSlug: "nba-lal-bos-2026-08-25",
			Status:     types.StatusOpen,
			CreatedAt:  base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	orders := m.OpenOrders()
	require.Len(t, orders, 3)
	assert.Equal(t, "ord-c", orders[0].OrderID)
	assert.Equal(t, "ord-b", orders[2].OrderID)
}

func TestCreditDebit(t *testing.T) {
	m := newTestManager(t, "100")

	require.NoError(t, m.Credit(d("50")))
	require.NoError(t, m.Debit(d("120")))
	assert.True(t, m.Balance().Equal(d("30")))

	require.ErrorIs(t, m.Debit(d("31")), types.ErrInsufficientBalance)
	require.Error(t, m.Credit(d("-1")))
}

func TestSetBalanceAdoptsReportedAmount(t *testing.T) {
	m := newTestManager(t, "1000")

	require.NoError(t, m.SetBalance(d("842.50")))
	assert.True(t, m.Balance().Equal(d("842.50")), "got %s", m.Balance())

	require.Error(t, m.SetBalance(d("-1")))
}

func TestReconcilePosition(t *testing.T) {
	m := newTestManager(t, "1000")
	now := time.Now()

	// Unknown position gets created at the reported size.
	require.NoError(t, m.ReconcilePosition("nba-lal-bos-2026-08-25", types.SideYes, 40, d("0.55"), now))
	pos, ok := m.GetPosition("nba-lal-bos-2026-08-25")
	require.True(t, ok)
	assert.Equal(t, int64(40), pos.Quantity)
	assert.True(t, pos.AvgEntryPrice.Equal(d("0.55")))

	// A drifted local quantity is overwritten.
	require.NoError(t, m.ReconcilePosition("nba-lal-bos-2026-08-25", types.SideYes, 25, d("0.55"), now))
	pos, ok = m.GetPosition("nba-lal-bos-2026-08-25")
	require.True(t, ok)
	assert.Equal(t, int64(25), pos.Quantity)

	// Zero removes.
	require.NoError(t, m.ReconcilePosition("nba-lal-bos-2026-08-25", types.SideYes, 0, decimal.Zero, now))
	_, ok = m.GetPosition("nba-lal-bos-2026-08-25")
	assert.False(t, ok)

	require.Error(t, m.ReconcilePosition("nba-lal-bos-2026-08-25", types.SideYes, -5, decimal.Zero, now))
}

func TestTakeSnapshot(t *testing.T) {
	m := newTestManager(t, "500")
	now := time.Now()

	require.NoError(t, m.ApplyBuy("nba-lal-bos-2026-08-25", types.SideYes, 50, d("0.40"), decimal.Zero, now))
	require.NoError(t, m.AddOrder(&types.OrderState{OrderID: "ord-1", Status: types.StatusOpen, CreatedAt: now}))

	snap := m.TakeSnapshot(now)
	assert.True(t, snap.Balance.Equal(d("480")))
	assert.True(t, snap.Equity.Equal(d("500")))
	assert.Equal(t, 1, snap.Positions)
	assert.Equal(t, 1, snap.OpenOrders)
	assert.Equal(t, now, snap.TakenAt)
}
