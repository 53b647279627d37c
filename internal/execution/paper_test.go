package execution

import (
	"context"
	"testing"
	"time"

	"github.com/mselser95/polymarket-sportsbot/internal/orderbook"
	"github.com/mselser95/polymarket-sportsbot/internal/state"
	"github.com/mselser95/polymarket-sportsbot/internal/strategy"
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSlug = "nba-lal-bos-2026-08-25"

type paperFixture struct {
	state    *state.Manager
	tracker  *orderbook.Tracker
	executor *PaperExecutor
}

func newPaperFixture(t *testing.T, balance string) *paperFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	st, err := state.New(&state.Config{
		Logger:         logger,
		InitialBalance: decimal.RequireFromString(balance),
	})
	require.NoError(t, err)

	tracker, err := orderbook.NewTracker(&orderbook.TrackerConfig{Logger: logger})
	require.NoError(t, err)

	executor, err := NewPaperExecutor(&PaperConfig{
		State:               st,
		Tracker:             tracker,
		Logger:              logger,
		TakerFeeRate:        decimal.RequireFromString("0.01"),
		MakerFeeRate:        decimal.Zero,
		MakerFillFraction:   decimal.RequireFromString("0.5"),
		LiquidationDiscount: decimal.RequireFromString("0.8"),
	})
	require.NoError(t, err)

	yesBid := decimal.RequireFromString("0.50")
	yesAsk := decimal.RequireFromString("0.55")
	st.UpsertMarket(&types.MarketState{
		MarketSlug: testSlug,
		YesTokenID: "token-yes",
		NoTokenID:  "token-no",
		YesBid:     &yesBid,
		YesAsk:     &yesAsk,
		UpdatedAt:  time.Now(),
	})

	return &paperFixture{state: st, tracker: tracker, executor: executor}
}

func (f *paperFixture) setYesBook(bids, asks []types.BookLevel) {
	f.tracker.ApplySnapshot("token-yes", testSlug, bids, asks, 0, time.Now())
}

func bookLevel(price, size string) types.BookLevel {
	return types.BookLevel{
		Price: decimal.RequireFromString(price),
		Size:  decimal.RequireFromString(size),
	}
}

func TestPaperBuyWalksAskLadder(t *testing.T) {
	f := newPaperFixture(t, "1000")
	f.setYesBook(nil, []types.BookLevel{
		bookLevel("0.55", "60"),
		bookLevel("0.58", "100"),
	})

	order, err := f.executor.PlaceOrder(context.Background(), &strategy.Signal{
		Strategy:   "statistical_edge",
		MarketSlug: testSlug,
		Action:     strategy.ActionBuyYes,
		Price:      decimal.RequireFromString("0.60"),
		Quantity:   100,
	})
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, types.StatusFilled, order.Status)
	assert.Equal(t, int64(0), order.RemainingQuantity)

	pos, ok := f.state.GetPosition(testSlug)
	require.True(t, ok)
	assert.Equal(t, int64(100), pos.Quantity)
	// VWAP: (60*0.55 + 40*0.58) / 100 = 0.562.
	assert.True(t, pos.AvgEntryPrice.Equal(decimal.RequireFromString("0.562")), "got %s", pos.AvgEntryPrice)

	// Notional 56.2 plus 1% taker fee.
	expectedBalance := decimal.RequireFromString("1000").
		Sub(decimal.RequireFromString("56.2")).
		Sub(decimal.RequireFromString("0.562"))
	assert.True(t, f.state.Balance().Equal(expectedBalance), "got %s", f.state.Balance())
}

func TestPaperPartialFillRests(t *testing.T) {
	f := newPaperFixture(t, "1000")
	f.setYesBook(nil, []types.BookLevel{bookLevel("0.55", "30")})

	order, err := f.executor.PlaceOrder(context.Background(), &strategy.Signal{
		Strategy:   "market_maker",
		MarketSlug: testSlug,
		Action:     strategy.ActionBuyYes,
		Price:      decimal.RequireFromString("0.55"),
		Quantity:   100,
	})
	require.NoError(t, err)

	assert.Equal(t, types.StatusPartiallyFilled, order.Status)
	assert.Equal(t, int64(70), order.RemainingQuantity)

	resting := f.state.OpenOrders()
	require.Len(t, resting, 1)
	assert.Equal(t, order.OrderID, resting[0].OrderID)
}

func TestPaperNonMarketableOrderRests(t *testing.T) {
	f := newPaperFixture(t, "1000")
	f.setYesBook(nil, []types.BookLevel{bookLevel("0.55", "100")})

	order, err := f.executor.PlaceOrder(context.Background(), &strategy.Signal{
		Strategy:   "market_maker",
		MarketSlug: testSlug,
		Action:     strategy.ActionBuyYes,
		Price:      decimal.RequireFromString("0.50"),
		Quantity:   50,
	})
	require.NoError(t, err)

	assert.Equal(t, types.StatusOpen, order.Status)
	_, ok := f.state.GetPosition(testSlug)
	assert.False(t, ok)
}

func TestPaperSellWithoutPositionNormalizesToOppositeBuy(t *testing.T) {
	f := newPaperFixture(t, "1000")
	// Selling YES at 0.60 becomes buying NO at 0.40.
	f.tracker.ApplySnapshot("token-no", testSlug, nil,
		[]types.BookLevel{bookLevel("0.40", "100")}, 0, time.Now())

	order, err := f.executor.PlaceOrder(context.Background(), &strategy.Signal{
		Strategy:   "market_maker",
		MarketSlug: testSlug,
		Action:     strategy.ActionSellYes,
		Price:      decimal.RequireFromString("0.60"),
		Quantity:   50,
	})
	require.NoError(t, err)

	assert.Equal(t, types.SideNo, order.Side)
	assert.Equal(t, types.IntentBuyShort, order.Intent)
	assert.Equal(t, types.StatusFilled, order.Status)

	pos, ok := f.state.GetPosition(testSlug)
	require.True(t, ok)
	assert.Equal(t, types.SideNo, pos.Side)
	assert.Equal(t, int64(50), pos.Quantity)
}

func TestPaperBuyAgainstOppositePositionFlips(t *testing.T) {
	f := newPaperFixture(t, "1000")
	now := time.Now()

	// Hold 40 NO at 0.45.
	require.NoError(t, f.state.ApplyBuy(testSlug, types.SideNo, 40, decimal.RequireFromString("0.45"), decimal.Zero, now))

	f.setYesBook(nil, []types.BookLevel{bookLevel("0.60", "200")})

	order, err := f.executor.PlaceOrder(context.Background(), &strategy.Signal{
		Strategy:   "live_arbitrage",
		MarketSlug: testSlug,
		Action:     strategy.ActionBuyYes,
		Price:      decimal.RequireFromString("0.60"),
		Quantity:   100,
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusFilled, order.Status)

	pos, ok := f.state.GetPosition(testSlug)
	require.True(t, ok)
	assert.Equal(t, types.SideYes, pos.Side)
	assert.Equal(t, int64(100), pos.Quantity)

	// The NO side closed at 1 - 0.60 = 0.40 against a 0.45 entry.
	// Realized: (0.40 - 0.45) * 40 minus the 1% taker fee on 16.
	expected := decimal.RequireFromString("-2").Sub(decimal.RequireFromString("0.16"))
	assert.True(t, f.state.RealizedPnL().Equal(expected), "got %s", f.state.RealizedPnL())
}

func TestPaperSellCappedAtHeldQuantity(t *testing.T) {
	f := newPaperFixture(t, "1000")
	now := time.Now()

	require.NoError(t, f.state.ApplyBuy(testSlug, types.SideYes, 30, decimal.RequireFromString("0.50"), decimal.Zero, now))
	f.setYesBook([]types.BookLevel{bookLevel("0.60", "500")}, nil)

	order, err := f.executor.PlaceOrder(context.Background(), &strategy.Signal{
		Strategy:   "market_maker",
		MarketSlug: testSlug,
		Action:     strategy.ActionSellYes,
		Price:      decimal.RequireFromString("0.55"),
		Quantity:   100,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(30), order.OriginalQuantity)
	assert.Equal(t, types.StatusFilled, order.Status)
	_, ok := f.state.GetPosition(testSlug)
	assert.False(t, ok)
}

func TestPaperCancelOrder(t *testing.T) {
	f := newPaperFixture(t, "1000")
	f.setYesBook(nil, []types.BookLevel{bookLevel("0.55", "100")})

	order, err := f.executor.PlaceOrder(context.Background(), &strategy.Signal{
		Strategy:   "market_maker",
		MarketSlug: testSlug,
		Action:     strategy.ActionBuyYes,
		Price:      decimal.RequireFromString("0.50"),
		Quantity:   50,
	})
	require.NoError(t, err)
	require.Equal(t, types.StatusOpen, order.Status)

	require.NoError(t, f.executor.CancelOrder(context.Background(), order.OrderID))
	assert.Empty(t, f.state.OpenOrders())

	err = f.executor.CancelOrder(context.Background(), "missing")
	require.ErrorIs(t, err, types.ErrOrderNotFound)
}

func TestPaperCancelSignalWithoutIDCancelsMarket(t *testing.T) {
	f := newPaperFixture(t, "1000")
	f.setYesBook(nil, []types.BookLevel{bookLevel("0.55", "100")})

	otherSlug := "nba-dal-den-2026-08-25"
	yesBid := decimal.RequireFromString("0.40")
	yesAsk := decimal.RequireFromString("0.45")
	f.state.UpsertMarket(&types.MarketState{
		MarketSlug: otherSlug,
		YesTokenID: "token-yes-2",
		NoTokenID:  "token-no-2",
		YesBid:     &yesBid,
		YesAsk:     &yesAsk,
		UpdatedAt:  time.Now(),
	})

	order, err := f.executor.PlaceOrder(context.Background(), &strategy.Signal{
		Strategy:   "market_maker",
		MarketSlug: testSlug,
		Action:     strategy.ActionBuyYes,
		Price:      decimal.RequireFromString("0.50"),
		Quantity:   50,
	})
	require.NoError(t, err)
	require.Equal(t, types.StatusOpen, order.Status)

	other, err := f.executor.PlaceOrder(context.Background(), &strategy.Signal{
		Strategy:   "market_maker",
		MarketSlug: otherSlug,
		Action:     strategy.ActionBuyYes,
		Price:      decimal.RequireFromString("0.38"),
		Quantity:   20,
	})
	require.NoError(t, err)
	require.Equal(t, types.StatusOpen, other.Status)

	// A quote refresh cancels by market, not by order id.
	_, err = f.executor.PlaceOrder(context.Background(), &strategy.Signal{
		Strategy:   "market_maker",
		MarketSlug: testSlug,
		Action:     strategy.ActionCancel,
	})
	require.NoError(t, err)

	open := f.state.OpenOrders()
	require.Len(t, open, 1)
	assert.Equal(t, otherSlug, open[0].MarketSlug)
}

func TestPaperCheckRestingOrdersMakerFill(t *testing.T) {
	f := newPaperFixture(t, "1000")
	f.setYesBook(nil, []types.BookLevel{bookLevel("0.55", "100")})

	order, err := f.executor.PlaceOrder(context.Background(), &strategy.Signal{
		Strategy:   "market_maker",
		MarketSlug: testSlug,
		Action:     strategy.ActionBuyYes,
		Price:      decimal.RequireFromString("0.50"),
		Quantity:   40,
	})
	require.NoError(t, err)
	require.Equal(t, types.StatusOpen, order.Status)

	// The book trades down through the resting bid.
	f.setYesBook(nil, []types.BookLevel{bookLevel("0.49", "300")})

	f.executor.CheckRestingOrders(context.Background(), time.Now())

	// Half the remainder fills per tick at the limit price.
	resting := f.state.OpenOrders()
	require.Len(t, resting, 1)
	assert.Equal(t, int64(20), resting[0].RemainingQuantity)

	pos, ok := f.state.GetPosition(testSlug)
	require.True(t, ok)
	assert.Equal(t, int64(20), pos.Quantity)
	assert.True(t, pos.AvgEntryPrice.Equal(decimal.RequireFromString("0.50")), "maker fills at the limit price")

	// Halving the remainder each tick drains the order in a few more.
	for i := 0; i < 10 && len(f.state.OpenOrders()) > 0; i++ {
		f.executor.CheckRestingOrders(context.Background(), time.Now())
	}
	assert.Empty(t, f.state.OpenOrders())

	pos, ok = f.state.GetPosition(testSlug)
	require.True(t, ok)
	assert.Equal(t, int64(40), pos.Quantity)
}

func TestPaperCheckRestingOrdersNoCross(t *testing.T) {
	f := newPaperFixture(t, "1000")
	f.setYesBook(nil, []types.BookLevel{bookLevel("0.55", "100")})

	_, err := f.executor.PlaceOrder(context.Background(), &strategy.Signal{
		Strategy:   "market_maker",
		MarketSlug: testSlug,
		Action:     strategy.ActionBuyYes,
		Price:      decimal.RequireFromString("0.50"),
		Quantity:   40,
	})
	require.NoError(t, err)

	f.executor.CheckRestingOrders(context.Background(), time.Now())

	resting := f.state.OpenOrders()
	require.Len(t, resting, 1)
	assert.Equal(t, int64(40), resting[0].RemainingQuantity)
}

func TestPaperMarketOrderSweepsLadder(t *testing.T) {
	f := newPaperFixture(t, "1000")
	f.setYesBook(nil, []types.BookLevel{
		bookLevel("0.55", "40"),
		bookLevel("0.62", "100"),
	})

	// A limit at 0.55 would stop after the first level; a market
	// order keeps consuming depth.
	order, err := f.executor.PlaceOrder(context.Background(), &strategy.Signal{
		Strategy:   "live_arbitrage",
		MarketSlug: testSlug,
		Action:     strategy.ActionBuyYes,
		Price:      decimal.RequireFromString("0.55"),
		Quantity:   100,
		OrderType:  types.OrderTypeMarket,
	})
	require.NoError(t, err)

	assert.Equal(t, types.StatusFilled, order.Status)
	pos, ok := f.state.GetPosition(testSlug)
	require.True(t, ok)
	assert.Equal(t, int64(100), pos.Quantity)
	// VWAP: (40*0.55 + 60*0.62) / 100 = 0.592.
	assert.True(t, pos.AvgEntryPrice.Equal(decimal.RequireFromString("0.592")), "got %s", pos.AvgEntryPrice)

	// Market orders never rest.
	assert.Empty(t, f.state.OpenOrders())
}

func TestPaperMarketOrderRemainderDies(t *testing.T) {
	f := newPaperFixture(t, "1000")
	f.setYesBook(nil, []types.BookLevel{bookLevel("0.55", "30")})

	order, err := f.executor.PlaceOrder(context.Background(), &strategy.Signal{
		Strategy:   "live_arbitrage",
		MarketSlug: testSlug,
		Action:     strategy.ActionBuyYes,
		Price:      decimal.RequireFromString("0.55"),
		Quantity:   100,
		OrderType:  types.OrderTypeMarket,
	})
	require.NoError(t, err)

	assert.Equal(t, types.StatusPartiallyFilled, order.Status)
	assert.Equal(t, int64(70), order.RemainingQuantity)
	assert.Empty(t, f.state.OpenOrders())
}

func TestPaperRestingSellCancelledWhenPositionGone(t *testing.T) {
	f := newPaperFixture(t, "1000")
	f.setYesBook([]types.BookLevel{bookLevel("0.60", "100")}, nil)
	now := time.Now()

	require.NoError(t, f.state.ApplyBuy(testSlug, types.SideYes, 50, decimal.RequireFromString("0.50"), decimal.Zero, now))

	order, err := f.executor.PlaceOrder(context.Background(), &strategy.Signal{
		Strategy:   "market_maker",
		MarketSlug: testSlug,
		Action:     strategy.ActionSellYes,
		Price:      decimal.RequireFromString("0.70"),
		Quantity:   50,
	})
	require.NoError(t, err)
	require.Equal(t, types.StatusOpen, order.Status)

	// The position closes out from under the resting sell.
	_, err = f.state.ApplySell(testSlug, types.SideYes, 50, decimal.RequireFromString("0.60"), decimal.Zero, now)
	require.NoError(t, err)

	// Bids reach the sell price; the orphaned order is cancelled
	// instead of being retried forever.
	f.setYesBook([]types.BookLevel{bookLevel("0.70", "100")}, nil)
	f.executor.CheckRestingOrders(context.Background(), now)

	assert.Empty(t, f.state.OpenOrders())
	_, ok := f.state.GetOrder(order.OrderID)
	assert.False(t, ok)
}

func TestPaperFillListener(t *testing.T) {
	f := newPaperFixture(t, "1000")
	f.setYesBook(nil, []types.BookLevel{bookLevel("0.55", "100")})

	var fills []*types.Fill
	f.executor.AddFillListener(func(fill *types.Fill) {
		fills = append(fills, fill)
	})

	_, err := f.executor.PlaceOrder(context.Background(), &strategy.Signal{
		Strategy:   "statistical_edge",
		MarketSlug: testSlug,
		Action:     strategy.ActionBuyYes,
		Price:      decimal.RequireFromString("0.55"),
		Quantity:   50,
	})
	require.NoError(t, err)

	require.Len(t, fills, 1)
	assert.Equal(t, testSlug, fills[0].MarketSlug)
	assert.Equal(t, int64(50), fills[0].Quantity)
	assert.False(t, fills[0].Maker)
}

func TestPaperLiquidationValue(t *testing.T) {
	f := newPaperFixture(t, "1000")
	now := time.Now()

	require.NoError(t, f.state.ApplyBuy(testSlug, types.SideYes, 100, decimal.RequireFromString("0.50"), decimal.Zero, now))
	f.setYesBook([]types.BookLevel{bookLevel("0.52", "60")}, nil)

	// 60 into the bid at 0.52, the 40 residual at entry times the
	// 0.8 discount.
	value := f.executor.LiquidationValue()
	expected := decimal.RequireFromString("31.2").Add(decimal.RequireFromString("16"))
	assert.True(t, value.Equal(expected), "got %s", value)
}

func TestPaperCancelAll(t *testing.T) {
	f := newPaperFixture(t, "1000")
	f.setYesBook(nil, []types.BookLevel{bookLevel("0.55", "100")})

	for i := 0; i < 3; i++ {
		_, err := f.executor.PlaceOrder(context.Background(), &strategy.Signal{
			Strategy:   "market_maker",
			MarketSlug: testSlug,
			Action:     strategy.ActionBuyYes,
			Price:      decimal.RequireFromString("0.50"),
			Quantity:   10,
		})
		require.NoError(t, err)
	}
	require.Len(t, f.state.OpenOrders(), 3)

	require.NoError(t, f.executor.CancelAll(context.Background()))
	assert.Empty(t, f.state.OpenOrders())
}
