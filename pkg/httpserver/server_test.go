package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/polymarket-sportsbot/internal/orderbook"
	"github.com/mselser95/polymarket-sportsbot/internal/state"
	"github.com/mselser95/polymarket-sportsbot/pkg/healthprobe"
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T) (*Server, *state.Manager, *orderbook.Tracker) {
	t.Helper()

	logger := zaptest.NewLogger(t)

	st, err := state.New(&state.Config{
		Logger:         logger,
		InitialBalance: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	tracker, err := orderbook.NewTracker(&orderbook.TrackerConfig{Logger: logger})
	require.NoError(t, err)

	hc := healthprobe.New()
	hc.SetReady(true)

	srv := New(&Config{
		Port:          "0",
		Logger:        logger,
		HealthChecker: hc,
		State:         st,
		Tracker:       tracker,
	})
	return srv, st, tracker
}

func doRequest(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	srv, _, _ := newTestServer(t)

	assert.Equal(t, http.StatusOK, doRequest(t, srv, "/health").Code)
	assert.Equal(t, http.StatusOK, doRequest(t, srv, "/ready").Code)
}

func TestPositionsEndpoint(t *testing.T) {
	srv, st, _ := newTestServer(t)

	now := time.Now()
	require.NoError(t, st.ApplyBuy("nba-lal-bos-2026-08-25", types.SideYes, 100,
		decimal.RequireFromString("0.55"), decimal.Zero, now))

	rec := doRequest(t, srv, "/api/positions")
	require.Equal(t, http.StatusOK, rec.Code)

	var positions []PositionJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &positions))
	require.Len(t, positions, 1)
	assert.Equal(t, "nba-lal-bos-2026-08-25", positions[0].MarketSlug)
	assert.Equal(t, "YES", positions[0].Side)
	assert.Equal(t, int64(100), positions[0].Quantity)
	assert.Equal(t, "0.55", positions[0].AvgEntryPrice)
}

func TestOrdersEndpoint(t *testing.T) {
	srv, st, _ := newTestServer(t)

	now := time.Now()
	require.NoError(t, st.AddOrder(&types.OrderState{
		OrderID:           "ord-1",
		MarketSlug:        "nba-lal-bos-2026-08-25",
		Side:              types.SideYes,
		Intent:            types.IntentBuyLong,
		Type:              types.OrderTypeLimit,
		Price:             decimal.RequireFromString("0.54"),
		OriginalQuantity:  50,
		RemainingQuantity: 50,
		Status:            types.StatusOpen,
		Strategy:          "market_maker",
		CreatedAt:         now,
		UpdatedAt:         now,
	}))

	rec := doRequest(t, srv, "/api/orders")
	require.Equal(t, http.StatusOK, rec.Code)

	var orders []OrderJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "ord-1", orders[0].OrderID)
	assert.Equal(t, "market_maker", orders[0].Strategy)
	assert.Equal(t, int64(50), orders[0].RemainingQuantity)
}

func TestPnLEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, "/api/pnl")
	require.Equal(t, http.StatusOK, rec.Code)

	var pnl PnLJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pnl))
	assert.Equal(t, "1000", pnl.Balance)
	assert.Equal(t, 0, pnl.Positions)
}

func TestBookEndpoint(t *testing.T) {
	srv, _, tracker := newTestServer(t)

	tracker.ApplySnapshot("token-yes", "nba-lal-bos-2026-08-25",
		[]types.BookLevel{{Price: decimal.RequireFromString("0.54"), Size: decimal.NewFromInt(200)}},
		[]types.BookLevel{{Price: decimal.RequireFromString("0.56"), Size: decimal.NewFromInt(150)}},
		1, time.Now())

	rec := doRequest(t, srv, "/api/books/token-yes")
	require.Equal(t, http.StatusOK, rec.Code)

	var book BookJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))
	assert.Equal(t, "token-yes", book.TokenID)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, "0.54", book.Bids[0].Price)

	assert.Equal(t, http.StatusNotFound, doRequest(t, srv, "/api/books/unknown").Code)
}
