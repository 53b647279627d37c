package execution

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mselser95/polymarket-sportsbot/internal/orderbook"
	"github.com/mselser95/polymarket-sportsbot/internal/state"
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Well-known throwaway key, never funded.
const liveTestKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newLiveFixture(t *testing.T, handler http.Handler) (*LiveExecutor, *state.Manager) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	st, err := state.New(&state.Config{
		Logger:         logger,
		InitialBalance: decimal.RequireFromString("1000"),
	})
	require.NoError(t, err)

	tracker, err := orderbook.NewTracker(&orderbook.TrackerConfig{Logger: logger})
	require.NoError(t, err)

	client, err := NewOrderClient(&OrderClientConfig{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		Secret:     "dGVzdC1zZWNyZXQ=",
		Passphrase: "test-pass",
		PrivateKey: liveTestKey,
		Logger:     logger,
	})
	require.NoError(t, err)

	executor, err := NewLiveExecutor(&LiveConfig{
		Client:  client,
		State:   st,
		Tracker: tracker,
		Logger:  logger,
	})
	require.NoError(t, err)

	return executor, st
}

func TestLiveReconcileAdoptsExchangeState(t *testing.T) {
	var requests atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		switch r.URL.Path {
		case "/balances":
			_, _ = w.Write([]byte(`{"balance":"750000000"}`))
		case "/positions":
			_, _ = w.Write([]byte(`[{"asset_id":"token-yes","size":"30","avg_price":"0.55"}]`))
		default:
			http.NotFound(w, r)
		}
	})

	executor, st := newLiveFixture(t, handler)
	now := time.Now()

	st.UpsertMarket(&types.MarketState{
		MarketSlug: testSlug,
		YesTokenID: "token-yes",
		NoTokenID:  "token-no",
		UpdatedAt:  now,
	})

	// Local holding the exchange no longer reports.
	require.NoError(t, st.ReconcilePosition("nba-gsw-mia-2026-08-25", types.SideYes, 10, decimal.RequireFromString("0.40"), now))

	executor.CheckRestingOrders(context.Background(), now)

	assert.True(t, st.Balance().Equal(decimal.RequireFromString("750")), "got %s", st.Balance())

	pos, ok := st.GetPosition(testSlug)
	require.True(t, ok)
	assert.Equal(t, types.SideYes, pos.Side)
	assert.Equal(t, int64(30), pos.Quantity)
	assert.True(t, pos.AvgEntryPrice.Equal(decimal.RequireFromString("0.55")))

	_, ok = st.GetPosition("nba-gsw-mia-2026-08-25")
	assert.False(t, ok, "stale local position should be closed out")

	// A second check inside the interval is throttled.
	before := requests.Load()
	executor.CheckRestingOrders(context.Background(), now.Add(time.Second))
	assert.Equal(t, before, requests.Load())
}

func TestLiveReconcileSkipsUnknownTokens(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/balances":
			_, _ = w.Write([]byte(`{"balance":"1000000000"}`))
		case "/positions":
			_, _ = w.Write([]byte(`[{"asset_id":"token-nobody-knows","size":"5","avg_price":"0.20"}]`))
		default:
			http.NotFound(w, r)
		}
	})

	executor, st := newLiveFixture(t, handler)
	executor.CheckRestingOrders(context.Background(), time.Now())

	assert.Empty(t, st.AllPositions())
}
