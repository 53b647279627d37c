package orderbook

import (
	"testing"
	"time"

	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tracker, err := NewTracker(&TrackerConfig{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return tracker
}

func lvl(price, size string) types.BookLevel {
	return types.BookLevel{
		Price: decimal.RequireFromString(price),
		Size:  decimal.RequireFromString(size),
	}
}

func TestApplySnapshotSortsAndDropsZeroSizes(t *testing.T) {
	tracker := newTestTracker(t)

	applied := tracker.ApplySnapshot("token-1", "nba-lal-bos-2026-08-25",
		[]types.BookLevel{lvl("0.50", "100"), lvl("0.55", "50"), lvl("0.52", "0")},
		[]types.BookLevel{lvl("0.60", "30"), lvl("0.58", "70")},
		1, time.Now())
	require.True(t, applied)

	snap, ok := tracker.Snapshot("token-1")
	require.True(t, ok)
	require.Len(t, snap.Bids, 2, "zero-size level dropped")
	assert.True(t, snap.Bids[0].Price.Equal(decimal.RequireFromString("0.55")), "bids descending")
	assert.True(t, snap.Asks[0].Price.Equal(decimal.RequireFromString("0.58")), "asks ascending")
}

func TestApplySnapshotRejectsStaleSequence(t *testing.T) {
	tracker := newTestTracker(t)
	now := time.Now()

	require.True(t, tracker.ApplySnapshot("token-1", "slug",
		[]types.BookLevel{lvl("0.50", "100")}, nil, 5, now))

	assert.False(t, tracker.ApplySnapshot("token-1", "slug",
		[]types.BookLevel{lvl("0.40", "100")}, nil, 5, now))
	assert.False(t, tracker.ApplySnapshot("token-1", "slug",
		[]types.BookLevel{lvl("0.40", "100")}, nil, 3, now))

	// Sequence zero means the feed carries no sequence and always applies.
	assert.True(t, tracker.ApplySnapshot("token-1", "slug",
		[]types.BookLevel{lvl("0.45", "100")}, nil, 0, now))

	best, ok := tracker.BestBid("token-1")
	require.True(t, ok)
	assert.True(t, best.Price.Equal(decimal.RequireFromString("0.45")))
}

func TestMidPrice(t *testing.T) {
	tracker := newTestTracker(t)

	tracker.ApplySnapshot("token-1", "slug",
		[]types.BookLevel{lvl("0.50", "100")},
		[]types.BookLevel{lvl("0.60", "100")},
		1, time.Now())

	mid, ok := tracker.MidPrice("token-1")
	require.True(t, ok)
	assert.True(t, mid.Equal(decimal.RequireFromString("0.55")), "got %s", mid)

	_, ok = tracker.MidPrice("unknown")
	assert.False(t, ok)
}

func TestDepthWithinPrice(t *testing.T) {
	tracker := newTestTracker(t)

	tracker.ApplySnapshot("token-1", "slug",
		[]types.BookLevel{lvl("0.55", "100"), lvl("0.50", "200"), lvl("0.45", "300")},
		[]types.BookLevel{lvl("0.60", "50"), lvl("0.65", "150"), lvl("0.70", "250")},
		1, time.Now())

	bidDepth := tracker.DepthWithinPrice("token-1", true, decimal.RequireFromString("0.50"))
	assert.True(t, bidDepth.Equal(decimal.RequireFromString("300")), "got %s", bidDepth)

	askDepth := tracker.DepthWithinPrice("token-1", false, decimal.RequireFromString("0.65"))
	assert.True(t, askDepth.Equal(decimal.RequireFromString("200")), "got %s", askDepth)

	assert.True(t, tracker.DepthWithinPrice("unknown", true, decimal.NewFromInt(1)).IsZero())
}

func TestWalkAsksVWAP(t *testing.T) {
	tracker := newTestTracker(t)

	tracker.ApplySnapshot("token-1", "slug", nil,
		[]types.BookLevel{lvl("0.60", "50"), lvl("0.65", "100"), lvl("0.70", "200")},
		1, time.Now())

	// Full fill across two levels: 50@0.60 + 50@0.65.
	result, err := tracker.WalkAsks("token-1", decimal.NewFromInt(100), decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, result.FilledQuantity.Equal(decimal.NewFromInt(100)))
	assert.True(t, result.Notional.Equal(decimal.RequireFromString("62.5")), "got %s", result.Notional)
	assert.True(t, result.AvgPrice.Equal(decimal.RequireFromString("0.625")), "got %s", result.AvgPrice)

	// Limit cuts the walk off after the first level: partial fill.
	result, err = tracker.WalkAsks("token-1", decimal.NewFromInt(100), decimal.RequireFromString("0.60"))
	require.NoError(t, err)
	assert.True(t, result.FilledQuantity.Equal(decimal.NewFromInt(50)))

	// Nothing at or below the limit.
	_, err = tracker.WalkAsks("token-1", decimal.NewFromInt(10), decimal.RequireFromString("0.50"))
	require.ErrorIs(t, err, types.ErrInsufficientDepth)

	_, err = tracker.WalkAsks("unknown", decimal.NewFromInt(10), decimal.NewFromInt(1))
	require.ErrorIs(t, err, types.ErrMarketNotFound)

	_, err = tracker.WalkAsks("token-1", decimal.Zero, decimal.NewFromInt(1))
	require.Error(t, err)
}

func TestWalkBids(t *testing.T) {
	tracker := newTestTracker(t)

	tracker.ApplySnapshot("token-1", "slug",
		[]types.BookLevel{lvl("0.55", "40"), lvl("0.50", "60")}, nil,
		1, time.Now())

	result, err := tracker.WalkBids("token-1", decimal.NewFromInt(100), decimal.RequireFromString("0.50"))
	require.NoError(t, err)
	assert.True(t, result.FilledQuantity.Equal(decimal.NewFromInt(100)))
	// 40*0.55 + 60*0.50
	assert.True(t, result.Notional.Equal(decimal.RequireFromString("52")), "got %s", result.Notional)
}

func TestIsStale(t *testing.T) {
	tracker := newTestTracker(t)
	now := time.Now()

	tracker.ApplySnapshot("token-1", "slug",
		[]types.BookLevel{lvl("0.50", "10")}, nil, 1, now.Add(-2*time.Second))

	assert.False(t, tracker.IsStale("token-1", now, 5*time.Second))
	assert.True(t, tracker.IsStale("token-1", now, time.Second))
	assert.True(t, tracker.IsStale("unknown", now, time.Hour))
}

func TestRemoveAndTokenIDs(t *testing.T) {
	tracker := newTestTracker(t)
	now := time.Now()

	tracker.ApplySnapshot("token-b", "slug", nil, nil, 1, now)
	tracker.ApplySnapshot("token-a", "slug", nil, nil, 1, now)

	assert.Equal(t, []string{"token-a", "token-b"}, tracker.TokenIDs())

	tracker.Remove("token-a")
	assert.Equal(t, []string{"token-b"}, tracker.TokenIDs())
	_, ok := tracker.Snapshot("token-a")
	assert.False(t, ok)
}
