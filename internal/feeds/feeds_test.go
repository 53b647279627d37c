package feeds

import (
	"testing"
	"time"

	"github.com/mselser95/polymarket-sportsbot/internal/eventbus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestBus(t *testing.T) *eventbus.Bus {
	t.Helper()
	bus, err := eventbus.New(&eventbus.Config{Logger: zaptest.NewLogger(t), BufferSize: 64})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestGameStateHelpers(t *testing.T) {
	state := &GameState{HomeScore: 98, AwayScore: 91, Status: GameInProgress}
	assert.Equal(t, 7, state.ScoreDiff())
	assert.False(t, state.IsFinal())

	state.Status = GameFinal
	assert.True(t, state.IsFinal())
}

func TestOddsSnapshotNoProbability(t *testing.T) {
	snap := &OddsSnapshot{YesProbability: decimal.RequireFromString("0.62")}
	assert.True(t, snap.NoProbability().Equal(decimal.RequireFromString("0.38")))
}

func TestMockSportsFeedEmitsAlternatingScores(t *testing.T) {
	bus := newTestBus(t)
	ch := bus.Subscribe(eventbus.TopicGameState)

	feed, err := NewMockSportsFeed(&MockSportsFeedConfig{
		Bus:         bus,
		Logger:      zaptest.NewLogger(t),
		MarketSlugs: []string{"nba-lal-bos-2026-08-25"},
	})
	require.NoError(t, err)

	feed.EmitOnce()
	feed.EmitOnce()

	first := (<-ch).(*GameState)
	second := (<-ch).(*GameState)

	assert.Equal(t, "lal-bos-2026-08-25", first.EventID)
	assert.Equal(t, "BOS", first.HomeTeam)
	assert.Equal(t, "LAL", first.AwayTeam)
	assert.True(t, first.HomeIsYes)
	assert.Equal(t, GameInProgress, first.Status)

	// Tick 1 scores away, tick 2 scores home.
	assert.Equal(t, 0, first.HomeScore)
	assert.Equal(t, 1, first.AwayScore)
	assert.Equal(t, 1, second.HomeScore)
	assert.Equal(t, 1, second.AwayScore)
}

func TestMockSportsFeedAddMarket(t *testing.T) {
	bus := newTestBus(t)
	ch := bus.Subscribe(eventbus.TopicGameState)

	feed, err := NewMockSportsFeed(&MockSportsFeedConfig{
		Bus:    bus,
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	feed.EmitOnce()
	select {
	case <-ch:
		t.Fatal("no markets registered, nothing should emit")
	default:
	}

	feed.AddMarket("nba-lal-bos-2026-08-25")
	feed.AddMarket("nba-lal-bos-2026-08-25")
	feed.EmitOnce()

	state := (<-ch).(*GameState)
	assert.Equal(t, "nba-lal-bos-2026-08-25", state.MarketSlug)

	select {
	case <-ch:
		t.Fatal("duplicate AddMarket must not double-emit")
	default:
	}
}

func TestMockOddsFeedEmitsDriftingProbabilities(t *testing.T) {
	bus := newTestBus(t)
	ch := bus.Subscribe(eventbus.TopicOddsSnapshot)

	feed, err := NewMockOddsFeed(&MockOddsFeedConfig{
		Bus:         bus,
		Logger:      zaptest.NewLogger(t),
		MarketSlugs: []string{"nba-lal-bos-2026-08-25"},
	})
	require.NoError(t, err)

	half := decimal.RequireFromString("0.5")
	for i := 0; i < 5; i++ {
		feed.EmitOnce()
		snap := (<-ch).(*OddsSnapshot)

		assert.Equal(t, "mock", snap.Provider)
		assert.Equal(t, "nba-lal-bos-2026-08-25", snap.MarketSlug)
		assert.True(t, snap.YesProbability.Sub(half).Abs().LessThanOrEqual(decimal.RequireFromString("0.02")),
			"probability drifts at most 0.02 around 0.5, got %s", snap.YesProbability)
	}
}

func TestMonitorStaleness(t *testing.T) {
	monitor := NewMonitor(10*time.Second, zaptest.NewLogger(t))
	now := time.Now()

	assert.True(t, monitor.IsStale("sports", now), "never-reported feeds are stale")

	monitor.MarkUpdate("sports", now.Add(-5*time.Second))
	monitor.MarkUpdate("odds", now.Add(-15*time.Second))

	assert.False(t, monitor.IsStale("sports", now))
	assert.True(t, monitor.IsStale("odds", now))

	stale := monitor.CheckAll(now)
	require.Len(t, stale, 1)
	assert.Equal(t, "odds", stale[0])
}
