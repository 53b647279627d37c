package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestBreaker(t *testing.T, dailyLoss, maxDrawdown string) *CircuitBreaker {
	t.Helper()
	breaker, err := NewCircuitBreaker(&BreakerConfig{
		DailyLossLimit: decimal.RequireFromString(dailyLoss),
		MaxDrawdownPct: decimal.RequireFromString(maxDrawdown),
		Logger:         zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return breaker
}

func TestBreakerTripsOnDailyLoss(t *testing.T) {
	breaker := newTestBreaker(t, "50", "1")
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	require.NoError(t, breaker.Initialize(decimal.NewFromInt(1000), now))

	breaker.Update(decimal.NewFromInt(960), now.Add(time.Minute))
	ok, _ := breaker.CanTrade()
	assert.True(t, ok, "loss of 40 within the 50 limit")

	breaker.Update(decimal.NewFromInt(949), now.Add(2*time.Minute))
	ok, reason := breaker.CanTrade()
	assert.False(t, ok)
	assert.Contains(t, reason, "daily loss limit")
}

func TestBreakerTripsOnDrawdown(t *testing.T) {
	breaker := newTestBreaker(t, "100000", "0.10")
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	require.NoError(t, breaker.Initialize(decimal.NewFromInt(1000), now))

	// Run up to a new high-water mark, then fall 12% from it.
	breaker.Update(decimal.NewFromInt(1200), now.Add(time.Minute))
	breaker.Update(decimal.NewFromInt(1050), now.Add(2*time.Minute))

	ok, reason := breaker.CanTrade()
	assert.False(t, ok)
	assert.Contains(t, reason, "drawdown")
}

func TestBreakerStaysTrippedUntilReset(t *testing.T) {
	breaker := newTestBreaker(t, "50", "1")
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	require.NoError(t, breaker.Initialize(decimal.NewFromInt(1000), now))

	breaker.Update(decimal.NewFromInt(900), now)
	ok, _ := breaker.CanTrade()
	require.False(t, ok)

	// Recovery does not re-open the breaker.
	breaker.Update(decimal.NewFromInt(1100), now.Add(time.Hour))
	ok, _ = breaker.CanTrade()
	assert.False(t, ok)

	breaker.Reset()
	ok, _ = breaker.CanTrade()
	assert.True(t, ok)
}

func TestBreakerDailyReset(t *testing.T) {
	breaker := newTestBreaker(t, "50", "1")
	day1 := time.Date(2026, 8, 25, 23, 0, 0, 0, time.UTC)
	require.NoError(t, breaker.Initialize(decimal.NewFromInt(1000), day1))

	breaker.Update(decimal.NewFromInt(960), day1.Add(30*time.Minute))

	// New UTC day re-baselines the daily PnL, so a further small loss
	// does not trip.
	day2 := day1.Add(2 * time.Hour)
	breaker.Update(decimal.NewFromInt(955), day2)
	breaker.Update(decimal.NewFromInt(920), day2.Add(time.Minute))

	ok, _ := breaker.CanTrade()
	assert.True(t, ok)

	status := breaker.Status()
	assert.True(t, status.DayStartEquity.Equal(decimal.NewFromInt(955)))
	assert.True(t, status.DailyPnL.Equal(decimal.NewFromInt(-35)))
}

func TestEmergencyStop(t *testing.T) {
	breaker := newTestBreaker(t, "50", "0.10")
	now := time.Now()
	require.NoError(t, breaker.Initialize(decimal.NewFromInt(1000), now))

	breaker.EmergencyStop("manual halt", now)

	ok, reason := breaker.CanTrade()
	assert.False(t, ok)
	assert.Equal(t, "manual halt", reason)

	status := breaker.Status()
	assert.Equal(t, BreakerTripped, status.State)
	assert.Equal(t, now, status.TripTime)
}
