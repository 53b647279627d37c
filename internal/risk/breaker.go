package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BreakerState is the circuit breaker state.
type BreakerState string

const (
	BreakerOpen    BreakerState = "OPEN"
	BreakerTripped BreakerState = "TRIPPED"
)

// CircuitBreaker halts new risk-taking when the daily loss limit or the
// drawdown from the session high-water mark is exceeded. Once tripped
// it stays tripped until manually reset; exits and cancels remain
// allowed throughout.
type CircuitBreaker struct {
	dailyLossLimit decimal.Decimal
	maxDrawdownPct decimal.Decimal
	logger         *zap.Logger

	mu             sync.Mutex
	state          BreakerState
	tripReason     string
	tripTime       time.Time
	day            time.Time // UTC calendar day
	dayStartEquity decimal.Decimal
	dailyPnL       decimal.Decimal
	highWaterMark  decimal.Decimal
}

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	DailyLossLimit decimal.Decimal
	MaxDrawdownPct decimal.Decimal
	Logger         *zap.Logger
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(cfg *BreakerConfig) (*CircuitBreaker, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.DailyLossLimit.Sign() < 0 {
		return nil, fmt.Errorf("daily loss limit cannot be negative, got %s", cfg.DailyLossLimit)
	}
	one := decimal.NewFromInt(1)
	if cfg.MaxDrawdownPct.Sign() < 0 || cfg.MaxDrawdownPct.GreaterThan(one) {
		return nil, fmt.Errorf("max drawdown pct must be in [0, 1], got %s", cfg.MaxDrawdownPct)
	}

	return &CircuitBreaker{
		dailyLossLimit: cfg.DailyLossLimit,
		maxDrawdownPct: cfg.MaxDrawdownPct,
		logger:         cfg.Logger,
		state:          BreakerOpen,
	}, nil
}

// Initialize sets the starting equity baseline and high-water mark.
func (b *CircuitBreaker) Initialize(startingEquity decimal.Decimal, now time.Time) error {
	if startingEquity.Sign() < 0 {
		return fmt.Errorf("starting equity cannot be negative, got %s", startingEquity)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.day = utcDay(now)
	b.dayStartEquity = startingEquity
	b.dailyPnL = decimal.Zero
	b.highWaterMark = startingEquity

	b.logger.Info("circuit-breaker-initialized",
		zap.String("starting-equity", startingEquity.String()),
		zap.String("day", b.day.Format("2006-01-02")))
	return nil
}

// CanTrade reports whether new risk-taking is allowed.
func (b *CircuitBreaker) CanTrade() (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerTripped {
		return false, b.tripReason
	}
	return true, ""
}

// EmergencyStop manually trips the breaker.
func (b *CircuitBreaker) EmergencyStop(reason string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tripLocked(reason, now)
}

// Reset manually re-opens the breaker.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerOpen
	b.tripReason = ""
	b.tripTime = time.Time{}
	BreakerTrippedGauge.Set(0)
	b.logger.Warn("circuit-breaker-reset")
}

// Update feeds the current equity into the breaker. A new UTC day
// resets the daily PnL baseline; the high-water mark only ratchets up.
func (b *CircuitBreaker) Update(currentEquity decimal.Decimal, now time.Time) {
	if currentEquity.Sign() < 0 {
		b.logger.Error("circuit-breaker-negative-equity", zap.String("equity", currentEquity.String()))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	today := utcDay(now)
	if !today.Equal(b.day) {
		b.day = today
		b.dayStartEquity = currentEquity
		b.dailyPnL = decimal.Zero
		b.logger.Info("circuit-breaker-day-reset",
			zap.String("day", today.Format("2006-01-02")),
			zap.String("equity", currentEquity.String()))
	}

	if currentEquity.GreaterThan(b.highWaterMark) {
		b.highWaterMark = currentEquity
	}

	b.dailyPnL = currentEquity.Sub(b.dayStartEquity)
	DailyPnLGauge.Set(toFloat(b.dailyPnL))

	drawdownPct := decimal.Zero
	if b.highWaterMark.Sign() > 0 {
		drawdownPct = b.highWaterMark.Sub(currentEquity).Div(b.highWaterMark)
	}
	DrawdownGauge.Set(toFloat(drawdownPct))

	if b.state == BreakerTripped {
		return
	}

	if b.dailyPnL.LessThan(b.dailyLossLimit.Neg()) {
		b.tripLocked(fmt.Sprintf("daily loss limit exceeded: %s", b.dailyPnL.StringFixed(2)), now)
		return
	}

	if drawdownPct.GreaterThan(b.maxDrawdownPct) {
		b.tripLocked(fmt.Sprintf("max drawdown exceeded: %s", drawdownPct.StringFixed(4)), now)
	}
}

// Status is a point-in-time view of the breaker.
type Status struct {
	State          BreakerState
	TripReason     string
	TripTime       time.Time
	Day            time.Time
	DayStartEquity decimal.Decimal
	DailyPnL       decimal.Decimal
	HighWaterMark  decimal.Decimal
	DrawdownPct    decimal.Decimal
}

// Status returns the current breaker status.
func (b *CircuitBreaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	drawdownPct := decimal.Zero
	if b.highWaterMark.Sign() > 0 {
		currentEquity := b.dayStartEquity.Add(b.dailyPnL)
		drawdownPct = b.highWaterMark.Sub(currentEquity).Div(b.highWaterMark)
	}

	return Status{
		State:          b.state,
		TripReason:     b.tripReason,
		TripTime:       b.tripTime,
		Day:            b.day,
		DayStartEquity: b.dayStartEquity,
		DailyPnL:       b.dailyPnL,
		HighWaterMark:  b.highWaterMark,
		DrawdownPct:    drawdownPct,
	}
}

func (b *CircuitBreaker) tripLocked(reason string, now time.Time) {
	b.state = BreakerTripped
	b.tripReason = reason
	b.tripTime = now

	BreakerTrippedGauge.Set(1)
	BreakerTripsTotal.Inc()
	b.logger.Error("circuit-breaker-tripped",
		zap.String("reason", reason),
		zap.Time("time", now))
}

func utcDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
