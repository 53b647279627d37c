package risk

import (
	"fmt"
	"time"

	"github.com/mselser95/polymarket-sportsbot/internal/state"
	"github.com/mselser95/polymarket-sportsbot/internal/strategy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Manager combines Kelly sizing, exposure limits and the circuit
// breaker into a single pre-trade gate. The engine calls Evaluate for
// each aggregated signal and executes only the approved, possibly
// resized, result.
type Manager struct {
	cfg     *ManagerConfig
	state   *state.Manager
	sizer   *KellySizer
	monitor *ExposureMonitor
	breaker *CircuitBreaker
	logger  *zap.Logger

	startingEquity decimal.Decimal
}

// ManagerConfig holds risk manager configuration.
type ManagerConfig struct {
	Logger *zap.Logger
	State  *state.Manager

	KellyFraction decimal.Decimal
	MinEdge       decimal.Decimal
	// MaxPositionPct caps any single Kelly-sized position as a fraction
	// of bankroll. Zero means no cap beyond the bankroll itself.
	MaxPositionPct decimal.Decimal

	MaxPerMarket decimal.Decimal
	MaxPortfolio decimal.Decimal
	MaxPortfolioPct decimal.Decimal
	MaxGroup     decimal.Decimal
	MaxPositions int
	CorrelationGroups map[string][]string // group -> slug substrings

	DailyLossLimit decimal.Decimal
	MaxDrawdownPct decimal.Decimal
	// MaxPnLDrawdownForBuys blocks new buys once equity has fallen this
	// fraction below the starting equity. Zero disables the check.
	MaxPnLDrawdownForBuys decimal.Decimal

	MinTradeSize decimal.Decimal
}

// Decision is the result of evaluating one signal.
type Decision struct {
	Approved bool
	Reason   string
	// Signal is the possibly resized signal to execute; nil on reject.
	Signal *strategy.Signal
}

// New creates a new risk manager.
func New(cfg *ManagerConfig, now time.Time) (*Manager, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("state manager is required")
	}

	maxPositionPct := cfg.MaxPositionPct
	if maxPositionPct.IsZero() {
		maxPositionPct = decimal.NewFromInt(1)
	}
	sizer, err := NewKellySizer(&KellySizerConfig{
		KellyFraction:  cfg.KellyFraction,
		MaxPositionPct: maxPositionPct,
		MinEdge:        cfg.MinEdge,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create kelly sizer: %w", err)
	}

	monitor, err := NewExposureMonitor(&ExposureConfig{
		MaxPerMarket: cfg.MaxPerMarket,
		MaxPortfolio: cfg.MaxPortfolio,
		MaxGroup:     cfg.MaxGroup,
		MaxPositions: cfg.MaxPositions,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create exposure monitor: %w", err)
	}
	for group, patterns := range cfg.CorrelationGroups {
		monitor.SetCorrelationGroup(group, patterns)
	}

	breaker, err := NewCircuitBreaker(&BreakerConfig{
		DailyLossLimit: cfg.DailyLossLimit,
		MaxDrawdownPct: cfg.MaxDrawdownPct,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create circuit breaker: %w", err)
	}

	m := &Manager{
		cfg:     cfg,
		state:   cfg.State,
		sizer:   sizer,
		monitor: monitor,
		breaker: breaker,
		logger:  cfg.Logger,
	}

	m.startingEquity = m.state.TotalEquity()
	if err := breaker.Initialize(m.startingEquity, now); err != nil {
		return nil, fmt.Errorf("initialize breaker: %w", err)
	}

	cfg.Logger.Info("risk-manager-initialized",
		zap.String("starting-equity", m.startingEquity.String()),
		zap.String("kelly-fraction", cfg.KellyFraction.String()),
		zap.String("daily-loss-limit", cfg.DailyLossLimit.String()))

	return m, nil
}

// Breaker exposes the circuit breaker for manual control and status.
func (m *Manager) Breaker() *CircuitBreaker {
	return m.breaker
}

// Monitor exposes the exposure monitor.
func (m *Manager) Monitor() *ExposureMonitor {
	return m.monitor
}

// OnStateUpdate feeds current equity into the circuit breaker. The
// engine calls this once per tick and after executions.
func (m *Manager) OnStateUpdate(now time.Time) {
	m.breaker.Update(m.state.TotalEquity(), now)
}

// ResetStartingEquity re-baselines the breaker to current equity.
// Intended for live-mode startup after the initial exchange sync.
func (m *Manager) ResetStartingEquity(now time.Time) {
	m.startingEquity = m.state.TotalEquity()
	_ = m.breaker.Initialize(m.startingEquity, now)
	m.logger.Info("risk-starting-equity-reset",
		zap.String("starting-equity", m.startingEquity.String()))
}

// Evaluate validates and possibly resizes a signal.
//
// Cancels are always approved. Sells are approved even while the
// breaker is tripped since they reduce risk. Buys run the full
// pipeline: affordability cap, Kelly sizing when the strategy provided
// a probability estimate, minimum trade size, drawdown lockout and
// exposure limits with reduce-before-reject.
func (m *Manager) Evaluate(sig *strategy.Signal, now time.Time) Decision {
	if sig.Action == strategy.ActionCancel {
		return m.approve(sig, "approved: cancel")
	}

	m.OnStateUpdate(now)

	if ok, reason := m.breaker.CanTrade(); !ok {
		if sig.Action.IsSell() {
			return m.approve(sig, "approved: circuit breaker allows exits")
		}
		return m.reject(sig, fmt.Sprintf("circuit breaker: %s", reason))
	}

	qty := sig.Quantity
	price := sig.Price
	if qty <= 0 {
		return m.reject(sig, "rejected: non-positive quantity")
	}

	if sig.Action.IsBuy() && price.Sign() > 0 {
		// Keep a cash buffer so concurrent fills cannot overdraw.
		buffer := decimal.RequireFromString("0.98")
		maxAffordable := m.state.Balance().Mul(buffer).Div(price).IntPart()
		if maxAffordable <= 0 {
			return m.reject(sig, "rejected: insufficient available cash")
		}
		if qty > maxAffordable {
			qty = maxAffordable
		}
	}

	if sig.Action.IsBuy() && sig.TrueProbability != nil {
		result, err := m.sizer.Size(m.state.TotalEquity(), price, *sig.TrueProbability, sig.Confidence)
		if err != nil {
			return m.reject(sig, fmt.Sprintf("rejected: sizing error: %v", err))
		}
		if result == nil {
			return m.reject(sig, "rejected: insufficient edge or confidence")
		}
		// Respect the strategy's own cap when it asked for less.
		if result.Contracts < qty {
			qty = result.Contracts
		}
	}

	notional := price.Mul(decimal.NewFromInt(qty))
	if notional.LessThan(m.cfg.MinTradeSize) {
		return m.reject(sig, fmt.Sprintf("rejected: below min trade size %s", notional.StringFixed(2)))
	}

	if sig.Action.IsBuy() {
		if m.newBuysBlockedByDrawdown() {
			return m.reject(sig, "rejected: portfolio drawdown blocks new buys")
		}

		check, err := m.monitor.CanAddExposure(m.state, sig.MarketSlug, notional)
		if err != nil {
			return m.reject(sig, fmt.Sprintf("rejected: exposure check error: %v", err))
		}

		maxAdditional := check.MaxAdditional
		limitReason := check.Reason
		if m.cfg.MaxPortfolioPct.Sign() > 0 {
			maxByPct := m.state.TotalEquity().Mul(m.cfg.MaxPortfolioPct).
				Sub(m.monitor.TotalExposure(m.state))
			if maxByPct.Sign() < 0 {
				maxByPct = decimal.Zero
			}
			if maxByPct.LessThan(maxAdditional) {
				maxAdditional = maxByPct
				limitReason = "portfolio exposure percent limit reached"
			}
		}

		if !check.Allowed && maxAdditional.Sign() <= 0 {
			return m.reject(sig, fmt.Sprintf("rejected: %s", check.Reason))
		}

		if notional.GreaterThan(maxAdditional) {
			if maxAdditional.LessThan(m.cfg.MinTradeSize) {
				return m.reject(sig, fmt.Sprintf("rejected: %s", limitReason))
			}
			reduced := maxAdditional.Div(price).IntPart()
			if reduced <= 0 {
				return m.reject(sig, "rejected: exposure limits")
			}
			if reduced < qty {
				qty = reduced
			}
			notional = price.Mul(decimal.NewFromInt(qty))
		}

		if notional.LessThan(m.cfg.MinTradeSize) {
			return m.reject(sig, fmt.Sprintf("rejected: below min trade size %s", notional.StringFixed(2)))
		}
	}

	if qty != sig.Quantity {
		resized := *sig
		resized.ResizedFrom = sig.Quantity
		resized.Quantity = qty
		SignalsResizedTotal.WithLabelValues(sig.Strategy).Inc()
		m.logger.Info("risk-signal-resized",
			zap.String("strategy", sig.Strategy),
			zap.String("market-slug", sig.MarketSlug),
			zap.Int64("requested", sig.Quantity),
			zap.Int64("approved", qty))
		return m.approve(&resized, "approved: resized")
	}

	return m.approve(sig, "approved")
}

func (m *Manager) newBuysBlockedByDrawdown() bool {
	if m.cfg.MaxPnLDrawdownForBuys.Sign() <= 0 || m.startingEquity.Sign() <= 0 {
		return false
	}
	drawdown := m.startingEquity.Sub(m.state.TotalEquity()).Div(m.startingEquity)
	return drawdown.GreaterThanOrEqual(m.cfg.MaxPnLDrawdownForBuys)
}

func (m *Manager) approve(sig *strategy.Signal, reason string) Decision {
	SignalsEvaluatedTotal.WithLabelValues(sig.Strategy, "approved").Inc()
	return Decision{Approved: true, Reason: reason, Signal: sig}
}

func (m *Manager) reject(sig *strategy.Signal, reason string) Decision {
	SignalsEvaluatedTotal.WithLabelValues(sig.Strategy, "rejected").Inc()
	m.logger.Debug("risk-signal-rejected",
		zap.String("strategy", sig.Strategy),
		zap.String("market-slug", sig.MarketSlug),
		zap.String("reason", reason))
	return Decision{Approved: false, Reason: reason}
}
