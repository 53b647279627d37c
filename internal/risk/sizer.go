package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// KellySizer sizes positions for binary contracts using the Kelly
// criterion. For a contract priced at P in (0, 1) the payout on a win
// is $1, so the net odds ratio is b = (1 - P) / P and the full Kelly
// fraction is f* = (p*b - q) / b. The full fraction is scaled by the
// configured Kelly fraction and the signal confidence, then clamped to
// [0, max position pct] of bankroll.
type KellySizer struct {
	kellyFraction  decimal.Decimal
	maxPositionPct decimal.Decimal
	minEdge        decimal.Decimal
	logger         *zap.Logger
}

// KellySizerConfig holds Kelly sizer configuration.
type KellySizerConfig struct {
	KellyFraction  decimal.Decimal
	MaxPositionPct decimal.Decimal
	MinEdge        decimal.Decimal
	Logger         *zap.Logger
}

// NewKellySizer creates a new Kelly position sizer.
func NewKellySizer(cfg *KellySizerConfig) (*KellySizer, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	one := decimal.NewFromInt(1)
	if cfg.KellyFraction.Sign() <= 0 || cfg.KellyFraction.GreaterThan(one) {
		return nil, fmt.Errorf("kelly fraction must be in (0, 1], got %s", cfg.KellyFraction)
	}
	if cfg.MaxPositionPct.Sign() <= 0 || cfg.MaxPositionPct.GreaterThan(one) {
		return nil, fmt.Errorf("max position pct must be in (0, 1], got %s", cfg.MaxPositionPct)
	}
	if cfg.MinEdge.Sign() < 0 || cfg.MinEdge.GreaterThanOrEqual(one) {
		return nil, fmt.Errorf("min edge must be in [0, 1), got %s", cfg.MinEdge)
	}

	return &KellySizer{
		kellyFraction:  cfg.KellyFraction,
		maxPositionPct: cfg.MaxPositionPct,
		minEdge:        cfg.MinEdge,
		logger:         cfg.Logger,
	}, nil
}

// SizeResult is the output of one sizing calculation.
type SizeResult struct {
	Edge          decimal.Decimal // trueProbability - marketPrice
	KellyFull     decimal.Decimal
	KellyAdjusted decimal.Decimal
	Notional      decimal.Decimal
	Contracts     int64
}

// Size computes the position size for a bet on the outcome whose price
// is marketPrice. Returns (nil, nil) when the trade should be skipped:
// edge below threshold, non-positive full Kelly, or a size rounding to
// zero contracts.
func (s *KellySizer) Size(bankroll, marketPrice, trueProbability decimal.Decimal, confidence float64) (*SizeResult, error) {
	one := decimal.NewFromInt(1)

	if bankroll.Sign() <= 0 {
		return nil, fmt.Errorf("bankroll must be positive, got %s", bankroll)
	}
	if marketPrice.Sign() <= 0 || marketPrice.GreaterThanOrEqual(one) {
		return nil, fmt.Errorf("market price must be in (0, 1), got %s", marketPrice)
	}
	if trueProbability.Sign() < 0 || trueProbability.GreaterThan(one) {
		return nil, fmt.Errorf("probability must be in [0, 1], got %s", trueProbability)
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("confidence must be in [0, 1], got %f", confidence)
	}

	edge := trueProbability.Sub(marketPrice)
	if edge.Abs().LessThan(s.minEdge) {
		s.logger.Debug("kelly-below-min-edge",
			zap.String("edge", edge.String()),
			zap.String("min-edge", s.minEdge.String()))
		return nil, nil
	}

	p := trueProbability
	q := one.Sub(p)
	b := one.Sub(marketPrice).Div(marketPrice)
	if b.Sign() <= 0 {
		return nil, nil
	}

	kellyFull := p.Mul(b).Sub(q).Div(b)
	if kellyFull.Sign() <= 0 {
		s.logger.Debug("kelly-non-positive", zap.String("kelly", kellyFull.String()))
		return nil, nil
	}

	kellyAdjusted := kellyFull.Mul(s.kellyFraction).Mul(decimal.NewFromFloat(confidence))
	if kellyAdjusted.Sign() < 0 {
		kellyAdjusted = decimal.Zero
	}
	if kellyAdjusted.GreaterThan(s.maxPositionPct) {
		kellyAdjusted = s.maxPositionPct
	}

	notional := bankroll.Mul(kellyAdjusted)
	if notional.Sign() <= 0 {
		return nil, nil
	}

	contracts := notional.Div(marketPrice).IntPart()
	if contracts <= 0 {
		return nil, nil
	}

	return &SizeResult{
		Edge:          edge,
		KellyFull:     kellyFull,
		KellyAdjusted: kellyAdjusted,
		Notional:      notional,
		Contracts:     contracts,
	}, nil
}
