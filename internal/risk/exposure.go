package risk

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mselser95/polymarket-sportsbot/internal/state"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ExposureMonitor tracks committed notional across positions and open
// orders and enforces per-market, portfolio and correlation limits.
// Exposure is defined as cost basis of positions plus limit price times
// remaining quantity of open orders.
type ExposureMonitor struct {
	maxPerMarket  decimal.Decimal
	maxPortfolio  decimal.Decimal
	maxGroup      decimal.Decimal
	maxPositions  int
	logger        *zap.Logger

	mu     sync.Mutex
	groups map[string][]string // group -> slug substrings
}

// ExposureConfig holds exposure monitor configuration.
type ExposureConfig struct {
	MaxPerMarket decimal.Decimal
	MaxPortfolio decimal.Decimal
	MaxGroup     decimal.Decimal
	MaxPositions int
	Logger       *zap.Logger
}

// NewExposureMonitor creates a new exposure monitor.
func NewExposureMonitor(cfg *ExposureConfig) (*ExposureMonitor, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.MaxPerMarket.Sign() <= 0 || cfg.MaxPortfolio.Sign() <= 0 {
		return nil, fmt.Errorf("exposure limits must be positive")
	}
	if cfg.MaxPositions <= 0 {
		return nil, fmt.Errorf("max positions must be positive, got %d", cfg.MaxPositions)
	}

	return &ExposureMonitor{
		maxPerMarket: cfg.MaxPerMarket,
		maxPortfolio: cfg.MaxPortfolio,
		maxGroup:     cfg.MaxGroup,
		maxPositions: cfg.MaxPositions,
		logger:       cfg.Logger,
		groups:       make(map[string][]string),
	}, nil
}

// SetCorrelationGroup defines or replaces a correlation group. Members
// are slug substrings; any market whose slug contains one of them
// belongs to the group.
func (e *ExposureMonitor) SetCorrelationGroup(group string, patterns []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.groups[group] = append([]string(nil), patterns...)

	e.logger.Debug("correlation-group-set",
		zap.String("group", group),
		zap.Int("patterns", len(patterns)))
}

func matchesAny(slug string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(slug, p) {
			return true
		}
	}
	return false
}

// groupsFor returns the correlation groups containing a market.
func (e *ExposureMonitor) groupsFor(slug string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []string
	for group, patterns := range e.groups {
		if matchesAny(slug, patterns) {
			out = append(out, group)
		}
	}
	return out
}

// MarketExposure is committed notional in one market.
func (e *ExposureMonitor) MarketExposure(st *state.Manager, slug string) decimal.Decimal {
	total := decimal.Zero
	if pos, ok := st.GetPosition(slug); ok {
		total = total.Add(pos.CostBasis())
	}
	for _, order := range st.OrdersForMarket(slug) {
		if order.RemainingQuantity > 0 {
			total = total.Add(order.RemainingNotional())
		}
	}
	return total
}

// TotalExposure is committed notional across all markets.
func (e *ExposureMonitor) TotalExposure(st *state.Manager) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range st.AllPositions() {
		total = total.Add(pos.CostBasis())
	}
	for _, order := range st.OpenOrders() {
		if order.RemainingQuantity > 0 {
			total = total.Add(order.RemainingNotional())
		}
	}
	return total
}

func (e *ExposureMonitor) groupExposure(st *state.Manager, group string) decimal.Decimal {
	e.mu.Lock()
	patterns := append([]string(nil), e.groups[group]...)
	e.mu.Unlock()

	total := decimal.Zero
	for _, pos := range st.AllPositions() {
		if matchesAny(pos.MarketSlug, patterns) {
			total = total.Add(pos.CostBasis())
		}
	}
	for _, order := range st.OpenOrders() {
		if order.RemainingQuantity > 0 && matchesAny(order.MarketSlug, patterns) {
			total = total.Add(order.RemainingNotional())
		}
	}
	return total
}

// CheckResult is the outcome of an exposure check.
type CheckResult struct {
	Allowed       bool
	Reason        string
	MaxAdditional decimal.Decimal // tightest headroom across all limits
}

// CanAddExposure checks whether additional notional can be committed to
// a market. MaxAdditional carries the tightest remaining headroom so
// the caller can resize instead of rejecting outright.
func (e *ExposureMonitor) CanAddExposure(st *state.Manager, slug string, additional decimal.Decimal) (CheckResult, error) {
	if additional.Sign() < 0 {
		return CheckResult{}, fmt.Errorf("additional exposure cannot be negative, got %s", additional)
	}
	if additional.Sign() == 0 {
		return CheckResult{Allowed: true, Reason: "ok"}, nil
	}

	// Position count limit only matters when opening a new market.
	if _, held := st.GetPosition(slug); !held {
		if len(st.AllPositions()) >= e.maxPositions {
			return CheckResult{
				Allowed: false,
				Reason:  fmt.Sprintf("max positions reached: %d", e.maxPositions),
			}, nil
		}
	}

	currentMarket := e.MarketExposure(st, slug)
	currentTotal := e.TotalExposure(st)

	maxAdditional := e.maxPortfolio.Sub(currentTotal)
	maxAdditional = decimal.Min(maxAdditional, e.maxPerMarket.Sub(currentMarket))

	if e.maxGroup.Sign() > 0 {
		for _, group := range e.groupsFor(slug) {
			headroom := e.maxGroup.Sub(e.groupExposure(st, group))
			maxAdditional = decimal.Min(maxAdditional, headroom)
		}
	}

	if maxAdditional.Sign() <= 0 {
		return CheckResult{Allowed: false, Reason: "exposure limits reached"}, nil
	}

	if additional.GreaterThan(maxAdditional) {
		return CheckResult{
			Allowed:       false,
			Reason:        "proposed exposure exceeds limits; reduce size",
			MaxAdditional: maxAdditional,
		}, nil
	}

	return CheckResult{Allowed: true, Reason: "ok", MaxAdditional: maxAdditional}, nil
}
