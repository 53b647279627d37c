package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketState is the tracked top-of-book view of one binary market.
// Best prices are nil when the corresponding book side is empty.
type MarketState struct {
	MarketSlug string
	YesTokenID string
	NoTokenID  string
	Question   string

	YesBid *decimal.Decimal
	YesAsk *decimal.Decimal
	NoBid  *decimal.Decimal
	NoAsk  *decimal.Decimal

	UpdatedAt time.Time
}

// BestBid returns the best bid for the given side, nil when absent.
func (m *MarketState) BestBid(side Side) *decimal.Decimal {
	if side == SideYes {
		return m.YesBid
	}
	return m.NoBid
}

// BestAsk returns the best ask for the given side, nil when absent.
// For the NO side a missing ask falls back to 1 - YES bid, since
// selling YES at its bid is equivalent to buying NO.
func (m *MarketState) BestAsk(side Side) *decimal.Decimal {
	if side == SideYes {
		return m.YesAsk
	}
	if m.NoAsk != nil {
		return m.NoAsk
	}
	if m.YesBid != nil {
		derived := decimal.NewFromInt(1).Sub(*m.YesBid)
		return &derived
	}
	return nil
}

// MidPrice returns the YES mid price when both sides are quoted.
func (m *MarketState) MidPrice() (decimal.Decimal, bool) {
	if m.YesBid == nil || m.YesAsk == nil {
		return decimal.Decimal{}, false
	}
	return m.YesBid.Add(*m.YesAsk).Div(decimal.NewFromInt(2)), true
}

// Clone returns a deep copy safe to hand across goroutines.
func (m *MarketState) Clone() *MarketState {
	c := *m
	c.YesBid = cloneDecimal(m.YesBid)
	c.YesAsk = cloneDecimal(m.YesAsk)
	c.NoBid = cloneDecimal(m.NoBid)
	c.NoAsk = cloneDecimal(m.NoAsk)
	return &c
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
