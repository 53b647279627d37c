package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionState is a held inventory of one outcome token.
// Quantity is always positive; direction is carried by Side.
type PositionState struct {
	MarketSlug    string
	Side          Side
	Quantity      int64
	AvgEntryPrice decimal.Decimal
	RealizedPnL   decimal.Decimal
	OpenedAt      time.Time
	UpdatedAt     time.Time
}

// CostBasis is quantity times average entry price.
func (p *PositionState) CostBasis() decimal.Decimal {
	return p.AvgEntryPrice.Mul(decimal.NewFromInt(p.Quantity))
}

// MarketValue marks the position at the given bid price.
func (p *PositionState) MarketValue(bid decimal.Decimal) decimal.Decimal {
	return bid.Mul(decimal.NewFromInt(p.Quantity))
}

// UnrealizedPnL is market value minus cost basis at the given bid.
func (p *PositionState) UnrealizedPnL(bid decimal.Decimal) decimal.Decimal {
	return p.MarketValue(bid).Sub(p.CostBasis())
}
