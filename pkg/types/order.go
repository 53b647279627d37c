package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderState is the tracked state of one order placed by the bot.
// Quantity is in whole contracts.
type OrderState struct {
	OrderID           string
	MarketSlug        string
	TokenID           string
	Side              Side
	Intent            OrderIntent
	Type              OrderType
	Price             decimal.Decimal
	OriginalQuantity  int64
	RemainingQuantity int64
	Status            OrderStatus
	Strategy          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FilledQuantity returns the number of contracts filled so far.
func (o *OrderState) FilledQuantity() int64 {
	return o.OriginalQuantity - o.RemainingQuantity
}

// RemainingNotional is the cash still committed by the open remainder.
func (o *OrderState) RemainingNotional() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.RemainingQuantity))
}

// Fill records a single execution against an order.
type Fill struct {
	FillID     string
	OrderID    string
	MarketSlug string
	Side       Side
	Intent     OrderIntent
	Price      decimal.Decimal
	Quantity   int64
	Fee        decimal.Decimal
	Maker      bool
	Timestamp  time.Time
}

// Notional is price times quantity for this fill.
func (f *Fill) Notional() decimal.Decimal {
	return f.Price.Mul(decimal.NewFromInt(f.Quantity))
}
