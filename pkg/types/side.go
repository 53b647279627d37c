package types

import "fmt"

// Side identifies which outcome token of a binary market an order or
// position refers to.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Opposite returns the other outcome of the binary pair.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// OrderIntent captures the trading intention behind an order, matching
// the exchange API enum values.
type OrderIntent string

const (
	IntentBuyLong   OrderIntent = "BUY_LONG"
	IntentSellLong  OrderIntent = "SELL_LONG"
	IntentBuyShort  OrderIntent = "BUY_SHORT"
	IntentSellShort OrderIntent = "SELL_SHORT"
)

// APIValue returns the wire representation used by the exchange API.
func (i OrderIntent) APIValue() string {
	return "ORDER_INTENT_" + string(i)
}

// ParseOrderIntent parses either the short or the API form of an intent.
func ParseOrderIntent(s string) (OrderIntent, error) {
	switch s {
	case "BUY_LONG", "ORDER_INTENT_BUY_LONG":
		return IntentBuyLong, nil
	case "SELL_LONG", "ORDER_INTENT_SELL_LONG":
		return IntentSellLong, nil
	case "BUY_SHORT", "ORDER_INTENT_BUY_SHORT":
		return IntentBuyShort, nil
	case "SELL_SHORT", "ORDER_INTENT_SELL_SHORT":
		return IntentSellShort, nil
	}
	return "", fmt.Errorf("unknown order intent: %q", s)
}

// IsBuy reports whether the intent opens or increases a position.
func (i OrderIntent) IsBuy() bool {
	return i == IntentBuyLong || i == IntentBuyShort
}

// OrderType distinguishes resting limit orders from immediate market orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusOpen            OrderStatus = "OPEN"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
)

// IsTerminal reports whether the order can no longer fill.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}
