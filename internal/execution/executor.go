package execution

import (
	"context"
	"time"

	"github.com/mselser95/polymarket-sportsbot/internal/strategy"
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"github.com/shopspring/decimal"
)

// FillListener is notified after a fill has been committed to state.
// Listeners run outside executor locks and must not block.
type FillListener func(fill *types.Fill)

// Executor turns approved signals into orders and fills. The paper
// implementation simulates fills against tracked books; the live
// implementation submits signed orders to the exchange CLOB.
type Executor interface {
	// Mode returns "paper" or "live".
	Mode() string

	// PlaceOrder executes a trade signal. It returns the resulting
	// order state, which is terminal when the order filled or was
	// rejected immediately.
	PlaceOrder(ctx context.Context, sig *strategy.Signal) (*types.OrderState, error)

	// CancelOrder cancels one open order by ID.
	CancelOrder(ctx context.Context, orderID string) error

	// CancelAll cancels every open order.
	CancelAll(ctx context.Context) error

	// CheckRestingOrders advances resting limit orders against the
	// current books. Called once per engine tick.
	CheckRestingOrders(ctx context.Context, now time.Time)

	// AddFillListener registers a callback for committed fills.
	AddFillListener(l FillListener)

	// Stats returns a copy of the cumulative execution counters.
	Stats() Stats

	// LiquidationValue estimates the cash recovered by unwinding all
	// positions into the current books.
	LiquidationValue() decimal.Decimal

	// Close releases executor resources.
	Close() error
}

// Stats are cumulative execution counters.
type Stats struct {
	OrdersPlaced    int64
	OrdersCancelled int64
	OrdersRejected  int64
	Fills           int64
	Volume          decimal.Decimal
	FeesPaid        decimal.Decimal
}
