package types

import "time"

// OrderState is the normalized lifecycle state of a broker order. The broker's
// order list is the only ground truth; local copies are reconciled against it.
type OrderState string

const (
	OrderPending   OrderState = "pending"
	OrderWaiting   OrderState = "waiting"
	OrderFilled    OrderState = "filled"
	OrderCancelled OrderState = "cancelled"
	OrderFailed    OrderState = "failed"
)

// Order mirrors one broker-reported order.
type Order struct {
	ID            string
	State         OrderState
	ExecutedPrice float64
	Quantity      float64
}

// Position is one open long position, created on entry fill and destroyed
// when the trade cycle closes.
type Position struct {
	EntryPrice      float64
	EntryTime       time.Time
	StopLossPrice   float64
	TakeProfitPrice float64
	Quantity        float64
}
