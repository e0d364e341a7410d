package backtest

import "time"

// Exit reasons recorded on simulated trades.
const (
	ExitReasonTrailingStop    = "TRAILING_STOP"
	ExitReasonStopLoss        = "STOP_LOSS"
	ExitReasonTakeProfit      = "TAKE_PROFIT"
	ExitReasonSessionClose    = "SESSION_CLOSE"
	ExitReasonNextSessionOpen = "NEXT_SESSION_OPEN"
)

// Trade is one completed simulated round trip.
type Trade struct {
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	PnL        float64
	ExitReason string
}
