package bot

import (
	"context"

	"github.com/morinok/dipbot/internal/types"
)

// Broker is the trading surface the lifecycle state machine drives. The live
// implementation is the kabus client; tests and dry runs use the paper broker.
type Broker interface {
	SendMarketBuy(ctx context.Context, qty int) (string, error)
	SendStopSell(ctx context.Context, qty int, triggerPrice float64) (string, error)
	SendLimitSell(ctx context.Context, qty int, price float64) (string, error)
	SendMarketSell(ctx context.Context, qty int) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	Orders(ctx context.Context) ([]types.Order, error)
}
