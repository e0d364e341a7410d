package bot

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/morinok/dipbot/internal/logging"
	"github.com/morinok/dipbot/internal/types"
)

var paperLog = logging.New("bot")

// PaperBroker simulates the broker for dry runs. Market orders fill instantly
// at the current feed price; stop and limit orders fill when the price
// crosses them. Order state is reconciled through Orders exactly like the
// real broker's list endpoint.
type PaperBroker struct {
	mu     sync.Mutex
	price  func() float64
	orders map[string]*paperOrder
}

type paperOrder struct {
	order   types.Order
	kind    string
	trigger float64
	limit   float64
}

// NewPaperBroker builds a paper broker that fills against the given price
// source, typically the tick buffer's last price.
func NewPaperBroker(price func() float64) *PaperBroker {
	return &PaperBroker{
		price:  price,
		orders: make(map[string]*paperOrder),
	}
}

func (p *PaperBroker) SendMarketBuy(ctx context.Context, qty int) (string, error) {
	return p.add("market_buy", qty, p.price(), 0, 0), nil
}

func (p *PaperBroker) SendMarketSell(ctx context.Context, qty int) (string, error) {
	return p.add("market_sell", qty, p.price(), 0, 0), nil
}

func (p *PaperBroker) SendStopSell(ctx context.Context, qty int, triggerPrice float64) (string, error) {
	return p.add("stop_sell", qty, 0, triggerPrice, 0), nil
}

func (p *PaperBroker) SendLimitSell(ctx context.Context, qty int, price float64) (string, error) {
	return p.add("limit_sell", qty, 0, 0, price), nil
}

func (p *PaperBroker) add(kind string, qty int, fill, trigger, limit float64) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := uuid.New().String()
	o := &paperOrder{
		order:   types.Order{ID: id, Quantity: float64(qty), State: types.OrderWaiting},
		kind:    kind,
		trigger: trigger,
		limit:   limit,
	}
	if fill > 0 {
		o.order.State = types.OrderFilled
		o.order.ExecutedPrice = fill
	}
	p.orders[id] = o
	paperLog.Info("paper order", "id", id, "kind", kind, "qty", qty,
		"fill", fill, "trigger", trigger, "limit", limit)
	return id
}

func (p *PaperBroker) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if o, ok := p.orders[orderID]; ok && o.order.State == types.OrderWaiting {
		o.order.State = types.OrderCancelled
	}
	return nil
}

// Orders settles resting stop and limit orders against the current price and
// returns the full list.
func (p *PaperBroker) Orders(ctx context.Context) ([]types.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price := p.price()
	out := make([]types.Order, 0, len(p.orders))
	for _, o := range p.orders {
		if o.order.State == types.OrderWaiting && price > 0 {
			switch o.kind {
			case "stop_sell":
				if price <= o.trigger {
					o.order.State = types.OrderFilled
					o.order.ExecutedPrice = o.trigger
				}
			case "limit_sell":
				if price >= o.limit {
					o.order.State = types.OrderFilled
					o.order.ExecutedPrice = o.limit
				}
			}
		}
		out = append(out, o.order)
	}
	return out, nil
}
