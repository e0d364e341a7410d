package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/morinok/dipbot/internal/types"
)

func TestPaperMarketBuyFillsAtCurrentPrice(t *testing.T) {
	price := 1500.0
	p := NewPaperBroker(func() float64 { return price })

	id, err := p.SendMarketBuy(context.Background(), 100)
	assert.NoError(t, err)
	assert.NotEmpty(t, id)

	orders, err := p.Orders(context.Background())
	assert.NoError(t, err)
	if assert.Len(t, orders, 1) {
		assert.Equal(t, types.OrderFilled, orders[0].State)
		assert.Equal(t, 1500.0, orders[0].ExecutedPrice)
	}
}

func TestPaperStopSellFillsOnTouch(t *testing.T) {
	price := 1500.0
	p := NewPaperBroker(func() float64 { return price })

	id, _ := p.SendStopSell(context.Background(), 100, 1480)

	orders, _ := p.Orders(context.Background())
	assert.Equal(t, types.OrderWaiting, orders[0].State)

	price = 1480
	orders, _ = p.Orders(context.Background())
	if assert.Len(t, orders, 1) {
		assert.Equal(t, id, orders[0].ID)
		assert.Equal(t, types.OrderFilled, orders[0].State)
		assert.Equal(t, 1480.0, orders[0].ExecutedPrice)
	}
}

func TestPaperCancelOnlyAffectsRestingOrders(t *testing.T) {
	price := 1500.0
	p := NewPaperBroker(func() float64 { return price })

	stopID, _ := p.SendStopSell(context.Background(), 100, 1480)
	assert.NoError(t, p.CancelOrder(context.Background(), stopID))

	orders, _ := p.Orders(context.Background())
	assert.Equal(t, types.OrderCancelled, orders[0].State)

	// A filled order cannot be cancelled.
	buyID, _ := p.SendMarketBuy(context.Background(), 100)
	assert.NoError(t, p.CancelOrder(context.Background(), buyID))

	orders, _ = p.Orders(context.Background())
	for _, o := range orders {
		if o.ID == buyID {
			assert.Equal(t, types.OrderFilled, o.State)
		}
	}
}
