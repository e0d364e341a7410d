package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLC(V) summary over a fixed interval. Timestamp labels the
// *right* edge of the interval: a bar absorbs every tick in
// (intervalStart, intervalEnd] and is named for intervalEnd.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Tick is a single price update from the push feed. Ephemeral: consumed by
// the aggregator at the next minute rollover.
type Tick struct {
	Timestamp time.Time
	Price     float64
}

// RoundToTick rounds price to the nearest multiple of the instrument's price
// tick. Done in decimal so that tick sizes like 0.5 don't pick up binary
// float residue before the price goes on an order.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	t := decimal.NewFromFloat(tick)
	f, _ := p.Div(t).Round(0).Mul(t).Float64()
	return f
}
