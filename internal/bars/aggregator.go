// Package bars turns the raw tick stream into 1-minute bars and derives
// coarser timeframes from them by resampling.
package bars

import (
	"sync"
	"time"

	"github.com/morinok/dipbot/internal/logging"
	"github.com/morinok/dipbot/internal/types"
)

var barsLog = logging.New("bars")

// TickBuffer collects ticks for the currently open minute. The feed goroutine
// appends; the control loop swaps the buffer out at each minute rollover.
// The lock is held only for the append or the swap, never across any I/O.
type TickBuffer struct {
	mu        sync.Mutex
	ticks     []types.Tick
	lastPrice float64
}

func NewTickBuffer() *TickBuffer {
	return &TickBuffer{}
}

// Append records a tick for the open interval.
func (b *TickBuffer) Append(t types.Tick) {
	b.mu.Lock()
	b.ticks = append(b.ticks, t)
	b.lastPrice = t.Price
	b.mu.Unlock()
}

// Swap atomically takes the buffered ticks and clears the buffer.
func (b *TickBuffer) Swap() []types.Tick {
	b.mu.Lock()
	ticks := b.ticks
	b.ticks = nil
	b.mu.Unlock()
	return ticks
}

// LastPrice returns the most recently appended price, or 0 before the first
// tick has arrived.
func (b *TickBuffer) LastPrice() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastPrice
}

// Aggregate folds the ticks of one closed minute into a Bar labeled closedAt
// (the right edge of the interval). Ticks are folded in arrival order:
// open=first, high=max, low=min, close=last. The push feed carries no volume,
// so Volume is always 0. Returns false when no ticks arrived in the interval;
// a silent minute produces no bar and downstream detection tolerates the gap.
func Aggregate(ticks []types.Tick, closedAt time.Time) (types.Bar, bool) {
	if len(ticks) == 0 {
		barsLog.Debug("no ticks in interval, skipping bar", "closedAt", closedAt)
		return types.Bar{}, false
	}

	bar := types.Bar{
		Timestamp: closedAt,
		Open:      ticks[0].Price,
		High:      ticks[0].Price,
		Low:       ticks[0].Price,
		Close:     ticks[len(ticks)-1].Price,
	}
	for _, t := range ticks[1:] {
		if t.Price > bar.High {
			bar.High = t.Price
		}
		if t.Price < bar.Low {
			bar.Low = t.Price
		}
	}

	barsLog.Debug("aggregated bar", "closedAt", closedAt, "ticks", len(ticks),
		"open", bar.Open, "high", bar.High, "low", bar.Low, "close", bar.Close)
	return bar, true
}

// Series is the append-only 1-minute bar history for the session plus the
// lookback loaded at startup. Bars are only ever appended, never revised, so
// readers may assume monotonically increasing timestamps.
type Series struct {
	bars []types.Bar
}

func NewSeries(lookback []types.Bar) *Series {
	return &Series{bars: append([]types.Bar(nil), lookback...)}
}

func (s *Series) Append(bar types.Bar) {
	s.bars = append(s.bars, bar)
}

// Bars returns the underlying slice. Callers must treat it as read-only.
func (s *Series) Bars() []types.Bar {
	return s.bars
}

func (s *Series) Len() int {
	return len(s.bars)
}
