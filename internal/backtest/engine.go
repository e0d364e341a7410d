// Package backtest replays the dip/reversal detection over historical
// 1-minute bars, one session at a time, and simulates one of three exit
// policies to produce trade-by-trade and aggregate results.
package backtest

import (
	"fmt"
	"time"

	"github.com/morinok/dipbot/internal/bars"
	"github.com/morinok/dipbot/internal/logging"
	"github.com/morinok/dipbot/internal/signal"
	"github.com/morinok/dipbot/internal/types"
)

// ExitPolicy selects how a simulated position is closed.
type ExitPolicy string

const (
	PolicyTrailingStop    ExitPolicy = "trailing_stop"
	PolicyFixedSLTP       ExitPolicy = "fixed_sl_tp"
	PolicyNextSessionOpen ExitPolicy = "next_session_open"
)

var btLog = logging.New("backtest")

type Config struct {
	SetupTimeframe   time.Duration
	TriggerTimeframe time.Duration

	// Intraday search window as offsets from midnight, open boundary
	// excluded. 9h and 11h30m replay the morning session.
	WindowStart time.Duration
	WindowEnd   time.Duration

	Quantity      float64
	Policy        ExitPolicy
	StopLossPct   float64 // percent
	TakeProfitPct float64 // percent
	TrailPct      float64 // percent
	PriceTick     float64
}

type Engine struct {
	Bars []types.Bar
	cfg  Config
}

// NewEngine takes the full historical 1-minute series, possibly spanning many
// days. Bars must be in timestamp order.
func NewEngine(history []types.Bar, cfg Config) *Engine {
	return &Engine{Bars: history, cfg: cfg}
}

// Run replays every session and returns the collected results. Each session
// produces at most one trade; zero-profit round trips are not recorded.
func (e *Engine) Run() (*Results, error) {
	if e.cfg.Policy != PolicyTrailingStop && e.cfg.Policy != PolicyFixedSLTP &&
		e.cfg.Policy != PolicyNextSessionOpen {
		return nil, fmt.Errorf("unknown exit policy %q", e.cfg.Policy)
	}

	sessions := splitSessions(e.Bars)
	results := &Results{Trades: []Trade{}}

	btLog.Info("starting replay", "sessions", len(sessions), "bars", len(e.Bars),
		"policy", e.cfg.Policy)

	for i, session := range sessions {
		var next []types.Bar
		if i+1 < len(sessions) {
			next = sessions[i+1]
		}
		if trade, ok := e.runSession(session, next); ok {
			results.Trades = append(results.Trades, trade)
		}
	}
	return results, nil
}

// splitSessions groups the series into calendar days, preserving order.
func splitSessions(history []types.Bar) [][]types.Bar {
	var out [][]types.Bar
	var day string
	for _, b := range history {
		d := b.Timestamp.Format("2006-01-02")
		if d != day {
			day = d
			out = append(out, nil)
		}
		out[len(out)-1] = append(out[len(out)-1], b)
	}
	return out
}

// runSession finds at most one reversal point and one entry in the session's
// search window, then applies the configured exit policy.
func (e *Engine) runSession(session, next []types.Bar) (Trade, bool) {
	day := session[0].Timestamp
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	windowStart := midnight.Add(e.cfg.WindowStart)
	windowEnd := midnight.Add(e.cfg.WindowEnd)

	setup := bars.SessionWindow(
		bars.Resample(session, e.cfg.SetupTimeframe), windowStart, windowEnd)
	if len(setup) < 3 {
		return Trade{}, false
	}

	// Feed setup bars one at a time so we know which bar confirmed the
	// reversal; the entry search starts strictly after it.
	detector := signal.NewDetector()
	var reversalPoint float64
	var reversalAt time.Time
	found := false
	for i := 1; i <= len(setup); i++ {
		st := detector.Scan(setup[:i])
		if st.HasReversal {
			reversalPoint = st.ReversalPoint
			reversalAt = setup[i-1].Timestamp
			found = true
			break
		}
	}
	if !found {
		return Trade{}, false
	}
	btLog.Debug("reversal point", "day", day.Format("2006-01-02"),
		"price", reversalPoint, "at", reversalAt)

	trigger := bars.SessionWindow(
		bars.Resample(session, e.cfg.TriggerTimeframe), windowStart, windowEnd)

	for _, tb := range trigger {
		if !tb.Timestamp.After(reversalAt) {
			continue
		}
		if tb.Close > reversalPoint {
			return e.simulateExit(session, next, tb)
		}
	}
	return Trade{}, false
}

// simulateExit enters at the trigger bar's open and walks every remaining
// 1-minute bar of the session under the configured policy. The search window
// bounds only the entry; exits run to the end of the day.
func (e *Engine) simulateExit(session, next []types.Bar, entryBar types.Bar) (Trade, bool) {
	rest := session
	for len(rest) > 0 && !rest[0].Timestamp.After(entryBar.Timestamp) {
		rest = rest[1:]
	}
	entry := entryBar.Open

	var exitPrice float64
	var exitTime time.Time
	var reason string

	switch e.cfg.Policy {
	case PolicyTrailingStop:
		exitPrice, exitTime, reason = e.trailingExit(entry, rest, entryBar)
	case PolicyFixedSLTP:
		exitPrice, exitTime, reason = e.fixedExit(entry, rest, entryBar)
	case PolicyNextSessionOpen:
		var ok bool
		exitPrice, exitTime, reason, ok = e.nextOpenExit(next)
		if !ok {
			btLog.Debug("no following session to exit into", "entry", entry,
				"at", entryBar.Timestamp)
			return Trade{}, false
		}
	}

	pnl := (exitPrice - entry) * e.cfg.Quantity
	if pnl == 0 {
		btLog.Debug("discarding zero-profit trade", "entry", entry, "at", entryBar.Timestamp)
		return Trade{}, false
	}

	return Trade{
		EntryTime:  entryBar.Timestamp,
		ExitTime:   exitTime,
		EntryPrice: entry,
		ExitPrice:  exitPrice,
		Quantity:   e.cfg.Quantity,
		PnL:        pnl,
		ExitReason: reason,
	}, true
}

// trailingExit checks the current stop against each bar's low before raising
// it from the bar's high, so the stop in effect during a bar is always the
// one set before that bar.
func (e *Engine) trailingExit(entry float64, rest []types.Bar, entryBar types.Bar) (float64, time.Time, string) {
	stop := types.RoundToTick(entry*(1-e.cfg.TrailPct/100), e.cfg.PriceTick)
	for _, b := range rest {
		if b.Low <= stop {
			return stop, b.Timestamp, ExitReasonTrailingStop
		}
		if raised := types.RoundToTick(b.High*(1-e.cfg.TrailPct/100), e.cfg.PriceTick); raised > stop {
			stop = raised
		}
	}
	return lastClose(rest, entryBar), lastTime(rest, entryBar), ExitReasonSessionClose
}

// fixedExit resolves a same-bar touch of both levels in favor of the stop.
func (e *Engine) fixedExit(entry float64, rest []types.Bar, entryBar types.Bar) (float64, time.Time, string) {
	sl := types.RoundToTick(entry*(1-e.cfg.StopLossPct/100), e.cfg.PriceTick)
	tp := types.RoundToTick(entry*(1+e.cfg.TakeProfitPct/100), e.cfg.PriceTick)
	for _, b := range rest {
		if b.Low <= sl {
			return sl, b.Timestamp, ExitReasonStopLoss
		}
		if b.High >= tp {
			return tp, b.Timestamp, ExitReasonTakeProfit
		}
	}
	return lastClose(rest, entryBar), lastTime(rest, entryBar), ExitReasonSessionClose
}

// nextOpenExit holds to the first bar at or after the next session's window
// start. Without a following session, or without a qualifying bar in it,
// there is nothing to exit into and no trade is recorded.
func (e *Engine) nextOpenExit(next []types.Bar) (float64, time.Time, string, bool) {
	if len(next) == 0 {
		return 0, time.Time{}, "", false
	}
	day := next[0].Timestamp
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	open := midnight.Add(e.cfg.WindowStart)
	for _, b := range next {
		if !b.Timestamp.Before(open) {
			return b.Open, b.Timestamp, ExitReasonNextSessionOpen, true
		}
	}
	return 0, time.Time{}, "", false
}

func lastClose(rest []types.Bar, entryBar types.Bar) float64 {
	if len(rest) == 0 {
		return entryBar.Close
	}
	return rest[len(rest)-1].Close
}

func lastTime(rest []types.Bar, entryBar types.Bar) time.Time {
	if len(rest) == 0 {
		return entryBar.Timestamp
	}
	return rest[len(rest)-1].Timestamp
}
