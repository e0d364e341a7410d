// Package signal implements dip/reversal detection over setup-timeframe bars
// and breakout confirmation over trigger-timeframe bars.
package signal

import (
	"math"
	"time"

	"github.com/morinok/dipbot/internal/logging"
	"github.com/morinok/dipbot/internal/types"
)

var sigLog = logging.New("signal")

// DipState tracks one candidate dip sequence. It lives from the first
// three-lower-closes detection until the entry is consumed or the trade
// cycle resets it; time passing alone never clears it.
type DipState struct {
	FlagOn         bool
	DipStart       time.Time
	LowestLow      float64
	LowestLowIndex int
	ReversalPoint  float64
	HasReversal    bool
}

// Detector runs the dip state machine over a growing setup-timeframe series.
// The series is recomputed by resampling each minute but its prefix never
// changes, so each index is processed exactly once.
type Detector struct {
	state     DipState
	processed int
}

func NewDetector() *Detector {
	return &Detector{}
}

// State returns a copy of the current dip state.
func (d *Detector) State() DipState {
	return d.state
}

// Reset clears the dip state and restarts index tracking. Called when a trade
// cycle completes or a new session begins.
func (d *Detector) Reset() {
	d.state = DipState{}
	d.processed = 0
}

// Scan advances the state machine over any setup bars not yet seen and
// returns the current state. Rules per new bar at index j:
//
//  1. Three strictly descending closes at j-2, j-1, j while no dip is open
//     start a fresh dip: the flag goes on, lowest-low tracking resets.
//  2. While the flag is on, every bar at or after the dip start updates the
//     lowest low when its low is strictly lower.
//  3. Once two full bars have closed after the lowest-low bar and that bar
//     has two predecessors, the reversal point becomes the high of the bar
//     two positions before the lowest low. A later bar that revises the
//     lowest-low index overwrites the reversal point the same way.
func (d *Detector) Scan(bars []types.Bar) DipState {
	if len(bars) < 3 {
		d.processed = len(bars)
		return d.state
	}

	for j := d.processed; j < len(bars); j++ {
		if j >= 2 && !d.state.FlagOn &&
			bars[j].Close < bars[j-1].Close && bars[j-1].Close < bars[j-2].Close {
			d.state.FlagOn = true
			d.state.DipStart = bars[j].Timestamp
			d.state.LowestLow = math.Inf(1)
			d.state.LowestLowIndex = -1
			sigLog.Debug("dip flagged", "at", bars[j].Timestamp, "close", bars[j].Close)
		}

		if d.state.FlagOn && !bars[j].Timestamp.Before(d.state.DipStart) {
			if bars[j].Low < d.state.LowestLow {
				d.state.LowestLow = bars[j].Low
				d.state.LowestLowIndex = j
				sigLog.Debug("new lowest low", "index", j, "low", bars[j].Low)
			}
		}

		if d.state.FlagOn && d.state.LowestLowIndex >= 2 && j >= d.state.LowestLowIndex+2 {
			candidate := bars[d.state.LowestLowIndex-2].High
			if !d.state.HasReversal || candidate != d.state.ReversalPoint {
				d.state.ReversalPoint = candidate
				d.state.HasReversal = true
				sigLog.Info("reversal point set", "price", candidate,
					"lowestLowIndex", d.state.LowestLowIndex, "at", bars[j].Timestamp)
			}
		}
	}
	d.processed = len(bars)
	return d.state
}

// EntryTrigger inspects the latest trigger-timeframe bar against the reversal
// point. The close must be strictly greater; equality does not trigger.
// Returns the triggering bar and whether it fired.
func EntryTrigger(bars []types.Bar, reversalPoint float64) (types.Bar, bool) {
	if len(bars) == 0 {
		return types.Bar{}, false
	}
	last := bars[len(bars)-1]
	if last.Close > reversalPoint {
		sigLog.Info("entry trigger", "close", last.Close, "reversalPoint", reversalPoint,
			"at", last.Timestamp)
		return last, true
	}
	return types.Bar{}, false
}
