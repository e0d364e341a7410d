package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/morinok/dipbot/internal/types"
)

// barSeq builds bars at consecutive minute labels from the given parallel
// slices of closes, lows and highs.
func barSeq(t *testing.T, closes, lows, highs []float64) []types.Bar {
	t.Helper()
	assert.Equal(t, len(closes), len(lows))
	assert.Equal(t, len(closes), len(highs))

	base, err := time.Parse(time.RFC3339, "2025-04-07T09:05:00+09:00")
	assert.NoError(t, err)

	out := make([]types.Bar, len(closes))
	for i := range closes {
		out[i] = types.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      closes[i],
			High:      highs[i],
			Low:       lows[i],
			Close:     closes[i],
		}
	}
	return out
}

func TestDipFlagsAtThirdDescendingClose(t *testing.T) {
	closes := []float64{100, 99, 98}
	bars := barSeq(t, closes, closes, closes)

	d := NewDetector()

	st := d.Scan(bars[:2])
	assert.False(t, st.FlagOn, "two bars are not enough to flag")

	st = d.Scan(bars)
	assert.True(t, st.FlagOn)
	assert.Equal(t, bars[2].Timestamp, st.DipStart)
	assert.Equal(t, 2, st.LowestLowIndex)
	assert.Equal(t, 98.0, st.LowestLow)
	assert.False(t, st.HasReversal)
}

func TestDipRequiresStrictDescent(t *testing.T) {
	closes := []float64{100, 99, 99, 98}
	bars := barSeq(t, closes, closes, closes)

	d := NewDetector()
	st := d.Scan(bars)
	assert.False(t, st.FlagOn, "an equal close breaks the descent")
}

func TestLowestLowTracksMinimumSinceDipStart(t *testing.T) {
	closes := []float64{100, 99, 98, 97, 98, 96.5}
	lows := []float64{99, 98, 97.5, 97, 96, 96.2}
	bars := barSeq(t, closes, lows, closes)

	d := NewDetector()
	st := d.Scan(bars)
	assert.True(t, st.FlagOn)
	assert.Equal(t, 96.0, st.LowestLow)
	assert.Equal(t, 4, st.LowestLowIndex)
}

func TestEndToEndDipThenEntry(t *testing.T) {
	// Closes dip 100..95 then recover; the lowest low lands on index 4, so
	// two bars later the reversal point becomes the high of index 2.
	closes := []float64{100, 99, 98, 97, 96, 95, 99, 101}
	lows := []float64{99.5, 98.5, 97.5, 97, 96, 96.2, 98, 100}
	highs := []float64{101, 100, 100.5, 98, 97, 99.5, 99.8, 101.5}
	bars := barSeq(t, closes, lows, highs)

	d := NewDetector()

	st := d.Scan(bars[:6])
	assert.True(t, st.FlagOn)
	assert.Equal(t, 4, st.LowestLowIndex)
	assert.False(t, st.HasReversal, "only one bar has closed after the lowest low")

	st = d.Scan(bars[:7])
	assert.True(t, st.HasReversal, "reversal confirms two bars after the lowest low")
	assert.Equal(t, 100.5, st.ReversalPoint, "high of the bar two before the lowest low")

	_, fired := EntryTrigger(bars[:7], st.ReversalPoint)
	assert.False(t, fired, "close 99 does not clear the reversal point")

	trig, fired := EntryTrigger(bars, st.ReversalPoint)
	assert.True(t, fired)
	assert.Equal(t, 101.0, trig.Close)
}

func TestReversalRecomputesWhenLowestLowMoves(t *testing.T) {
	closes := []float64{100, 99, 98, 97, 96, 97, 95, 96, 97}
	lows := []float64{99.5, 98.5, 97.5, 96.5, 96, 96.8, 94.5, 95.5, 96.5}
	highs := []float64{101, 100, 99, 98, 97.5, 97.2, 96.8, 96.9, 97.5}
	bars := barSeq(t, closes, lows, highs)

	d := NewDetector()

	st := d.Scan(bars[:7])
	assert.Equal(t, 6, st.LowestLowIndex, "index 6 undercuts the earlier low")
	assert.False(t, st.HasReversal, "the undercut arrives before the first low confirms")

	st = d.Scan(bars)
	assert.True(t, st.HasReversal)
	assert.Equal(t, highs[4], st.ReversalPoint, "two bars after the new low it confirms")
}

func TestMonotonicRiseNeverFlags(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 105}
	bars := barSeq(t, closes, closes, closes)

	d := NewDetector()
	st := d.Scan(bars)
	assert.False(t, st.FlagOn)
	assert.False(t, st.HasReversal)
}

func TestEntryTriggerEqualityDoesNotFire(t *testing.T) {
	closes := []float64{100}
	bars := barSeq(t, closes, closes, closes)

	_, fired := EntryTrigger(bars, 100)
	assert.False(t, fired)

	_, fired = EntryTrigger(bars, 99.9)
	assert.True(t, fired)
}

func TestResetClearsState(t *testing.T) {
	closes := []float64{100, 99, 98}
	bars := barSeq(t, closes, closes, closes)

	d := NewDetector()
	st := d.Scan(bars)
	assert.True(t, st.FlagOn)

	d.Reset()
	assert.False(t, d.State().FlagOn)

	// After a reset the same bars are rescanned from scratch.
	st = d.Scan(bars)
	assert.True(t, st.FlagOn)
}
