package bars

import (
	"time"

	"github.com/morinok/dipbot/internal/types"
)

// Resample derives a coarser series by grouping 1-minute bars into contiguous
// time-aligned windows of the given width and folding each group with the
// same OHLC rules as tick aggregation. The convention is label-right,
// closed-right: a window owns the bars in (windowStart, windowEnd] and the
// output bar is labeled windowEnd. Getting this wrong silently shifts signal
// timing by one window.
//
// Empty windows emit nothing (gaps pass through). A trailing window whose
// right edge lies beyond the last input bar is still forming and is dropped.
func Resample(in []types.Bar, window time.Duration) []types.Bar {
	if len(in) == 0 || window <= 0 {
		return nil
	}

	last := in[len(in)-1].Timestamp
	var out []types.Bar
	var cur *types.Bar

	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}

	for _, b := range in {
		end := windowEnd(b.Timestamp, window)
		if cur != nil && !cur.Timestamp.Equal(end) {
			flush()
		}
		if cur == nil {
			nb := types.Bar{
				Timestamp: end,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			}
			cur = &nb
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}

	// Drop the in-progress trailing window; it has no right-edge bar yet.
	if cur != nil && !cur.Timestamp.After(last) {
		flush()
	}
	return out
}

// windowEnd returns the right edge of the window owning a bar labeled ts.
// Windows are aligned to midnight of the bar's day so that widths that don't
// divide an hour (e.g. 7 minutes) still produce stable boundaries. A bar
// labeled exactly on a boundary belongs to the window that closes there
// (closed-right).
func windowEnd(ts time.Time, window time.Duration) time.Time {
	day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
	off := ts.Sub(day)
	if off%window == 0 {
		return ts
	}
	return day.Add((off/window + 1) * window)
}

// SessionWindow restricts bars to the detection window (start, end]: strictly
// after start, up to and including end. The session-open boundary bar (for a
// 9:00 open, the bar labeled 09:00) aggregates the opening auction and has no
// preceding full interval, so it is excluded from setup analysis on purpose.
func SessionWindow(in []types.Bar, start, end time.Time) []types.Bar {
	var out []types.Bar
	for _, b := range in {
		if b.Timestamp.After(start) && !b.Timestamp.After(end) {
			out = append(out, b)
		}
	}
	return out
}
