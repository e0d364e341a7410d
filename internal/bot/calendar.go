package bot

import "time"

// Calendar describes the two daily trading windows and the hard end-of-day
// deadline after which an idle bot shuts itself down.
type Calendar struct {
	Location       *time.Location
	MorningOpen    ClockTime
	MorningClose   ClockTime
	AfternoonOpen  ClockTime
	AfternoonClose ClockTime
	Deadline       ClockTime
	ExcludedDates  map[string]bool // "2006-01-02" keys
}

// ClockTime is a time of day.
type ClockTime struct {
	Hour, Minute int
}

func (c ClockTime) on(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// TokyoCalendar returns the Tokyo Stock Exchange cash session calendar:
// 9:00-11:30, 12:30-15:00, with an idle shutdown at 15:30.
func TokyoCalendar(loc *time.Location) Calendar {
	return Calendar{
		Location:       loc,
		MorningOpen:    ClockTime{9, 0},
		MorningClose:   ClockTime{11, 30},
		AfternoonOpen:  ClockTime{12, 30},
		AfternoonClose: ClockTime{15, 0},
		Deadline:       ClockTime{15, 30},
	}
}

// SessionStart returns the opening time of the session containing now, and
// false when the market is closed. Weekends and excluded dates are closed
// all day.
func (c Calendar) SessionStart(now time.Time) (time.Time, bool) {
	now = now.In(c.Location)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return time.Time{}, false
	}
	if c.ExcludedDates[now.Format("2006-01-02")] {
		return time.Time{}, false
	}

	mo := c.MorningOpen.on(now, c.Location)
	mc := c.MorningClose.on(now, c.Location)
	ao := c.AfternoonOpen.on(now, c.Location)
	ac := c.AfternoonClose.on(now, c.Location)

	switch {
	case !now.Before(mo) && !now.After(mc):
		return mo, true
	case !now.Before(ao) && !now.After(ac):
		return ao, true
	default:
		return time.Time{}, false
	}
}

// PastDeadline reports whether the end-of-day shutdown time has passed.
func (c Calendar) PastDeadline(now time.Time) bool {
	now = now.In(c.Location)
	return !now.Before(c.Deadline.on(now, c.Location))
}
