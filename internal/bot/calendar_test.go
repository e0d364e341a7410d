package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func jst(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	assert.NoError(t, err)
	return loc
}

func TestSessionStart(t *testing.T) {
	loc := jst(t)
	cal := TokyoCalendar(loc)

	cases := []struct {
		name      string
		now       string
		wantOpen  bool
		wantStart string
	}{
		{"before open", "2025-04-07T08:59:00+09:00", false, ""},
		{"morning open", "2025-04-07T09:00:00+09:00", true, "2025-04-07T09:00:00+09:00"},
		{"mid morning", "2025-04-07T10:15:00+09:00", true, "2025-04-07T09:00:00+09:00"},
		{"morning close", "2025-04-07T11:30:00+09:00", true, "2025-04-07T09:00:00+09:00"},
		{"lunch break", "2025-04-07T12:00:00+09:00", false, ""},
		{"afternoon", "2025-04-07T13:00:00+09:00", true, "2025-04-07T12:30:00+09:00"},
		{"after close", "2025-04-07T15:01:00+09:00", false, ""},
		{"saturday", "2025-04-05T10:00:00+09:00", false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now, err := time.Parse(time.RFC3339, tc.now)
			assert.NoError(t, err)

			start, open := cal.SessionStart(now)
			assert.Equal(t, tc.wantOpen, open)
			if tc.wantOpen {
				want, _ := time.Parse(time.RFC3339, tc.wantStart)
				assert.True(t, start.Equal(want), "got %s want %s", start, want)
			}
		})
	}
}

func TestExcludedDateClosesAllDay(t *testing.T) {
	cal := TokyoCalendar(jst(t))
	cal.ExcludedDates = map[string]bool{"2025-04-07": true}

	now, _ := time.Parse(time.RFC3339, "2025-04-07T10:00:00+09:00")
	_, open := cal.SessionStart(now)
	assert.False(t, open)
}

func TestPastDeadline(t *testing.T) {
	cal := TokyoCalendar(jst(t))

	before, _ := time.Parse(time.RFC3339, "2025-04-07T15:29:59+09:00")
	after, _ := time.Parse(time.RFC3339, "2025-04-07T15:30:00+09:00")
	assert.False(t, cal.PastDeadline(before))
	assert.True(t, cal.PastDeadline(after))
}
