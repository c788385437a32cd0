package tradingday

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func hk(t *testing.T) *Calendar {
	t.Helper()
	return NewCalendar("Asia/Hong_Kong")
}

func at(cal *Calendar, y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, cal.Location())
}

func TestCalendar_DayKeyAndEndOfDay(t *testing.T) {
	cal := hk(t)
	ts := at(cal, 2025, time.March, 14, 10, 30)
	assert.Equal(t, "2025-03-14", cal.DayKey(ts), "day key should use exchange-local date")
	assert.True(t, cal.SameDay(ts, at(cal, 2025, time.March, 14, 15, 59)), "same local date should match")
	assert.False(t, cal.SameDay(ts, at(cal, 2025, time.March, 15, 0, 1)), "next date should not match")

	eod := cal.EndOfDay(ts)
	assert.Equal(t, "2025-03-15", cal.DayKey(eod), "end of day should be the next midnight")
}

func TestCalendar_InSession(t *testing.T) {
	cal := hk(t)
	assert.True(t, cal.InSession(at(cal, 2025, time.March, 14, 9, 30)), "morning open is in session")
	assert.True(t, cal.InSession(at(cal, 2025, time.March, 14, 11, 59)), "late morning is in session")
	assert.False(t, cal.InSession(at(cal, 2025, time.March, 14, 12, 30)), "midday recess is closed")
	assert.True(t, cal.InSession(at(cal, 2025, time.March, 14, 13, 0)), "afternoon open is in session")
	assert.False(t, cal.InSession(at(cal, 2025, time.March, 14, 16, 0)), "close is out of session")
	assert.False(t, cal.InSession(at(cal, 2025, time.March, 15, 10, 0)), "saturday is closed")
}

func TestCalendar_TradingElapsed_SkipsRecess(t *testing.T) {
	cal := hk(t)
	from := at(cal, 2025, time.March, 14, 11, 0)
	to := at(cal, 2025, time.March, 14, 14, 0)
	// 11:00-12:00 morning + 13:00-14:00 afternoon.
	assert.Equal(t, 2*time.Hour, cal.TradingElapsed(from, to), "recess should not count as trading time")
}

func TestCalendar_TradingElapsed_AcrossDays(t *testing.T) {
	cal := hk(t)
	from := at(cal, 2025, time.March, 14, 15, 0) // friday
	to := at(cal, 2025, time.March, 17, 10, 0)   // monday
	// 1h friday close-out + 30m monday morning; weekend contributes nothing.
	assert.Equal(t, 90*time.Minute, cal.TradingElapsed(from, to), "weekend days should contribute no trading time")
}

func TestCalendar_TradingElapsed_Reversed(t *testing.T) {
	cal := hk(t)
	from := at(cal, 2025, time.March, 14, 15, 0)
	assert.Zero(t, cal.TradingElapsed(from, from.Add(-time.Hour)), "reversed range should be zero")
}
