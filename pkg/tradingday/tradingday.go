// Package tradingday provides exchange-local session arithmetic: day keys for
// day-scoped bookkeeping, trading-minute elapsed time that excludes the midday
// recess, and a session gate for the continuous trading hours.
package tradingday

import (
	"time"

	_ "time/tzdata"
)

// Session boundaries for the continuous trading session, exchange-local.
const (
	MorningOpenHour    = 9
	MorningOpenMinute  = 30
	MorningCloseHour   = 12
	AfternoonOpenHour  = 13
	AfternoonCloseHour = 16
)

// DayKeyLayout formats an exchange-local calendar date.
const DayKeyLayout = "2006-01-02"

// Clock supplies the current time. Injected so the rotation engine and the
// day-scoped caches stay deterministic under test.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Calendar resolves exchange-local time for a fixed location.
type Calendar struct {
	loc *time.Location
}

// NewCalendar builds a Calendar for the named IANA zone. An unknown zone
// falls back to UTC rather than failing; day keys stay internally consistent
// either way.
func NewCalendar(zone string) *Calendar {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = time.UTC
	}
	return &Calendar{loc: loc}
}

// Location exposes the underlying exchange location.
func (c *Calendar) Location() *time.Location { return c.loc }

// DayKey returns the exchange-local calendar date for t.
func (c *Calendar) DayKey(t time.Time) string {
	return t.In(c.loc).Format(DayKeyLayout)
}

// SameDay reports whether a and b fall on the same exchange-local date.
func (c *Calendar) SameDay(a, b time.Time) bool {
	return c.DayKey(a) == c.DayKey(b)
}

// EndOfDay returns the next exchange-local midnight after t, used as the
// expiry for day-scoped cache entries.
func (c *Calendar) EndOfDay(t time.Time) time.Time {
	lt := t.In(c.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.loc).Add(24 * time.Hour)
}

func (c *Calendar) sessionBounds(t time.Time) (mOpen, mClose, aOpen, aClose time.Time) {
	lt := t.In(c.loc)
	day := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.loc)
	mOpen = day.Add(time.Duration(MorningOpenHour)*time.Hour + time.Duration(MorningOpenMinute)*time.Minute)
	mClose = day.Add(time.Duration(MorningCloseHour) * time.Hour)
	aOpen = day.Add(time.Duration(AfternoonOpenHour) * time.Hour)
	aClose = day.Add(time.Duration(AfternoonCloseHour) * time.Hour)
	return
}

// MorningOpen returns the morning session open on t's exchange-local day.
func (c *Calendar) MorningOpen(t time.Time) time.Time {
	mOpen, _, _, _ := c.sessionBounds(t)
	return mOpen
}

// InSession reports whether t falls inside the continuous trading session,
// excluding the midday recess. Weekends are closed; exchange holidays are the
// caller's concern.
func (c *Calendar) InSession(t time.Time) bool {
	lt := t.In(c.loc)
	switch lt.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	mOpen, mClose, aOpen, aClose := c.sessionBounds(lt)
	if !lt.Before(mOpen) && lt.Before(mClose) {
		return true
	}
	return !lt.Before(aOpen) && lt.Before(aClose)
}

// sessionMinutesOn returns trading minutes elapsed on t's own day from the
// morning open up to t, clamped to the session windows.
func (c *Calendar) sessionMinutesOn(t time.Time) time.Duration {
	lt := t.In(c.loc)
	mOpen, mClose, aOpen, aClose := c.sessionBounds(lt)
	var d time.Duration
	if lt.After(mOpen) {
		end := lt
		if end.After(mClose) {
			end = mClose
		}
		d += end.Sub(mOpen)
	}
	if lt.After(aOpen) {
		end := lt
		if end.After(aClose) {
			end = aClose
		}
		d += end.Sub(aOpen)
	}
	return d
}

// fullSessionLength is the trading time contained in one complete day.
func (c *Calendar) fullSessionLength() time.Duration {
	return (time.Duration(MorningCloseHour)*time.Hour - (time.Duration(MorningOpenHour)*time.Hour + time.Duration(MorningOpenMinute)*time.Minute)) +
		(time.Duration(AfternoonCloseHour)-time.Duration(AfternoonOpenHour))*time.Hour
}

// TradingElapsed returns the cumulative trading time between from and to,
// counting only in-session minutes and skipping the midday recess. Weekend
// days contribute nothing. Returns zero when to precedes from.
func (c *Calendar) TradingElapsed(from, to time.Time) time.Duration {
	if !to.After(from) {
		return 0
	}
	lf := from.In(c.loc)
	lt := to.In(c.loc)
	if c.SameDay(lf, lt) {
		if isWeekend(lf) {
			return 0
		}
		return c.sessionMinutesOn(lt) - c.sessionMinutesOn(lf)
	}
	var total time.Duration
	if !isWeekend(lf) {
		total += c.fullSessionLength() - c.sessionMinutesOn(lf)
	}
	cursor := time.Date(lf.Year(), lf.Month(), lf.Day(), 0, 0, 0, 0, c.loc).Add(24 * time.Hour)
	endDay := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.loc)
	for cursor.Before(endDay) {
		if !isWeekend(cursor) {
			total += c.fullSessionLength()
		}
		cursor = cursor.Add(24 * time.Hour)
	}
	if !isWeekend(lt) {
		total += c.sessionMinutesOn(lt)
	}
	return total
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}
