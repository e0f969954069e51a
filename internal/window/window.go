// Package window generates calendar occurrences for repeat cadences.
//
// Everything here is pure: the same inputs always give the same instants.
// Wall-clock arithmetic happens in the location of the instant passed in,
// so callers convert to the user's zone first.
package window

import (
	"time"

	"github.com/julianstephens/nudge/internal/constants"
	"github.com/julianstephens/nudge/internal/models"
)

// maxSkip bounds how many past occurrences GenerateOccurrences will step over
// before giving up. Daily for 250 years.
const maxSkip = 100_000

// Threshold is the earliest instant that still counts as a future occurrence.
func Threshold(now time.Time) time.Time {
	return now.Add(constants.FireMargin)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Normalize sets the wall-clock time of t to hour:minute, keeping its date and location.
func Normalize(t time.Time, hour, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
}

// Step advances t by one cadence period. Monthly and yearly steps clamp the day
// to the last valid day of the resulting month, aiming for anchorDay when it fits.
// A non-repeating cadence returns t unchanged.
func Step(t time.Time, cadence models.Cadence, anchorDay int) time.Time {
	if anchorDay < 1 {
		anchorDay = t.Day()
	}
	h, m, s := t.Clock()
	loc := t.Location()

	switch cadence {
	case models.CadenceDaily:
		return time.Date(t.Year(), t.Month(), t.Day()+1, h, m, s, 0, loc)
	case models.CadenceWeekly:
		return time.Date(t.Year(), t.Month(), t.Day()+7, h, m, s, 0, loc)
	case models.CadenceMonthly:
		year, month := t.Year(), t.Month()+1
		if month > time.December {
			year, month = year+1, time.January
		}
		return time.Date(year, month, min(anchorDay, DaysIn(year, month)), h, m, s, 0, loc)
	case models.CadenceYearly:
		year := t.Year() + 1
		return time.Date(year, t.Month(), min(anchorDay, DaysIn(year, t.Month())), h, m, s, 0, loc)
	default:
		return t
	}
}

// GenerateOccurrences returns up to count occurrences of cadence strictly after now+1min.
//
// The walk starts at start with its wall clock set to hour:minute. If that instant is
// not in the future it is skipped. Day-of-month clamping is anchored to the start's day,
// so Jan 31 monthly yields Feb 29, Mar 31, Apr 30.
func GenerateOccurrences(start time.Time, cadence models.Cadence, count, hour, minute int, now time.Time) []time.Time {
	if count <= 0 {
		return nil
	}

	threshold := Threshold(now)
	cur := Normalize(start, hour, minute)
	anchor := cur.Day()

	if !cadence.IsRepeating() {
		if cur.After(threshold) {
			return []time.Time{cur}
		}
		return nil
	}

	out := make([]time.Time, 0, count)
	for i := 0; len(out) < count && i < maxSkip+count; i++ {
		if cur.After(threshold) {
			out = append(out, cur)
		}
		cur = Step(cur, cadence, anchor)
	}
	return out
}

// NextAfter returns the first occurrence of the series anchored at start that is
// strictly after after. For a non-repeating cadence it returns start if it qualifies.
func NextAfter(start time.Time, cadence models.Cadence, after time.Time) (time.Time, bool) {
	if !cadence.IsRepeating() {
		return start, start.After(after)
	}
	anchor := start.Day()
	cur := start
	for i := 0; i < maxSkip; i++ {
		if cur.After(after) {
			return cur, true
		}
		cur = Step(cur, cadence, anchor)
	}
	return time.Time{}, false
}

// NextFire computes the next fire instant of a trigger after the given instant,
// interpreting recurring triggers in loc.
func NextFire(trigger models.Trigger, after time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	local := after.In(loc)

	switch t := trigger.(type) {
	case models.FixedTrigger:
		return t.At, t.At.After(after)
	case models.CalendarTrigger:
		at := t.Instant()
		return at, at.After(after)
	case models.DailyTrigger:
		start := time.Date(local.Year(), local.Month(), local.Day(), t.Hour, t.Minute, 0, 0, loc)
		return NextAfter(start, models.CadenceDaily, after)
	case models.WeeklyTrigger:
		offset := (int(t.Weekday) - int(local.Weekday()) + 7) % 7
		start := time.Date(local.Year(), local.Month(), local.Day()+offset, t.Hour, t.Minute, 0, 0, loc)
		return NextAfter(start, models.CadenceWeekly, after)
	case models.MonthlyTrigger:
		start := time.Date(local.Year(), local.Month(), min(t.Day, DaysIn(local.Year(), local.Month())), t.Hour, t.Minute, 0, 0, loc)
		return nextAnchored(start, models.CadenceMonthly, t.Day, after)
	case models.YearlyTrigger:
		start := time.Date(local.Year(), t.Month, min(t.Day, DaysIn(local.Year(), t.Month)), t.Hour, t.Minute, 0, 0, loc)
		return nextAnchored(start, models.CadenceYearly, t.Day, after)
	default:
		return time.Time{}, false
	}
}

func nextAnchored(start time.Time, cadence models.Cadence, anchor int, after time.Time) (time.Time, bool) {
	cur := start
	for i := 0; i < 64; i++ {
		if cur.After(after) {
			return cur, true
		}
		cur = Step(cur, cadence, anchor)
	}
	return time.Time{}, false
}
