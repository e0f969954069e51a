// Package planner decides how a reminder is delivered: a single native
// registration or a rolling window of one-shot registrations.
package planner

import (
	"time"

	"github.com/julianstephens/nudge/internal/constants"
	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/window"
)

// Policy holds the tunable window sizes and lead-time thresholds. The defaults
// are small enough to stay under the native backends' registration caps.
type Policy struct {
	WindowSizes         map[models.Cadence]int
	DailyLeadThreshold  time.Duration
	WeeklyLeadThreshold time.Duration
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		WindowSizes: map[models.Cadence]int{
			models.CadenceDaily:   constants.DefaultWindowDaily,
			models.CadenceWeekly:  constants.DefaultWindowWeekly,
			models.CadenceMonthly: constants.DefaultWindowMonthly,
			models.CadenceYearly:  constants.DefaultWindowYearly,
		},
		DailyLeadThreshold:  constants.DefaultDailyLeadThreshold,
		WeeklyLeadThreshold: constants.DefaultWeeklyLeadThreshold,
	}
}

// PolicyFromSettings overlays any positive settings values on the defaults.
func PolicyFromSettings(s models.Settings) Policy {
	p := DefaultPolicy()
	overlay := map[models.Cadence]int{
		models.CadenceDaily:   s.WindowDaily,
		models.CadenceWeekly:  s.WindowWeekly,
		models.CadenceMonthly: s.WindowMonthly,
		models.CadenceYearly:  s.WindowYearly,
	}
	for c, n := range overlay {
		if n > 0 {
			p.WindowSizes[c] = n
		}
	}
	if s.DailyLeadHours > 0 {
		p.DailyLeadThreshold = time.Duration(s.DailyLeadHours) * time.Hour
	}
	if s.WeeklyLeadHours > 0 {
		p.WeeklyLeadThreshold = time.Duration(s.WeeklyLeadHours) * time.Hour
	}
	return p
}

// TargetWindow is the number of future one-shot registrations kept for cadence.
func (p Policy) TargetWindow(cadence models.Cadence) int {
	return p.WindowSizes[cadence]
}

// DecideDeliveryMethod picks the delivery method for a cadence given how far away
// its first occurrence is. Monthly and yearly always use a single app-managed registration.
func (p Policy) DecideDeliveryMethod(cadence models.Cadence, lead time.Duration) models.DeliveryMethod {
	switch cadence {
	case models.CadenceNone, models.CadenceDaily:
		if cadence == models.CadenceDaily && lead < p.DailyLeadThreshold {
			return models.DeliveryRollingWindow
		}
		return models.DeliveryNativeRecurring
	case models.CadenceWeekly:
		if lead < p.WeeklyLeadThreshold {
			return models.DeliveryRollingWindow
		}
		return models.DeliveryNativeRecurring
	default:
		return models.DeliveryNativeRecurring
	}
}

// Decision is the planner's output for one reminder.
type Decision struct {
	Method  models.DeliveryMethod
	Trigger models.Trigger
	// FirstOccurrence is the next pending fire instant, zero if none remains.
	FirstOccurrence time.Time
	Lead            time.Duration
}

// FirstOccurrence returns the next pending occurrence of the reminder, evaluated in loc.
func FirstOccurrence(r models.ScheduledReminder, now time.Time, loc *time.Location) (time.Time, bool) {
	start := r.ScheduleInstant.In(locOrUTC(loc))
	return window.NextAfter(start, r.Cadence, window.Threshold(now))
}

// Plan decides method and trigger for r at now. Calendar-derived reminders always
// get a civil-time trigger pinned to the event's wall clock.
func (p Policy) Plan(r models.ScheduledReminder, now time.Time, loc *time.Location) Decision {
	loc = locOrUTC(loc)
	first, ok := FirstOccurrence(r, now, loc)
	if !ok {
		// Nothing pending: keep the original instant so the reminder can be archived.
		return Decision{Method: models.DeliveryNativeRecurring, Trigger: models.FixedTrigger{At: r.ScheduleInstant.UTC()}}
	}
	lead := first.Sub(now)

	if r.IsCalendarDerived() {
		zone := loc
		if src := r.Calendar.Start.Location(); src != time.UTC && src != time.Local {
			zone = src
		}
		civil := first.In(zone)
		return Decision{
			Method: models.DeliveryNativeRecurring,
			Trigger: models.CalendarTrigger{
				Year: civil.Year(), Month: civil.Month(), Day: civil.Day(),
				Hour: civil.Hour(), Minute: civil.Minute(), Zone: zone.String(),
			},
			FirstOccurrence: first,
			Lead:            lead,
		}
	}

	method := p.DecideDeliveryMethod(r.Cadence, lead)
	d := Decision{Method: method, FirstOccurrence: first, Lead: lead}
	if method == models.DeliveryRollingWindow {
		d.Trigger = models.WindowTrigger{Cadence: r.Cadence, Count: p.TargetWindow(r.Cadence)}
	} else {
		d.Trigger = models.FixedTrigger{At: first.UTC()}
	}
	return d
}

// NativeTrigger builds the recurring trigger from the reminder's original
// hour, minute, weekday, day of month and month in loc.
func NativeTrigger(r models.ScheduledReminder, loc *time.Location) models.Trigger {
	local := r.ScheduleInstant.In(locOrUTC(loc))
	h, m := local.Hour(), local.Minute()

	switch r.Cadence {
	case models.CadenceDaily:
		return models.DailyTrigger{Hour: h, Minute: m}
	case models.CadenceWeekly:
		return models.WeeklyTrigger{Weekday: local.Weekday(), Hour: h, Minute: m}
	case models.CadenceMonthly:
		return models.MonthlyTrigger{Day: local.Day(), Hour: h, Minute: m}
	case models.CadenceYearly:
		return models.YearlyTrigger{Month: local.Month(), Day: local.Day(), Hour: h, Minute: m}
	default:
		return models.FixedTrigger{At: r.ScheduleInstant.UTC()}
	}
}

// NeedsMigration reports whether a rolling-window reminder's first occurrence has fired.
func NeedsMigration(r models.ScheduledReminder, now time.Time) bool {
	return r.DeliveryMethod == models.DeliveryRollingWindow && !r.ScheduleInstant.After(now)
}

func locOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
