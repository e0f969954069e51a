package models

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/julianstephens/nudge/internal/errors"
)

// TriggerKind tags a persisted trigger descriptor.
type TriggerKind string

const (
	TriggerFixed    TriggerKind = "fixed"
	TriggerDaily    TriggerKind = "daily"
	TriggerWeekly   TriggerKind = "weekly"
	TriggerMonthly  TriggerKind = "monthly"
	TriggerYearly   TriggerKind = "yearly"
	TriggerWindow   TriggerKind = "window"
	TriggerCalendar TriggerKind = "calendar"
)

// Trigger is the descriptor replayed to a native backend. The set of
// implementations is closed; dispatch with a type switch.
type Trigger interface {
	Kind() TriggerKind
	isTrigger()
}

// FixedTrigger fires once at an absolute instant.
type FixedTrigger struct {
	At time.Time `json:"at"`
}

// DailyTrigger fires every day at Hour:Minute.
type DailyTrigger struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// WeeklyTrigger fires every week on Weekday at Hour:Minute.
type WeeklyTrigger struct {
	Weekday time.Weekday `json:"weekday"`
	Hour    int          `json:"hour"`
	Minute  int          `json:"minute"`
}

// MonthlyTrigger fires every month on Day at Hour:Minute.
type MonthlyTrigger struct {
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// YearlyTrigger fires every year on Month/Day at Hour:Minute.
type YearlyTrigger struct {
	Month  time.Month `json:"month"`
	Day    int        `json:"day"`
	Hour   int        `json:"hour"`
	Minute int        `json:"minute"`
}

// WindowTrigger marks a reminder served by a rolling window of one-shot registrations.
type WindowTrigger struct {
	Cadence Cadence `json:"cadence"`
	Count   int     `json:"count"`
}

// CalendarTrigger is a civil wall-clock moment in a named zone. It stays pinned to
// that wall-clock time regardless of the device's current offset.
type CalendarTrigger struct {
	Year   int        `json:"year"`
	Month  time.Month `json:"month"`
	Day    int        `json:"day"`
	Hour   int        `json:"hour"`
	Minute int        `json:"minute"`
	Zone   string     `json:"zone"`
}

func (FixedTrigger) Kind() TriggerKind    { return TriggerFixed }
func (DailyTrigger) Kind() TriggerKind    { return TriggerDaily }
func (WeeklyTrigger) Kind() TriggerKind   { return TriggerWeekly }
func (MonthlyTrigger) Kind() TriggerKind  { return TriggerMonthly }
func (YearlyTrigger) Kind() TriggerKind   { return TriggerYearly }
func (WindowTrigger) Kind() TriggerKind   { return TriggerWindow }
func (CalendarTrigger) Kind() TriggerKind { return TriggerCalendar }

func (FixedTrigger) isTrigger()    {}
func (DailyTrigger) isTrigger()    {}
func (WeeklyTrigger) isTrigger()   {}
func (MonthlyTrigger) isTrigger()  {}
func (YearlyTrigger) isTrigger()   {}
func (WindowTrigger) isTrigger()   {}
func (CalendarTrigger) isTrigger() {}

// Instant resolves the civil time in its zone. Unknown zones fall back to UTC.
func (c CalendarTrigger) Instant() time.Time {
	loc, err := time.LoadLocation(c.Zone)
	if err != nil || c.Zone == "" {
		loc = time.UTC
	}
	return time.Date(c.Year, c.Month, c.Day, c.Hour, c.Minute, 0, 0, loc)
}

// IsRecurring reports whether the platform re-fires t on its own.
func IsRecurring(t Trigger) bool {
	switch t.(type) {
	case DailyTrigger, WeeklyTrigger, MonthlyTrigger, YearlyTrigger:
		return true
	default:
		return false
	}
}

// CronSpec renders a recurring trigger as a five-field cron expression.
func CronSpec(t Trigger) (string, bool) {
	switch v := t.(type) {
	case DailyTrigger:
		return fmt.Sprintf("%d %d * * *", v.Minute, v.Hour), true
	case WeeklyTrigger:
		return fmt.Sprintf("%d %d * * %d", v.Minute, v.Hour, int(v.Weekday)), true
	case MonthlyTrigger:
		return fmt.Sprintf("%d %d %d * *", v.Minute, v.Hour, v.Day), true
	case YearlyTrigger:
		return fmt.Sprintf("%d %d %d %d *", v.Minute, v.Hour, v.Day, int(v.Month)), true
	default:
		return "", false
	}
}

type triggerEnvelope struct {
	Kind TriggerKind     `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodeTrigger serializes t with its kind tag.
func EncodeTrigger(t Trigger) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("trigger cannot be nil")
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger: %w", err)
	}
	return json.Marshal(triggerEnvelope{Kind: t.Kind(), Data: data})
}

// DecodeTrigger parses a persisted descriptor. Any malformed input wraps ErrDataCorruption.
func DecodeTrigger(b []byte) (Trigger, error) {
	var env triggerEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: trigger descriptor: %v", apperrors.ErrDataCorruption, err)
	}

	var (
		t   Trigger
		err error
	)
	switch env.Kind {
	case TriggerFixed:
		var v FixedTrigger
		err = json.Unmarshal(env.Data, &v)
		t = v
	case TriggerDaily:
		var v DailyTrigger
		err = json.Unmarshal(env.Data, &v)
		t = v
	case TriggerWeekly:
		var v WeeklyTrigger
		err = json.Unmarshal(env.Data, &v)
		t = v
	case TriggerMonthly:
		var v MonthlyTrigger
		err = json.Unmarshal(env.Data, &v)
		t = v
	case TriggerYearly:
		var v YearlyTrigger
		err = json.Unmarshal(env.Data, &v)
		t = v
	case TriggerWindow:
		var v WindowTrigger
		err = json.Unmarshal(env.Data, &v)
		t = v
	case TriggerCalendar:
		var v CalendarTrigger
		err = json.Unmarshal(env.Data, &v)
		t = v
	default:
		return nil, fmt.Errorf("%w: unknown trigger kind %q", apperrors.ErrDataCorruption, env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s trigger: %v", apperrors.ErrDataCorruption, env.Kind, err)
	}
	return t, nil
}
