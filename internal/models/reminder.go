package models

import (
	"fmt"
	"strings"
	"time"
)

// Content is what a notification shows. It is also snapshotted into occurrences.
type Content struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Note  string `json:"note,omitempty"`
	Link  string `json:"link,omitempty"`
}

// CalendarSource records where a calendar-imported reminder came from, so that
// later edits to the source event can be detected.
type CalendarSource struct {
	CalendarID string    `json:"calendar_id"`
	EventID    string    `json:"event_id"`
	Title      string    `json:"title"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Location   string    `json:"location,omitempty"`
	Recurrence string    `json:"recurrence,omitempty"` // RFC 5545 RRULE
}

// ScheduledReminder is an active reminder that has not yet been delivered and closed.
type ScheduledReminder struct {
	ID                   ReminderID      `json:"id"`
	Content                              // title, body, note, link
	ScheduleInstant      time.Time       `json:"schedule_instant"`       // UTC
	ScheduleInstantLocal string          `json:"schedule_instant_local"` // display only
	Cadence              Cadence         `json:"cadence"`
	Trigger              Trigger         `json:"-"`
	DeliveryMethod       DeliveryMethod  `json:"delivery_method"`
	HasAlarm             bool            `json:"has_alarm"`
	Calendar             *CalendarSource `json:"calendar,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (r *ScheduledReminder) Validate() error {
	if r.ID.IsZero() {
		return fmt.Errorf("reminder id cannot be empty")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("reminder title cannot be empty")
	}
	if _, err := ParseCadence(string(r.Cadence)); err != nil {
		return err
	}
	if r.ScheduleInstant.IsZero() {
		return fmt.Errorf("reminder schedule instant cannot be empty")
	}
	if r.Trigger == nil {
		return fmt.Errorf("reminder trigger cannot be empty")
	}
	if _, err := ParseDeliveryMethod(string(r.DeliveryMethod)); err != nil {
		return err
	}
	return nil
}

// IsCalendarDerived reports whether the reminder was imported from a calendar event.
func (r *ScheduledReminder) IsCalendarDerived() bool {
	return r.Calendar != nil
}

// ArchivedReminder is the terminal record of a reminder. Append-only except HandledAt.
type ArchivedReminder struct {
	ScheduledReminder
	HandledAt   *time.Time `json:"handled_at,omitempty"`   // user opened it
	CancelledAt *time.Time `json:"cancelled_at,omitempty"` // system voided it
	ArchivedAt  time.Time  `json:"archived_at"`
}

// InstanceKind distinguishes the two rolling-window row types.
type InstanceKind string

const (
	// InstanceRepeatNotification is a one-shot notification standing in for a repeat.
	InstanceRepeatNotification InstanceKind = "repeat_notification"
	// InstanceDailyAlarm is a one-shot alarm standing in for a repeat.
	InstanceDailyAlarm InstanceKind = "daily_alarm"
)

// Role returns the backend the instance is registered on.
func (k InstanceKind) Role() NativeRole {
	if k == InstanceDailyAlarm {
		return RoleAlarm
	}
	return RoleNotification
}

// TrackedInstance is one concrete one-shot native trigger belonging to a rolling window.
// Rows are deactivated, never deleted.
type TrackedInstance struct {
	ID          int64        `json:"id"`
	ParentID    ReminderID   `json:"parent_id"`
	Kind        InstanceKind `json:"kind"`
	NativeID    string       `json:"native_id"`
	FireInstant time.Time    `json:"fire_instant"`
	Active      bool         `json:"active"`
	CancelledAt *time.Time   `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// OccurrenceSource says how a delivered firing was observed.
type OccurrenceSource string

const (
	SourceTap        OccurrenceSource = "tap"
	SourceForeground OccurrenceSource = "foreground"
	SourceCatchUp    OccurrenceSource = "catchup"
)

// RepeatOccurrence is an append-only audit record of one firing of a repeating reminder.
// Unique per (ParentID, FireInstant).
type RepeatOccurrence struct {
	ID          int64            `json:"id"`
	ParentID    ReminderID       `json:"parent_id"`
	FireInstant time.Time        `json:"fire_instant"`
	Source      OccurrenceSource `json:"source"`
	Snapshot    Content          `json:"snapshot"`
	RecordedAt  time.Time        `json:"recorded_at"`
}

// Semaphore guards migration re-entrancy.
type Semaphore struct {
	ActiveMigration bool       `json:"active_migration"`
	LastMigrationAt *time.Time `json:"last_migration_at,omitempty"`
}

// IsStale reports whether a held semaphore is old enough to be overridden.
func (s Semaphore) IsStale(now time.Time, staleAfter time.Duration) bool {
	if !s.ActiveMigration {
		return false
	}
	if s.LastMigrationAt == nil {
		return true
	}
	return now.Sub(*s.LastMigrationAt) > staleAfter
}
