// Package calendar imports reminders from external calendar events and
// detects when a source event has drifted from its imported snapshot.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/julianstephens/nudge/internal/constants"
	apperrors "github.com/julianstephens/nudge/internal/errors"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/models"
)

// Event is a calendar event as the provider reports it.
type Event struct {
	CalendarID string    `json:"calendar_id"`
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Location   string    `json:"location,omitempty"`
	Recurrence string    `json:"recurrence,omitempty"`
}

// Provider reads events from an external calendar. Event returns an error
// wrapping errors.ErrNotFound when the event no longer exists.
type Provider interface {
	Event(ctx context.Context, calendarID, eventID string) (Event, error)
	Events(ctx context.Context, calendarID string) ([]Event, error)
}

// Change is an imported reminder whose source event was edited.
type Change struct {
	Reminder models.ScheduledReminder
	Event    Event
	Fields   []string
}

// Drift is the result of comparing imported reminders with their sources.
type Drift struct {
	Changed []Change
	Removed []models.ScheduledReminder
	// TimedOut is set when the provider did not answer in time; the result is empty.
	TimedOut bool
}

// Empty reports whether nothing drifted.
func (d Drift) Empty() bool {
	return len(d.Changed) == 0 && len(d.Removed) == 0
}

// CheckDrift compares every calendar-derived reminder with its source event.
// A provider that does not answer within timeout yields an empty result, so a
// slow calendar never holds up the caller.
func CheckDrift(ctx context.Context, p Provider, reminders []models.ScheduledReminder, timeout time.Duration) (Drift, error) {
	if timeout <= 0 {
		timeout = constants.CalendarCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		drift Drift
		err   error
	}
	done := make(chan result, 1)
	go func() {
		d, err := compare(ctx, p, reminders)
		done <- result{d, err}
	}()

	select {
	case r := <-done:
		return r.drift, r.err
	case <-ctx.Done():
		logger.Warn("Calendar drift check timed out", "timeout", timeout)
		return Drift{TimedOut: true}, nil
	}
}

func compare(ctx context.Context, p Provider, reminders []models.ScheduledReminder) (Drift, error) {
	var d Drift
	for _, r := range reminders {
		if !r.IsCalendarDerived() {
			continue
		}
		src := r.Calendar
		ev, err := p.Event(ctx, src.CalendarID, src.EventID)
		if apperrors.IsNotFound(err) {
			d.Removed = append(d.Removed, r)
			continue
		}
		if err != nil {
			return Drift{}, fmt.Errorf("failed to read event %s: %w", src.EventID, err)
		}
		if fields := diff(*src, ev); len(fields) > 0 {
			d.Changed = append(d.Changed, Change{Reminder: r, Event: ev, Fields: fields})
		}
	}
	return d, nil
}

func diff(src models.CalendarSource, ev Event) []string {
	var fields []string
	if src.Title != ev.Title {
		fields = append(fields, "title")
	}
	if !src.Start.Equal(ev.Start) {
		fields = append(fields, "start")
	}
	if !src.End.Equal(ev.End) {
		fields = append(fields, "end")
	}
	if src.Location != ev.Location {
		fields = append(fields, "location")
	}
	if normalizeRule(src.Recurrence) != normalizeRule(ev.Recurrence) {
		fields = append(fields, "recurrence")
	}
	return fields
}

func normalizeRule(rule string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:"))
}

// CadenceFromRRule maps an RFC 5545 rule onto a reminder cadence. Rules the
// reminder model cannot express (intervals, several weekdays, sub-daily
// frequencies) are rejected.
func CadenceFromRRule(rule string) (models.Cadence, error) {
	rule = normalizeRule(rule)
	if rule == "" {
		return models.CadenceNone, nil
	}
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return "", fmt.Errorf("failed to parse RRULE: %w", err)
	}
	if opt.Interval > 1 {
		return "", fmt.Errorf("unsupported RRULE interval %d", opt.Interval)
	}

	switch opt.Freq {
	case rrule.DAILY:
		return models.CadenceDaily, nil
	case rrule.WEEKLY:
		if len(opt.Byweekday) > 1 {
			return "", fmt.Errorf("unsupported RRULE: more than one weekday")
		}
		return models.CadenceWeekly, nil
	case rrule.MONTHLY:
		return models.CadenceMonthly, nil
	case rrule.YEARLY:
		return models.CadenceYearly, nil
	default:
		return "", fmt.Errorf("unsupported RRULE frequency %v", opt.Freq)
	}
}

// ImportEvent builds a reminder lead before ev starts. The reminder keeps a
// snapshot of the event so later edits can be detected.
func ImportEvent(ev Event, lead time.Duration) (models.ScheduledReminder, error) {
	cadence, err := CadenceFromRRule(ev.Recurrence)
	if err != nil {
		return models.ScheduledReminder{}, err
	}
	title := strings.TrimSpace(ev.Title)
	if title == "" {
		title = "Calendar event"
	}

	r := models.ScheduledReminder{
		Content:         models.Content{Title: title, Body: ev.Location},
		ScheduleInstant: ev.Start.Add(-lead),
		Cadence:         cadence,
		Calendar: &models.CalendarSource{
			CalendarID: ev.CalendarID,
			EventID:    ev.ID,
			Title:      ev.Title,
			Start:      ev.Start,
			End:        ev.End,
			Location:   ev.Location,
			Recurrence: ev.Recurrence,
		},
	}
	return r, nil
}

// Reimport refreshes r from its edited source event, keeping id and alarm choice.
func Reimport(r models.ScheduledReminder, ev Event) (models.ScheduledReminder, error) {
	lead := r.Calendar.Start.Sub(r.ScheduleInstant)
	fresh, err := ImportEvent(ev, lead)
	if err != nil {
		return r, err
	}
	fresh.ID = r.ID
	fresh.HasAlarm = r.HasAlarm
	fresh.Note = r.Note
	fresh.Link = r.Link
	fresh.CreatedAt = r.CreatedAt
	return fresh, nil
}

// StaticProvider serves events from memory. It backs the file provider and tests.
type StaticProvider struct {
	mu     sync.RWMutex
	events map[string]Event
	// Delay simulates a slow provider.
	Delay time.Duration
}

func NewStaticProvider(events ...Event) *StaticProvider {
	p := &StaticProvider{events: make(map[string]Event)}
	for _, ev := range events {
		p.Put(ev)
	}
	return p
}

func key(calendarID, eventID string) string {
	return calendarID + "\x00" + eventID
}

func (p *StaticProvider) Put(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[key(ev.CalendarID, ev.ID)] = ev
}

func (p *StaticProvider) Delete(calendarID, eventID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.events, key(calendarID, eventID))
}

func (p *StaticProvider) wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(p.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *StaticProvider) Event(ctx context.Context, calendarID, eventID string) (Event, error) {
	if err := p.wait(ctx); err != nil {
		return Event{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	ev, ok := p.events[key(calendarID, eventID)]
	if !ok {
		return Event{}, fmt.Errorf("event %s: %w", eventID, apperrors.ErrNotFound)
	}
	return ev, nil
}

func (p *StaticProvider) Events(ctx context.Context, calendarID string) ([]Event, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Event
	for _, ev := range p.events {
		if ev.CalendarID == calendarID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// LoadFile reads a JSON array of events exported from a calendar.
func LoadFile(path string) (*StaticProvider, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar file: %w", err)
	}
	var events []Event
	if err := json.Unmarshal(b, &events); err != nil {
		return nil, fmt.Errorf("failed to parse calendar file: %w", err)
	}
	return NewStaticProvider(events...), nil
}

// FileProvider re-reads an exported calendar file on every call, so edits to
// the export are seen by a long-running process.
type FileProvider struct {
	Path string
}

func (p FileProvider) Event(ctx context.Context, calendarID, eventID string) (Event, error) {
	sp, err := LoadFile(p.Path)
	if err != nil {
		return Event{}, err
	}
	return sp.Event(ctx, calendarID, eventID)
}

func (p FileProvider) Events(ctx context.Context, calendarID string) ([]Event, error) {
	sp, err := LoadFile(p.Path)
	if err != nil {
		return nil, err
	}
	return sp.Events(ctx, calendarID)
}
