package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/reconcile"
)

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Weekday
		wantErr bool
	}{
		{"mon", time.Monday, false},
		{"Friday", time.Friday, false},
		{" sun ", time.Sunday, false},
		{"6", time.Saturday, false},
		{"7", 0, true},
		{"someday", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseWeekday(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseWeekday(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseWeekday(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("07:45")
	if err != nil || h != 7 || m != 45 {
		t.Errorf("ParseClock(07:45) = %d, %d, %v", h, m, err)
	}
	for _, bad := range []string{"7", "24:00", "12:60", "ab:cd", ""} {
		if _, _, err := ParseClock(bad); err == nil {
			t.Errorf("ParseClock(%q) should fail", bad)
		}
	}
}

func TestParseWhen(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	now := time.Date(2024, 3, 1, 22, 30, 0, 0, time.UTC) // 00:30 on Mar 2 in loc

	got, err := ParseWhen("", "09:15", now, loc)
	if err != nil {
		t.Fatalf("ParseWhen failed: %v", err)
	}
	if want := time.Date(2024, 3, 2, 9, 15, 0, 0, loc); !got.Equal(want) {
		t.Errorf("ParseWhen today = %v, want %v", got, want)
	}

	got, err = ParseWhen("2024-12-24", "18:00", now, loc)
	if err != nil {
		t.Fatalf("ParseWhen failed: %v", err)
	}
	if want := time.Date(2024, 12, 24, 18, 0, 0, 0, loc); !got.Equal(want) {
		t.Errorf("ParseWhen dated = %v, want %v", got, want)
	}

	if _, err := ParseWhen("24-12-2024", "18:00", now, loc); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("Local")
	if err != nil || loc != time.Local {
		t.Errorf("LoadLocation(Local) = %v, %v", loc, err)
	}
	loc, err = LoadLocation("UTC")
	if err != nil || loc.String() != "UTC" {
		t.Errorf("LoadLocation(UTC) = %v, %v", loc, err)
	}
	if _, err := LoadLocation("Mars/Olympus_Mons"); err == nil {
		t.Error("expected error for unknown zone")
	}
}

func TestFormatCadence(t *testing.T) {
	tests := []struct {
		r    models.ScheduledReminder
		want string
	}{
		{models.ScheduledReminder{Cadence: models.CadenceNone, Trigger: models.FixedTrigger{}}, "once"},
		{models.ScheduledReminder{Cadence: models.CadenceDaily, Trigger: models.DailyTrigger{Hour: 9}}, "daily"},
		{models.ScheduledReminder{Cadence: models.CadenceWeekly, Trigger: models.WeeklyTrigger{Weekday: time.Tuesday}}, "weekly on Tue"},
		{models.ScheduledReminder{Cadence: models.CadenceMonthly, Trigger: models.MonthlyTrigger{Day: 31}}, "monthly on day 31"},
		{models.ScheduledReminder{Cadence: models.CadenceYearly, Trigger: models.YearlyTrigger{Month: time.February, Day: 29}}, "yearly on Feb 29"},
		{models.ScheduledReminder{Cadence: models.CadenceDaily, Trigger: models.WindowTrigger{Cadence: models.CadenceDaily, Count: 14}}, "daily"},
	}
	for _, tt := range tests {
		if got := FormatCadence(tt.r); got != tt.want {
			t.Errorf("FormatCadence(%#v) = %q, want %q", tt.r.Trigger, got, tt.want)
		}
	}
}

func TestRenderSummary(t *testing.T) {
	out := RenderSummary(reconcile.Summary{Mode: reconcile.ModeFull, CancelledPlatformOrphans: 2, RescheduledItems: 1})
	for _, want := range []string{"Reconciliation (full)", "Orphans cancelled", "2", "Rescheduled"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "already in sync") {
		t.Error("a changed summary must not claim to be in sync")
	}

	quiet := RenderSummary(reconcile.Summary{Mode: reconcile.ModeLight})
	if !strings.Contains(quiet, "already in sync") {
		t.Errorf("empty summary should say so:\n%s", quiet)
	}
}

func TestRenderReminders(t *testing.T) {
	if out := RenderReminders(nil, time.UTC); !strings.Contains(out, "No reminders") {
		t.Errorf("empty list rendered as %q", out)
	}

	id := models.NewReminderID()
	out := RenderReminders([]models.ScheduledReminder{{
		ID:              id,
		Content:         models.Content{Title: "Stretch"},
		ScheduleInstant: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Cadence:         models.CadenceDaily,
		Trigger:         models.DailyTrigger{Hour: 9},
		DeliveryMethod:  models.DeliveryNativeRecurring,
		HasAlarm:        true,
	}}, time.UTC)
	for _, want := range []string{"1 reminder(s)", "2024-03-01 09:00", "Stretch", "daily", "native_recurring", id.String()} {
		if !strings.Contains(out, want) {
			t.Errorf("list missing %q:\n%s", want, out)
		}
	}
}

func TestRenderArchived(t *testing.T) {
	handled := time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)
	out := RenderArchived([]models.ArchivedReminder{
		{ScheduledReminder: models.ScheduledReminder{ID: models.NewReminderID(), Content: models.Content{Title: "Call mom"}}, HandledAt: &handled},
		{ScheduledReminder: models.ScheduledReminder{ID: models.NewReminderID(), Content: models.Content{Title: "Old"}}},
	}, time.UTC)
	for _, want := range []string{"2 archived", "handled 2024-03-01 09:05", "Call mom", "expired"} {
		if !strings.Contains(out, want) {
			t.Errorf("archive missing %q:\n%s", want, out)
		}
	}
}
