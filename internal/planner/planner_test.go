package planner

import (
	"testing"
	"time"

	"github.com/julianstephens/nudge/internal/models"
)

func TestDecideDeliveryMethod(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name    string
		cadence models.Cadence
		lead    time.Duration
		want    models.DeliveryMethod
	}{
		{"none soon", models.CadenceNone, time.Hour, models.DeliveryNativeRecurring},
		{"daily soon", models.CadenceDaily, 23 * time.Hour, models.DeliveryRollingWindow},
		{"daily far", models.CadenceDaily, 24 * time.Hour, models.DeliveryNativeRecurring},
		{"weekly soon", models.CadenceWeekly, 6 * 24 * time.Hour, models.DeliveryRollingWindow},
		{"weekly far", models.CadenceWeekly, 8 * 24 * time.Hour, models.DeliveryNativeRecurring},
		{"monthly soon", models.CadenceMonthly, time.Minute, models.DeliveryNativeRecurring},
		{"yearly soon", models.CadenceYearly, time.Minute, models.DeliveryNativeRecurring},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.DecideDeliveryMethod(tt.cadence, tt.lead); got != tt.want {
				t.Errorf("DecideDeliveryMethod(%s, %v) = %s, want %s", tt.cadence, tt.lead, got, tt.want)
			}
		})
	}
}

func TestPolicyFromSettings(t *testing.T) {
	p := PolicyFromSettings(models.Settings{WindowDaily: 7, DailyLeadHours: 12})

	if got := p.TargetWindow(models.CadenceDaily); got != 7 {
		t.Errorf("daily window = %d, want 7", got)
	}
	if got := p.TargetWindow(models.CadenceWeekly); got != 4 {
		t.Errorf("weekly window = %d, want default 4", got)
	}
	if p.DailyLeadThreshold != 12*time.Hour {
		t.Errorf("daily threshold = %v, want 12h", p.DailyLeadThreshold)
	}
	if p.WeeklyLeadThreshold != 7*24*time.Hour {
		t.Errorf("weekly threshold = %v, want default", p.WeeklyLeadThreshold)
	}
}

func TestPlan(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

	t.Run("daily within a day uses rolling window", func(t *testing.T) {
		r := models.ScheduledReminder{Cadence: models.CadenceDaily, ScheduleInstant: now.Add(3 * time.Hour)}
		d := p.Plan(r, now, time.UTC)
		if d.Method != models.DeliveryRollingWindow {
			t.Fatalf("method = %s, want rolling window", d.Method)
		}
		w, ok := d.Trigger.(models.WindowTrigger)
		if !ok || w.Count != 14 || w.Cadence != models.CadenceDaily {
			t.Errorf("trigger = %#v, want daily window of 14", d.Trigger)
		}
	})

	t.Run("monthly uses fixed trigger at first occurrence", func(t *testing.T) {
		r := models.ScheduledReminder{Cadence: models.CadenceMonthly, ScheduleInstant: now.Add(-24 * time.Hour)}
		d := p.Plan(r, now, time.UTC)
		fixed, ok := d.Trigger.(models.FixedTrigger)
		if !ok {
			t.Fatalf("trigger = %#v, want fixed", d.Trigger)
		}
		want := time.Date(2024, time.March, 29, 10, 0, 0, 0, time.UTC)
		if !fixed.At.Equal(want) {
			t.Errorf("fixed at = %v, want %v", fixed.At, want)
		}
	})

	t.Run("calendar reminder ignores lead time", func(t *testing.T) {
		r := models.ScheduledReminder{
			Cadence:         models.CadenceDaily,
			ScheduleInstant: now.Add(time.Hour),
			Calendar:        &models.CalendarSource{CalendarID: "c1", EventID: "e1"},
		}
		d := p.Plan(r, now, time.UTC)
		cal, ok := d.Trigger.(models.CalendarTrigger)
		if !ok {
			t.Fatalf("trigger = %#v, want calendar", d.Trigger)
		}
		if cal.Hour != 11 || cal.Day != 1 || cal.Zone != "UTC" {
			t.Errorf("calendar trigger = %#v", cal)
		}
		if d.Method != models.DeliveryNativeRecurring {
			t.Errorf("method = %s, want native", d.Method)
		}
	})

	t.Run("passed one-shot keeps original instant", func(t *testing.T) {
		r := models.ScheduledReminder{Cadence: models.CadenceNone, ScheduleInstant: now.Add(-time.Hour)}
		d := p.Plan(r, now, time.UTC)
		if !d.FirstOccurrence.IsZero() {
			t.Errorf("expected no pending occurrence, got %v", d.FirstOccurrence)
		}
	})
}

func TestNativeTrigger(t *testing.T) {
	at := time.Date(2024, time.January, 31, 9, 15, 0, 0, time.UTC) // Wednesday

	tests := []struct {
		cadence models.Cadence
		want    models.Trigger
	}{
		{models.CadenceDaily, models.DailyTrigger{Hour: 9, Minute: 15}},
		{models.CadenceWeekly, models.WeeklyTrigger{Weekday: time.Wednesday, Hour: 9, Minute: 15}},
		{models.CadenceMonthly, models.MonthlyTrigger{Day: 31, Hour: 9, Minute: 15}},
		{models.CadenceYearly, models.YearlyTrigger{Month: time.January, Day: 31, Hour: 9, Minute: 15}},
	}
	for _, tt := range tests {
		r := models.ScheduledReminder{Cadence: tt.cadence, ScheduleInstant: at}
		if got := NativeTrigger(r, time.UTC); got != tt.want {
			t.Errorf("NativeTrigger(%s) = %#v, want %#v", tt.cadence, got, tt.want)
		}
	}
}

func TestNeedsMigration(t *testing.T) {
	now := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	rolling := models.ScheduledReminder{DeliveryMethod: models.DeliveryRollingWindow, ScheduleInstant: now.Add(-time.Minute)}
	if !NeedsMigration(rolling, now) {
		t.Error("fired rolling reminder should need migration")
	}
	rolling.ScheduleInstant = now.Add(time.Hour)
	if NeedsMigration(rolling, now) {
		t.Error("pending rolling reminder should not need migration")
	}
	native := models.ScheduledReminder{DeliveryMethod: models.DeliveryNativeRecurring, ScheduleInstant: now.Add(-time.Hour)}
	if NeedsMigration(native, now) {
		t.Error("native reminder should never need migration")
	}
}
