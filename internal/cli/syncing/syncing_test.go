package syncing

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/nudge/internal/cli/clitest"
	"github.com/julianstephens/nudge/internal/cli/reminders"
	"github.com/julianstephens/nudge/internal/models"
)

func addReminder(t *testing.T, env *clitest.Env, cmd reminders.AddCmd) {
	t.Helper()
	if cmd.Repeat == "" {
		cmd.Repeat = "none"
	}
	if err := cmd.Run(env.Context); err != nil {
		t.Fatalf("add %q failed: %v", cmd.Title, err)
	}
	env.Output.Reset()
}

func TestReconcileEmptyStore(t *testing.T) {
	env := clitest.New(t)
	if err := (&ReconcileCmd{Full: true}).Run(env.Context); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	out := env.Output.String()
	if !strings.Contains(out, "Reconciliation (full)") || !strings.Contains(out, "already in sync") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestReconcileReregistersMissingNotification(t *testing.T) {
	env := clitest.New(t)
	addReminder(t, env, reminders.AddCmd{Title: "Dentist", At: "15:00"})

	// Every command gets a fresh in-memory backend, so the reminder stored
	// above is no longer registered anywhere.
	if err := (&ReconcileCmd{}).Run(env.Context); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	out := env.Output.String()
	if strings.Contains(out, "already in sync") {
		t.Errorf("expected the reminder to be re-registered:\n%s", out)
	}
}

func TestCatchUpRecordsMissedDailyFirings(t *testing.T) {
	env := clitest.New(t)
	addReminder(t, env, reminders.AddCmd{Title: "Vitamins", At: "09:00", Repeat: "daily"})
	env.Clock.Advance(3 * 24 * time.Hour)

	if err := (&CatchUpCmd{}).Run(env.Context); err != nil {
		t.Fatalf("catch-up failed: %v", err)
	}
	if !strings.Contains(env.Output.String(), "Recorded 3 missed") {
		t.Errorf("unexpected output: %s", env.Output.String())
	}

	env.Output.Reset()
	if err := (&CatchUpCmd{}).Run(env.Context); err != nil {
		t.Fatalf("second catch-up failed: %v", err)
	}
	if !strings.Contains(env.Output.String(), "Recorded 0 missed") {
		t.Errorf("catch-up must not record twice: %s", env.Output.String())
	}
}

func TestUpkeep(t *testing.T) {
	env := clitest.New(t)
	addReminder(t, env, reminders.AddCmd{Title: "Standup", At: "08:30"})
	env.Clock.Advance(time.Hour)

	if err := (&UpkeepCmd{}).Run(env.Context); err != nil {
		t.Fatalf("upkeep failed: %v", err)
	}
	out := env.Output.String()
	for _, want := range []string{"Migrated 0", "Archived 1 expired"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPermissionsAlarmRevoked(t *testing.T) {
	env := clitest.New(t)
	addReminder(t, env, reminders.AddCmd{Title: "Wake up", At: "09:00", Alarm: true})

	if err := (&PermissionsCmd{}).Run(env.Context); err != nil {
		t.Fatalf("first check failed: %v", err)
	}
	if !strings.Contains(env.Output.String(), "No permission was revoked") {
		t.Errorf("unexpected output: %s", env.Output.String())
	}

	env.Output.Reset()
	env.Permissions.Alarm = models.AlarmDenied
	if err := (&PermissionsCmd{}).Run(env.Context); err != nil {
		t.Fatalf("second check failed: %v", err)
	}
	out := env.Output.String()
	for _, want := range []string{"authorized → denied", "1 reminder(s) lost their alarm", "Alarms were turned off"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	rs := env.Reminders(t)
	if len(rs) != 1 || rs[0].HasAlarm {
		t.Errorf("reminder should survive without its alarm: %+v", rs)
	}
}

func TestPermissionsNotificationRevoked(t *testing.T) {
	env := clitest.New(t)
	addReminder(t, env, reminders.AddCmd{Title: "Dentist", At: "15:00"})
	if err := (&PermissionsCmd{}).Run(env.Context); err != nil {
		t.Fatal(err)
	}

	env.Permissions.Notification = models.NotificationDenied
	if err := (&PermissionsCmd{}).Run(env.Context); err != nil {
		t.Fatal(err)
	}
	if n := len(env.Reminders(t)); n != 0 {
		t.Errorf("expected every reminder archived, %d left", n)
	}
	archived, err := env.Store.ListArchived(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(archived) != 1 || archived[0].CancelledAt == nil {
		t.Errorf("archive = %+v", archived)
	}
}

const calendarJSON = `[
  {"calendar_id": "work", "id": "review", "title": "Design review", "start": "2024-03-02T10:00:00Z", "end": "2024-03-02T11:00:00Z"},
  {"calendar_id": "work", "id": "retro", "title": "Retro", "start": "2024-02-01T10:00:00Z", "end": "2024-02-01T11:00:00Z"},
  {"calendar_id": "home", "id": "bins", "title": "Bins out", "start": "2024-03-05T19:00:00Z", "end": "2024-03-05T19:30:00Z"}
]`

func writeCalendar(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestCalendarImportAndSync(t *testing.T) {
	env := clitest.New(t)
	file := filepath.Join(t.TempDir(), "calendar.json")
	writeCalendar(t, file, calendarJSON)

	imp := &CalendarImportCmd{File: file, Calendar: "work", Lead: 15 * time.Minute}
	if err := imp.Run(env.Context); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(env.Output.String(), "Imported 1 event(s), skipped 1") {
		t.Errorf("unexpected output: %s", env.Output.String())
	}
	rs := env.Reminders(t)
	if len(rs) != 1 {
		t.Fatalf("expected 1 imported reminder, got %d", len(rs))
	}
	if want := time.Date(2024, 3, 2, 9, 45, 0, 0, time.UTC); !rs[0].ScheduleInstant.Equal(want) {
		t.Errorf("ScheduleInstant = %v, want %v", rs[0].ScheduleInstant, want)
	}

	// Importing again skips what is already there.
	env.Output.Reset()
	if err := imp.Run(env.Context); err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if n := len(env.Reminders(t)); n != 1 {
		t.Errorf("re-import duplicated reminders: %d", n)
	}

	writeCalendar(t, file, `[
  {"calendar_id": "work", "id": "review", "title": "Design review (moved)", "start": "2024-03-02T11:00:00Z", "end": "2024-03-02T12:00:00Z"}
]`)
	env.Output.Reset()
	if err := (&CalendarSyncCmd{File: file}).Run(env.Context); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if !strings.Contains(env.Output.String(), "1 reminder(s) updated, 0 removed") {
		t.Errorf("unexpected output: %s", env.Output.String())
	}
	rs = env.Reminders(t)
	if len(rs) != 1 || rs[0].Title != "Design review (moved)" {
		t.Fatalf("reminder not refreshed: %+v", rs)
	}
	if want := time.Date(2024, 3, 2, 10, 45, 0, 0, time.UTC); !rs[0].ScheduleInstant.Equal(want) {
		t.Errorf("ScheduleInstant = %v, want %v", rs[0].ScheduleInstant, want)
	}

	writeCalendar(t, file, `[]`)
	env.Output.Reset()
	if err := (&CalendarSyncCmd{File: file}).Run(env.Context); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if n := len(env.Reminders(t)); n != 0 {
		t.Errorf("deleted event should cancel its reminder, %d left", n)
	}
}
