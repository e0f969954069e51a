package backups

import (
	"context"
	"strings"
	"testing"

	"github.com/julianstephens/nudge/internal/cli/clitest"
	"github.com/julianstephens/nudge/internal/cli/reminders"
	"github.com/julianstephens/nudge/internal/config"
	"github.com/julianstephens/nudge/internal/storage/sqlite"
)

func addReminder(t *testing.T, env *clitest.Env, title string) {
	t.Helper()
	cmd := reminders.AddCmd{Title: title, At: "15:00", Repeat: "none"}
	if err := cmd.Run(env.Context); err != nil {
		t.Fatalf("add %q failed: %v", title, err)
	}
}

func TestBackupCreateAndList(t *testing.T) {
	env := clitest.New(t)

	if err := (&BackupCreateCmd{}).Run(env.Context); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !strings.Contains(env.Output.String(), "nudge-20240301-0800.db") {
		t.Errorf("unexpected output: %s", env.Output.String())
	}

	env.Output.Reset()
	if err := (&BackupListCmd{}).Run(env.Context); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	out := env.Output.String()
	if !strings.Contains(out, "1 total") || !strings.Contains(out, "nudge-20240301-0800.db") {
		t.Errorf("unexpected list output:\n%s", out)
	}
}

func TestBackupListEmpty(t *testing.T) {
	env := clitest.New(t)
	if err := (&BackupListCmd{}).Run(env.Context); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(env.Output.String(), "No backups found.") {
		t.Errorf("unexpected output: %s", env.Output.String())
	}
}

func TestBackupRestore(t *testing.T) {
	env := clitest.New(t)
	addReminder(t, env, "Water plants")
	if err := (&BackupCreateCmd{}).Run(env.Context); err != nil {
		t.Fatal(err)
	}
	addReminder(t, env, "Pay rent")

	cmd := &BackupRestoreCmd{BackupFile: "nudge-20240301-0800.db", Yes: true}
	if err := cmd.Run(env.Context); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if !strings.Contains(env.Output.String(), "restored successfully") {
		t.Errorf("unexpected output: %s", env.Output.String())
	}

	restored := sqlite.NewStore(env.DBPath)
	if err := restored.Load(context.Background()); err != nil {
		t.Fatalf("failed to open restored database: %v", err)
	}
	defer restored.Close()
	rs, err := restored.ListReminders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 1 || rs[0].Title != "Water plants" {
		t.Errorf("restored reminders = %+v", rs)
	}
}

func TestBackupRestoreCancelled(t *testing.T) {
	env := clitest.New(t)
	if err := (&BackupCreateCmd{}).Run(env.Context); err != nil {
		t.Fatal(err)
	}
	env.In = strings.NewReader("n\n")

	if err := (&BackupRestoreCmd{BackupFile: "nudge-20240301-0800.db"}).Run(env.Context); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if !strings.Contains(env.Output.String(), "Restore cancelled.") {
		t.Errorf("unexpected output: %s", env.Output.String())
	}
}

func TestBackupRestoreMissingFile(t *testing.T) {
	env := clitest.New(t)
	if err := (&BackupRestoreCmd{BackupFile: "nudge-19990101-0000.db", Yes: true}).Run(env.Context); err == nil {
		t.Error("expected error for a missing backup")
	}
}

func TestBackupRejectsPostgres(t *testing.T) {
	env := clitest.New(t)
	env.Conn = config.Connection{Value: "postgres://nudge@localhost/nudge", Source: config.SourceEnv}
	if err := (&BackupCreateCmd{}).Run(env.Context); err == nil {
		t.Error("expected error for postgres storage")
	}
}
