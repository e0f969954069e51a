package system

import (
	"context"
	"strings"
	"testing"
	"time"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/julianstephens/nudge/internal/backup"
	"github.com/julianstephens/nudge/internal/cli"
	"github.com/julianstephens/nudge/internal/cli/clitest"
	"github.com/julianstephens/nudge/internal/models"
)

func TestDoctorCmd_HealthyDB(t *testing.T) {
	gokeyring.MockInit()
	env := clitest.New(t)

	if err := (&DoctorCmd{}).Run(env.Context); err != nil {
		t.Fatalf("doctor failed on healthy database: %v\n%s", err, env.Output.String())
	}
	out := env.Output.String()
	for _, want := range []string{"✓ Database reachable: OK", "✓ Schema version: OK", "✓ Reminder integrity: OK", "All diagnostics passed!"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// Missing backups is a warning, not a failure.
	if !strings.Contains(out, "⚠ Backups present: WARNING") {
		t.Errorf("expected backup warning:\n%s", out)
	}
}

func TestDoctorCmd_WithBackup(t *testing.T) {
	gokeyring.MockInit()
	env := clitest.New(t)
	if _, err := backup.NewManager(env.DBPath).CreateBackup(context.Background()); err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	if err := (&DoctorCmd{}).Run(env.Context); err != nil {
		t.Fatalf("doctor failed: %v", err)
	}
	if !strings.Contains(env.Output.String(), "✓ Backups present: OK") {
		t.Errorf("backup not detected:\n%s", env.Output.String())
	}
}

func TestDoctorCmd_OrphanedInstance(t *testing.T) {
	gokeyring.MockInit()
	env := clitest.New(t)

	ghost := models.NewReminderID()
	fire := clitest.Now.Add(24 * time.Hour)
	_, _, err := env.Store.AddInstance(context.Background(), models.TrackedInstance{
		ParentID:    ghost,
		Kind:        models.InstanceRepeatNotification,
		NativeID:    ghost.InstanceID(models.RoleNotification, fire).String(),
		FireInstant: fire,
		Active:      true,
		CreatedAt:   clitest.Now,
	})
	if err != nil {
		t.Fatalf("AddInstance failed: %v", err)
	}

	if err := (&DoctorCmd{}).Run(env.Context); err == nil {
		t.Fatal("expected doctor to fail on an orphaned instance")
	}
	if !strings.Contains(env.Output.String(), "❌ Reminder integrity: FAIL") {
		t.Errorf("unexpected output:\n%s", env.Output.String())
	}
}

func TestDoctorCmd_RedisUnreachable(t *testing.T) {
	gokeyring.MockInit()
	env := clitest.New(t)
	env.Backend = cli.BackendAsynq
	env.Redis.Addr = "127.0.0.1:1"

	if err := (&DoctorCmd{}).Run(env.Context); err == nil {
		t.Fatal("expected doctor to fail without Redis")
	}
	if !strings.Contains(env.Output.String(), "❌ Notification queue: FAIL") {
		t.Errorf("unexpected output:\n%s", env.Output.String())
	}
}
