package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/julianstephens/nudge/internal/clock"
)

func TestIntegrationBackupRestoreWorkflow(t *testing.T) {
	ctx := context.Background()
	dbPath := setupTestDB(t, "Water plants")
	fake := clock.NewFake(testNow)
	mgr := NewManager(dbPath).WithClock(fake)

	backupPath, err := mgr.CreateBackup(ctx)
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	addReminders(t, dbPath, "Pay rent")
	if titles := reminderTitles(t, dbPath); !titles["Pay rent"] {
		t.Fatal("second reminder was not stored")
	}

	fake.Advance(time.Minute)
	if err := mgr.RestoreBackup(ctx, backupPath); err != nil {
		t.Fatalf("RestoreBackup failed: %v", err)
	}

	titles := reminderTitles(t, dbPath)
	if !titles["Water plants"] || titles["Pay rent"] {
		t.Errorf("restored reminders = %v, want only Water plants", titles)
	}

	// restore keeps a snapshot of what it replaced
	backups, err := mgr.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups failed: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups after restore, got %d", len(backups))
	}
	if !reminderTitles(t, backups[0].Path)["Pay rent"] {
		t.Error("pre-restore backup is missing the replaced reminder")
	}
}

func TestBackupWithNoDatabase(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "missing.db"))
	if _, err := mgr.CreateBackup(context.Background()); err == nil {
		t.Error("expected error backing up a missing database")
	}
}

func TestRestoreWithMissingBackup(t *testing.T) {
	dbPath := setupTestDB(t, "Water plants")
	mgr := NewManager(dbPath)
	if err := mgr.RestoreBackup(context.Background(), filepath.Join(t.TempDir(), "nope.db")); err == nil {
		t.Error("expected error restoring a missing backup")
	}
}

func TestRestoreWithCorruptedBackup(t *testing.T) {
	dbPath := setupTestDB(t, "Water plants")
	mgr := NewManager(dbPath)

	corrupt := filepath.Join(t.TempDir(), "corrupt.db")
	if err := os.WriteFile(corrupt, []byte("definitely not sqlite, just some padding bytes"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := mgr.RestoreBackup(context.Background(), corrupt); err == nil {
		t.Fatal("expected error restoring a corrupt backup")
	}
	if !reminderTitles(t, dbPath)["Water plants"] {
		t.Error("failed restore damaged the live database")
	}
}

func TestBackupDirectoryCreation(t *testing.T) {
	dbPath := setupTestDB(t, "Water plants")
	mgr := NewManager(dbPath)

	if _, err := os.Stat(mgr.GetBackupDir()); !os.IsNotExist(err) {
		t.Fatalf("backup directory should not exist yet")
	}
	if _, err := mgr.CreateBackup(context.Background()); err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	info, err := os.Stat(mgr.GetBackupDir())
	if err != nil {
		t.Fatalf("backup directory not created: %v", err)
	}
	if info.Mode().Perm() != 0700 {
		t.Errorf("backup directory mode = %v, want 0700", info.Mode().Perm())
	}
}
