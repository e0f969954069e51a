// Package clitest builds command contexts backed by a throwaway sqlite store
// and the in-memory notification backend.
package clitest

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/julianstephens/nudge/internal/cli"
	"github.com/julianstephens/nudge/internal/clock"
	"github.com/julianstephens/nudge/internal/config"
	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/storage/sqlite"
)

// Now is the fixed time every test context starts at.
var Now = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

// Env is a command context plus handles tests inspect.
type Env struct {
	*cli.Context
	Store  *sqlite.Store
	Clock  *clock.Fake
	Output *bytes.Buffer
	DBPath string
}

// New returns an initialized store in UTC with all permissions granted.
func New(t *testing.T) *Env {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nudge.db")
	store := sqlite.NewStore(dbPath)
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	settings, err := store.GetSettings(ctx)
	if err != nil {
		t.Fatalf("failed to read settings: %v", err)
	}
	settings.Timezone = "UTC"
	if err := store.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("failed to save settings: %v", err)
	}

	fake := clock.NewFake(Now)
	out := &bytes.Buffer{}
	return &Env{
		Context: &cli.Context{
			Store:   store,
			Conn:    config.Connection{Value: dbPath, Source: config.SourceFlag},
			Backend: cli.BackendMemory,
			Permissions: models.PermissionState{
				Notification: models.NotificationGranted,
				Alarm:        models.AlarmAuthorized,
			},
			Clock: fake,
			Out:   out,
			Base:  ctx,
		},
		Store:  store,
		Clock:  fake,
		Output: out,
		DBPath: dbPath,
	}
}

// Reminders lists what is stored.
func (e *Env) Reminders(t *testing.T) []models.ScheduledReminder {
	t.Helper()
	rs, err := e.Store.ListReminders(context.Background())
	if err != nil {
		t.Fatalf("ListReminders failed: %v", err)
	}
	return rs
}
