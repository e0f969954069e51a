package storage

import (
	"context"
	"time"

	"github.com/julianstephens/nudge/internal/models"
)

// Repository is the set of data operations the scheduling core needs. Every
// write is atomic per row; WithTx groups several writes.
type Repository interface {
	// Settings
	GetSettings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, settings models.Settings) error
	SetAlarmDenied(ctx context.Context, denied bool) error

	// Scheduled reminders
	AddReminder(ctx context.Context, r models.ScheduledReminder) error
	GetReminder(ctx context.Context, id models.ReminderID) (models.ScheduledReminder, error)
	// ListReminders returns every scheduled reminder whose row can be decoded.
	// Rows with a corrupt trigger descriptor are logged and skipped.
	ListReminders(ctx context.Context) ([]models.ScheduledReminder, error)
	UpdateReminder(ctx context.Context, r models.ScheduledReminder) error
	DeleteReminder(ctx context.Context, id models.ReminderID) error

	// Archive
	ArchiveReminder(ctx context.Context, a models.ArchivedReminder) error
	GetArchived(ctx context.Context, id models.ReminderID) (models.ArchivedReminder, error)
	ListArchived(ctx context.Context) ([]models.ArchivedReminder, error)
	MarkHandled(ctx context.Context, id models.ReminderID, at time.Time) error

	// Tracked rolling-window instances
	// AddInstance inserts the row unless an active row already exists for the
	// same (parent, kind, fire instant). The bool reports whether a row was written.
	AddInstance(ctx context.Context, inst models.TrackedInstance) (models.TrackedInstance, bool, error)
	// ListActiveInstances returns active rows for the parent ordered by fire
	// instant. An empty kind matches every kind.
	ListActiveInstances(ctx context.Context, parent models.ReminderID, kind models.InstanceKind) ([]models.TrackedInstance, error)
	ListAllActiveInstances(ctx context.Context) ([]models.TrackedInstance, error)
	DeactivateInstance(ctx context.Context, id int64, at time.Time) error
	DeactivateInstances(ctx context.Context, parent models.ReminderID, kind models.InstanceKind, at time.Time) (int64, error)
	DeactivateAllInstances(ctx context.Context, at time.Time) (int64, error)

	// Repeat occurrences
	// RecordOccurrence is insert-if-absent on (parent, fire instant).
	RecordOccurrence(ctx context.Context, occ models.RepeatOccurrence) (bool, error)
	LatestOccurrence(ctx context.Context, parent models.ReminderID) (models.RepeatOccurrence, error)
	ListOccurrences(ctx context.Context, parent models.ReminderID) ([]models.RepeatOccurrence, error)

	// Reconciliation semaphore
	GetSemaphore(ctx context.Context) (models.Semaphore, error)
	// AcquireSemaphore takes the semaphore if it is free or its holder has been
	// silent for longer than staleAfter.
	AcquireSemaphore(ctx context.Context, now time.Time, staleAfter time.Duration) (bool, error)
	ReleaseSemaphore(ctx context.Context, now time.Time) error

	// Last known permission state
	GetPermissionState(ctx context.Context) (models.PermissionState, error)
	SavePermissionState(ctx context.Context, state models.PermissionState) error
}

type Provider interface {
	Repository

	// Lifecycle
	Init(ctx context.Context) error
	Load(ctx context.Context) error
	Close() error

	// WithTx runs fn against a repository bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(Repository) error) error

	// Utils
	GetConfigPath() string
}
