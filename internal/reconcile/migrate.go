package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/julianstephens/nudge/internal/constants"
	apperrors "github.com/julianstephens/nudge/internal/errors"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/planner"
)

// ErrMigrationBusy is returned when another migration pass holds the semaphore.
var ErrMigrationBusy = errors.New("another migration is in progress")

// ErrMigrationRolledBack means the new native registration was undone and the
// reminder is still on its rolling window.
var ErrMigrationRolledBack = errors.New("migration rolled back")

// MigrationResult counts the outcome of a migration pass.
type MigrationResult struct {
	Migrated int
	Skipped  int
	Failures int
}

// MigratePending moves every rolling-window reminder whose first occurrence has
// fired onto a single native recurring registration. Only one pass runs at a
// time; a pass that finds the semaphore held returns ErrMigrationBusy.
func (e *Engine) MigratePending(ctx context.Context) (MigrationResult, error) {
	var res MigrationResult

	release, err := e.acquire(ctx)
	if err != nil {
		return res, err
	}
	defer release()

	reminders, err := e.store.ListReminders(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list reminders: %w", err)
	}

	now := e.now()
	for _, r := range reminders {
		if !planner.NeedsMigration(r, now) {
			continue
		}
		migrated, err := e.migrate(ctx, r)
		switch {
		case err != nil:
			logger.Warn("Migration failed", "reminder", r.ID, "error", err)
			res.Failures++
		case migrated:
			res.Migrated++
		default:
			res.Skipped++
		}
	}

	if res.Migrated > 0 {
		logger.Info("Migrated reminders to native recurring delivery", "migrated", res.Migrated, "failures", res.Failures)
		e.refresh("migration")
	}
	return res, nil
}

// MigrateToNative migrates a single reminder under the semaphore.
func (e *Engine) MigrateToNative(ctx context.Context, id models.ReminderID) (bool, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	r, err := e.store.GetReminder(ctx, id)
	if err != nil {
		return false, err
	}
	if r.DeliveryMethod != models.DeliveryRollingWindow {
		return false, nil
	}
	migrated, err := e.migrate(ctx, r)
	if migrated {
		e.refresh("migration")
	}
	return migrated, err
}

// acquire takes the reconciliation semaphore, overriding a stale holder.
func (e *Engine) acquire(ctx context.Context) (func(), error) {
	now := e.now()

	sem, err := e.store.GetSemaphore(ctx)
	if err != nil {
		return nil, err
	}
	if sem.IsStale(now, e.staleAfter) {
		logger.Warn("Overriding stale migration semaphore", "since", sem.LastMigrationAt)
	}

	ok, err := e.store.AcquireSemaphore(ctx, now, e.staleAfter)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMigrationBusy
	}

	return func() {
		// Release must happen even when the caller's context is done.
		if err := e.store.ReleaseSemaphore(context.WithoutCancel(ctx), e.now()); err != nil {
			logger.Error("Failed to release migration semaphore", "error", err)
		}
	}, nil
}

// migrate replaces r's rolling window with one native recurring registration.
// The order of steps keeps at least one alarm armed at every point.
func (e *Engine) migrate(ctx context.Context, r models.ScheduledReminder) (bool, error) {
	rows, err := e.store.ListActiveInstances(ctx, r.ID, "")
	if err != nil {
		return false, fmt.Errorf("failed to list instances: %w", err)
	}
	if len(rows) == 0 {
		return false, nil
	}

	// Free one notification slot before adding the native registration.
	var guard *models.TrackedInstance
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Kind == models.InstanceRepeatNotification {
			guard = &rows[i]
			break
		}
	}
	if guard != nil {
		if err := e.cancelNotification(ctx, guard.NativeID); err != nil {
			return false, fmt.Errorf("failed to free capacity: %w", err)
		}
	}
	restoreGuard := func() {
		if guard == nil {
			return
		}
		id := r.ID.InstanceID(models.RoleNotification, guard.FireInstant)
		if err := e.notify.Register(ctx, id, r.Content, models.FixedTrigger{At: guard.FireInstant}); err != nil {
			logger.Warn("Failed to restore instance after rollback", "reminder", r.ID, "instance", guard.NativeID, "error", err)
		}
	}

	trigger := planner.NativeTrigger(r, e.loc)
	notificationID := r.ID.NotificationID()
	if err := e.notify.Register(ctx, notificationID, r.Content, trigger); err != nil {
		restoreGuard()
		return false, fmt.Errorf("%w: register native notification: %v", ErrMigrationRolledBack, err)
	}

	rollback := func(cause error) error {
		if err := e.cancelNotification(ctx, notificationID.String()); err != nil {
			logger.Error("Failed to roll back native notification", "reminder", r.ID, "error", err)
		}
		restoreGuard()
		return fmt.Errorf("%w: %v", ErrMigrationRolledBack, cause)
	}

	alarmRegistered := false
	if r.HasAlarm && e.alarmsAvailable() {
		// New alarm before any old alarm is cancelled.
		if _, err := e.alarms.RegisterAlarm(ctx, r.ID.AlarmID(), trigger, e.alarmConfig(r, constants.AlarmCategoryRepeat)); err != nil {
			return false, rollback(fmt.Errorf("register native alarm: %w", err))
		}
		alarmRegistered = true
	}

	now := e.now()
	r.DeliveryMethod = models.DeliveryNativeRecurring
	r.Trigger = trigger
	r.UpdatedAt = now
	if err := e.store.UpdateReminder(ctx, r); err != nil {
		if alarmRegistered {
			if cerr := e.cancelAlarm(ctx, r.ID.AlarmID().String()); cerr != nil {
				logger.Error("Failed to roll back native alarm", "reminder", r.ID, "error", cerr)
			}
		}
		return false, rollback(fmt.Errorf("persist reminder: %w", err))
	}

	for _, inst := range rows {
		if err := e.cancelInstance(ctx, inst); err != nil && !apperrors.IsNotFound(err) {
			// Left active; the next heal pass sweeps it.
			logger.Warn("Failed to cancel migrated instance", "reminder", r.ID, "instance", inst.NativeID, "error", err)
			continue
		}
		if err := e.store.DeactivateInstance(ctx, inst.ID, now); err != nil {
			logger.Warn("Failed to deactivate migrated instance", "reminder", r.ID, "instance", inst.NativeID, "error", err)
		}
	}

	logger.Info("Migrated reminder to native recurring delivery", "reminder", r.ID, "trigger", trigger.Kind())
	return true, nil
}
