package reconcile

import (
	"context"
	"fmt"

	"github.com/julianstephens/nudge/internal/backend"
	"github.com/julianstephens/nudge/internal/constants"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/storage"
)

// PermissionResult describes one permission check.
type PermissionResult struct {
	Previous   models.PermissionState
	Current    models.PermissionState
	Transition models.PermissionTransition
	// Cancelled counts reminders archived or stripped of alarms by cleanup.
	Cancelled int
	Failures  int
}

// CheckPermissions reads the platform permissions, compares them with the last
// known state and runs cleanup on a revocation edge. The fresh state is
// persisted once cleanup has finished, so a steady denied state never triggers
// cleanup twice. A cleanup that could not archive leaves the old state in
// place and the next check retries the same transition.
func (e *Engine) CheckPermissions(ctx context.Context) (PermissionResult, error) {
	var res PermissionResult

	current, err := backend.ReadPermissions(ctx, e.perms)
	if err != nil {
		return res, fmt.Errorf("failed to read permissions: %w", err)
	}
	last, err := e.store.GetPermissionState(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to read last permission state: %w", err)
	}

	res.Previous = last
	res.Current = current
	res.Transition = models.DetectTransition(last, current)

	done := true
	switch res.Transition {
	case models.TransitionNotificationRevoked:
		e.backupBeforeCleanup(ctx)
		res.Cancelled, res.Failures, done = e.cleanupNotificationsRevoked(ctx)
	case models.TransitionAlarmRevoked:
		e.backupBeforeCleanup(ctx)
		res.Cancelled, res.Failures, done = e.cleanupAlarmsRevoked(ctx)
	}
	if !done {
		logger.Warn("Permission cleanup incomplete, keeping previous state", "transition", res.Transition)
		return res, nil
	}

	if last.Alarm == models.AlarmDenied && current.Alarm == models.AlarmAuthorized {
		if err := e.store.SetAlarmDenied(ctx, false); err != nil {
			logger.Warn("Failed to clear alarm denial flag", "error", err)
		}
	}

	if err := e.store.SavePermissionState(ctx, current); err != nil {
		return res, fmt.Errorf("failed to persist permission state: %w", err)
	}
	return res, nil
}

func (e *Engine) backupBeforeCleanup(ctx context.Context) {
	if e.beforeCleanup == nil {
		return
	}
	if err := e.beforeCleanup(ctx); err != nil {
		logger.Warn("Backup before permission cleanup failed", "error", err)
	}
}

// cleanupNotificationsRevoked cancels everything on both backends and archives
// every scheduled reminder as cancelled. done is false when the reminders
// could not be archived.
func (e *Engine) cleanupNotificationsRevoked(ctx context.Context) (cancelled, failures int, done bool) {
	now := e.now()

	if err := e.notify.CancelAll(ctx); err != nil {
		logger.Warn("Bulk notification cancel failed", "error", err)
		failures++
	}
	// Anything the bulk cancel missed.
	if regs, err := e.notify.ListRegistered(ctx); err != nil {
		logger.Warn("Failed to list notifications after bulk cancel", "error", err)
		failures++
	} else {
		for _, reg := range regs {
			if !models.InNamespace(reg.ID, constants.AppNamespace) {
				continue
			}
			if err := e.cancelNotification(ctx, reg.ID); err != nil {
				logger.Warn("Failed to cancel notification", "instance", reg.ID, "error", err)
				failures++
			}
		}
	}
	failures += e.cancelAlarmCategories(ctx)

	reminders, err := e.store.ListReminders(ctx)
	if err != nil {
		logger.Error("Failed to list reminders for cleanup", "error", err)
		return 0, failures + 1, false
	}

	archived := 0
	err = e.store.WithTx(ctx, func(repo storage.Repository) error {
		for _, r := range reminders {
			// Every alarm, whatever hasAlarm says; missing ones are fine.
			failures += e.teardown(ctx, repo, r)

			a := models.ArchivedReminder{ScheduledReminder: r, CancelledAt: &now, ArchivedAt: now}
			if err := repo.ArchiveReminder(ctx, a); err != nil {
				return fmt.Errorf("archive %s: %w", r.ID, err)
			}
			archived++
		}
		_, err := repo.DeactivateAllInstances(ctx, now)
		return err
	})
	if err != nil {
		logger.Error("Permission cleanup could not archive reminders", "error", err)
		return 0, failures + 1, false
	}

	e.refresh("notification permission revoked")
	e.warn(fmt.Sprintf("Notifications were turned off. %d scheduled reminder(s) were cancelled and moved to the archive.", archived))
	return archived, failures, true
}

// cleanupAlarmsRevoked cancels alarm artifacts only. Notifications stay armed.
func (e *Engine) cleanupAlarmsRevoked(ctx context.Context) (stripped, failures int, done bool) {
	failures = e.cancelAlarmCategories(ctx)
	now := e.now()

	reminders, err := e.store.ListReminders(ctx)
	if err != nil {
		logger.Error("Failed to list reminders for cleanup", "error", err)
		return 0, failures + 1, false
	}

	err = e.store.WithTx(ctx, func(repo storage.Repository) error {
		for _, r := range reminders {
			if err := e.cancelAlarm(ctx, r.ID.AlarmID().String()); err != nil {
				logger.Warn("Failed to cancel alarm", "reminder", r.ID, "error", err)
				failures++
			}
			rows, err := repo.ListActiveInstances(ctx, r.ID, models.InstanceDailyAlarm)
			if err != nil {
				return err
			}
			for _, inst := range rows {
				if err := e.cancelAlarm(ctx, inst.NativeID); err != nil {
					logger.Warn("Failed to cancel alarm instance", "reminder", r.ID, "instance", inst.NativeID, "error", err)
					failures++
				}
			}
			if _, err := repo.DeactivateInstances(ctx, r.ID, models.InstanceDailyAlarm, now); err != nil {
				return err
			}

			if r.HasAlarm {
				r.HasAlarm = false
				r.UpdatedAt = now
				if err := repo.UpdateReminder(ctx, r); err != nil {
					return fmt.Errorf("update %s: %w", r.ID, err)
				}
				stripped++
			}
		}
		return repo.SetAlarmDenied(ctx, true)
	})
	if err != nil {
		logger.Error("Alarm permission cleanup failed", "error", err)
		return 0, failures + 1, false
	}

	e.refresh("alarm permission revoked")
	e.warn(fmt.Sprintf("Alarms were turned off. %d reminder(s) will notify without an alarm.", stripped))
	return stripped, failures, true
}

// cancelAlarmCategories uses grouped cancellation where the platform has it.
func (e *Engine) cancelAlarmCategories(ctx context.Context) int {
	cc, ok := e.alarms.(backend.CategoryCanceller)
	if !ok {
		return 0
	}
	failures := 0
	for _, category := range []string{constants.AlarmCategoryDaily, constants.AlarmCategoryRepeat} {
		n, err := cc.CancelByCategory(ctx, category)
		if err != nil {
			logger.Warn("Failed to cancel alarm category", "category", category, "error", err)
			failures++
			continue
		}
		logger.Debug("Cancelled alarm category", "category", category, "count", n)
	}
	return failures
}
