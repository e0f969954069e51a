package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/julianstephens/nudge/internal/errors"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/storage"
)

// ErrInPast is returned when a one-off reminder is scheduled for a moment that has passed.
var ErrInPast = errors.New("schedule instant is in the past")

// Schedule plans and registers a new reminder, or replaces an existing one
// with the same id. The row is written before anything is registered, so a
// registration failure leaves a row the next reconciliation heals.
func (e *Engine) Schedule(ctx context.Context, r models.ScheduledReminder) (models.ScheduledReminder, error) {
	now := e.now()
	if r.ID.IsZero() {
		r.ID = models.NewReminderID()
	}
	if strings.TrimSpace(r.Title) == "" {
		return r, fmt.Errorf("reminder title cannot be empty")
	}
	if r.Cadence == "" {
		r.Cadence = models.CadenceNone
	}
	if !r.Cadence.IsRepeating() && !r.ScheduleInstant.After(now) {
		return r, ErrInPast
	}
	if r.HasAlarm && !e.alarmsAvailable() {
		r.HasAlarm = false
	}

	decision := e.policy.Plan(r, now, e.loc)
	r.ScheduleInstant = r.ScheduleInstant.UTC()
	// A daily or weekly series anchored in the past starts at its next
	// occurrence, so it is not mistaken for one that has already fired.
	if (r.Cadence == models.CadenceDaily || r.Cadence == models.CadenceWeekly) &&
		!decision.FirstOccurrence.IsZero() && decision.FirstOccurrence.After(r.ScheduleInstant) {
		r.ScheduleInstant = decision.FirstOccurrence.UTC()
	}
	r.ScheduleInstantLocal = e.localDisplay(r.ScheduleInstant)
	r.DeliveryMethod = decision.Method
	r.Trigger = decision.Trigger
	r.UpdatedAt = now

	existing, err := e.store.GetReminder(ctx, r.ID)
	switch {
	case err == nil:
		r.CreatedAt = existing.CreatedAt
		if failures := e.teardown(ctx, e.store, existing); failures > 0 {
			logger.Warn("Some artifacts of the previous version could not be cancelled", "reminder", r.ID, "failures", failures)
		}
		if err := e.store.UpdateReminder(ctx, r); err != nil {
			return r, err
		}
	case apperrors.IsNotFound(err):
		r.CreatedAt = now
		if err := e.store.AddReminder(ctx, r); err != nil {
			return r, err
		}
	default:
		return r, err
	}

	if err := e.arm(ctx, r); err != nil {
		return r, fmt.Errorf("reminder saved but not yet armed, it will be retried on the next reconcile: %w", err)
	}

	logger.Info("Scheduled reminder", "reminder", r.ID, "method", r.DeliveryMethod, "trigger", r.Trigger.Kind(), "lead", decision.Lead.Round(time.Minute))
	e.refresh("schedule")
	return r, nil
}

// arm registers a freshly planned reminder with the backends.
func (e *Engine) arm(ctx context.Context, r models.ScheduledReminder) error {
	if r.DeliveryMethod == models.DeliveryRollingWindow {
		res := e.ReplenishReminder(ctx, r)
		if res.Added == 0 && res.Failures > 0 {
			return fmt.Errorf("no window instance could be registered (%d failures)", res.Failures)
		}
		return nil
	}

	if err := e.notify.Register(ctx, r.ID.NotificationID(), r.Content, r.Trigger); err != nil {
		return err
	}
	if r.HasAlarm {
		if _, err := e.alarms.RegisterAlarm(ctx, r.ID.AlarmID(), r.Trigger, e.alarmConfig(r, alarmCategory(r))); err != nil {
			return err
		}
	}
	return nil
}

// Cancel is the user deleting a reminder: every artifact is disarmed and the row removed.
func (e *Engine) Cancel(ctx context.Context, id models.ReminderID) error {
	r, err := e.store.GetReminder(ctx, id)
	if err != nil {
		return err
	}

	err = e.store.WithTx(ctx, func(repo storage.Repository) error {
		if failures := e.teardown(ctx, repo, r); failures > 0 {
			logger.Warn("Some artifacts could not be cancelled; reconciliation will retry", "reminder", id, "failures", failures)
		}
		return repo.DeleteReminder(ctx, id)
	})
	if err != nil {
		return err
	}

	logger.Info("Cancelled reminder", "reminder", id)
	e.refresh("cancel")
	return nil
}

// ArchiveExpired moves one-off reminders whose moment has passed to the archive.
func (e *Engine) ArchiveExpired(ctx context.Context) (int, error) {
	reminders, err := e.store.ListReminders(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list reminders: %w", err)
	}

	now := e.now()
	archived := 0
	for _, r := range reminders {
		if r.Cadence.IsRepeating() {
			continue
		}
		if _, pending := e.notify.NextFireInstant(r.Trigger, now); pending {
			continue
		}
		err := e.store.WithTx(ctx, func(repo storage.Repository) error {
			e.teardown(ctx, repo, r)
			return repo.ArchiveReminder(ctx, models.ArchivedReminder{ScheduledReminder: r, ArchivedAt: now})
		})
		if err != nil {
			logger.Warn("Failed to archive reminder", "reminder", r.ID, "error", err)
			continue
		}
		archived++
	}

	if archived > 0 {
		logger.Info("Archived expired reminders", "count", archived)
		e.refresh("archive")
	}
	return archived, nil
}

// RecordDelivery records that a reminder fired and was observed by the user
// or the host. Repeating reminders get an occurrence row; a tap on a one-off
// reminder archives it as handled.
func (e *Engine) RecordDelivery(ctx context.Context, id models.ReminderID, fire time.Time, source models.OccurrenceSource) error {
	now := e.now()

	r, err := e.store.GetReminder(ctx, id)
	if apperrors.IsNotFound(err) {
		if source == models.SourceTap {
			return e.store.MarkHandled(ctx, id, now)
		}
		return err
	}
	if err != nil {
		return err
	}

	if r.Cadence.IsRepeating() {
		_, err := e.store.RecordOccurrence(ctx, models.RepeatOccurrence{
			ParentID:    r.ID,
			FireInstant: fire.UTC().Truncate(time.Second),
			Source:      source,
			Snapshot:    r.Content,
			RecordedAt:  now,
		})
		return err
	}

	if source != models.SourceTap {
		return nil
	}
	err = e.store.WithTx(ctx, func(repo storage.Repository) error {
		e.teardown(ctx, repo, r)
		return repo.ArchiveReminder(ctx, models.ArchivedReminder{ScheduledReminder: r, HandledAt: &now, ArchivedAt: now})
	})
	if err != nil {
		return err
	}
	e.refresh("handled")
	return nil
}
