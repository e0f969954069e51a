package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/nudge/internal/constants"
	apperrors "github.com/julianstephens/nudge/internal/errors"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/window"
)

// ReplenishResult counts the work of one or more top-ups.
type ReplenishResult struct {
	Added    int
	Failures int
}

func (r *ReplenishResult) add(o ReplenishResult) {
	r.Added += o.Added
	r.Failures += o.Failures
}

// Replenish tops up every rolling-window reminder. It is safe to call at any
// time: it only fills the gap to the target window and never over-schedules.
func (e *Engine) Replenish(ctx context.Context) (ReplenishResult, error) {
	var total ReplenishResult

	reminders, err := e.store.ListReminders(ctx)
	if err != nil {
		return total, fmt.Errorf("failed to list reminders: %w", err)
	}
	for _, r := range reminders {
		if r.DeliveryMethod != models.DeliveryRollingWindow {
			continue
		}
		total.add(e.ReplenishReminder(ctx, r))
	}

	if total.Added > 0 || total.Failures > 0 {
		logger.Info("Replenished rolling windows", "added", total.Added, "failures", total.Failures)
	}
	return total, nil
}

// ReplenishReminder tops up one reminder's notification window, plus its alarm
// window when it has alarms.
func (e *Engine) ReplenishReminder(ctx context.Context, r models.ScheduledReminder) ReplenishResult {
	res := e.replenishKind(ctx, r, models.InstanceRepeatNotification)
	if r.HasAlarm && e.alarmsAvailable() {
		res.add(e.replenishKind(ctx, r, models.InstanceDailyAlarm))
	}
	return res
}

// replenishKind brings the number of active future instances of kind up to
// the policy's target window.
func (e *Engine) replenishKind(ctx context.Context, r models.ScheduledReminder, kind models.InstanceKind) ReplenishResult {
	var res ReplenishResult
	if !r.Cadence.IsRepeating() {
		return res
	}

	now := e.now()
	threshold := window.Threshold(now)

	rows, err := e.store.ListActiveInstances(ctx, r.ID, kind)
	if err != nil {
		logger.Warn("Failed to list instances", "reminder", r.ID, "error", err)
		res.Failures++
		return res
	}

	future := 0
	for _, inst := range rows {
		if inst.FireInstant.After(threshold) {
			future++
		}
	}
	shortfall := e.policy.TargetWindow(r.Cadence) - future
	if shortfall <= 0 {
		return res
	}

	origin := r.ScheduleInstant.In(e.loc)
	base := origin
	if len(rows) > 0 {
		latest := rows[len(rows)-1].FireInstant.In(e.loc)
		base = window.Step(latest, r.Cadence, origin.Day())
	}

	for _, fire := range window.GenerateOccurrences(base, r.Cadence, shortfall, origin.Hour(), origin.Minute(), now) {
		nativeID, err := e.registerInstance(ctx, r, kind, fire)
		if err != nil {
			logger.Warn("Failed to register instance", "reminder", r.ID, "instance", r.ID.InstanceID(kind.Role(), fire), "error", err)
			res.Failures++
			if errors.Is(err, apperrors.ErrCapacity) {
				// Every further registration would hit the same cap.
				break
			}
			continue
		}

		inst := models.TrackedInstance{
			ParentID:    r.ID,
			Kind:        kind,
			NativeID:    nativeID,
			FireInstant: fire.UTC(),
			CreatedAt:   now,
		}
		if _, inserted, err := e.store.AddInstance(ctx, inst); err != nil {
			logger.Warn("Failed to record instance", "reminder", r.ID, "instance", nativeID, "error", err)
			res.Failures++
		} else if inserted {
			res.Added++
		}
	}
	return res
}

func (e *Engine) registerInstance(ctx context.Context, r models.ScheduledReminder, kind models.InstanceKind, fire time.Time) (string, error) {
	id := r.ID.InstanceID(kind.Role(), fire)
	trigger := models.FixedTrigger{At: fire.UTC()}

	if kind.Role() == models.RoleAlarm {
		return e.alarms.RegisterAlarm(ctx, id, trigger, e.alarmConfig(r, constants.AlarmCategoryDaily))
	}
	if err := e.notify.Register(ctx, id, r.Content, trigger); err != nil {
		return "", err
	}
	return id.String(), nil
}

// replenishAlarmBatch tops up the alarm windows of several reminders in one
// pass. Used on hosts whose alarm backend cannot enumerate alarms, where
// per-reminder verification is impossible anyway.
func (e *Engine) replenishAlarmBatch(ctx context.Context, reminders []models.ScheduledReminder) ReplenishResult {
	var res ReplenishResult
	if !e.alarmsAvailable() || len(reminders) == 0 {
		return res
	}
	for _, r := range reminders {
		res.add(e.replenishKind(ctx, r, models.InstanceDailyAlarm))
	}
	logger.Debug("Replenished alarm windows in batch", "reminders", len(reminders), "added", res.Added)
	return res
}
