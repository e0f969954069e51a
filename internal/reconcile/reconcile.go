package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/julianstephens/nudge/internal/backend"
	"github.com/julianstephens/nudge/internal/constants"
	"github.com/julianstephens/nudge/internal/events"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/planner"
	"github.com/julianstephens/nudge/internal/window"
)

// Mode selects how many passes a reconciliation runs.
type Mode string

const (
	// ModeFull runs all three passes. Used on cold start.
	ModeFull Mode = "full"
	// ModeLight skips the DB-removed sweep. Used on foreground.
	ModeLight Mode = "light"
)

// Summary accumulates what a reconciliation did.
type Summary struct {
	Mode                     Mode `json:"mode"`
	CancelledPlatformOrphans int  `json:"cancelled_platform_orphans"`
	RescheduledItems         int  `json:"rescheduled_items"`
	CancelledDbRemovedItems  int  `json:"cancelled_db_removed_items"`
	Failures                 int  `json:"failures"`
}

// Changed reports whether any pass took a corrective action.
func (s Summary) Changed() bool {
	return s.CancelledPlatformOrphans > 0 || s.RescheduledItems > 0 || s.CancelledDbRemovedItems > 0
}

func (s Summary) String() string {
	return fmt.Sprintf("%s reconcile: %d orphans cancelled, %d rescheduled, %d removed-item groups cancelled, %d failures",
		s.Mode, s.CancelledPlatformOrphans, s.RescheduledItems, s.CancelledDbRemovedItems, s.Failures)
}

// snapshot is the state one reconciliation compares.
type snapshot struct {
	reminders map[models.ReminderID]models.ScheduledReminder
	// registered is nil when the notification backend could not be listed.
	registered map[string]backend.Registration
	// alarms is nil when the alarm backend cannot enumerate.
	alarms map[string]backend.Registration
}

// Reconcile compares the store with both backends and heals drift in both
// directions. Running it twice with no change in between yields an all-zero
// second summary.
func (e *Engine) Reconcile(ctx context.Context, mode Mode) (Summary, error) {
	sum := Summary{Mode: mode}

	snap, err := e.snapshot(ctx, &sum)
	if err != nil {
		return sum, err
	}

	if snap.registered != nil {
		e.cancelPlatformOrphans(ctx, snap, &sum)
	}
	e.heal(ctx, snap, &sum)
	if mode == ModeFull {
		e.cancelRemovedItems(ctx, snap, &sum)
	}

	e.report(sum)
	return sum, nil
}

func (e *Engine) snapshot(ctx context.Context, sum *Summary) (*snapshot, error) {
	reminders, err := e.store.ListReminders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	snap := &snapshot{reminders: make(map[models.ReminderID]models.ScheduledReminder, len(reminders))}
	for _, r := range reminders {
		snap.reminders[r.ID] = r
	}

	regs, err := e.notify.ListRegistered(ctx)
	if err != nil {
		logger.Warn("Notification backend unavailable, skipping platform passes", "error", err)
		sum.Failures++
	} else {
		snap.registered = index(regs)
	}

	if lister, ok := e.alarmLister(); ok {
		alarms, err := lister.ListAlarms(ctx)
		if err != nil {
			logger.Warn("Alarm backend unavailable, skipping alarm verification", "error", err)
			sum.Failures++
		} else {
			snap.alarms = index(alarms)
		}
	}
	return snap, nil
}

func index(regs []backend.Registration) map[string]backend.Registration {
	m := make(map[string]backend.Registration, len(regs))
	for _, reg := range regs {
		m[reg.ID] = reg
	}
	return m
}

// ownedParent resolves the parent of a registered id in the app namespace.
// ok is false for ids that belong to someone else.
func ownedParent(id string) (parent models.ReminderID, parsed bool, ok bool) {
	if !models.InNamespace(id, constants.AppNamespace) {
		return models.ReminderID{}, false, false
	}
	nid, err := models.ParseNativeID(id)
	if err != nil {
		return models.ReminderID{}, false, true
	}
	return nid.Parent, true, true
}

// cancelPlatformOrphans is pass 1: cancel notifications whose parent has no row.
func (e *Engine) cancelPlatformOrphans(ctx context.Context, snap *snapshot, sum *Summary) {
	ids := sortedKeys(snap.registered)
	for _, id := range ids {
		parent, parsed, owned := ownedParent(id)
		if !owned {
			continue
		}
		if parsed {
			if _, exists := snap.reminders[parent]; exists {
				continue
			}
		}
		if err := e.cancelNotification(ctx, id); err != nil {
			logger.Warn("Failed to cancel orphaned notification", "instance", id, "error", err)
			sum.Failures++
			continue
		}
		delete(snap.registered, id)
		sum.CancelledPlatformOrphans++
		logger.Debug("Cancelled orphaned notification", "instance", id)
	}
}

// heal is pass 2: make sure every stored reminder has its platform artifacts.
func (e *Engine) heal(ctx context.Context, snap *snapshot, sum *Summary) {
	var alarmWindows []models.ScheduledReminder

	for _, r := range sortedReminders(snap.reminders) {
		switch r.DeliveryMethod {
		case models.DeliveryRollingWindow:
			e.healRolling(ctx, r, snap, sum)
			if r.HasAlarm && e.alarmsAvailable() {
				alarmWindows = append(alarmWindows, r)
			}
		default:
			e.healNative(ctx, r, snap, sum)
		}
	}

	if len(alarmWindows) == 0 {
		return
	}
	if snap.alarms != nil {
		for _, r := range alarmWindows {
			e.rearmMissing(ctx, r, models.InstanceDailyAlarm, snap.alarms, sum)
			res := e.replenishKind(ctx, r, models.InstanceDailyAlarm)
			sum.RescheduledItems += res.Added
			sum.Failures += res.Failures
		}
		return
	}
	// Without per-item enumeration nothing can be verified, so top up every
	// alarm window in a single batch.
	res := e.replenishAlarmBatch(ctx, alarmWindows)
	sum.RescheduledItems += res.Added
	sum.Failures += res.Failures
}

func (e *Engine) healRolling(ctx context.Context, r models.ScheduledReminder, snap *snapshot, sum *Summary) {
	if snap.registered != nil {
		e.rearmMissing(ctx, r, models.InstanceRepeatNotification, snap.registered, sum)
	}
	res := e.replenishKind(ctx, r, models.InstanceRepeatNotification)
	sum.RescheduledItems += res.Added
	sum.Failures += res.Failures
}

// rearmMissing re-registers future instances whose artifact is gone from the
// platform under their existing native id. The row stays active so the window
// keeps the same fire instants.
func (e *Engine) rearmMissing(ctx context.Context, r models.ScheduledReminder, kind models.InstanceKind, registered map[string]backend.Registration, sum *Summary) {
	rows, err := e.store.ListActiveInstances(ctx, r.ID, kind)
	if err != nil {
		logger.Warn("Failed to list instances", "reminder", r.ID, "error", err)
		sum.Failures++
		return
	}
	threshold := window.Threshold(e.now())
	for _, inst := range rows {
		if !inst.FireInstant.After(threshold) {
			continue
		}
		if _, ok := registered[inst.NativeID]; ok {
			continue
		}
		logger.Debug("Instance missing from platform", "reminder", r.ID, "instance", inst.NativeID)
		if _, err := e.registerInstance(ctx, r, kind, inst.FireInstant.In(e.loc)); err != nil {
			logger.Warn("Failed to re-register instance", "reminder", r.ID, "instance", inst.NativeID, "error", err)
			sum.Failures++
			continue
		}
		sum.RescheduledItems++
	}
}

func (e *Engine) healNative(ctx context.Context, r models.ScheduledReminder, snap *snapshot, sum *Summary) {
	now := e.now()

	// Leftover window instances of a migrated reminder.
	rows, err := e.store.ListActiveInstances(ctx, r.ID, "")
	if err != nil {
		logger.Warn("Failed to list instances", "reminder", r.ID, "error", err)
		sum.Failures++
	}
	for _, inst := range rows {
		if err := e.cancelInstance(ctx, inst); err != nil {
			logger.Warn("Failed to cancel stale instance", "reminder", r.ID, "instance", inst.NativeID, "error", err)
			sum.Failures++
			continue
		}
		if err := e.store.DeactivateInstance(ctx, inst.ID, now); err != nil {
			sum.Failures++
			continue
		}
		delete(snap.registered, inst.NativeID)
		sum.RescheduledItems++
	}

	// An app-managed fixed trigger that has fired moves on to the next occurrence.
	if r.Cadence.IsRepeating() && !models.IsRecurring(r.Trigger) {
		if _, pending := e.notify.NextFireInstant(r.Trigger, now); !pending {
			if _, err := e.advance(ctx, r); err != nil {
				logger.Warn("Failed to advance reminder", "reminder", r.ID, "error", err)
				sum.Failures++
				return
			}
			// advance registered the new trigger already.
			sum.RescheduledItems++
			return
		}
	}

	if snap.registered != nil {
		if _, pending := e.notify.NextFireInstant(r.Trigger, now); pending {
			if _, ok := snap.registered[r.ID.NotificationID().String()]; !ok {
				if err := e.notify.Register(ctx, r.ID.NotificationID(), r.Content, r.Trigger); err != nil {
					logger.Warn("Failed to re-register notification", "reminder", r.ID, "error", err)
					sum.Failures++
				} else {
					sum.RescheduledItems++
				}
			}
		}
	}

	if r.HasAlarm && snap.alarms != nil {
		if _, pending := e.notify.NextFireInstant(r.Trigger, now); pending {
			if _, ok := snap.alarms[r.ID.AlarmID().String()]; !ok {
				if _, err := e.alarms.RegisterAlarm(ctx, r.ID.AlarmID(), r.Trigger, e.alarmConfig(r, alarmCategory(r))); err != nil {
					logger.Warn("Failed to re-register alarm", "reminder", r.ID, "error", err)
					sum.Failures++
				} else {
					sum.RescheduledItems++
				}
			}
		}
	}
}

// advance replans a native reminder whose one-shot trigger has fired and
// registers the new trigger. Daily and weekly reminders become natively recurring.
func (e *Engine) advance(ctx context.Context, r models.ScheduledReminder) (models.ScheduledReminder, error) {
	now := e.now()

	var trigger models.Trigger
	switch {
	case r.IsCalendarDerived():
		trigger = e.policy.Plan(r, now, e.loc).Trigger
	case r.Cadence == models.CadenceDaily || r.Cadence == models.CadenceWeekly:
		trigger = planner.NativeTrigger(r, e.loc)
	default:
		first, ok := planner.FirstOccurrence(r, now, e.loc)
		if !ok {
			return r, fmt.Errorf("no future occurrence")
		}
		trigger = models.FixedTrigger{At: first.UTC()}
	}

	if err := e.notify.Register(ctx, r.ID.NotificationID(), r.Content, trigger); err != nil {
		return r, err
	}
	if r.HasAlarm && e.alarmsAvailable() {
		if _, err := e.alarms.RegisterAlarm(ctx, r.ID.AlarmID(), trigger, e.alarmConfig(r, alarmCategory(r))); err != nil {
			logger.Warn("Failed to register advanced alarm", "reminder", r.ID, "error", err)
		}
	}

	r.Trigger = trigger
	r.DeliveryMethod = models.DeliveryNativeRecurring
	r.UpdatedAt = now
	if err := e.store.UpdateReminder(ctx, r); err != nil {
		return r, err
	}
	return r, nil
}

func alarmCategory(r models.ScheduledReminder) string {
	if r.Cadence == models.CadenceDaily {
		return constants.AlarmCategoryDaily
	}
	return constants.AlarmCategoryRepeat
}

// cancelRemovedItems is pass 3: every artifact whose parent row is gone is
// cancelled, grouped by parent. The parent's cadence is unknown at this point,
// so both the window-instance and the reminder-level strategies are tried.
func (e *Engine) cancelRemovedItems(ctx context.Context, snap *snapshot, sum *Summary) {
	type orphan struct {
		notifications map[string]bool
		alarms        map[string]bool
		rows          []models.TrackedInstance
	}
	orphans := make(map[models.ReminderID]*orphan)
	get := func(parent models.ReminderID) *orphan {
		o, ok := orphans[parent]
		if !ok {
			o = &orphan{notifications: map[string]bool{}, alarms: map[string]bool{}}
			orphans[parent] = o
		}
		return o
	}

	collect := func(regs map[string]backend.Registration, alarm bool) {
		for id := range regs {
			parent, parsed, owned := ownedParent(id)
			if !owned || !parsed {
				continue
			}
			if _, exists := snap.reminders[parent]; exists {
				continue
			}
			if alarm {
				get(parent).alarms[id] = true
			} else {
				get(parent).notifications[id] = true
			}
		}
	}
	collect(snap.registered, false)
	collect(snap.alarms, true)

	rows, err := e.store.ListAllActiveInstances(ctx)
	if err != nil {
		logger.Warn("Failed to list instances", "error", err)
		sum.Failures++
	}
	for _, inst := range rows {
		if _, exists := snap.reminders[inst.ParentID]; !exists {
			o := get(inst.ParentID)
			o.rows = append(o.rows, inst)
		}
	}

	now := e.now()
	for parent, o := range orphans {
		failed := false

		// Window strategy: every enumerated or tracked instance.
		for id := range o.notifications {
			if err := e.cancelNotification(ctx, id); err != nil {
				logger.Warn("Failed to cancel removed notification", "reminder", parent, "instance", id, "error", err)
				failed = true
			}
		}
		for id := range o.alarms {
			if err := e.cancelAlarm(ctx, id); err != nil {
				logger.Warn("Failed to cancel removed alarm", "reminder", parent, "instance", id, "error", err)
				failed = true
			}
		}
		for _, inst := range o.rows {
			if err := e.cancelInstance(ctx, inst); err != nil {
				logger.Warn("Failed to cancel removed instance", "reminder", parent, "instance", inst.NativeID, "error", err)
				failed = true
				continue
			}
			if err := e.store.DeactivateInstance(ctx, inst.ID, now); err != nil {
				failed = true
			}
		}

		// Reminder-level strategy.
		if err := e.cancelNotification(ctx, parent.NotificationID().String()); err != nil {
			failed = true
		}
		if err := e.cancelAlarm(ctx, parent.AlarmID().String()); err != nil {
			failed = true
		}

		if failed {
			sum.Failures++
			continue
		}
		sum.CancelledDbRemovedItems++
		logger.Debug("Cancelled artifacts of removed reminder", "reminder", parent)
	}
}

// report logs the summary, signals a refresh when anything changed and, in
// alert mode, hands the summary to the user.
func (e *Engine) report(sum Summary) {
	if sum.Changed() || sum.Failures > 0 {
		logger.Info("Reconciliation finished",
			"mode", sum.Mode,
			"orphans", sum.CancelledPlatformOrphans,
			"rescheduled", sum.RescheduledItems,
			"removed", sum.CancelledDbRemovedItems,
			"failures", sum.Failures,
		)
	} else {
		logger.Debug("Reconciliation found nothing to do", "mode", sum.Mode)
	}

	if sum.Changed() {
		e.refresh("reconcile")
	}
	if e.summaryMode == constants.SummaryModeAlert && (sum.Changed() || sum.Failures > 0) {
		e.bus.Publish(events.Event{Topic: events.TopicSummary, Message: sum.String(), Payload: sum})
	}
}

func sortedKeys(m map[string]backend.Registration) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedReminders(m map[models.ReminderID]models.ScheduledReminder) []models.ScheduledReminder {
	out := make([]models.ScheduledReminder, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}
