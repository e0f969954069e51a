// Package reconcile keeps the persistent store, the notification backend and
// the alarm backend consistent with each other.
//
// Every operation reads the store, compares it with what the backends report
// and corrects the difference. Per-item failures are logged and counted and
// never abort a batch. Only the rolling-to-native migration rolls back.
package reconcile

import (
	"context"
	"time"

	"github.com/julianstephens/nudge/internal/backend"
	"github.com/julianstephens/nudge/internal/clock"
	"github.com/julianstephens/nudge/internal/constants"
	apperrors "github.com/julianstephens/nudge/internal/errors"
	"github.com/julianstephens/nudge/internal/events"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/planner"
	"github.com/julianstephens/nudge/internal/storage"
)

// Config carries the engine's collaborators. Store, Notifications and
// Permissions are required; Alarms may be nil on hosts without an alarm subsystem.
type Config struct {
	Store         storage.Provider
	Notifications backend.NotificationBackend
	Alarms        backend.AlarmBackend
	Permissions   backend.PermissionSource
	Bus           *events.Bus
	Clock         clock.Clock
	Policy        *planner.Policy
	Location      *time.Location
	// SummaryMode is constants.SummaryModeSilent (log only) or constants.SummaryModeAlert.
	SummaryMode string
	// BeforeCleanup runs before permission-loss cleanup destroys reminders,
	// typically to take a backup. Its failure is logged and does not block cleanup.
	BeforeCleanup func(ctx context.Context) error
}

type Engine struct {
	store         storage.Provider
	notify        backend.NotificationBackend
	alarms        backend.AlarmBackend
	perms         backend.PermissionSource
	bus           *events.Bus
	clock         clock.Clock
	policy        planner.Policy
	loc           *time.Location
	summaryMode   string
	beforeCleanup func(ctx context.Context) error
	staleAfter    time.Duration
}

func New(cfg Config) *Engine {
	e := &Engine{
		store:         cfg.Store,
		notify:        cfg.Notifications,
		alarms:        cfg.Alarms,
		perms:         cfg.Permissions,
		bus:           cfg.Bus,
		clock:         cfg.Clock,
		loc:           cfg.Location,
		summaryMode:   cfg.SummaryMode,
		beforeCleanup: cfg.BeforeCleanup,
		staleAfter:    constants.SemaphoreStaleAfter,
	}
	if cfg.Policy != nil {
		e.policy = *cfg.Policy
	} else {
		e.policy = planner.DefaultPolicy()
	}
	if e.bus == nil {
		e.bus = events.NewBus()
	}
	if e.clock == nil {
		e.clock = clock.Real{}
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.summaryMode == "" {
		e.summaryMode = constants.DefaultReconcileSummaryMode
	}
	return e
}

// Bus returns the bus the engine publishes refresh, warning and summary events on.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

func (e *Engine) Location() *time.Location {
	return e.loc
}

func (e *Engine) now() time.Time {
	return e.clock.Now()
}

func (e *Engine) refresh(reason string) {
	e.bus.Emit(events.TopicRefresh, reason)
}

func (e *Engine) warn(message string) {
	logger.Warn(message)
	e.bus.Emit(events.TopicWarning, message)
}

func (e *Engine) alarmsAvailable() bool {
	return e.alarms != nil
}

func (e *Engine) alarmLister() (backend.AlarmLister, bool) {
	if e.alarms == nil {
		return nil, false
	}
	l, ok := e.alarms.(backend.AlarmLister)
	return l, ok
}

// cancelNotification treats a missing registration as success.
func (e *Engine) cancelNotification(ctx context.Context, id string) error {
	return apperrors.IgnoreNotFound(e.notify.Cancel(ctx, id))
}

// cancelAlarm treats a missing alarm as success.
func (e *Engine) cancelAlarm(ctx context.Context, id string) error {
	if e.alarms == nil {
		return nil
	}
	return apperrors.IgnoreNotFound(e.alarms.CancelAlarm(ctx, id))
}

// cancelInstance disarms a rolling-window instance on the backend it belongs to.
func (e *Engine) cancelInstance(ctx context.Context, inst models.TrackedInstance) error {
	if inst.Kind.Role() == models.RoleAlarm {
		return e.cancelAlarm(ctx, inst.NativeID)
	}
	return e.cancelNotification(ctx, inst.NativeID)
}

// teardown disarms every artifact a reminder may own and deactivates its
// instance rows. It keeps going past failures and returns how many there were.
func (e *Engine) teardown(ctx context.Context, repo storage.Repository, r models.ScheduledReminder) int {
	failures := 0
	now := e.now()

	if err := e.cancelNotification(ctx, r.ID.NotificationID().String()); err != nil {
		logger.Warn("Failed to cancel notification", "reminder", r.ID, "error", err)
		failures++
	}
	if err := e.cancelAlarm(ctx, r.ID.AlarmID().String()); err != nil {
		logger.Warn("Failed to cancel alarm", "reminder", r.ID, "error", err)
		failures++
	}

	rows, err := repo.ListActiveInstances(ctx, r.ID, "")
	if err != nil {
		logger.Warn("Failed to list instances", "reminder", r.ID, "error", err)
		return failures + 1
	}
	for _, inst := range rows {
		if err := e.cancelInstance(ctx, inst); err != nil {
			logger.Warn("Failed to cancel instance", "reminder", r.ID, "instance", inst.NativeID, "error", err)
			failures++
			continue
		}
		if err := repo.DeactivateInstance(ctx, inst.ID, now); err != nil {
			logger.Warn("Failed to deactivate instance", "reminder", r.ID, "instance", inst.NativeID, "error", err)
			failures++
		}
	}
	return failures
}

func (e *Engine) alarmConfig(r models.ScheduledReminder, category string) backend.AlarmConfig {
	return backend.AlarmConfig{Content: r.Content, Category: category}
}

func (e *Engine) localDisplay(t time.Time) string {
	return t.In(e.loc).Format(constants.LocalDisplayFormat)
}
