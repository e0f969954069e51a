// Package lifecycle maps host events (cold start, foreground, permission and
// calendar changes, notification taps) onto reconciliation engine calls.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/julianstephens/nudge/internal/calendar"
	"github.com/julianstephens/nudge/internal/clock"
	"github.com/julianstephens/nudge/internal/constants"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/reconcile"
	"github.com/julianstephens/nudge/internal/storage"
)

type Config struct {
	Engine *reconcile.Engine
	Store  storage.Repository
	// Calendar is optional; without it calendar changes are ignored.
	Calendar calendar.Provider
	Clock    clock.Clock
	// Interval between periodic upkeep passes in Run.
	Interval time.Duration
	// CalendarMinGap is the minimum time between two calendar drift checks.
	CalendarMinGap time.Duration
	// CalendarTimeout bounds one drift check.
	CalendarTimeout time.Duration
	DedupeWindow    time.Duration
}

type Host struct {
	engine          *reconcile.Engine
	store           storage.Repository
	calendar        calendar.Provider
	clock           clock.Clock
	interval        time.Duration
	calendarTimeout time.Duration
	dedupeWindow    time.Duration
	limiter         *rate.Limiter
	notifyCh        chan struct{}

	mu    sync.Mutex
	links map[string]time.Time
}

func New(cfg Config) *Host {
	h := &Host{
		engine:          cfg.Engine,
		store:           cfg.Store,
		calendar:        cfg.Calendar,
		clock:           cfg.Clock,
		interval:        cfg.Interval,
		calendarTimeout: cfg.CalendarTimeout,
		dedupeWindow:    cfg.DedupeWindow,
		notifyCh:        make(chan struct{}, 1),
		links:           make(map[string]time.Time),
	}
	if h.clock == nil {
		h.clock = clock.Real{}
	}
	if h.interval <= 0 {
		h.interval = constants.LifecycleCheckInterval
	}
	if h.calendarTimeout <= 0 {
		h.calendarTimeout = constants.CalendarCheckTimeout
	}
	if h.dedupeWindow <= 0 {
		h.dedupeWindow = constants.DeepLinkDedupeWindow
	}
	gap := cfg.CalendarMinGap
	if gap <= 0 {
		gap = constants.CalendarCheckMinGap
	}
	h.limiter = rate.NewLimiter(rate.Every(gap), 1)
	return h
}

// ColdStart runs on process start: permissions first, then a full
// reconciliation, catch-up, pending migrations and archiving.
func (h *Host) ColdStart(ctx context.Context) error {
	return h.sync(ctx, reconcile.ModeFull)
}

// Foreground runs when the app returns to the foreground. It skips the
// DB-removed sweep a cold start performs.
func (h *Host) Foreground(ctx context.Context) error {
	return h.sync(ctx, reconcile.ModeLight)
}

func (h *Host) sync(ctx context.Context, mode reconcile.Mode) error {
	var errs []error

	if _, err := h.engine.CheckPermissions(ctx); err != nil {
		errs = append(errs, err)
	}
	if _, err := h.engine.Reconcile(ctx, mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := h.engine.CatchUp(ctx); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, h.upkeep(ctx)...)

	logger.Debug("Lifecycle sync finished", "mode", mode, "errors", len(errs))
	return errors.Join(errs...)
}

// upkeep migrates fired rolling windows, tops up the rest and archives
// passed one-off reminders.
func (h *Host) upkeep(ctx context.Context) []error {
	var errs []error
	if _, err := h.engine.MigratePending(ctx); err != nil && !errors.Is(err, reconcile.ErrMigrationBusy) {
		errs = append(errs, err)
	}
	if _, err := h.engine.Replenish(ctx); err != nil {
		errs = append(errs, err)
	}
	if _, err := h.engine.ArchiveExpired(ctx); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// PermissionChanged re-reads permissions after the platform reports a change.
// A regained permission is followed by a light reconciliation to re-arm.
func (h *Host) PermissionChanged(ctx context.Context) error {
	res, err := h.engine.CheckPermissions(ctx)
	if err != nil {
		return err
	}
	if res.Transition != models.TransitionNone {
		return nil
	}
	_, err = h.engine.Reconcile(ctx, reconcile.ModeLight)
	return err
}

// CalendarChanged checks imported reminders against their source events and
// applies edits and deletions. Checks closer together than the configured
// gap are skipped.
func (h *Host) CalendarChanged(ctx context.Context) (calendar.Drift, error) {
	if h.calendar == nil {
		return calendar.Drift{}, nil
	}
	if !h.limiter.Allow() {
		logger.Debug("Calendar check skipped, too soon after the previous one")
		return calendar.Drift{}, nil
	}

	reminders, err := h.store.ListReminders(ctx)
	if err != nil {
		return calendar.Drift{}, fmt.Errorf("failed to list reminders: %w", err)
	}
	drift, err := calendar.CheckDrift(ctx, h.calendar, reminders, h.calendarTimeout)
	if err != nil || drift.Empty() {
		return drift, err
	}

	var errs []error
	for _, c := range drift.Changed {
		fresh, err := calendar.Reimport(c.Reminder, c.Event)
		if err != nil {
			errs = append(errs, fmt.Errorf("reimport %s: %w", c.Reminder.ID, err))
			continue
		}
		if _, err := h.engine.Schedule(ctx, fresh); err != nil {
			errs = append(errs, fmt.Errorf("reschedule %s: %w", c.Reminder.ID, err))
			continue
		}
		logger.Info("Calendar event changed, reminder rescheduled", "reminder", c.Reminder.ID, "fields", c.Fields)
	}
	for _, r := range drift.Removed {
		if err := h.engine.Cancel(ctx, r.ID); err != nil {
			errs = append(errs, fmt.Errorf("cancel %s: %w", r.ID, err))
			continue
		}
		logger.Info("Calendar event removed, reminder cancelled", "reminder", r.ID)
	}
	return drift, errors.Join(errs...)
}

// Notify requests a foreground pass from Run. Requests made while one is
// already pending are coalesced.
func (h *Host) Notify() {
	select {
	case h.notifyCh <- struct{}{}:
	default:
	}
}

// Run performs a cold start, then periodic upkeep until ctx ends.
func (h *Host) Run(ctx context.Context) error {
	if err := h.ColdStart(ctx); err != nil {
		logger.Warn("Cold start finished with errors", "error", err)
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Lifecycle loop stopped")
			return nil
		case <-ticker.C:
			for _, err := range h.upkeep(ctx) {
				logger.Warn("Periodic upkeep failed", "error", err)
			}
			if _, err := h.engine.CatchUp(ctx); err != nil {
				logger.Warn("Periodic catch-up failed", "error", err)
			}
			if _, err := h.CalendarChanged(ctx); err != nil {
				logger.Warn("Calendar check failed", "error", err)
			}
		case <-h.notifyCh:
			if err := h.Foreground(ctx); err != nil {
				logger.Warn("Foreground sync finished with errors", "error", err)
			}
		}
	}
}
