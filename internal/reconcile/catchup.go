package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/julianstephens/nudge/internal/constants"
	apperrors "github.com/julianstephens/nudge/internal/errors"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/window"
)

// CatchUpResult counts the occurrences recorded by a catch-up pass.
type CatchUpResult struct {
	Recorded int
	// Capped lists reminders whose walk stopped at the iteration cap.
	Capped   []models.ReminderID
	Failures int
}

// CatchUp records the firings of repeating reminders that happened while the
// app was not running. Each reminder walks forward from its latest recorded
// occurrence, or from its schedule instant when none exists, one cadence step
// at a time until now. A walk that reaches the iteration cap stops quietly;
// the next pass resumes from where it ended.
func (e *Engine) CatchUp(ctx context.Context) (CatchUpResult, error) {
	var res CatchUpResult

	reminders, err := e.store.ListReminders(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list reminders: %w", err)
	}

	now := e.now()
	for _, r := range reminders {
		if !r.Cadence.IsRepeating() {
			continue
		}
		recorded, capped, err := e.catchUpReminder(ctx, r, now)
		res.Recorded += recorded
		if err != nil {
			logger.Warn("Catch-up failed", "reminder", r.ID, "error", err)
			res.Failures++
			continue
		}
		if capped {
			logger.Warn("Catch-up stopped at iteration cap", "reminder", r.ID, "cap", constants.CatchUpMaxIterations)
			res.Capped = append(res.Capped, r.ID)
		}
	}

	if res.Recorded > 0 {
		logger.Info("Recorded missed occurrences", "count", res.Recorded)
		e.refresh("catch-up")
	}
	return res, nil
}

func (e *Engine) catchUpReminder(ctx context.Context, r models.ScheduledReminder, now time.Time) (int, bool, error) {
	origin := r.ScheduleInstant.In(e.loc)
	anchor := origin.Day()

	next := origin
	latest, err := e.store.LatestOccurrence(ctx, r.ID)
	switch {
	case err == nil:
		next = window.Step(latest.FireInstant.In(e.loc), r.Cadence, anchor)
	case !apperrors.IsNotFound(err):
		return 0, false, err
	}

	snapshot := r.Content
	recorded := 0
	for i := 0; i < constants.CatchUpMaxIterations; i++ {
		if next.After(now) {
			return recorded, false, nil
		}
		occ := models.RepeatOccurrence{
			ParentID:    r.ID,
			FireInstant: next.UTC(),
			Source:      models.SourceCatchUp,
			Snapshot:    snapshot,
			RecordedAt:  now,
		}
		inserted, err := e.store.RecordOccurrence(ctx, occ)
		if err != nil {
			return recorded, false, err
		}
		if inserted {
			recorded++
		}
		next = window.Step(next, r.Cadence, anchor)
	}
	return recorded, !next.After(now), nil
}
