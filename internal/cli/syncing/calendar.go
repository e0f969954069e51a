package syncing

import (
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/nudge/internal/calendar"
	"github.com/julianstephens/nudge/internal/cli"
	"github.com/julianstephens/nudge/internal/lifecycle"
	"github.com/julianstephens/nudge/internal/reconcile"
)

type CalendarCmd struct {
	Import CalendarImportCmd `cmd:"" help:"Create reminders from events in an exported calendar file."`
	Sync   CalendarSyncCmd   `cmd:"" help:"Apply edits and deletions from the calendar file to imported reminders."`
}

type CalendarImportCmd struct {
	File     string        `arg:"" help:"JSON file of calendar events." type:"existingfile"`
	Calendar string        `required:"" short:"c" help:"Calendar ID to import from."`
	Event    string        `short:"e" help:"Import only this event ID."`
	Lead     time.Duration `default:"15m" help:"How long before the event starts to remind."`
	Alarm    bool          `short:"a" help:"Also raise an alarm."`
}

func (c *CalendarImportCmd) Run(ctx *cli.Context) error {
	base := ctx.Context()
	provider, err := calendar.LoadFile(c.File)
	if err != nil {
		return err
	}
	events, err := provider.Events(base, c.Calendar)
	if err != nil {
		return err
	}

	existing, err := ctx.Store.ListReminders(base)
	if err != nil {
		return fmt.Errorf("failed to list reminders: %w", err)
	}
	imported := make(map[string]bool)
	for _, r := range existing {
		if r.IsCalendarDerived() {
			imported[r.Calendar.CalendarID+"/"+r.Calendar.EventID] = true
		}
	}

	rt, err := ctx.Open(base, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	added, skipped := 0, 0
	for _, ev := range events {
		if c.Event != "" && ev.ID != c.Event {
			continue
		}
		if imported[ev.CalendarID+"/"+ev.ID] {
			skipped++
			continue
		}
		r, err := calendar.ImportEvent(ev, c.Lead)
		if err != nil {
			ctx.Println(cli.RenderWarning(fmt.Sprintf("%s: %v", ev.ID, err)))
			skipped++
			continue
		}
		r.HasAlarm = c.Alarm
		if _, err := rt.Engine.Schedule(base, r); err != nil {
			if errors.Is(err, reconcile.ErrInPast) {
				skipped++
				continue
			}
			return fmt.Errorf("failed to schedule %s: %w", ev.ID, err)
		}
		added++
	}

	ctx.Printf("✓ Imported %d event(s), skipped %d\n", added, skipped)
	return nil
}

type CalendarSyncCmd struct {
	File string `arg:"" help:"JSON file of calendar events." type:"existingfile"`
}

func (c *CalendarSyncCmd) Run(ctx *cli.Context) error {
	base := ctx.Context()
	provider, err := calendar.LoadFile(c.File)
	if err != nil {
		return err
	}

	rt, err := ctx.Open(base, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	host := lifecycle.New(lifecycle.Config{
		Engine:   rt.Engine,
		Store:    ctx.Store,
		Calendar: provider,
		Clock:    ctx.Clock,
	})
	drift, err := host.CalendarChanged(base)
	if drift.TimedOut {
		ctx.Println(cli.RenderWarning("Calendar did not answer in time; nothing changed."))
	}
	ctx.Printf("✓ %d reminder(s) updated, %d removed\n", len(drift.Changed), len(drift.Removed))
	return err
}
