package reminders

import (
	"fmt"

	"github.com/julianstephens/nudge/internal/cli"
	"github.com/julianstephens/nudge/internal/models"
)

// EditCmd replaces a reminder's content or timing. Every native artifact of
// the previous version is cancelled and the reminder is planned again.
type EditCmd struct {
	ID      string  `arg:"" help:"Reminder ID."`
	Title   *string `help:"New title."`
	Body    *string `help:"New body."`
	Note    *string `help:"New note."`
	Link    *string `help:"New link."`
	At      string  `short:"t" help:"New time of day (HH:MM)."`
	Date    string  `short:"d" help:"New date (YYYY-MM-DD). Requires --at."`
	Repeat  string  `short:"r" help:"New repeat cadence (none|daily|weekly|monthly|yearly)."`
	Weekday string  `short:"w" help:"New weekday for weekly reminders. Requires --at."`
	Alarm   bool    `help:"Arm an alarm." xor:"alarm"`
	NoAlarm bool    `help:"Disarm the alarm." xor:"alarm"`
}

func (c *EditCmd) Validate() error {
	if (c.Date != "" || c.Weekday != "") && c.At == "" {
		return fmt.Errorf("--date and --weekday require --at")
	}
	return nil
}

func (c *EditCmd) Run(ctx *cli.Context) error {
	base := ctx.Context()
	id, err := models.ParseReminderID(c.ID)
	if err != nil {
		return err
	}
	r, err := ctx.Store.GetReminder(base, id)
	if err != nil {
		return fmt.Errorf("failed to load reminder: %w", err)
	}

	rt, err := ctx.Open(base, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	if c.Title != nil {
		r.Title = *c.Title
	}
	if c.Body != nil {
		r.Body = *c.Body
	}
	if c.Note != nil {
		r.Note = *c.Note
	}
	if c.Link != nil {
		r.Link = *c.Link
	}
	if c.Alarm {
		r.HasAlarm = true
	}
	if c.NoAlarm {
		r.HasAlarm = false
	}
	if c.Repeat != "" {
		if r.Cadence, err = models.ParseCadence(c.Repeat); err != nil {
			return err
		}
	}
	if c.At != "" {
		if r.ScheduleInstant, err = ParseFirst(c.Date, c.At, c.Weekday, ctx.Now(), rt.Location); err != nil {
			return err
		}
	}
	// Calendar provenance is dropped once the user takes over the timing.
	if c.At != "" || c.Repeat != "" {
		r.Calendar = nil
	}

	updated, err := rt.Engine.Schedule(base, r)
	if err != nil {
		return fmt.Errorf("failed to reschedule reminder: %w", err)
	}
	ctx.Printf("✓ Updated %q (%s, %s)\n", updated.Title, cli.FormatCadence(updated), updated.DeliveryMethod)
	return nil
}
