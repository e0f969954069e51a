package reminders

import (
	"fmt"
	"sort"
	"time"

	"github.com/julianstephens/nudge/internal/cli"
	"github.com/julianstephens/nudge/internal/models"
)

// ArchiveCmd lists the archive. With --sweep it first archives passed one-off reminders.
type ArchiveCmd struct {
	Sweep bool `help:"Archive one-off reminders whose moment has passed before listing."`
}

func (c *ArchiveCmd) Run(ctx *cli.Context) error {
	base := ctx.Context()
	rt, err := ctx.Open(base, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	if c.Sweep {
		n, err := rt.Engine.ArchiveExpired(base)
		if err != nil {
			return fmt.Errorf("failed to archive expired reminders: %w", err)
		}
		ctx.Printf("✓ Archived %d expired reminder(s)\n", n)
	}

	archived, err := ctx.Store.ListArchived(base)
	if err != nil {
		return fmt.Errorf("failed to list archive: %w", err)
	}
	sort.SliceStable(archived, func(i, j int) bool {
		return archived[i].ArchivedAt.After(archived[j].ArchivedAt)
	})
	ctx.Println(cli.RenderArchived(archived, rt.Location))
	return nil
}

// HandledCmd records that the user opened a reminder.
type HandledCmd struct {
	ID   string `arg:"" help:"Reminder ID."`
	Fire string `help:"Fire instant of the occurrence being handled (RFC 3339). Defaults to now."`
}

func (c *HandledCmd) Run(ctx *cli.Context) error {
	base := ctx.Context()
	id, err := models.ParseReminderID(c.ID)
	if err != nil {
		return err
	}
	fire := ctx.Now()
	if c.Fire != "" {
		if fire, err = time.Parse(time.RFC3339, c.Fire); err != nil {
			return fmt.Errorf("invalid --fire: %w", err)
		}
	}

	rt, err := ctx.Open(base, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.Engine.RecordDelivery(base, id, fire, models.SourceTap); err != nil {
		return fmt.Errorf("failed to mark reminder handled: %w", err)
	}
	ctx.Printf("✓ Marked %s handled\n", id)
	return nil
}
