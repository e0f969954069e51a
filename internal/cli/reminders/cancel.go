package reminders

import (
	"fmt"

	"github.com/julianstephens/nudge/internal/cli"
	"github.com/julianstephens/nudge/internal/models"
)

type CancelCmd struct {
	ID string `arg:"" help:"Reminder ID."`
}

func (c *CancelCmd) Run(ctx *cli.Context) error {
	base := ctx.Context()
	id, err := models.ParseReminderID(c.ID)
	if err != nil {
		return err
	}
	rt, err := ctx.Open(base, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.Engine.Cancel(base, id); err != nil {
		return fmt.Errorf("failed to cancel reminder: %w", err)
	}
	ctx.Printf("✓ Cancelled reminder %s\n", id)
	return nil
}
