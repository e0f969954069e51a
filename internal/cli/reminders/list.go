package reminders

import (
	"fmt"
	"sort"

	"github.com/julianstephens/nudge/internal/cli"
)

type ListCmd struct{}

func (c *ListCmd) Run(ctx *cli.Context) error {
	base := ctx.Context()
	settings, err := ctx.Store.GetSettings(base)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	loc, err := cli.LoadLocation(settings.Timezone)
	if err != nil {
		return err
	}
	reminders, err := ctx.Store.ListReminders(base)
	if err != nil {
		return fmt.Errorf("failed to list reminders: %w", err)
	}
	sort.SliceStable(reminders, func(i, j int) bool {
		return reminders[i].ScheduleInstant.Before(reminders[j].ScheduleInstant)
	})
	ctx.Println(cli.RenderReminders(reminders, loc))
	return nil
}
