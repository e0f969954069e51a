package settings

import (
	"fmt"

	"github.com/julianstephens/nudge/internal/cli"
	"github.com/julianstephens/nudge/internal/constants"
)

// maxWindow keeps rolling windows well inside the 64 pending notifications
// most platforms allow per app.
const maxWindow = 32

type SettingsCmd struct {
	List bool `help:"List current settings."`

	Timezone        *string `help:"IANA timezone reminders are planned in, or Local."`
	SummaryMode     *string `help:"How reconciliation results are reported: silent or alert."`
	WindowDaily     *int    `help:"Rolling window size for daily reminders."`
	WindowWeekly    *int    `help:"Rolling window size for weekly reminders."`
	WindowMonthly   *int    `help:"Rolling window size for monthly reminders."`
	WindowYearly    *int    `help:"Rolling window size for yearly reminders."`
	DailyLeadHours  *int    `help:"Daily reminders starting sooner than this use a rolling window."`
	WeeklyLeadHours *int    `help:"Weekly reminders starting sooner than this use a rolling window."`
}

func (c *SettingsCmd) Validate() error {
	if c.Timezone != nil {
		if _, err := cli.LoadLocation(*c.Timezone); err != nil {
			return err
		}
	}
	if c.SummaryMode != nil && *c.SummaryMode != constants.SummaryModeSilent && *c.SummaryMode != constants.SummaryModeAlert {
		return fmt.Errorf("summary mode must be %s or %s", constants.SummaryModeSilent, constants.SummaryModeAlert)
	}
	for name, v := range map[string]*int{
		"window-daily":   c.WindowDaily,
		"window-weekly":  c.WindowWeekly,
		"window-monthly": c.WindowMonthly,
		"window-yearly":  c.WindowYearly,
	} {
		if v != nil && (*v < 1 || *v > maxWindow) {
			return fmt.Errorf("--%s must be between 1 and %d", name, maxWindow)
		}
	}
	for name, v := range map[string]*int{
		"daily-lead-hours":  c.DailyLeadHours,
		"weekly-lead-hours": c.WeeklyLeadHours,
	} {
		if v != nil && *v < 1 {
			return fmt.Errorf("--%s must be at least 1", name)
		}
	}
	return nil
}

func (c *SettingsCmd) Run(ctx *cli.Context) error {
	base := ctx.Context()
	settings, err := ctx.Store.GetSettings(base)
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	if c.List {
		ctx.Println("Current Settings:")
		ctx.Printf("  Timezone:              %s\n", settings.Timezone)
		ctx.Printf("  Summary Mode:          %s\n", settings.ReconcileSummaryMode)
		ctx.Println("\nRolling Windows:")
		ctx.Printf("  Daily:                 %d\n", settings.WindowDaily)
		ctx.Printf("  Weekly:                %d\n", settings.WindowWeekly)
		ctx.Printf("  Monthly:               %d\n", settings.WindowMonthly)
		ctx.Printf("  Yearly:                %d\n", settings.WindowYearly)
		ctx.Printf("  Daily Lead:            %d h\n", settings.DailyLeadHours)
		ctx.Printf("  Weekly Lead:           %d h\n", settings.WeeklyLeadHours)
		ctx.Println("\nPermissions:")
		ctx.Printf("  Alarms Denied:         %v\n", settings.AlarmDenied)
		return nil
	}

	updated := false
	set := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
			updated = true
		}
	}
	if c.Timezone != nil {
		settings.Timezone = *c.Timezone
		updated = true
	}
	if c.SummaryMode != nil {
		settings.ReconcileSummaryMode = *c.SummaryMode
		updated = true
	}
	set(&settings.WindowDaily, c.WindowDaily)
	set(&settings.WindowWeekly, c.WindowWeekly)
	set(&settings.WindowMonthly, c.WindowMonthly)
	set(&settings.WindowYearly, c.WindowYearly)
	set(&settings.DailyLeadHours, c.DailyLeadHours)
	set(&settings.WeeklyLeadHours, c.WeeklyLeadHours)

	if !updated {
		ctx.Println("No changes specified. Use --list to view settings or flags to update them.")
		return nil
	}
	if err := ctx.Store.SaveSettings(base, settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	ctx.Println("Settings updated successfully.")
	if c.Timezone != nil {
		ctx.Println("Run 'nudge reconcile --full' so existing reminders are re-planned in the new timezone.")
	}
	return nil
}
