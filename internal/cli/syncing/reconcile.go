// Package syncing holds the commands that bring the store and the delivery
// backends back in line: reconcile, catch-up, upkeep, permissions and calendar.
package syncing

import (
	"errors"
	"fmt"

	"github.com/julianstephens/nudge/internal/cli"
	"github.com/julianstephens/nudge/internal/reconcile"
)

type ReconcileCmd struct {
	Full bool `help:"Also sweep reminders that were removed from the database (cold start pass)."`
}

func (c *ReconcileCmd) Run(ctx *cli.Context) error {
	base := ctx.Context()
	rt, err := ctx.Open(base, nil)
	if err != nil {
		return err
	}
	defer rt.Close()
	warnings := rt.CollectWarnings()

	mode := reconcile.ModeLight
	if c.Full {
		mode = reconcile.ModeFull
		ctx.PerformAutomaticBackup(base)
	}
	sum, err := rt.Engine.Reconcile(base, mode)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}
	ctx.Println(cli.RenderSummary(sum))
	printWarnings(ctx, warnings())
	return nil
}

type CatchUpCmd struct{}

func (c *CatchUpCmd) Run(ctx *cli.Context) error {
	base := ctx.Context()
	rt, err := ctx.Open(base, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.Engine.CatchUp(base)
	if err != nil {
		return fmt.Errorf("catch-up failed: %w", err)
	}
	ctx.Printf("✓ Recorded %d missed occurrence(s)\n", res.Recorded)
	if len(res.Capped) > 0 {
		ctx.Println(cli.RenderWarning(fmt.Sprintf("%d reminder(s) had more missed occurrences than are recorded at once; run catch-up again.", len(res.Capped))))
	}
	if res.Failures > 0 {
		ctx.Println(cli.RenderWarning(fmt.Sprintf("%d reminder(s) could not be caught up", res.Failures)))
	}
	return nil
}

// UpkeepCmd runs the periodic maintenance a long-running worker does on its own.
type UpkeepCmd struct{}

func (c *UpkeepCmd) Run(ctx *cli.Context) error {
	base := ctx.Context()
	rt, err := ctx.Open(base, nil)
	if err != nil {
		return err
	}
	defer rt.Close()
	warnings := rt.CollectWarnings()

	mig, err := rt.Engine.MigratePending(base)
	switch {
	case errors.Is(err, reconcile.ErrMigrationBusy):
		ctx.Println(cli.RenderWarning("Another process is migrating reminders; skipped."))
	case err != nil:
		return fmt.Errorf("migration failed: %w", err)
	default:
		ctx.Printf("✓ Migrated %d reminder(s) to native repeats (%d not due yet)\n", mig.Migrated, mig.Skipped)
	}

	rep, err := rt.Engine.Replenish(base)
	if err != nil {
		return fmt.Errorf("replenish failed: %w", err)
	}
	ctx.Printf("✓ Added %d window instance(s)\n", rep.Added)

	archived, err := rt.Engine.ArchiveExpired(base)
	if err != nil {
		return fmt.Errorf("archive failed: %w", err)
	}
	ctx.Printf("✓ Archived %d expired reminder(s)\n", archived)

	if failures := mig.Failures + rep.Failures; failures > 0 {
		ctx.Println(cli.RenderWarning(fmt.Sprintf("%d item(s) failed; they will be retried", failures)))
	}
	printWarnings(ctx, warnings())
	return nil
}

func printWarnings(ctx *cli.Context, warnings []string) {
	for _, w := range warnings {
		ctx.Println(cli.RenderWarning(w))
	}
}
