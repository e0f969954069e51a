package system

import (
	"context"
	"fmt"

	"github.com/julianstephens/nudge/internal/cli"
)

type migrator interface {
	ApplyMigrations(ctx context.Context, logFn func(string)) (int, error)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx *cli.Context) error {
	m, ok := ctx.Store.(migrator)
	if !ok {
		return fmt.Errorf("storage %T does not support migrations", ctx.Store)
	}

	count, err := m.ApplyMigrations(ctx.Context(), func(msg string) {
		ctx.Println(msg)
	})
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if count == 0 {
		ctx.Println("No migrations to apply. Database is up to date.")
	} else {
		ctx.Printf("\nSuccessfully applied %d migration(s).\n", count)
	}
	return nil
}
