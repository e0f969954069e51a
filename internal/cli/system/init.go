package system

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/julianstephens/nudge/internal/cli"
	"github.com/julianstephens/nudge/internal/config"
	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/storage"
)

type InitCmd struct {
	Force  bool   `help:"Force reset by deleting existing database before initialization."`
	Source string `help:"Source database path or connection string to copy reminders from."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	base := ctx.Context()
	if c.Force {
		if ctx.Conn.IsPostgres() {
			return fmt.Errorf("--force is only supported for sqlite storage")
		}
		dbPath := ctx.Store.GetConfigPath()
		if c.Source != "" {
			absDB, err := filepath.Abs(dbPath)
			if err == nil {
				dbPath = absDB
			}
			absSource, err := filepath.Abs(c.Source)
			if err == nil && absSource == dbPath {
				return fmt.Errorf("cannot use --force when source and destination are the same: %s", dbPath)
			}
		}
		if _, err := os.Stat(dbPath); err == nil {
			if err := ctx.Store.Close(); err != nil {
				return fmt.Errorf("failed to close existing database: %w", err)
			}
			for _, suffix := range []string{"", "-wal", "-shm"} {
				if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("failed to delete existing database: %w", err)
				}
			}
			ctx.Printf("Deleted existing database at: %s\n", dbPath)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to access existing database: %w", err)
		}
	}

	if err := ctx.Store.Init(base); err != nil {
		return err
	}
	ctx.Printf("Initialized nudge storage at: %s\n", ctx.Store.GetConfigPath())

	if c.Source != "" {
		ctx.Printf("Copying data from: %s\n", c.Source)
		if err := c.copyFrom(base, ctx); err != nil {
			return fmt.Errorf("copy failed: %w", err)
		}
		ctx.Println("Copy completed. Run 'nudge reconcile --full' to register the copied reminders.")
	}
	return nil
}

func (c *InitCmd) copyFrom(base context.Context, ctx *cli.Context) error {
	source, err := config.OpenStore(config.Connection{Value: c.Source, Source: config.SourceFlag})
	if err != nil {
		return err
	}
	if err := source.Load(base); err != nil {
		return fmt.Errorf("failed to load source database: %w", err)
	}
	defer source.Close()

	n, err := CopyData(base, source, ctx.Store)
	if err != nil {
		return err
	}
	ctx.Printf("  Copied settings, %d reminder(s), %d archived, %d occurrence(s)\n", n.Reminders, n.Archived, n.Occurrences)
	return nil
}

// CopyCounts reports what CopyData wrote.
type CopyCounts struct {
	Reminders   int
	Archived    int
	Occurrences int
}

// CopyData copies settings, reminders, the archive and the occurrence log
// from src into dst. Tracked window instances are not copied: they describe
// registrations on the source host's backends, and reconciliation rebuilds them.
func CopyData(ctx context.Context, src storage.Repository, dst storage.Provider) (CopyCounts, error) {
	var n CopyCounts

	settings, err := src.GetSettings(ctx)
	if err != nil {
		return n, fmt.Errorf("failed to get settings from source: %w", err)
	}
	reminders, err := src.ListReminders(ctx)
	if err != nil {
		return n, fmt.Errorf("failed to get reminders from source: %w", err)
	}
	archived, err := src.ListArchived(ctx)
	if err != nil {
		return n, fmt.Errorf("failed to get archive from source: %w", err)
	}

	err = dst.WithTx(ctx, func(repo storage.Repository) error {
		if err := repo.SaveSettings(ctx, settings); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		for _, r := range reminders {
			if err := repo.AddReminder(ctx, r); err != nil {
				return fmt.Errorf("failed to add reminder %s: %w", r.ID, err)
			}
			n.Reminders++
			copied, err := copyOccurrences(ctx, src, repo, r.ID)
			if err != nil {
				return err
			}
			n.Occurrences += copied
		}
		for _, a := range archived {
			if err := repo.ArchiveReminder(ctx, a); err != nil {
				return fmt.Errorf("failed to archive reminder %s: %w", a.ID, err)
			}
			n.Archived++
			copied, err := copyOccurrences(ctx, src, repo, a.ID)
			if err != nil {
				return err
			}
			n.Occurrences += copied
		}
		return nil
	})
	return n, err
}

func copyOccurrences(ctx context.Context, src, dst storage.Repository, id models.ReminderID) (int, error) {
	occs, err := src.ListOccurrences(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to get occurrences of %s: %w", id, err)
	}
	copied := 0
	for _, occ := range occs {
		inserted, err := dst.RecordOccurrence(ctx, occ)
		if err != nil {
			return copied, fmt.Errorf("failed to copy occurrence of %s: %w", id, err)
		}
		if inserted {
			copied++
		}
	}
	return copied, nil
}
