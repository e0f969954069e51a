package system

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/julianstephens/nudge/internal/backup"
	"github.com/julianstephens/nudge/internal/cli"
	"github.com/julianstephens/nudge/internal/constants"
	"github.com/julianstephens/nudge/internal/keyring"
)

type schemaVersioner interface {
	SchemaVersion(ctx context.Context) (current, latest int, err error)
}

type DoctorCmd struct{}

type check struct {
	name string
	// warnOnly checks print a warning instead of failing the run.
	warnOnly bool
	// needsDB checks are skipped when the database is unreachable.
	needsDB bool
	run     func(ctx context.Context, c *cli.Context) error
}

var checks = []check{
	{name: "Database reachable", run: checkDBReachable},
	{name: "Schema version", needsDB: true, run: checkSchemaVersion},
	{name: "Reminder integrity", needsDB: true, run: checkReminderIntegrity},
	{name: "Timezone", needsDB: true, run: checkTimezone},
	{name: "Clock", run: checkClock},
	{name: "Notification queue", run: checkRedis},
	{name: "Backups present", warnOnly: true, run: checkBackupsPresent},
	{name: "OS keyring", warnOnly: true, run: checkKeyring},
}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	base := ctx.Context()
	ctx.Println("Running diagnostics...")
	ctx.Println()

	hasError := false
	dbReachable := true
	for i, ch := range checks {
		if ch.needsDB && !dbReachable {
			ctx.Printf("⊘ %s: SKIPPED (database not reachable)\n", ch.name)
			continue
		}
		err := ch.run(base, ctx)
		switch {
		case err == nil:
			ctx.Printf("✓ %s: OK\n", ch.name)
		case ch.warnOnly:
			ctx.Printf("⚠ %s: WARNING\n", ch.name)
			ctx.Printf("   %v\n", err)
		default:
			ctx.Printf("❌ %s: FAIL\n", ch.name)
			ctx.Printf("   Error: %v\n", err)
			hasError = true
			if i == 0 {
				dbReachable = false
			}
		}
	}

	ctx.Println()
	if hasError {
		ctx.Println("Diagnostics completed with errors.")
		return fmt.Errorf("one or more health checks failed")
	}
	ctx.Println("All diagnostics passed!")
	return nil
}

func checkDBReachable(ctx context.Context, c *cli.Context) error {
	if err := c.Store.Load(ctx); err != nil {
		return fmt.Errorf("failed to load database: %w", err)
	}
	if _, err := c.Store.GetSettings(ctx); err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	return nil
}

func checkSchemaVersion(ctx context.Context, c *cli.Context) error {
	sv, ok := c.Store.(schemaVersioner)
	if !ok {
		return nil
	}
	current, latest, err := sv.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current > latest {
		return fmt.Errorf("database schema version (%d) is newer than supported version (%d)", current, latest)
	}
	if current < latest {
		return fmt.Errorf("migrations incomplete: current version %d, latest version %d", current, latest)
	}
	return nil
}

// checkReminderIntegrity looks for window instances whose reminder is gone
// and for duplicate ids across the schedule and the archive.
func checkReminderIntegrity(ctx context.Context, c *cli.Context) error {
	reminders, err := c.Store.ListReminders(ctx)
	if err != nil {
		return fmt.Errorf("failed to list reminders: %w", err)
	}
	archived, err := c.Store.ListArchived(ctx)
	if err != nil {
		return fmt.Errorf("failed to list archive: %w", err)
	}
	instances, err := c.Store.ListAllActiveInstances(ctx)
	if err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}

	known := make(map[string]bool, len(reminders))
	for _, r := range reminders {
		known[r.ID.String()] = true
	}
	for _, a := range archived {
		if known[a.ID.String()] {
			return fmt.Errorf("reminder %s is both scheduled and archived", a.ID)
		}
	}
	orphans := 0
	for _, inst := range instances {
		if !known[inst.ParentID.String()] {
			orphans++
		}
	}
	if orphans > 0 {
		return fmt.Errorf("found %d active window instance(s) without a scheduled reminder (run 'nudge reconcile --full')", orphans)
	}
	return nil
}

func checkTimezone(ctx context.Context, c *cli.Context) error {
	settings, err := c.Store.GetSettings(ctx)
	if err != nil {
		return err
	}
	_, err = cli.LoadLocation(settings.Timezone)
	return err
}

func checkClock(ctx context.Context, c *cli.Context) error {
	now := c.Now()
	if now.Year() < 2020 || now.Year() > 2100 {
		return fmt.Errorf("system time appears incorrect: %s", now.Format(time.RFC3339))
	}
	return nil
}

func checkRedis(ctx context.Context, c *cli.Context) error {
	if c.Backend != cli.BackendAsynq {
		return nil
	}
	return pingRedis(ctx, c)
}

func pingRedis(ctx context.Context, c *cli.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:        c.Redis.Addr,
		Username:    c.Redis.Username,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		DialTimeout: constants.RedisDialTimeout,
		MaxRetries:  -1,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, constants.RedisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis at %s is not reachable: %w", c.Redis.Addr, err)
	}
	return nil
}

func checkBackupsPresent(ctx context.Context, c *cli.Context) error {
	if c.Conn.IsPostgres() {
		return nil
	}
	backups, err := backup.NewManager(c.Store.GetConfigPath()).ListBackups()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) == 0 {
		return fmt.Errorf("no backups found - consider creating one with 'nudge backup create'")
	}
	return nil
}

func checkKeyring(ctx context.Context, c *cli.Context) error {
	if !keyring.IsAvailable() {
		return fmt.Errorf("the OS keyring is not available; PostgreSQL credentials must come from the environment")
	}
	return nil
}
