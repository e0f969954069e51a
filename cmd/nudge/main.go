package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/hibiken/asynq"

	"github.com/julianstephens/nudge/internal/cli"
	"github.com/julianstephens/nudge/internal/cli/backups"
	"github.com/julianstephens/nudge/internal/cli/reminders"
	"github.com/julianstephens/nudge/internal/cli/settings"
	"github.com/julianstephens/nudge/internal/cli/syncing"
	"github.com/julianstephens/nudge/internal/cli/system"
	"github.com/julianstephens/nudge/internal/clock"
	"github.com/julianstephens/nudge/internal/config"
	"github.com/julianstephens/nudge/internal/constants"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/models"
)

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"SQLite path or PostgreSQL connection string. For PostgreSQL, credentials must NOT be embedded in the connection string. Use NUDGE_DB_CONNECTION, .pgpass, or the OS keyring instead." type:"string" default:"${default_config}"`
	Debug   bool   `help:"Log debug output to stderr."`

	Backend       string `help:"Notification backend." enum:"asynq,memory" default:"asynq" env:"NUDGE_BACKEND"`
	Redis         string `help:"Redis address used by the asynq backend." default:"127.0.0.1:6379" env:"NUDGE_REDIS_ADDR"`
	RedisPassword string `help:"Redis password." env:"NUDGE_REDIS_PASSWORD"`
	RedisDB       int    `help:"Redis database number." default:"0" env:"NUDGE_REDIS_DB"`

	NotificationPermission string `help:"Notification permission reported by the host." enum:"granted,denied" default:"granted" env:"NUDGE_NOTIFICATION_PERMISSION"`
	AlarmPermission        string `help:"Alarm permission reported by the host." enum:"authorized,denied,not_supported" default:"authorized" env:"NUDGE_ALARM_PERMISSION"`

	Init    system.InitCmd    `cmd:"" help:"Initialize nudge storage."`
	Migrate system.MigrateCmd `cmd:"" help:"Run database migrations."`
	Doctor  system.DoctorCmd  `cmd:"" help:"Run health checks and diagnostics."`
	Keyring system.KeyringCmd `cmd:"" help:"Manage the database connection string in the OS keyring."`
	Worker  system.WorkerCmd  `cmd:"" help:"Deliver reminders and keep the schedule reconciled until stopped."`
	Open    system.OpenCmd    `cmd:"" hidden:"" help:"Handle a notification deep link (used by nudge-tray)."`

	Add     reminders.AddCmd     `cmd:"" help:"Schedule a reminder."`
	Edit    reminders.EditCmd    `cmd:"" help:"Change a scheduled reminder."`
	Cancel  reminders.CancelCmd  `cmd:"" help:"Cancel a reminder."`
	List    reminders.ListCmd    `cmd:"" help:"List scheduled reminders." default:"1"`
	Archive reminders.ArchiveCmd `cmd:"" help:"Show delivered, cancelled and expired reminders."`
	Handled reminders.HandledCmd `cmd:"" help:"Mark a reminder as handled."`

	Reconcile   syncing.ReconcileCmd   `cmd:"" help:"Bring the delivery backends in line with the database."`
	CatchUp     syncing.CatchUpCmd     `cmd:"" name:"catch-up" help:"Record repeating reminders that fired while nothing was running."`
	Upkeep      syncing.UpkeepCmd      `cmd:"" help:"Migrate, top up and archive reminders."`
	Permissions syncing.PermissionsCmd `cmd:"" help:"Check permissions and clean up after a revocation."`
	Calendar    syncing.CalendarCmd    `cmd:"" help:"Import and sync reminders from calendar events."`

	Backup   backups.BackupCmd    `cmd:"" help:"Manage database backups."`
	Settings settings.SettingsCmd `cmd:"" help:"Manage application settings."`
}

// Commands that open or create the store themselves.
var selfLoading = map[string]bool{
	"init":    true,
	"migrate": true,
	"doctor":  true,
	"keyring": true,
}

func main() {
	if err := config.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Reminder scheduling that keeps notifications and alarms in sync with what you asked for"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":            constants.Version,
			"default_config":     constants.DefaultConfigPath,
			"worker_concurrency": strconv.Itoa(constants.DefaultWorkerConcurrency),
		},
	)
	command := strings.Fields(ctx.Command())[0]

	conn := config.ResolveConnection(CLI.Config)
	configDir, err := config.ConfigDir(conn)
	if err != nil {
		fail(err)
	}
	if err := logger.Init(logger.Config{Debug: CLI.Debug, ConfigDir: configDir, Stderr: command == "worker"}); err != nil {
		fail(fmt.Errorf("failed to initialize logging: %w", err))
	}
	logger.Debug("Resolved storage", "source", conn.Source, "postgres", conn.IsPostgres())

	store, err := config.OpenStore(conn)
	if err != nil && command != "keyring" {
		fail(err)
	}

	base, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !selfLoading[command] {
		if err := store.Load(base); err != nil {
			fail(err)
		}
	}
	if store != nil {
		defer store.Close()
	}

	appCtx := &cli.Context{
		Store:   store,
		Conn:    conn,
		Backend: CLI.Backend,
		Redis: asynq.RedisClientOpt{
			Addr:     CLI.Redis,
			Password: CLI.RedisPassword,
			DB:       CLI.RedisDB,
		},
		Permissions: models.PermissionState{
			Notification: models.NotificationPermission(CLI.NotificationPermission),
			Alarm:        models.AlarmPermission(CLI.AlarmPermission),
		},
		Clock: clock.Real{},
		Base:  base,
	}

	if err := ctx.Run(appCtx); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
