package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/julianstephens/nudge/internal/backend"
	"github.com/julianstephens/nudge/internal/backend/asynqnotify"
	"github.com/julianstephens/nudge/internal/backend/cronalarm"
	"github.com/julianstephens/nudge/internal/backend/memory"
	"github.com/julianstephens/nudge/internal/backup"
	"github.com/julianstephens/nudge/internal/clock"
	"github.com/julianstephens/nudge/internal/config"
	"github.com/julianstephens/nudge/internal/constants"
	"github.com/julianstephens/nudge/internal/events"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/planner"
	"github.com/julianstephens/nudge/internal/reconcile"
	"github.com/julianstephens/nudge/internal/storage"
)

const (
	BackendAsynq  = "asynq"
	BackendMemory = "memory"
)

// Context is shared by every command.
type Context struct {
	Store       storage.Provider
	Conn        config.Connection
	Backend     string
	Redis       asynq.RedisClientOpt
	Permissions models.PermissionState
	Clock       clock.Clock
	Out         io.Writer
	In          io.Reader
	// Base is cancelled when the process is asked to stop.
	Base context.Context
}

// Runtime is an engine wired to the configured backends.
type Runtime struct {
	Engine        *reconcile.Engine
	Notifications backend.NotificationBackend
	Alarms        *cronalarm.Alarms
	// Queue is nil unless the asynq backend is selected.
	Queue       *asynqnotify.Backend
	Permissions *memory.Permissions
	Settings    models.Settings
	Location    *time.Location
	Bus         *events.Bus
}

// Context returns the command's base context.
func (c *Context) Context() context.Context {
	if c.Base == nil {
		return context.Background()
	}
	return c.Base
}

// Now reads the configured clock.
func (c *Context) Now() time.Time {
	if c.Clock == nil {
		return time.Now()
	}
	return c.Clock.Now()
}

func (c *Context) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

// Printf writes command output.
func (c *Context) Printf(format string, args ...any) {
	fmt.Fprintf(c.out(), format, args...)
}

// Println writes command output.
func (c *Context) Println(args ...any) {
	fmt.Fprintln(c.out(), args...)
}

// Confirm asks a yes/no question on the command's input. Anything but y or
// yes is a no.
func (c *Context) Confirm(prompt string) (bool, error) {
	in := c.In
	if in == nil {
		in = os.Stdin
	}
	fmt.Fprintf(c.out(), "%s [y/N]: ", prompt)
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}

// Open builds the runtime. deliver receives fired alarms; it may be nil for
// commands that never start the alarm runner.
func (c *Context) Open(ctx context.Context, deliver func(cronalarm.Fired)) (*Runtime, error) {
	settings, err := c.Store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	loc, err := LoadLocation(settings.Timezone)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Alarms:      cronalarm.New(loc, deliver),
		Permissions: memory.NewPermissions(c.Permissions.Notification, c.Permissions.Alarm),
		Settings:    settings,
		Location:    loc,
		Bus:         events.NewBus(),
	}

	switch c.Backend {
	case BackendMemory:
		rt.Notifications = memory.NewNotifications(0, loc)
	case BackendAsynq, "":
		rt.Queue = asynqnotify.New(c.Redis, loc)
		rt.Notifications = rt.Queue
	default:
		return nil, fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendAsynq, BackendMemory)
	}

	policy := planner.PolicyFromSettings(settings)
	cfg := reconcile.Config{
		Store:         c.Store,
		Notifications: rt.Notifications,
		Alarms:        rt.Alarms,
		Permissions:   rt.Permissions,
		Bus:           rt.Bus,
		Clock:         c.Clock,
		Policy:        &policy,
		Location:      loc,
		SummaryMode:   settings.ReconcileSummaryMode,
	}
	if !c.Conn.IsPostgres() {
		cfg.BeforeCleanup = backup.NewManager(c.Store.GetConfigPath()).BeforeCleanup
	}
	rt.Engine = reconcile.New(cfg)
	return rt, nil
}

// Close releases backend connections.
func (r *Runtime) Close() error {
	r.Alarms.Stop()
	if r.Queue != nil {
		return r.Queue.Close()
	}
	return nil
}

// CollectWarnings subscribes to engine warnings. The returned func drains
// whatever arrived since and unsubscribes.
func (r *Runtime) CollectWarnings() func() []string {
	ch, cancel := r.Bus.Subscribe(events.TopicWarning)
	return func() []string {
		defer cancel()
		var out []string
		for {
			select {
			case ev := <-ch:
				out = append(out, ev.Message)
			default:
				return out
			}
		}
	}
}

// LoadLocation resolves the timezone setting.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == constants.DefaultTimezone {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// PerformAutomaticBackup creates a backup of a sqlite store and only logs failures.
func (c *Context) PerformAutomaticBackup(ctx context.Context) {
	if c.Conn.IsPostgres() {
		return
	}
	if _, err := backup.NewManager(c.Store.GetConfigPath()).CreateBackup(ctx); err != nil {
		logger.Warn("Automatic backup failed", "error", err)
	}
}

var dayMap = map[string]time.Weekday{
	"sun":       time.Sunday,
	"sunday":    time.Sunday,
	"mon":       time.Monday,
	"monday":    time.Monday,
	"tue":       time.Tuesday,
	"tuesday":   time.Tuesday,
	"wed":       time.Wednesday,
	"wednesday": time.Wednesday,
	"thu":       time.Thursday,
	"thursday":  time.Thursday,
	"fri":       time.Friday,
	"friday":    time.Friday,
	"sat":       time.Saturday,
	"saturday":  time.Saturday,
}

// ParseWeekday parses a weekday name or number (0=Sunday, 6=Saturday).
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if wd, ok := dayMap[s]; ok {
		return wd, nil
	}
	num, err := strconv.Atoi(s)
	if err == nil && num >= 0 && num <= 6 {
		return time.Weekday(num), nil
	}
	return 0, fmt.Errorf("invalid weekday: %s", s)
}

// ParseClock parses HH:MM.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time format: %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// ParseWhen combines a YYYY-MM-DD date and an HH:MM time in loc. An empty
// date means today.
func ParseWhen(date, clockTime string, now time.Time, loc *time.Location) (time.Time, error) {
	hour, minute, err := ParseClock(clockTime)
	if err != nil {
		return time.Time{}, err
	}
	day := now.In(loc)
	if date != "" {
		day, err = time.ParseInLocation(constants.DateFormat, date, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), nil
}

// FormatCadence is the list/summary label for a reminder's repetition.
func FormatCadence(r models.ScheduledReminder) string {
	switch t := r.Trigger.(type) {
	case models.WeeklyTrigger:
		return fmt.Sprintf("weekly on %s", t.Weekday.String()[:3])
	case models.MonthlyTrigger:
		return fmt.Sprintf("monthly on day %d", t.Day)
	case models.YearlyTrigger:
		return fmt.Sprintf("yearly on %s %d", t.Month.String()[:3], t.Day)
	}
	if r.Cadence == models.CadenceNone {
		return "once"
	}
	return string(r.Cadence)
}
