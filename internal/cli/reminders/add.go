package reminders

import (
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/nudge/internal/cli"
	"github.com/julianstephens/nudge/internal/models"
)

type AddCmd struct {
	Title   string `arg:"" help:"Reminder title."`
	At      string `short:"t" help:"Time of day (HH:MM)." required:""`
	Date    string `short:"d" help:"Date of the first occurrence (YYYY-MM-DD). Defaults to today."`
	Repeat  string `short:"r" help:"Repeat cadence." enum:"none,daily,weekly,monthly,yearly" default:"none"`
	Weekday string `short:"w" help:"Weekday for weekly reminders. Moves the first occurrence forward to that day."`
	Body    string `short:"b" help:"Notification body."`
	Note    string `help:"Private note shown when the reminder is opened."`
	Link    string `help:"Link opened with the reminder."`
	Alarm   bool   `short:"a" help:"Also arm an alarm."`
}

func (c *AddCmd) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("title cannot be empty")
	}
	if c.Weekday != "" && c.Repeat != string(models.CadenceWeekly) {
		return fmt.Errorf("--weekday only applies to weekly reminders")
	}
	return nil
}

func (c *AddCmd) Run(ctx *cli.Context) error {
	base := ctx.Context()
	rt, err := ctx.Open(base, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	cadence, err := models.ParseCadence(c.Repeat)
	if err != nil {
		return err
	}
	at, err := ParseFirst(c.Date, c.At, c.Weekday, ctx.Now(), rt.Location)
	if err != nil {
		return err
	}

	r, err := rt.Engine.Schedule(base, models.ScheduledReminder{
		Content:         models.Content{Title: c.Title, Body: c.Body, Note: c.Note, Link: c.Link},
		ScheduleInstant: at,
		Cadence:         cadence,
		HasAlarm:        c.Alarm,
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reminder: %w", err)
	}

	ctx.Printf("✓ Scheduled %q (%s, %s)\n", r.Title, cli.FormatCadence(r), r.DeliveryMethod)
	ctx.Printf("  First: %s\n", r.ScheduleInstant.In(rt.Location).Format("2006-01-02 15:04 MST"))
	ctx.Printf("  ID:    %s\n", r.ID)
	if c.Alarm && !r.HasAlarm {
		ctx.Println(cli.RenderWarning("Alarms are unavailable; scheduled without an alarm."))
	}
	return nil
}

// ParseFirst resolves the first occurrence from the date, time and optional weekday flags.
func ParseFirst(date, clockTime, weekday string, now time.Time, loc *time.Location) (time.Time, error) {
	at, err := cli.ParseWhen(date, clockTime, now, loc)
	if err != nil {
		return time.Time{}, err
	}
	if weekday == "" {
		return at, nil
	}
	wd, err := cli.ParseWeekday(weekday)
	if err != nil {
		return time.Time{}, err
	}
	shift := (int(wd) - int(at.Weekday()) + 7) % 7
	return at.AddDate(0, 0, shift), nil
}
