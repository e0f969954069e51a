package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/reconcile"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Width(22)

	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)

	warningStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

func row(label string, value any) string {
	return labelStyle.Render(label) + fmt.Sprint(value)
}

// RenderSummary draws a reconciliation summary box.
func RenderSummary(sum reconcile.Summary) string {
	lines := []string{
		titleStyle.Render(fmt.Sprintf("Reconciliation (%s)", sum.Mode)),
		row("Orphans cancelled", sum.CancelledPlatformOrphans),
		row("Rescheduled", sum.RescheduledItems),
		row("Removed groups", sum.CancelledDbRemovedItems),
		row("Failures", sum.Failures),
	}
	if !sum.Changed() && sum.Failures == 0 {
		lines = append(lines, dimStyle.Render("Everything already in sync."))
	}
	return summaryStyle.Render(strings.Join(lines, "\n"))
}

// RenderWarning formats a one-time warning.
func RenderWarning(msg string) string {
	return warningStyle.Render("⚠ " + msg)
}

// RenderReminders lists scheduled reminders, one per line.
func RenderReminders(reminders []models.ScheduledReminder, loc *time.Location) string {
	if len(reminders) == 0 {
		return dimStyle.Render("No reminders scheduled.")
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%d reminder(s)", len(reminders))))
	b.WriteString("\n")
	for _, r := range reminders {
		alarm := ""
		if r.HasAlarm {
			alarm = " ⏰"
		}
		fmt.Fprintf(&b, "%s  %s  %s%s\n    %s\n",
			r.ScheduleInstant.In(loc).Format("2006-01-02 15:04"),
			r.Title,
			dimStyle.Render("["+FormatCadence(r)+", "+string(r.DeliveryMethod)+"]"),
			alarm,
			dimStyle.Render(r.ID.String()),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderArchived lists archived reminders with their terminal state.
func RenderArchived(archived []models.ArchivedReminder, loc *time.Location) string {
	if len(archived) == 0 {
		return dimStyle.Render("Archive is empty.")
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%d archived reminder(s)", len(archived))))
	b.WriteString("\n")
	for _, a := range archived {
		state := "expired"
		switch {
		case a.HandledAt != nil:
			state = "handled " + a.HandledAt.In(loc).Format("2006-01-02 15:04")
		case a.CancelledAt != nil:
			state = "cancelled " + a.CancelledAt.In(loc).Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&b, "%s  %s  %s\n    %s\n",
			a.ScheduleInstant.In(loc).Format("2006-01-02 15:04"),
			a.Title,
			dimStyle.Render("["+state+"]"),
			dimStyle.Render(a.ID.String()),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}
