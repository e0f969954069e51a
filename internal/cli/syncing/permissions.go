package syncing

import (
	"fmt"

	"github.com/julianstephens/nudge/internal/cli"
	"github.com/julianstephens/nudge/internal/models"
)

// PermissionsCmd compares the current permissions with the last recorded
// ones and cleans up after a revocation.
type PermissionsCmd struct{}

func (c *PermissionsCmd) Run(ctx *cli.Context) error {
	base := ctx.Context()
	rt, err := ctx.Open(base, nil)
	if err != nil {
		return err
	}
	defer rt.Close()
	warnings := rt.CollectWarnings()

	res, err := rt.Engine.CheckPermissions(base)
	if err != nil {
		return err
	}

	ctx.Printf("Notifications: %s → %s\n", label(string(res.Previous.Notification)), label(string(res.Current.Notification)))
	ctx.Printf("Alarms:        %s → %s\n", label(string(res.Previous.Alarm)), label(string(res.Current.Alarm)))
	switch res.Transition {
	case models.TransitionNone:
		ctx.Println("No permission was revoked.")
	case models.TransitionNotificationRevoked:
		ctx.Printf("Notification permission revoked: %d reminder(s) archived\n", res.Cancelled)
	case models.TransitionAlarmRevoked:
		ctx.Printf("Alarm permission revoked: %d reminder(s) lost their alarm\n", res.Cancelled)
	}
	if res.Failures > 0 {
		ctx.Println(cli.RenderWarning(fmt.Sprintf("%d cleanup step(s) failed", res.Failures)))
	}
	printWarnings(ctx, warnings())
	return nil
}

func label(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
