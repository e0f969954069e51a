package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/nudge/internal/constants"
)

// ReminderID identifies a reminder across the store and every native backend.
type ReminderID struct {
	Namespace string
	LocalID   string
}

// NewReminderID returns a fresh id in the application namespace.
func NewReminderID() ReminderID {
	return ReminderID{Namespace: constants.AppNamespace, LocalID: uuid.NewString()}
}

func (id ReminderID) String() string {
	return id.Namespace + ":" + id.LocalID
}

// IsZero reports whether the id is unset.
func (id ReminderID) IsZero() bool {
	return id.Namespace == "" && id.LocalID == ""
}

// ParseReminderID parses "namespace:local".
func ParseReminderID(s string) (ReminderID, error) {
	ns, local, ok := strings.Cut(s, ":")
	if !ok || ns == "" || local == "" || strings.ContainsAny(local, "/:") {
		return ReminderID{}, fmt.Errorf("invalid reminder id: %q", s)
	}
	return ReminderID{Namespace: ns, LocalID: local}, nil
}

// NativeRole says which backend a native id lives on.
type NativeRole string

const (
	RoleNotification NativeRole = "n"
	RoleAlarm        NativeRole = "a"
)

// NativeID is the id a reminder's artifact is registered under on a native backend.
// Fire is zero for the reminder-level registration (fixed or native recurring) and
// the fire instant for rolling-window instances.
type NativeID struct {
	Parent ReminderID
	Role   NativeRole
	Fire   time.Time
}

// NotificationID is the reminder-level notification registration id.
func (id ReminderID) NotificationID() NativeID {
	return NativeID{Parent: id, Role: RoleNotification}
}

// AlarmID is the reminder-level alarm registration id.
func (id ReminderID) AlarmID() NativeID {
	return NativeID{Parent: id, Role: RoleAlarm}
}

// InstanceID is the id of a single rolling-window instance on the given backend.
func (id ReminderID) InstanceID(role NativeRole, fire time.Time) NativeID {
	return NativeID{Parent: id, Role: role, Fire: fire.UTC().Truncate(time.Second)}
}

// IsInstance reports whether the id names a rolling-window instance.
func (n NativeID) IsInstance() bool {
	return !n.Fire.IsZero()
}

func (n NativeID) String() string {
	s := n.Parent.String() + "/" + string(n.Role)
	if n.IsInstance() {
		s += "/" + strconv.FormatInt(n.Fire.Unix(), 10)
	}
	return s
}

// ParseNativeID resolves a registered id back to its parent reminder.
func ParseNativeID(s string) (NativeID, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 || len(parts) > 3 {
		return NativeID{}, fmt.Errorf("invalid native id: %q", s)
	}
	parent, err := ParseReminderID(parts[0])
	if err != nil {
		return NativeID{}, err
	}
	role := NativeRole(parts[1])
	if role != RoleNotification && role != RoleAlarm {
		return NativeID{}, fmt.Errorf("invalid native role in %q", s)
	}
	n := NativeID{Parent: parent, Role: role}
	if len(parts) == 3 {
		secs, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return NativeID{}, fmt.Errorf("invalid fire instant in %q: %w", s, err)
		}
		n.Fire = time.Unix(secs, 0).UTC()
	}
	return n, nil
}

// InNamespace reports whether s is a native id owned by namespace.
func InNamespace(s, namespace string) bool {
	return strings.HasPrefix(s, namespace+":")
}
