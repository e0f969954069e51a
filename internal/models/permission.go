package models

// NotificationPermission is the OS notification authorization state.
type NotificationPermission string

const (
	NotificationUnknown NotificationPermission = ""
	NotificationGranted NotificationPermission = "granted"
	NotificationDenied  NotificationPermission = "denied"
)

// AlarmPermission is the alarm subsystem authorization state.
type AlarmPermission string

const (
	AlarmUnknown      AlarmPermission = ""
	AlarmAuthorized   AlarmPermission = "authorized"
	AlarmDenied       AlarmPermission = "denied"
	AlarmNotSupported AlarmPermission = "not_supported"
)

// PermissionState is the last observed permission pair, persisted across runs.
type PermissionState struct {
	Notification NotificationPermission `json:"notification"`
	Alarm        AlarmPermission        `json:"alarm"`
}

// PermissionTransition is an edge detected between two observations.
type PermissionTransition string

const (
	TransitionNone                PermissionTransition = ""
	TransitionNotificationRevoked PermissionTransition = "notification_revoked"
	TransitionAlarmRevoked        PermissionTransition = "alarm_revoked"
)

// DetectTransition compares a fresh reading against the last known state.
// Only granted→denied (notification) and authorized→denied (alarm, while
// notifications remain granted) are edges; an unknown previous state never is.
func DetectTransition(last, current PermissionState) PermissionTransition {
	if last.Notification == NotificationGranted && current.Notification == NotificationDenied {
		return TransitionNotificationRevoked
	}
	if last.Alarm == AlarmAuthorized && current.Alarm == AlarmDenied && current.Notification == NotificationGranted {
		return TransitionAlarmRevoked
	}
	return TransitionNone
}
