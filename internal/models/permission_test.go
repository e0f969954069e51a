package models

import "testing"

func TestDetectTransition(t *testing.T) {
	tests := []struct {
		name    string
		last    PermissionState
		current PermissionState
		want    PermissionTransition
	}{
		{
			name:    "notification revoked",
			last:    PermissionState{Notification: NotificationGranted, Alarm: AlarmAuthorized},
			current: PermissionState{Notification: NotificationDenied, Alarm: AlarmAuthorized},
			want:    TransitionNotificationRevoked,
		},
		{
			name:    "steady denied",
			last:    PermissionState{Notification: NotificationDenied},
			current: PermissionState{Notification: NotificationDenied},
			want:    TransitionNone,
		},
		{
			name:    "first observation is never an edge",
			last:    PermissionState{},
			current: PermissionState{Notification: NotificationDenied, Alarm: AlarmDenied},
			want:    TransitionNone,
		},
		{
			name:    "alarm revoked with notifications granted",
			last:    PermissionState{Notification: NotificationGranted, Alarm: AlarmAuthorized},
			current: PermissionState{Notification: NotificationGranted, Alarm: AlarmDenied},
			want:    TransitionAlarmRevoked,
		},
		{
			name:    "both revoked reports notification",
			last:    PermissionState{Notification: NotificationGranted, Alarm: AlarmAuthorized},
			current: PermissionState{Notification: NotificationDenied, Alarm: AlarmDenied},
			want:    TransitionNotificationRevoked,
		},
		{
			name:    "alarm not supported",
			last:    PermissionState{Notification: NotificationGranted, Alarm: AlarmNotSupported},
			current: PermissionState{Notification: NotificationGranted, Alarm: AlarmDenied},
			want:    TransitionNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectTransition(tt.last, tt.current); got != tt.want {
				t.Errorf("DetectTransition() = %q, want %q", got, tt.want)
			}
		})
	}
}
