package constants

import "time"

const (
	// General Settings
	SettingTimezone             = "timezone"
	SettingReconcileSummaryMode = "reconcile_summary_mode"

	// Window Policy Settings
	SettingWindowDaily      = "window_daily"
	SettingWindowWeekly     = "window_weekly"
	SettingWindowMonthly    = "window_monthly"
	SettingWindowYearly     = "window_yearly"
	SettingDailyLeadHours   = "daily_lead_hours"
	SettingWeeklyLeadHours  = "weekly_lead_hours"
	SettingAlarmDenied      = "alarm_denied"
	SettingPermissionNotify = "last_permission_notification"
	SettingPermissionAlarm  = "last_permission_alarm"

	// Summary modes
	SummaryModeSilent = "silent"
	SummaryModeAlert  = "alert"

	// Default Settings Values
	DefaultTimezone             = "Local" // Use system local timezone by default
	DefaultReconcileSummaryMode = SummaryModeSilent
	DefaultWindowDaily          = 14
	DefaultWindowWeekly         = 4
	DefaultWindowMonthly        = 4
	DefaultWindowYearly         = 2
	DefaultDailyLeadThreshold   = 24 * time.Hour
	DefaultWeeklyLeadThreshold  = 7 * 24 * time.Hour
)
