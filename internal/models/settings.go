package models

// Settings represents application-wide settings
type Settings struct {
	Timezone             string `json:"timezone"`               // IANA timezone name or "Local"
	ReconcileSummaryMode string `json:"reconcile_summary_mode"` // "silent" or "alert"
	WindowDaily          int    `json:"window_daily"`           // rolling window size for daily reminders
	WindowWeekly         int    `json:"window_weekly"`
	WindowMonthly        int    `json:"window_monthly"`
	WindowYearly         int    `json:"window_yearly"`
	DailyLeadHours       int    `json:"daily_lead_hours"`  // below this lead time daily reminders use a rolling window
	WeeklyLeadHours      int    `json:"weekly_lead_hours"` // below this lead time weekly reminders use a rolling window
	AlarmDenied          bool   `json:"alarm_denied"`      // set when alarm permission was revoked
}
