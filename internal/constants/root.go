package constants

import "time"

const (
	AppName            = "nudge"
	AppNamespace       = "nudge"
	DefaultKeyringUser = "database-connection"
	DefaultConfigPath  = "~/.config/nudge/nudge.db"
	Version            = "v0.3.0"

	// DateFormat is the standard date format used throughout the application (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the standard time format used throughout the application (HH:MM)
	TimeFormat = "15:04"

	// LocalDisplayFormat is used for ScheduleInstantLocal
	LocalDisplayFormat = "2006-01-02 15:04 MST"

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "nudge-"
	BackupFileSuffix = ".db"

	// Notify constants
	NotifyMaxRetries       = 3
	NotifyRetryDelay       = 100 * time.Millisecond
	NotifierLockfileName   = "nudge-notifier.lock"
	NotificationDurationMs = 5000
	TrayAppIdentifier      = "com.julianstephens.nudge"

	// Reconciliation constants
	SemaphoreStaleAfter    = 5 * time.Minute
	CatchUpMaxIterations   = 200
	CalendarCheckTimeout   = 5 * time.Second
	CalendarCheckMinGap    = 30 * time.Second
	DeepLinkDedupeWindow   = 2 * time.Second
	LifecycleCheckInterval = time.Minute

	// Worker constants
	DefaultWorkerConcurrency = 4
	RedisReadyAttempts       = 5
	RedisReadyDelay          = time.Second
	RedisDialTimeout         = 2 * time.Second

	// FireMargin is how far in the future an occurrence must be to count as pending.
	FireMargin = time.Minute

	// Queue and category names shared by the native backends
	NotificationQueue   = "nudge"
	NotificationTask    = "reminder:fire"
	AlarmCategoryDaily  = "daily"
	AlarmCategoryRepeat = "repeat"
)
