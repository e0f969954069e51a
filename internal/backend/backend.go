// Package backend defines the native scheduling services the core drives.
// Adapters wrap not-found conditions in errors.ErrNotFound, capacity limits in
// errors.ErrCapacity and outages in errors.ErrBackendUnavailable.
package backend

import (
	"context"
	"time"

	"github.com/julianstephens/nudge/internal/models"
)

// Registration is one artifact currently armed on a backend.
type Registration struct {
	ID       string
	Content  models.Content
	Trigger  models.Trigger
	Category string
	Next     time.Time // zero when the backend cannot tell
}

type NotificationBackend interface {
	// Register arms a notification. Registering an id that is already armed replaces it.
	Register(ctx context.Context, id models.NativeID, content models.Content, trigger models.Trigger) error
	// Cancel disarms a notification. An id that is not armed is not an error.
	Cancel(ctx context.Context, id string) error
	ListRegistered(ctx context.Context) ([]Registration, error)
	// NextFireInstant reports when trigger would next fire after the given instant.
	NextFireInstant(trigger models.Trigger, after time.Time) (time.Time, bool)
	CancelAll(ctx context.Context) error
}

// AlarmConfig describes how an alarm presents itself.
type AlarmConfig struct {
	Content  models.Content
	Category string
}

// Capability describes what the alarm subsystem can do on this host.
type Capability struct {
	Supported          bool
	RequiresPermission bool
	Authorized         bool
}

type AlarmBackend interface {
	// RegisterAlarm arms an alarm and returns the id the backend knows it by.
	RegisterAlarm(ctx context.Context, id models.NativeID, trigger models.Trigger, cfg AlarmConfig) (string, error)
	// CancelAlarm disarms an alarm. An id that is not armed is not an error.
	CancelAlarm(ctx context.Context, nativeID string) error
	CheckCapability(ctx context.Context) (Capability, error)
}

// AlarmLister is implemented by alarm backends that can enumerate every armed alarm.
type AlarmLister interface {
	ListAlarms(ctx context.Context) ([]Registration, error)
}

// CategoryCanceller is implemented by alarm backends that group alarms by category.
type CategoryCanceller interface {
	ListByCategory(ctx context.Context, category string) ([]Registration, error)
	CancelByCategory(ctx context.Context, category string) (int, error)
}

// PermissionSource reads the current platform permission state. The core
// never caches its answers.
type PermissionSource interface {
	NotificationPermission(ctx context.Context) (models.NotificationPermission, error)
	AlarmPermission(ctx context.Context) (models.AlarmPermission, error)
}

// ReadPermissions reads both permissions from src.
func ReadPermissions(ctx context.Context, src PermissionSource) (models.PermissionState, error) {
	n, err := src.NotificationPermission(ctx)
	if err != nil {
		return models.PermissionState{}, err
	}
	a, err := src.AlarmPermission(ctx)
	if err != nil {
		return models.PermissionState{}, err
	}
	return models.PermissionState{Notification: n, Alarm: a}, nil
}
