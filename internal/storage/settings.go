package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/julianstephens/nudge/internal/constants"
	apperrors "github.com/julianstephens/nudge/internal/errors"
	"github.com/julianstephens/nudge/internal/models"
)

// DefaultSettings returns the settings written by Init.
func DefaultSettings() models.Settings {
	return models.Settings{
		Timezone:             constants.DefaultTimezone,
		ReconcileSummaryMode: constants.DefaultReconcileSummaryMode,
		WindowDaily:          constants.DefaultWindowDaily,
		WindowWeekly:         constants.DefaultWindowWeekly,
		WindowMonthly:        constants.DefaultWindowMonthly,
		WindowYearly:         constants.DefaultWindowYearly,
		DailyLeadHours:       int(constants.DefaultDailyLeadThreshold / time.Hour),
		WeeklyLeadHours:      int(constants.DefaultWeeklyLeadThreshold / time.Hour),
	}
}

func (s *SQLStore) readSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.query(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, rows.Err()
}

func (s *SQLStore) GetSettings(ctx context.Context) (models.Settings, error) {
	values, err := s.readSettings(ctx)
	if err != nil {
		return models.Settings{}, err
	}
	if _, ok := values[constants.SettingTimezone]; !ok {
		return models.Settings{}, fmt.Errorf("settings: %w", apperrors.ErrNotFound)
	}

	settings := DefaultSettings()
	for key, value := range values {
		switch key {
		case constants.SettingTimezone:
			settings.Timezone = value
		case constants.SettingReconcileSummaryMode:
			settings.ReconcileSummaryMode = value
		case constants.SettingAlarmDenied:
			settings.AlarmDenied = value == "true"
		case constants.SettingWindowDaily:
			err = parseIntSetting(key, value, &settings.WindowDaily)
		case constants.SettingWindowWeekly:
			err = parseIntSetting(key, value, &settings.WindowWeekly)
		case constants.SettingWindowMonthly:
			err = parseIntSetting(key, value, &settings.WindowMonthly)
		case constants.SettingWindowYearly:
			err = parseIntSetting(key, value, &settings.WindowYearly)
		case constants.SettingDailyLeadHours:
			err = parseIntSetting(key, value, &settings.DailyLeadHours)
		case constants.SettingWeeklyLeadHours:
			err = parseIntSetting(key, value, &settings.WeeklyLeadHours)
		}
		if err != nil {
			return models.Settings{}, err
		}
	}
	return settings, nil
}

func parseIntSetting(key, value string, dst *int) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*dst = n
	return nil
}

func (s *SQLStore) putSetting(ctx context.Context, key, value string) error {
	_, err := s.exec(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) SaveSettings(ctx context.Context, settings models.Settings) error {
	if settings.ReconcileSummaryMode != constants.SummaryModeSilent && settings.ReconcileSummaryMode != constants.SummaryModeAlert {
		return fmt.Errorf("invalid reconcile summary mode %q", settings.ReconcileSummaryMode)
	}
	if _, err := time.LoadLocation(settings.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", settings.Timezone, err)
	}

	values := []struct {
		key, value string
	}{
		{constants.SettingTimezone, settings.Timezone},
		{constants.SettingReconcileSummaryMode, settings.ReconcileSummaryMode},
		{constants.SettingWindowDaily, strconv.Itoa(settings.WindowDaily)},
		{constants.SettingWindowWeekly, strconv.Itoa(settings.WindowWeekly)},
		{constants.SettingWindowMonthly, strconv.Itoa(settings.WindowMonthly)},
		{constants.SettingWindowYearly, strconv.Itoa(settings.WindowYearly)},
		{constants.SettingDailyLeadHours, strconv.Itoa(settings.DailyLeadHours)},
		{constants.SettingWeeklyLeadHours, strconv.Itoa(settings.WeeklyLeadHours)},
		{constants.SettingAlarmDenied, strconv.FormatBool(settings.AlarmDenied)},
	}

	return s.WithTx(ctx, func(repo Repository) error {
		tx := repo.(*SQLStore)
		for _, v := range values {
			if err := tx.putSetting(ctx, v.key, v.value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) SetAlarmDenied(ctx context.Context, denied bool) error {
	return s.putSetting(ctx, constants.SettingAlarmDenied, strconv.FormatBool(denied))
}

// GetPermissionState returns the zero state when nothing has been observed yet.
func (s *SQLStore) GetPermissionState(ctx context.Context) (models.PermissionState, error) {
	values, err := s.readSettings(ctx)
	if err != nil {
		return models.PermissionState{}, err
	}
	return models.PermissionState{
		Notification: models.NotificationPermission(values[constants.SettingPermissionNotify]),
		Alarm:        models.AlarmPermission(values[constants.SettingPermissionAlarm]),
	}, nil
}

func (s *SQLStore) SavePermissionState(ctx context.Context, state models.PermissionState) error {
	return s.WithTx(ctx, func(repo Repository) error {
		tx := repo.(*SQLStore)
		if err := tx.putSetting(ctx, constants.SettingPermissionNotify, string(state.Notification)); err != nil {
			return err
		}
		return tx.putSetting(ctx, constants.SettingPermissionAlarm, string(state.Alarm))
	})
}
