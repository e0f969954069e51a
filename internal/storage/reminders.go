package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/julianstephens/nudge/internal/errors"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/models"
)

const reminderColumns = `id, title, body, note, link, schedule_at, schedule_local,
	cadence, trigger_spec, delivery_method, has_alarm, calendar, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// reminderRow holds the raw column values of a reminder before decoding.
type reminderRow struct {
	id, title, body, note, link      string
	scheduleAt, scheduleLocal        string
	cadence, trigger, deliveryMethod string
	hasAlarm                         int
	calendar                         sql.NullString
	createdAt, updatedAt             string
}

func (row *reminderRow) dest() []any {
	return []any{
		&row.id, &row.title, &row.body, &row.note, &row.link, &row.scheduleAt, &row.scheduleLocal,
		&row.cadence, &row.trigger, &row.deliveryMethod, &row.hasAlarm, &row.calendar,
		&row.createdAt, &row.updatedAt,
	}
}

func (row *reminderRow) decode() (models.ScheduledReminder, error) {
	var r models.ScheduledReminder

	id, err := models.ParseReminderID(row.id)
	if err != nil {
		return r, fmt.Errorf("%w: %v", apperrors.ErrDataCorruption, err)
	}
	r.ID = id
	r.Title = row.title
	r.Body = row.body
	r.Note = row.note
	r.Link = row.link
	r.ScheduleInstantLocal = row.scheduleLocal
	r.Cadence = models.Cadence(row.cadence)
	r.DeliveryMethod = models.DeliveryMethod(row.deliveryMethod)
	r.HasAlarm = row.hasAlarm != 0

	if r.ScheduleInstant, err = parseTime(row.scheduleAt); err != nil {
		return r, fmt.Errorf("%w: %v", apperrors.ErrDataCorruption, err)
	}
	if r.Trigger, err = models.DecodeTrigger([]byte(row.trigger)); err != nil {
		return r, fmt.Errorf("reminder %s: %w", row.id, err)
	}
	if row.calendar.Valid && row.calendar.String != "" {
		var src models.CalendarSource
		if err := json.Unmarshal([]byte(row.calendar.String), &src); err != nil {
			return r, fmt.Errorf("%w: reminder %s calendar source: %v", apperrors.ErrDataCorruption, row.id, err)
		}
		r.Calendar = &src
	}
	if r.CreatedAt, err = parseTime(row.createdAt); err != nil {
		return r, err
	}
	if r.UpdatedAt, err = parseTime(row.updatedAt); err != nil {
		return r, err
	}
	return r, nil
}

// encodeReminder returns the column values in reminderColumns order.
func encodeReminder(r models.ScheduledReminder) ([]any, error) {
	triggerJSON, err := models.EncodeTrigger(r.Trigger)
	if err != nil {
		return nil, err
	}

	var calendar *string
	if r.Calendar != nil {
		b, err := json.Marshal(r.Calendar)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal calendar source: %w", err)
		}
		str := string(b)
		calendar = &str
	}

	return []any{
		r.ID.String(), r.Title, r.Body, r.Note, r.Link,
		formatTime(r.ScheduleInstant), r.ScheduleInstantLocal,
		string(r.Cadence), string(triggerJSON), string(r.DeliveryMethod), boolToInt(r.HasAlarm),
		calendar, formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	}, nil
}

func (s *SQLStore) AddReminder(ctx context.Context, r models.ScheduledReminder) error {
	if err := r.Validate(); err != nil {
		return err
	}
	args, err := encodeReminder(r)
	if err != nil {
		return err
	}

	_, err = s.exec(ctx, `INSERT INTO scheduled_reminders (`+reminderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert reminder: %w", err)
	}
	return nil
}

func (s *SQLStore) GetReminder(ctx context.Context, id models.ReminderID) (models.ScheduledReminder, error) {
	var row reminderRow
	err := s.queryRow(ctx, `SELECT `+reminderColumns+` FROM scheduled_reminders WHERE id = ?`, id.String()).
		Scan(row.dest()...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ScheduledReminder{}, fmt.Errorf("reminder %s: %w", id, apperrors.ErrNotFound)
		}
		return models.ScheduledReminder{}, err
	}
	return row.decode()
}

func (s *SQLStore) ListReminders(ctx context.Context) ([]models.ScheduledReminder, error) {
	rows, err := s.query(ctx, `SELECT `+reminderColumns+` FROM scheduled_reminders ORDER BY schedule_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []models.ScheduledReminder
	for rows.Next() {
		var row reminderRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, err
		}
		r, err := row.decode()
		if err != nil {
			logger.Warn("Skipping unreadable reminder", "reminder", row.id, "error", err)
			continue
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

func (s *SQLStore) UpdateReminder(ctx context.Context, r models.ScheduledReminder) error {
	if err := r.Validate(); err != nil {
		return err
	}
	args, err := encodeReminder(r)
	if err != nil {
		return err
	}

	// Drop id and created_at; id goes last for the WHERE clause.
	updateArgs := append([]any{}, args[1:12]...)
	updateArgs = append(updateArgs, args[13], args[0])

	res, err := s.exec(ctx, `UPDATE scheduled_reminders SET
			title = ?, body = ?, note = ?, link = ?, schedule_at = ?, schedule_local = ?,
			cadence = ?, trigger_spec = ?, delivery_method = ?, has_alarm = ?, calendar = ?,
			updated_at = ?
		WHERE id = ?`, updateArgs...)
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}
	return expectRow(res, "reminder", r.ID.String())
}

func (s *SQLStore) DeleteReminder(ctx context.Context, id models.ReminderID) error {
	res, err := s.exec(ctx, `DELETE FROM scheduled_reminders WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	return expectRow(res, "reminder", id.String())
}

// ArchiveReminder writes the archive row and removes the scheduled row in one transaction.
// Archiving an id twice keeps the first archive row.
func (s *SQLStore) ArchiveReminder(ctx context.Context, a models.ArchivedReminder) error {
	args, err := encodeReminder(a.ScheduledReminder)
	if err != nil {
		return err
	}
	args = append(args, formatTimePtr(a.HandledAt), formatTimePtr(a.CancelledAt), formatTime(a.ArchivedAt))

	return s.WithTx(ctx, func(repo Repository) error {
		tx := repo.(*SQLStore)
		if _, err := tx.exec(ctx, `INSERT INTO archived_reminders (`+reminderColumns+`, handled_at, cancelled_at, archived_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING`, args...); err != nil {
			return fmt.Errorf("failed to archive reminder: %w", err)
		}
		if _, err := tx.exec(ctx, `DELETE FROM scheduled_reminders WHERE id = ?`, a.ID.String()); err != nil {
			return fmt.Errorf("failed to remove archived reminder: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) scanArchived(sc rowScanner) (models.ArchivedReminder, error) {
	var row reminderRow
	var handledAt, cancelledAt sql.NullString
	var archivedAt string

	if err := sc.Scan(append(row.dest(), &handledAt, &cancelledAt, &archivedAt)...); err != nil {
		return models.ArchivedReminder{}, err
	}

	r, err := row.decode()
	if err != nil {
		return models.ArchivedReminder{}, err
	}
	a := models.ArchivedReminder{ScheduledReminder: r}
	if a.HandledAt, err = parseTimePtr(handledAt); err != nil {
		return a, err
	}
	if a.CancelledAt, err = parseTimePtr(cancelledAt); err != nil {
		return a, err
	}
	if a.ArchivedAt, err = parseTime(archivedAt); err != nil {
		return a, err
	}
	return a, nil
}

func (s *SQLStore) GetArchived(ctx context.Context, id models.ReminderID) (models.ArchivedReminder, error) {
	row := s.queryRow(ctx, `SELECT `+reminderColumns+`, handled_at, cancelled_at, archived_at
		FROM archived_reminders WHERE id = ?`, id.String())
	a, err := s.scanArchived(row)
	if errors.Is(err, sql.ErrNoRows) {
		return a, fmt.Errorf("archived reminder %s: %w", id, apperrors.ErrNotFound)
	}
	return a, err
}

func (s *SQLStore) ListArchived(ctx context.Context) ([]models.ArchivedReminder, error) {
	rows, err := s.query(ctx, `SELECT `+reminderColumns+`, handled_at, cancelled_at, archived_at
		FROM archived_reminders ORDER BY archived_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var archived []models.ArchivedReminder
	for rows.Next() {
		a, err := s.scanArchived(rows)
		if err != nil {
			logger.Warn("Skipping unreadable archived reminder", "error", err)
			continue
		}
		archived = append(archived, a)
	}
	return archived, rows.Err()
}

// MarkHandled stamps handledAt once. Later calls keep the first stamp.
func (s *SQLStore) MarkHandled(ctx context.Context, id models.ReminderID, at time.Time) error {
	res, err := s.exec(ctx, `UPDATE archived_reminders SET handled_at = COALESCE(handled_at, ?) WHERE id = ?`,
		formatTime(at), id.String())
	if err != nil {
		return fmt.Errorf("failed to mark reminder handled: %w", err)
	}
	return expectRow(res, "archived reminder", id.String())
}

func expectRow(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, apperrors.ErrNotFound)
	}
	return nil
}
