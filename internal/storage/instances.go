package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/nudge/internal/models"
)

const instanceColumns = `id, parent_id, kind, native_id, fire_at, active, cancelled_at, created_at`

func scanInstance(sc rowScanner) (models.TrackedInstance, error) {
	var inst models.TrackedInstance
	var parentID, kind, fireAt, createdAt string
	var active int
	var cancelledAt sql.NullString

	if err := sc.Scan(&inst.ID, &parentID, &kind, &inst.NativeID, &fireAt, &active, &cancelledAt, &createdAt); err != nil {
		return inst, err
	}

	var err error
	if inst.ParentID, err = models.ParseReminderID(parentID); err != nil {
		return inst, err
	}
	inst.Kind = models.InstanceKind(kind)
	inst.Active = active != 0
	if inst.FireInstant, err = parseTime(fireAt); err != nil {
		return inst, err
	}
	if inst.CancelledAt, err = parseTimePtr(cancelledAt); err != nil {
		return inst, err
	}
	if inst.CreatedAt, err = parseTime(createdAt); err != nil {
		return inst, err
	}
	return inst, nil
}

func (s *SQLStore) AddInstance(ctx context.Context, inst models.TrackedInstance) (models.TrackedInstance, bool, error) {
	if inst.ParentID.IsZero() {
		return inst, false, fmt.Errorf("instance parent id cannot be empty")
	}
	if inst.NativeID == "" {
		return inst, false, fmt.Errorf("instance native id cannot be empty")
	}

	err := s.queryRow(ctx, `INSERT INTO tracked_instances (parent_id, kind, native_id, fire_at, active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT DO NOTHING
		RETURNING id`,
		inst.ParentID.String(), string(inst.Kind), inst.NativeID, formatTime(inst.FireInstant), formatTime(inst.CreatedAt),
	).Scan(&inst.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return inst, false, nil
		}
		return inst, false, fmt.Errorf("failed to insert instance: %w", err)
	}

	inst.Active = true
	inst.CancelledAt = nil
	return inst, true, nil
}

func (s *SQLStore) listInstances(ctx context.Context, where string, args ...any) ([]models.TrackedInstance, error) {
	rows, err := s.query(ctx, `SELECT `+instanceColumns+` FROM tracked_instances WHERE `+where+` ORDER BY fire_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []models.TrackedInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func (s *SQLStore) ListActiveInstances(ctx context.Context, parent models.ReminderID, kind models.InstanceKind) ([]models.TrackedInstance, error) {
	if kind == "" {
		return s.listInstances(ctx, `active = 1 AND parent_id = ?`, parent.String())
	}
	return s.listInstances(ctx, `active = 1 AND parent_id = ? AND kind = ?`, parent.String(), string(kind))
}

func (s *SQLStore) ListAllActiveInstances(ctx context.Context) ([]models.TrackedInstance, error) {
	return s.listInstances(ctx, `active = 1`)
}

// DeactivateInstance is idempotent: an inactive or missing row is not an error.
func (s *SQLStore) DeactivateInstance(ctx context.Context, id int64, at time.Time) error {
	_, err := s.exec(ctx, `UPDATE tracked_instances SET active = 0, cancelled_at = COALESCE(cancelled_at, ?)
		WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate instance: %w", err)
	}
	return nil
}

func (s *SQLStore) DeactivateInstances(ctx context.Context, parent models.ReminderID, kind models.InstanceKind, at time.Time) (int64, error) {
	query := `UPDATE tracked_instances SET active = 0, cancelled_at = ? WHERE active = 1 AND parent_id = ?`
	args := []any{formatTime(at), parent.String()}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate instances: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) DeactivateAllInstances(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.exec(ctx, `UPDATE tracked_instances SET active = 0, cancelled_at = ? WHERE active = 1`, formatTime(at))
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate instances: %w", err)
	}
	return res.RowsAffected()
}
