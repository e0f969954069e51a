package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/julianstephens/nudge/internal/errors"
	"github.com/julianstephens/nudge/internal/models"
)

const occurrenceColumns = `id, parent_id, fire_at, source, snapshot, recorded_at`

func scanOccurrence(sc rowScanner) (models.RepeatOccurrence, error) {
	var occ models.RepeatOccurrence
	var parentID, fireAt, source, snapshot, recordedAt string

	if err := sc.Scan(&occ.ID, &parentID, &fireAt, &source, &snapshot, &recordedAt); err != nil {
		return occ, err
	}

	var err error
	if occ.ParentID, err = models.ParseReminderID(parentID); err != nil {
		return occ, err
	}
	occ.Source = models.OccurrenceSource(source)
	if occ.FireInstant, err = parseTime(fireAt); err != nil {
		return occ, err
	}
	if occ.RecordedAt, err = parseTime(recordedAt); err != nil {
		return occ, err
	}
	if err := json.Unmarshal([]byte(snapshot), &occ.Snapshot); err != nil {
		return occ, fmt.Errorf("%w: occurrence snapshot: %v", apperrors.ErrDataCorruption, err)
	}
	return occ, nil
}

func (s *SQLStore) RecordOccurrence(ctx context.Context, occ models.RepeatOccurrence) (bool, error) {
	if occ.ParentID.IsZero() {
		return false, fmt.Errorf("occurrence parent id cannot be empty")
	}
	snapshot, err := json.Marshal(occ.Snapshot)
	if err != nil {
		return false, fmt.Errorf("failed to marshal occurrence snapshot: %w", err)
	}

	res, err := s.exec(ctx, `INSERT INTO repeat_occurrences (parent_id, fire_at, source, snapshot, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (parent_id, fire_at) DO NOTHING`,
		occ.ParentID.String(), formatTime(occ.FireInstant), string(occ.Source), string(snapshot), formatTime(occ.RecordedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record occurrence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) LatestOccurrence(ctx context.Context, parent models.ReminderID) (models.RepeatOccurrence, error) {
	row := s.queryRow(ctx, `SELECT `+occurrenceColumns+` FROM repeat_occurrences
		WHERE parent_id = ? ORDER BY fire_at DESC LIMIT 1`, parent.String())
	occ, err := scanOccurrence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return occ, fmt.Errorf("occurrence for %s: %w", parent, apperrors.ErrNotFound)
	}
	return occ, err
}

func (s *SQLStore) ListOccurrences(ctx context.Context, parent models.ReminderID) ([]models.RepeatOccurrence, error) {
	rows, err := s.query(ctx, `SELECT `+occurrenceColumns+` FROM repeat_occurrences
		WHERE parent_id = ? ORDER BY fire_at`, parent.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var occurrences []models.RepeatOccurrence
	for rows.Next() {
		occ, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		occurrences = append(occurrences, occ)
	}
	return occurrences, rows.Err()
}
