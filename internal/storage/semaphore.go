package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/julianstephens/nudge/internal/models"
)

func (s *SQLStore) GetSemaphore(ctx context.Context) (models.Semaphore, error) {
	var active int
	var last sql.NullString
	err := s.queryRow(ctx, `SELECT active_migration, last_migration_at FROM reconciliation_semaphore WHERE id = 1`).
		Scan(&active, &last)
	if err != nil {
		return models.Semaphore{}, fmt.Errorf("failed to read semaphore: %w", err)
	}

	sem := models.Semaphore{ActiveMigration: active != 0}
	if sem.LastMigrationAt, err = parseTimePtr(last); err != nil {
		return sem, err
	}
	return sem, nil
}

// AcquireSemaphore is a single compare-and-set so two passes cannot both win.
func (s *SQLStore) AcquireSemaphore(ctx context.Context, now time.Time, staleAfter time.Duration) (bool, error) {
	res, err := s.exec(ctx, `UPDATE reconciliation_semaphore
		SET active_migration = 1, last_migration_at = ?
		WHERE id = 1 AND (active_migration = 0 OR last_migration_at IS NULL OR last_migration_at < ?)`,
		formatTime(now), formatTime(now.Add(-staleAfter)))
	if err != nil {
		return false, fmt.Errorf("failed to acquire semaphore: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLStore) ReleaseSemaphore(ctx context.Context, now time.Time) error {
	if _, err := s.exec(ctx, `UPDATE reconciliation_semaphore SET active_migration = 0, last_migration_at = ? WHERE id = 1`,
		formatTime(now)); err != nil {
		return fmt.Errorf("failed to release semaphore: %w", err)
	}
	return nil
}
