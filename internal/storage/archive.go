package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ArchiveTerminal moves a batch of terminal jobs and their error history into
// the archive tables, keyed by the original ids. Group members move only once
// their whole generation is terminal so group aggregates stay truthful.
// Returns how many jobs were archived.
func (s *Storage) ArchiveTerminal(ctx context.Context, olderThan time.Time, limit int) (int64, error) {
	query := `
		WITH doomed AS (
			SELECT id FROM jobs
			WHERE (executed IS NOT NULL OR cancelled IS NOT NULL)
			  AND COALESCE(executed, cancelled) < $1
			  AND (
				group_id IS NULL
				OR NOT EXISTS (
					SELECT 1 FROM jobs member
					WHERE member.group_id = jobs.group_id
					  AND member.executed IS NULL
					  AND member.cancelled IS NULL
				)
			  )
			ORDER BY id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		),
		copied_jobs AS (
			INSERT INTO job_archive (
				id, name, args, kwargs, meta, result, priority, identity,
				added, scheduled, started, executed, cancelled, fairness, group_id
			)
			SELECT j.id, j.name, j.args, j.kwargs, j.meta, j.result, j.priority, j.identity,
			       j.added, j.scheduled, j.started, j.executed, j.cancelled, j.fairness, j.group_id
			FROM jobs j
			JOIN doomed d ON d.id = j.id
		),
		copied_errors AS (
			INSERT INTO error_archive (id, job_id, executed, exception, traceback)
			SELECT e.id, e.job_id, e.executed, e.exception, e.traceback
			FROM errors e
			JOIN doomed d ON d.id = e.job_id
		)
		DELETE FROM jobs WHERE id IN (SELECT id FROM doomed)
	`

	result, err := s.db.ExecContext(ctx, query, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to archive jobs: %w", err)
	}

	archived, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if archived > 0 {
		s.logger.Info("Archived terminal jobs",
			slog.Int64("count", archived),
			slog.Time("older_than", olderThan),
		)
	}
	return archived, nil
}
