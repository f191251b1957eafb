// Package storage is the PostgreSQL implementation of the queue.Store port,
// plus the worker-side sweeps (due-job polling, stale-claim reclaim and
// terminal-job archival) that need direct SQL.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/asyncq/internal/job"
	"github.com/cuongbtq/asyncq/internal/queue"
	"github.com/cuongbtq/asyncq/shared/postgresql"
)

const jobColumns = `
	id, name, args, kwargs, meta, result, priority, identity,
	added, scheduled, started, executed, cancelled, fairness, group_id`

type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewStorage(pg *postgresql.Client, logger *slog.Logger) *Storage {
	return &Storage{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// CreateJob persists a pending job. Joining a group locks the group row so
// the terminal-member check and the insert commit together.
func (s *Storage) CreateJob(ctx context.Context, j *job.Job) error {
	if j.GroupID == nil {
		return s.insertJob(ctx, s.db, j)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	reference, err := lockGroup(ctx, tx, *j.GroupID)
	if err != nil {
		return err
	}

	var hasTerminal bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE group_id = $1 AND (executed IS NOT NULL OR cancelled IS NOT NULL)
		)
	`, *j.GroupID).Scan(&hasTerminal)
	if err != nil {
		return fmt.Errorf("failed to check group members: %w", err)
	}
	if hasTerminal {
		return job.NewValidationError(fmt.Sprintf(
			"cannot add job [%s] to group [%s] because this group has executed jobs", j.Name, reference))
	}

	if err := s.insertJob(ctx, tx, j); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job: %w", err)
	}
	return nil
}

func (s *Storage) insertJob(ctx context.Context, q sqlx.QueryerContext, j *job.Job) error {
	query := `
		INSERT INTO jobs (
			name, args, kwargs, meta, result, priority, identity,
			added, scheduled, fairness, group_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11
		)
		RETURNING id
	`

	err := q.QueryRowxContext(
		ctx,
		query,
		j.Name,
		j.Args,
		j.Kwargs,
		j.Meta,
		j.Result,
		j.Priority,
		j.Identity,
		j.Added,
		j.Scheduled,
		j.Fairness,
		j.GroupID,
	).Scan(&j.ID)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *Storage) GetJob(ctx context.Context, id int64) (*job.Job, error) {
	var j job.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	err := s.db.GetContext(ctx, &j, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, job.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &j, nil
}

func (s *Storage) ListJobs(ctx context.Context, filter queue.JobFilter) ([]job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Name != "" {
		query += fmt.Sprintf(" AND name = $%d", argIdx)
		args = append(args, filter.Name)
		argIdx++
	}

	if filter.Reference != "" {
		query += fmt.Sprintf(" AND group_id IN (SELECT id FROM groups WHERE reference = $%d)", argIdx)
		args = append(args, filter.Reference)
		argIdx++
	}

	if filter.Pending {
		query += " AND executed IS NULL AND cancelled IS NULL"
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (added, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.Added, filter.Cursor.ID)
		argIdx += 2
	}

	// Order by added DESC, id DESC for consistent pagination
	query += " ORDER BY added DESC, id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []job.Job
	err := s.db.SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

func (s *Storage) MarkExecutedByIdentity(ctx context.Context, identity string, executed time.Time) (int64, error) {
	query := `
		UPDATE jobs
		SET executed = $2
		WHERE identity = $1
		  AND executed IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, identity, executed)
	if err != nil {
		return 0, fmt.Errorf("failed to deschedule jobs: %w", err)
	}

	marked, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return marked, nil
}

// ClaimJob stamps started on a pending job. The conditional update is the
// claim: a second worker racing on the same id matches zero rows.
func (s *Storage) ClaimJob(ctx context.Context, id int64, started time.Time) (*job.Job, error) {
	query := `
		UPDATE jobs
		SET started = $2
		WHERE id = $1
		  AND started IS NULL
		  AND executed IS NULL
		  AND cancelled IS NULL
		RETURNING ` + jobColumns

	var j job.Job
	err := s.db.GetContext(ctx, &j, query, id, started)
	if err == nil {
		return &j, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id); err != nil {
		return nil, fmt.Errorf("failed to check job existence: %w", err)
	}
	if !exists {
		return nil, job.ErrJobNotFound
	}

	s.logger.Warn("Failed to claim job - already claimed or terminal",
		slog.Int64("job_id", id),
	)
	return nil, job.ErrJobAlreadyClaimed
}

func (s *Storage) CompleteJob(ctx context.Context, id int64, executed time.Time, result string) error {
	query := `
		UPDATE jobs
		SET executed = $2,
		    result = $3
		WHERE id = $1
	`

	res, err := s.db.ExecContext(ctx, query, id, executed, result)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// FailJob commits the failure transition in one transaction: the claim is
// released, the retry is scheduled, the priority drops and the error row is
// appended.
func (s *Storage) FailJob(ctx context.Context, id int64, scheduled time.Time, jobErr *job.JobError) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs
		SET started = NULL,
		    scheduled = $2,
		    priority = priority - 1
		WHERE id = $1
	`, id, scheduled)
	if err != nil {
		return fmt.Errorf("failed to reschedule job: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return job.ErrJobNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO errors (job_id, executed, exception, traceback)
		VALUES ($1, $2, $3, $4)
	`, id, jobErr.Executed, jobErr.Exception, jobErr.Traceback)
	if err != nil {
		return fmt.Errorf("failed to record job error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit failure: %w", err)
	}
	return nil
}

func (s *Storage) CountJobErrors(ctx context.Context, id int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM errors WHERE job_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to count job errors: %w", err)
	}
	return count, nil
}

func (s *Storage) Health(ctx context.Context) (*queue.HealthStatus, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM jobs) AS length,
			(SELECT COUNT(*) FROM jobs WHERE executed IS NULL) AS executed,
			(SELECT COUNT(*) FROM errors) AS errors
	`

	status := &queue.HealthStatus{}
	err := s.db.QueryRowContext(ctx, query).Scan(
		&status.Queue.Length,
		&status.Queue.Executed,
		&status.Errors.Number,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue health: %w", err)
	}
	return status, nil
}

// CreateGroup persists a new group generation. The insert is rejected while
// an earlier group under the same reference still has unfinished members.
func (s *Storage) CreateGroup(ctx context.Context, g *job.Group) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var hasOpen bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE group_id IN (SELECT id FROM groups WHERE reference = $1)
			  AND executed IS NULL
			  AND cancelled IS NULL
		)
	`, g.Reference).Scan(&hasOpen)
	if err != nil {
		return fmt.Errorf("failed to check group reference: %w", err)
	}
	if hasOpen {
		return job.NewValidationError(fmt.Sprintf(
			"group reference [%s] still has unexecuted jobs", g.Reference))
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO groups (reference, description, created)
		VALUES ($1, $2, $3)
		RETURNING id
	`, g.Reference, g.Description, g.Created).Scan(&g.ID)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group: %w", err)
	}
	return nil
}

func (s *Storage) LatestGroupByReference(ctx context.Context, reference string) (*job.Group, error) {
	var g job.Group
	query := `
		SELECT id, reference, description, created, final_job_id
		FROM groups
		WHERE reference = $1
		ORDER BY created DESC, id DESC
		LIMIT 1
	`

	err := s.db.GetContext(ctx, &g, query, reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, job.ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

// SetFinalJob points a group at its completion-trigger job, pulling the job
// into the group first when it is not a member yet.
func (s *Storage) SetFinalJob(ctx context.Context, groupID, jobID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	reference, err := lockGroup(ctx, tx, groupID)
	if err != nil {
		return err
	}

	var j job.Job
	err = tx.GetContext(ctx, &j, `SELECT id, name, group_id FROM jobs WHERE id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return job.ErrJobNotFound
		}
		return fmt.Errorf("failed to get job: %w", err)
	}

	if j.GroupID == nil || *j.GroupID != groupID {
		var hasTerminal bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM jobs
				WHERE group_id = $1 AND (executed IS NOT NULL OR cancelled IS NOT NULL)
			)
		`, groupID).Scan(&hasTerminal)
		if err != nil {
			return fmt.Errorf("failed to check group members: %w", err)
		}
		if hasTerminal {
			return job.NewValidationError(fmt.Sprintf(
				"cannot add job [%s] to group [%s] because this group has executed jobs", j.Name, reference))
		}

		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET group_id = $1 WHERE id = $2`, groupID, jobID); err != nil {
			return fmt.Errorf("failed to add job to group: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE groups SET final_job_id = $2 WHERE id = $1`, groupID, jobID); err != nil {
		return fmt.Errorf("failed to set final job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit final job: %w", err)
	}
	return nil
}

func (s *Storage) GroupStats(ctx context.Context, groupID, excludeJobID int64) (*queue.GroupStats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE executed IS NOT NULL) AS executed,
			COUNT(*) FILTER (WHERE cancelled IS NOT NULL) AS cancelled,
			COUNT(*) FILTER (
				WHERE executed IS NULL AND cancelled IS NULL AND id <> $2
			) AS unfinished
		FROM jobs
		WHERE group_id = $1
	`

	stats := &queue.GroupStats{}
	err := s.db.QueryRowContext(ctx, query, groupID, excludeJobID).Scan(
		&stats.Total,
		&stats.Executed,
		&stats.Cancelled,
		&stats.Unfinished,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate group stats: %w", err)
	}
	return stats, nil
}

func (s *Storage) LatestExecuted(ctx context.Context, groupID int64) (*time.Time, error) {
	var latest sql.NullTime
	query := `SELECT MAX(executed) FROM jobs WHERE group_id = $1`

	err := s.db.GetContext(ctx, &latest, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest executed: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	stamp := latest.Time.UTC()
	return &stamp, nil
}

// DueJobs returns pending jobs whose scheduled time has passed (or that were
// never deferred), most urgent first. The worker's poller republishes them.
func (s *Storage) DueJobs(ctx context.Context, now time.Time, limit int) ([]job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE started IS NULL
		  AND executed IS NULL
		  AND cancelled IS NULL
		  AND (scheduled IS NULL OR scheduled <= $1)
		ORDER BY priority DESC, fairness ASC, added ASC
		LIMIT $2
	`

	var jobs []job.Job
	err := s.db.SelectContext(ctx, &jobs, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select due jobs: %w", err)
	}
	return jobs, nil
}

// ReclaimStale releases claims older than cutoff so crashed invocations do
// not strand their jobs in the in-doubt state forever. Returns how many jobs
// were released.
func (s *Storage) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE jobs
		SET started = NULL
		WHERE started IS NOT NULL
		  AND started < $1
		  AND executed IS NULL
		  AND cancelled IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale jobs: %w", err)
	}

	reclaimed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if reclaimed > 0 {
		s.logger.Warn("Reclaimed stale job claims",
			slog.Int64("count", reclaimed),
			slog.Time("cutoff", cutoff),
		)
	}
	return reclaimed, nil
}

func lockGroup(ctx context.Context, tx *sqlx.Tx, groupID int64) (string, error) {
	var reference string
	err := tx.QueryRowContext(ctx, `SELECT reference FROM groups WHERE id = $1 FOR UPDATE`, groupID).Scan(&reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", job.ErrGroupNotFound
		}
		return "", fmt.Errorf("failed to lock group: %w", err)
	}
	return reference, nil
}

var _ queue.Store = (*Storage)(nil)
