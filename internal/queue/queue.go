// Package queue implements the job/group lifecycle engine: scheduling with
// identity-based deduplication keys, descheduling, the health snapshot and
// group aggregation. Execution lives in the engine package; both sides share
// the Store port.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/asyncq/internal/job"
)

// Publisher notifies the worker pool that a job is ready for pickup.
/// Publishing is best effort: the worker's due-job poller delivers anything a
// lost notification would have.
type Publisher interface {
	PublishJob(ctx context.Context, jobID int64) error
}

// ScheduleOptions carries the optional parts of a schedule call. None of them
// participate in the identity fingerprint.
type ScheduleOptions struct {
	RunAfter *time.Time
	Meta     map[string]any
	Priority int
	Group    string // group reference; joins the current open generation
}

// Queue is the scheduling facade.
type Queue struct {
	store     Store
	publisher Publisher
	groups    *Groups
	logger    *slog.Logger
}

// New creates the queue facade. publisher may be nil; jobs are then picked up
// by the worker's poller only.
func New(store Store, publisher Publisher, logger *slog.Logger) *Queue {
	return &Queue{
		store:     store,
		publisher: publisher,
		groups:    NewGroups(store, logger),
		logger:    logger,
	}
}

// Groups returns the group engine bound to the same store.
func (q *Queue) Groups() *Groups {
	return q.groups
}

// Schedule creates and persists a pending job for the named operation. When
// opts.Group is set the job joins the current open group for that reference,
// creating a new generation if the previous one completed.
func (q *Queue) Schedule(ctx context.Context, name string, args []any, kwargs map[string]any, opts *ScheduleOptions) (*job.Job, error) {
	if opts == nil {
		opts = &ScheduleOptions{}
	}

	j, err := job.NewJob(name, args, kwargs, opts.Meta, opts.RunAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to build job: %w", err)
	}
	j.Priority = opts.Priority

	if opts.Group != "" {
		g, err := q.groups.LatestByReference(ctx, opts.Group)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve group %q: %w", opts.Group, err)
		}
		j.GroupID = &g.ID
	}

	if err := q.store.CreateJob(ctx, j); err != nil {
		return nil, err
	}

	q.logger.Info("Job scheduled",
		slog.Int64("job_id", j.ID),
		slog.String("name", j.Name),
		slog.String("identity", j.Identity),
	)

	if q.publisher != nil {
		if err := q.publisher.PublishJob(ctx, j.ID); err != nil {
			// The job is durable; the poller will deliver it.
			q.logger.Warn("Failed to publish job notification",
				slog.Int64("job_id", j.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return j, nil
}

// Deschedule suppresses future execution of every job matching the identity
// fingerprint of (name, args, kwargs) by stamping executed on it. The
// cancelled field is deliberately left untouched.
func (q *Queue) Deschedule(ctx context.Context, name string, args []any, kwargs map[string]any) error {
	identity, err := job.Identity(name, args, kwargs)
	if err != nil {
		return fmt.Errorf("failed to compute identity: %w", err)
	}

	marked, err := q.store.MarkExecutedByIdentity(ctx, identity, time.Now().UTC())
	if err != nil {
		return err
	}

	q.logger.Info("Jobs descheduled",
		slog.String("name", name),
		slog.String("identity", identity),
		slog.Int64("marked", marked),
	)
	return nil
}

// Health returns the read-only queue snapshot: total jobs, jobs not yet
// executed and total recorded errors. Safe under concurrent reads.
func (q *Queue) Health(ctx context.Context) (*HealthStatus, error) {
	return q.store.Health(ctx)
}
