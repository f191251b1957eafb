package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cuongbtq/asyncq/internal/job"
	"github.com/cuongbtq/asyncq/internal/queue"
)

// Executor drives the job execution state machine. The store guarantees that
// at most one concurrent Execute commits a transition for a given job id (the
// claim is a row-locked update), so the executor itself holds no shared
// mutable state.
type Executor struct {
	store     queue.Store
	registry  *Registry
	telemetry Telemetry
	logger    *slog.Logger
}

// NewExecutor creates an executor. telemetry may be nil; signals are then
// discarded.
func NewExecutor(store queue.Store, registry *Registry, telemetry Telemetry, logger *slog.Logger) *Executor {
	if telemetry == nil {
		telemetry = NopTelemetry{}
	}
	return &Executor{
		store:     store,
		registry:  registry,
		telemetry: telemetry,
		logger:    logger,
	}
}

// Execute runs one job to a committed transition.
//
// The claim persists started before the invocation, so a crash mid-invocation
// leaves started set and executed null: an in-doubt job that only an external
// reclaim sweep resolves, never the engine. On success executed and the
// serialized result commit together. On failure the error row, the backoff
// reschedule and the priority decrement commit in one transaction and the
// failure is re-raised to the caller after telemetry is recorded.
//
// Claim conflicts (job already running or terminal) are not execution
// failures: nothing is recorded and job.ErrJobAlreadyClaimed is returned.
func (e *Executor) Execute(ctx context.Context, jobID int64) (any, error) {
	claimed, err := e.store.ClaimJob(ctx, jobID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, job.ErrJobAlreadyClaimed) || errors.Is(err, job.ErrJobNotFound) {
			e.logger.Warn("Job not claimable",
				slog.Int64("job_id", jobID),
				slog.String("reason", err.Error()),
			)
			return nil, err
		}
		return nil, fmt.Errorf("failed to claim job %d: %w", jobID, err)
	}

	e.logger.Info("Executing job",
		slog.Int64("job_id", claimed.ID),
		slog.String("name", claimed.Name),
		slog.Int("priority", claimed.Priority),
	)

	result, invokeErr := e.invoke(ctx, claimed)
	if invokeErr != nil {
		return nil, e.recordFailure(ctx, claimed, invokeErr)
	}

	encoded, err := job.EncodeResult(result)
	if err != nil {
		return nil, e.recordFailure(ctx, claimed, &job.ExecutionError{
			Name:  claimed.Name,
			Err:   err,
			Stack: string(debug.Stack()),
		})
	}

	if err := e.store.CompleteJob(ctx, claimed.ID, time.Now().UTC(), encoded); err != nil {
		return nil, fmt.Errorf("failed to commit job %d: %w", claimed.ID, err)
	}

	e.telemetry.JobSucceeded(claimed.Name)
	e.logger.Info("Job executed",
		slog.Int64("job_id", claimed.ID),
		slog.String("name", claimed.Name),
	)
	return result, nil
}

// invoke decodes the payload, resolves the operation and calls it. Panics in
// the operation are recovered into an ExecutionError carrying the stack.
func (e *Executor) invoke(ctx context.Context, j *job.Job) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &job.ExecutionError{
				Name:  j.Name,
				Err:   fmt.Errorf("panic: %v", p),
				Stack: string(debug.Stack()),
			}
		}
	}()

	args, err := job.DecodeValues(j.Args)
	if err != nil {
		return nil, &job.ExecutionError{Name: j.Name, Err: fmt.Errorf("failed to decode args: %w", err)}
	}
	kwargs, err := job.DecodeMapping(j.Kwargs)
	if err != nil {
		return nil, &job.ExecutionError{Name: j.Name, Err: fmt.Errorf("failed to decode kwargs: %w", err)}
	}

	op, ok := e.registry.Resolve(j.Name)
	if !ok {
		return nil, &job.ResolutionError{Name: j.Name}
	}

	kwargs["priority"] = j.Priority
	kwargs["fairness"] = j.Fairness

	out, err := op(ctx, args, kwargs)
	if err != nil {
		return nil, &job.ExecutionError{Name: j.Name, Err: err}
	}
	return out, nil
}

// recordFailure commits the backoff transition and returns the original
// failure so the worker observes it too.
func (e *Executor) recordFailure(ctx context.Context, j *job.Job, cause error) error {
	now := time.Now().UTC()

	errorCount, err := e.store.CountJobErrors(ctx, j.ID)
	if err != nil {
		return fmt.Errorf("failed to count errors for job %d: %w", j.ID, err)
	}
	attempt := 1 + errorCount
	scheduled := now.Add(job.RetryDelay(attempt))

	trace := failureStack(cause)
	if err := e.store.FailJob(ctx, j.ID, scheduled, &job.JobError{
		JobID:     j.ID,
		Executed:  now,
		Exception: cause.Error(),
		Traceback: trace,
	}); err != nil {
		return fmt.Errorf("failed to record failure for job %d: %w", j.ID, err)
	}

	e.telemetry.JobFailed(j.Name)
	e.logger.Error("Job failed",
		slog.Int64("job_id", j.ID),
		slog.String("name", j.Name),
		slog.Time("rescheduled_for", scheduled),
		slog.Int("errors", attempt),
		slog.Int("new_priority", j.Priority-1),
		slog.String("error", cause.Error()),
	)
	return cause
}

// failureStack prefers the stack captured at the failure site and falls back
// to the recording site.
func failureStack(cause error) string {
	var execErr *job.ExecutionError
	if errors.As(cause, &execErr) && execErr.Stack != "" {
		return execErr.Stack
	}
	return string(debug.Stack())
}
