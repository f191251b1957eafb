package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/asyncq/internal/engine"
	"github.com/cuongbtq/asyncq/internal/job"
	"github.com/cuongbtq/asyncq/internal/queue"
	"github.com/cuongbtq/asyncq/internal/queue/queuetest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func scheduleOne(t *testing.T, store *queuetest.Store, name string, args []any, kwargs map[string]any) *job.Job {
	t.Helper()
	q := queue.New(store, nil, testLogger())
	j, err := q.Schedule(context.Background(), name, args, kwargs, nil)
	require.NoError(t, err)
	return j
}

func TestExecutor_Success(t *testing.T) {
	store := queuetest.NewStore()
	registry := engine.NewRegistry()
	counters := engine.NewCounters()

	var gotArgs []any
	var gotKwargs map[string]any
	registry.Register("ops.concat", func(_ context.Context, args []any, kwargs map[string]any) (any, error) {
		gotArgs = args
		gotKwargs = kwargs
		return "a+b", nil
	})

	j := scheduleOne(t, store, "ops.concat", []any{"a", "b"}, map[string]any{"sep": "+"})
	executor := engine.NewExecutor(store, registry, counters, testLogger())

	result, err := executor.Execute(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, "a+b", result)

	assert.Equal(t, []any{"a", "b"}, gotArgs)
	assert.Equal(t, "+", gotKwargs["sep"])
	assert.Equal(t, 0, gotKwargs["priority"], "priority injected into kwargs")
	assert.Equal(t, -1, gotKwargs["fairness"], "fairness injected into kwargs")

	stored, err := store.GetJob(context.Background(), j.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.Executed)
	assert.NotNil(t, stored.Started)
	assert.Equal(t, `"a+b"`, stored.Result)

	count, err := store.CountJobErrors(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	succeeded, failed := counters.Snapshot()
	assert.Equal(t, uint64(1), succeeded["ops.concat"])
	assert.Zero(t, failed["ops.concat"])
}

func TestExecutor_FailureTransition(t *testing.T) {
	store := queuetest.NewStore()
	registry := engine.NewRegistry()
	boom := errors.New("smtp connection refused")
	registry.Register("mailer.send", func(context.Context, []any, map[string]any) (any, error) {
		return nil, boom
	})

	j := scheduleOne(t, store, "mailer.send", []any{"x"}, nil)
	executor := engine.NewExecutor(store, registry, nil, testLogger())

	before := time.Now().UTC()
	_, err := executor.Execute(context.Background(), j.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom, "failure is re-raised to the caller")

	stored, err := store.GetJob(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Started, "started cleared on failure")
	assert.Nil(t, stored.Executed)
	assert.Equal(t, j.Priority-1, stored.Priority)

	require.NotNil(t, stored.Scheduled)
	delay := stored.Scheduled.Sub(before)
	assert.InDelta(t, float64(60*time.Second), float64(delay), float64(2*time.Second),
		"first failure backs off ~60s")

	recorded := store.JobErrors(j.ID)
	require.Len(t, recorded, 1)
	assert.Contains(t, recorded[0].Exception, "smtp connection refused")
	assert.NotEmpty(t, recorded[0].Traceback)
}

func TestExecutor_BackoffGrowsWithErrorHistory(t *testing.T) {
	store := queuetest.NewStore()
	registry := engine.NewRegistry()
	registry.Register("mailer.send", func(context.Context, []any, map[string]any) (any, error) {
		return nil, errors.New("still failing")
	})

	j := scheduleOne(t, store, "mailer.send", nil, nil)
	executor := engine.NewExecutor(store, registry, nil, testLogger())
	ctx := context.Background()

	var delays []time.Duration
	for attempt := 1; attempt <= 3; attempt++ {
		before := time.Now().UTC()
		_, err := executor.Execute(ctx, j.ID)
		require.Error(t, err)

		stored, err := store.GetJob(ctx, j.ID)
		require.NoError(t, err)
		require.Nil(t, stored.Started)
		require.NotNil(t, stored.Scheduled)
		delays = append(delays, stored.Scheduled.Sub(before))

		count, err := store.CountJobErrors(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, attempt, count)
	}

	assert.Greater(t, delays[1], delays[0])
	assert.Greater(t, delays[2], delays[1])
}

func TestExecutor_ResolutionFailureIsRetriedUniformly(t *testing.T) {
	store := queuetest.NewStore()
	j := scheduleOne(t, store, "ops.unregistered", nil, nil)
	executor := engine.NewExecutor(store, engine.NewRegistry(), nil, testLogger())

	_, err := executor.Execute(context.Background(), j.ID)
	require.Error(t, err)

	var resolutionErr *job.ResolutionError
	assert.ErrorAs(t, err, &resolutionErr)

	stored, err := store.GetJob(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Started)
	assert.NotNil(t, stored.Scheduled, "resolution failures reschedule like any failure")

	recorded := store.JobErrors(j.ID)
	require.Len(t, recorded, 1)
	assert.Contains(t, recorded[0].Exception, "ops.unregistered")
}

func TestExecutor_PanicRecordedWithStack(t *testing.T) {
	store := queuetest.NewStore()
	registry := engine.NewRegistry()
	registry.Register("ops.explode", func(context.Context, []any, map[string]any) (any, error) {
		panic("boom")
	})

	j := scheduleOne(t, store, "ops.explode", nil, nil)
	executor := engine.NewExecutor(store, registry, nil, testLogger())

	_, err := executor.Execute(context.Background(), j.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: boom")

	recorded := store.JobErrors(j.ID)
	require.Len(t, recorded, 1)
	assert.Contains(t, recorded[0].Traceback, "goroutine")
}

func TestExecutor_ClaimConflictRecordsNothing(t *testing.T) {
	store := queuetest.NewStore()
	registry := engine.NewRegistry()
	registry.Register("ops.noop", func(context.Context, []any, map[string]any) (any, error) {
		return nil, nil
	})

	j := scheduleOne(t, store, "ops.noop", nil, nil)
	executor := engine.NewExecutor(store, registry, nil, testLogger())
	ctx := context.Background()

	_, err := store.ClaimJob(ctx, j.ID, time.Now().UTC())
	require.NoError(t, err)

	_, err = executor.Execute(ctx, j.ID)
	assert.ErrorIs(t, err, job.ErrJobAlreadyClaimed)

	count, err := store.CountJobErrors(ctx, j.ID)
	require.NoError(t, err)
	assert.Zero(t, count, "claim conflicts are not execution failures")
}

func TestExecutor_DescheduledJobNotExecuted(t *testing.T) {
	store := queuetest.NewStore()
	registry := engine.NewRegistry()
	invoked := false
	registry.Register("ops.noop", func(context.Context, []any, map[string]any) (any, error) {
		invoked = true
		return nil, nil
	})

	q := queue.New(store, nil, testLogger())
	ctx := context.Background()
	j, err := q.Schedule(ctx, "ops.noop", nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, q.Deschedule(ctx, "ops.noop", nil, nil))

	executor := engine.NewExecutor(store, registry, nil, testLogger())
	_, err = executor.Execute(ctx, j.ID)
	assert.ErrorIs(t, err, job.ErrJobAlreadyClaimed)
	assert.False(t, invoked)
}
