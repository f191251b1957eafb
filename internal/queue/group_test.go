package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/asyncq/internal/job"
	"github.com/cuongbtq/asyncq/internal/queue"
	"github.com/cuongbtq/asyncq/internal/queue/queuetest"
)

func scheduleInGroup(t *testing.T, q *queue.Queue, reference string, n int) []*job.Job {
	t.Helper()
	jobs := make([]*job.Job, 0, n)
	for i := 0; i < n; i++ {
		j, err := q.Schedule(context.Background(), "ops.step", []any{float64(i)}, nil,
			&queue.ScheduleOptions{Group: reference})
		require.NoError(t, err)
		jobs = append(jobs, j)
	}
	return jobs
}

func TestGroups_LatestByReferenceCreatesWhenAbsent(t *testing.T) {
	groups := queue.NewGroups(queuetest.NewStore(), testLogger())

	g, err := groups.LatestByReference(context.Background(), "nightly")
	require.NoError(t, err)
	assert.NotZero(t, g.ID)
	assert.Equal(t, "nightly", g.Reference)
	assert.Empty(t, g.Description)
}

func TestGroups_LatestByReferenceReusesOpenGroup(t *testing.T) {
	store := queuetest.NewStore()
	q := queue.New(store, nil, testLogger())

	jobs := scheduleInGroup(t, q, "nightly", 1)
	require.NotNil(t, jobs[0].GroupID)

	g, err := q.Groups().LatestByReference(context.Background(), "nightly")
	require.NoError(t, err)
	assert.Equal(t, *jobs[0].GroupID, g.ID)
}

func TestGroups_CompletedGroupStartsNewGeneration(t *testing.T) {
	store := queuetest.NewStore()
	q := queue.New(store, nil, testLogger())
	ctx := context.Background()

	jobs := scheduleInGroup(t, q, "nightly", 2)
	firstGen := *jobs[0].GroupID

	now := time.Now().UTC()
	require.NoError(t, store.CompleteJob(ctx, jobs[0].ID, now, "null"))
	require.NoError(t, store.CompleteJob(ctx, jobs[1].ID, now, "null"))

	g, err := store.LatestGroupByReference(ctx, "nightly")
	require.NoError(t, err)
	completed, err := q.Groups().HasCompleted(ctx, g, nil)
	require.NoError(t, err)
	assert.True(t, completed)

	next, err := q.Groups().LatestByReference(ctx, "nightly")
	require.NoError(t, err)
	assert.NotEqual(t, firstGen, next.ID, "completed generation is superseded")
	assert.Equal(t, "nightly", next.Reference)
}

func TestGroups_HasCompleted(t *testing.T) {
	store := queuetest.NewStore()
	q := queue.New(store, nil, testLogger())
	ctx := context.Background()

	jobs := scheduleInGroup(t, q, "batch", 2)
	g, err := store.LatestGroupByReference(ctx, "batch")
	require.NoError(t, err)

	completed, err := q.Groups().HasCompleted(ctx, g, nil)
	require.NoError(t, err)
	assert.False(t, completed, "no member terminal")

	require.NoError(t, store.CompleteJob(ctx, jobs[0].ID, time.Now().UTC(), "null"))

	completed, err = q.Groups().HasCompleted(ctx, g, nil)
	require.NoError(t, err)
	assert.False(t, completed, "one member still pending")

	// Excluding the remaining pending member makes the rest terminal.
	pending, err := store.GetJob(ctx, jobs[1].ID)
	require.NoError(t, err)
	completed, err = q.Groups().HasCompleted(ctx, g, pending)
	require.NoError(t, err)
	assert.True(t, completed)

	require.NoError(t, store.CompleteJob(ctx, jobs[1].ID, time.Now().UTC(), "null"))
	completed, err = q.Groups().HasCompleted(ctx, g, nil)
	require.NoError(t, err)
	assert.True(t, completed)
}

func TestGroups_OnCompletion(t *testing.T) {
	store := queuetest.NewStore()
	q := queue.New(store, nil, testLogger())
	ctx := context.Background()

	jobs := scheduleInGroup(t, q, "batch", 2)
	g, err := store.LatestGroupByReference(ctx, "batch")
	require.NoError(t, err)

	require.NoError(t, q.Groups().OnCompletion(ctx, g, jobs[1]))
	require.NotNil(t, g.FinalJobID)
	assert.Equal(t, jobs[1].ID, *g.FinalJobID)

	// Idempotent pointer update.
	require.NoError(t, q.Groups().OnCompletion(ctx, g, jobs[1]))

	stored, err := store.LatestGroupByReference(ctx, "batch")
	require.NoError(t, err)
	require.NotNil(t, stored.FinalJobID)
	assert.Equal(t, jobs[1].ID, *stored.FinalJobID)
}

func TestGroups_EstimateDuration(t *testing.T) {
	store := queuetest.NewStore()
	q := queue.New(store, nil, testLogger())
	ctx := context.Background()

	jobs := scheduleInGroup(t, q, "batch", 4)
	g, err := store.LatestGroupByReference(ctx, "batch")
	require.NoError(t, err)

	estimate, err := q.Groups().EstimateDuration(ctx, g)
	require.NoError(t, err)
	assert.Nil(t, estimate, "no terminal member yet")

	// Two of four members done after roughly elapsed T: expect total ~2T.
	now := time.Now().UTC()
	require.NoError(t, store.CompleteJob(ctx, jobs[0].ID, now, "null"))
	require.NoError(t, store.CompleteJob(ctx, jobs[1].ID, now, "null"))

	elapsed := now.Sub(g.Created)
	estimate, err = q.Groups().EstimateDuration(ctx, g)
	require.NoError(t, err)
	require.NotNil(t, estimate)

	assert.InDelta(t, float64(2*elapsed), float64(estimate.EstimatedTotal), float64(200*time.Millisecond))
	assert.InDelta(t, float64(estimate.EstimatedTotal-estimate.Elapsed), float64(estimate.Remaining), float64(time.Millisecond))

	// All done: total == elapsed == latest executed - created, remaining 0.
	later := now.Add(50 * time.Millisecond)
	require.NoError(t, store.CompleteJob(ctx, jobs[2].ID, later, "null"))
	require.NoError(t, store.CompleteJob(ctx, jobs[3].ID, later, "null"))

	estimate, err = q.Groups().EstimateDuration(ctx, g)
	require.NoError(t, err)
	require.NotNil(t, estimate)
	assert.Equal(t, time.Duration(0), estimate.Remaining)
	assert.Equal(t, estimate.Elapsed, estimate.EstimatedTotal)
	assert.Equal(t, later.Sub(g.Created), estimate.Elapsed)
}

func TestGroups_EstimateDurationEmptyGroup(t *testing.T) {
	store := queuetest.NewStore()
	groups := queue.NewGroups(store, testLogger())
	ctx := context.Background()

	g, err := groups.LatestByReference(ctx, "empty")
	require.NoError(t, err)

	estimate, err := groups.EstimateDuration(ctx, g)
	require.NoError(t, err)
	assert.Nil(t, estimate)
}

func TestGroups_NewGenerationBlockedWhileOpen(t *testing.T) {
	store := queuetest.NewStore()
	q := queue.New(store, nil, testLogger())
	ctx := context.Background()

	scheduleInGroup(t, q, "nightly", 1)

	err := store.CreateGroup(ctx, &job.Group{Reference: "nightly", Created: time.Now().UTC()})
	require.Error(t, err)

	var validationErr *job.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}
