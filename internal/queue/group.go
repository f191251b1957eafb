package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/asyncq/internal/job"
)

// Groups tracks batches of jobs under a shared reference.
type Groups struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewGroups creates the group engine.
func NewGroups(store Store, logger *slog.Logger) *Groups {
	return &Groups{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// LatestByReference returns the current open group for a reference. When no
// group exists, or the latest one has completed, a new generation is created
// carrying forward the previous description. This is the sole entry point for
// joining new jobs to a group.
func (g *Groups) LatestByReference(ctx context.Context, reference string) (*job.Group, error) {
	latest, err := g.store.LatestGroupByReference(ctx, reference)
	if errors.Is(err, job.ErrGroupNotFound) {
		return g.create(ctx, reference, "")
	}
	if err != nil {
		return nil, err
	}

	completed, err := g.HasCompleted(ctx, latest, nil)
	if err != nil {
		return nil, err
	}
	if completed {
		return g.create(ctx, reference, latest.Description)
	}

	return latest, nil
}

func (g *Groups) create(ctx context.Context, reference, description string) (*job.Group, error) {
	created := &job.Group{
		Reference:   reference,
		Description: description,
		Created:     g.now().UTC(),
	}
	if err := g.store.CreateGroup(ctx, created); err != nil {
		return nil, err
	}

	g.logger.Info("Group created",
		slog.Int64("group_id", created.ID),
		slog.String("reference", reference),
	)
	return created, nil
}

// OnCompletion designates j as the group's final job: the hook an external
// consumer watches to run group-level completion handling once that job
// itself executes. The pointer update is idempotent.
func (g *Groups) OnCompletion(ctx context.Context, grp *job.Group, j *job.Job) error {
	if err := g.store.SetFinalJob(ctx, grp.ID, j.ID); err != nil {
		return err
	}
	grp.FinalJobID = &j.ID
	return nil
}

// HasCompleted reports whether the group has at least one member and every
// member except excluding is terminal.
func (g *Groups) HasCompleted(ctx context.Context, grp *job.Group, excluding *job.Job) (bool, error) {
	var excludeID int64
	if excluding != nil {
		excludeID = excluding.ID
	}

	stats, err := g.store.GroupStats(ctx, grp.ID, excludeID)
	if err != nil {
		return false, fmt.Errorf("failed to aggregate group %d: %w", grp.ID, err)
	}

	return stats.Total > 0 && stats.Unfinished == 0, nil
}

// DurationEstimate is the progress triple for a group: a linear extrapolation
// of total runtime from the completion rate, what remains, and time consumed.
type DurationEstimate struct {
	EstimatedTotal time.Duration `json:"estimated_total"`
	Remaining      time.Duration `json:"remaining"`
	Elapsed        time.Duration `json:"elapsed"`
}

// EstimateDuration estimates the group's execution duration. Returns nil when
// the group has no members or none is terminal yet. While incomplete the
// total is elapsed * total/done; once complete it is the span from creation
// to the latest executed member.
func (g *Groups) EstimateDuration(ctx context.Context, grp *job.Group) (*DurationEstimate, error) {
	stats, err := g.store.GroupStats(ctx, grp.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate group %d: %w", grp.ID, err)
	}

	if stats.Total == 0 || stats.Done() == 0 {
		return nil, nil
	}

	if stats.Unfinished > 0 {
		elapsed := g.now().Sub(grp.Created)
		estimated := time.Duration(float64(elapsed) / float64(stats.Done()) * float64(stats.Total))
		return &DurationEstimate{
			EstimatedTotal: estimated,
			Remaining:      estimated - elapsed,
			Elapsed:        elapsed,
		}, nil
	}

	latest, err := g.store.LatestExecuted(ctx, grp.ID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		// Every member was cancelled; nothing ever ran.
		return &DurationEstimate{}, nil
	}

	elapsed := latest.Sub(grp.Created)
	return &DurationEstimate{
		EstimatedTotal: elapsed,
		Remaining:      0,
		Elapsed:        elapsed,
	}, nil
}
