package queue

import (
	"context"
	"time"

	"github.com/cuongbtq/asyncq/internal/job"
)

// Store is the persistence port shared by the facade, the group engine and
// the execution engine. Implementations must make ClaimJob a row-locked
// transition (at most one concurrent execute commits per job id), make
// FailJob atomic (error row and reschedule commit together), and enforce the
// group validation rules at write time.
type Store interface {
	// CreateJob persists a new pending job. When the job carries a group id
	// the write is rejected with a job.ValidationError if that group already
	// has a terminal member.
	CreateJob(ctx context.Context, j *job.Job) error

	// GetJob returns a job by id, or job.ErrJobNotFound.
	GetJob(ctx context.Context, id int64) (*job.Job, error)

	// ListJobs returns up to PageSize+1 jobs matching the filter, newest
	// first; the extra row signals another page.
	ListJobs(ctx context.Context, filter JobFilter) ([]job.Job, error)

	// MarkExecutedByIdentity stamps executed on every job sharing the
	// identity that has not executed yet, and returns how many it touched.
	MarkExecutedByIdentity(ctx context.Context, identity string, executed time.Time) (int64, error)

	// ClaimJob marks the job as started iff it is pending. Returns
	// job.ErrJobAlreadyClaimed when the job is running or terminal.
	ClaimJob(ctx context.Context, id int64, started time.Time) (*job.Job, error)

	// CompleteJob commits executed and the serialized result for a claimed job.
	CompleteJob(ctx context.Context, id int64, executed time.Time, result string) error

	// FailJob clears started, reschedules, decrements priority and appends
	// one error row, all in a single transaction.
	FailJob(ctx context.Context, id int64, scheduled time.Time, jobErr *job.JobError) error

	// CountJobErrors returns the number of errors recorded for a job.
	CountJobErrors(ctx context.Context, id int64) (int, error)

	// Health returns the read-only queue snapshot.
	Health(ctx context.Context) (*HealthStatus, error)

	// CreateGroup persists a new group. Rejected with a job.ValidationError
	// while another group with the same reference is still open.
	CreateGroup(ctx context.Context, g *job.Group) error

	// LatestGroupByReference returns the most recently created group for a
	// reference, or job.ErrGroupNotFound.
	LatestGroupByReference(ctx context.Context, reference string) (*job.Group, error)

	// SetFinalJob points the group at its completion-trigger job and makes
	// the job a member if it is not one already (subject to the terminal
	// membership rule).
	SetFinalJob(ctx context.Context, groupID, jobID int64) error

	// GroupStats aggregates member counts. Unfinished excludes the job with
	// id excludeJobID (0 excludes nothing).
	GroupStats(ctx context.Context, groupID, excludeJobID int64) (*GroupStats, error)

	// LatestExecuted returns the executed time of the group's most recently
	// executed member, or nil when none executed.
	LatestExecuted(ctx context.Context, groupID int64) (*time.Time, error)
}

// JobFilter selects jobs for listing.
type JobFilter struct {
	Reference string // group reference, empty matches all
	Name      string // operation name, empty matches all
	Pending   bool   // only jobs with no executed/cancelled stamp
	PageSize  int
	Cursor    *JobCursor
}

// JobCursor is a keyset cursor over (added, id) descending.
type JobCursor struct {
	Added time.Time
	ID    int64
}

// GroupStats aggregates a group's member counts.
type GroupStats struct {
	Total      int
	Executed   int
	Cancelled  int
	Unfinished int // neither executed nor cancelled, minus the excluded job
}

// Done is the number of terminal members.
func (s *GroupStats) Done() int {
	return s.Executed + s.Cancelled
}

// HealthStatus is the serializable queue snapshot. The queue.executed field
// counts jobs whose executed stamp is still null; the shape is a wire
// contract kept as is.
type HealthStatus struct {
	Queue struct {
		Length   int `json:"length"`
		Executed int `json:"executed"`
	} `json:"queue"`
	Errors struct {
		Number int `json:"number"`
	} `json:"errors"`
}
