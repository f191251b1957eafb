package job

import (
	"time"
)

// Job status values derived from the timestamp fields
const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusExecuted  = "EXECUTED"
	JobStatusCancelled = "CANCELLED"
)

// Job is a deferred invocation of a named operation. Args, Kwargs, Meta and
// Result are stored as JSON text so the row shape stays compatible with the
// archive tables.
type Job struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	Args     string `db:"args"`
	Kwargs   string `db:"kwargs"`
	Meta     string `db:"meta"`
	Result   string `db:"result"`
	Priority int    `db:"priority"`
	Identity string `db:"identity"`

	Added     time.Time  `db:"added"`
	Scheduled *time.Time `db:"scheduled"` // nil means run as soon as possible
	Started   *time.Time `db:"started"`
	Executed  *time.Time `db:"executed"`
	Cancelled *time.Time `db:"cancelled"`

	Fairness int    `db:"fairness"`
	GroupID  *int64 `db:"group_id"`
}

// NewJob builds a pending job for the given operation. The identity
// fingerprint is computed from name, args and kwargs only; runAfter and meta
// never participate in it.
func NewJob(name string, args []any, kwargs map[string]any, meta map[string]any, runAfter *time.Time) (*Job, error) {
	encodedArgs, err := EncodeValues(args)
	if err != nil {
		return nil, err
	}
	encodedKwargs, err := EncodeMapping(kwargs)
	if err != nil {
		return nil, err
	}
	encodedMeta, err := EncodeMapping(meta)
	if err != nil {
		return nil, err
	}

	identity, err := Identity(name, args, kwargs)
	if err != nil {
		return nil, err
	}

	return &Job{
		Name:      name,
		Args:      encodedArgs,
		Kwargs:    encodedKwargs,
		Meta:      encodedMeta,
		Identity:  identity,
		Added:     time.Now().UTC(),
		Scheduled: runAfter,
		Fairness:  -1,
	}, nil
}

// Terminal reports whether the job reached a terminal state. Executed and
// cancelled are each set at most once and are mutually exclusive.
func (j *Job) Terminal() bool {
	return j.Executed != nil || j.Cancelled != nil
}

// Status derives the lifecycle status from the timestamp fields.
func (j *Job) Status() string {
	switch {
	case j.Cancelled != nil:
		return JobStatusCancelled
	case j.Executed != nil:
		return JobStatusExecuted
	case j.Started != nil:
		return JobStatusRunning
	default:
		return JobStatusPending
	}
}

// Group is a named batch of jobs. A reference is not globally unique: once
// every member of a group is terminal, a later schedule under the same
// reference starts a new generation.
type Group struct {
	ID          int64     `db:"id"`
	Reference   string    `db:"reference"`
	Description string    `db:"description"`
	Created     time.Time `db:"created"`
	FinalJobID  *int64    `db:"final_job_id"`
}

// JobError is one entry in a job's append-only failure history.
type JobError struct {
	ID        int64     `db:"id"`
	JobID     int64     `db:"job_id"`
	Executed  time.Time `db:"executed"`
	Exception string    `db:"exception"`
	Traceback string    `db:"traceback"`
}
