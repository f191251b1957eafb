// Package queuetest provides an in-memory queue.Store for tests. It enforces
// the same write-time validation rules as the SQL implementation so engine
// and facade tests exercise real semantics without a database.
package queuetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/asyncq/internal/job"
	"github.com/cuongbtq/asyncq/internal/queue"
)

// Store is an in-memory implementation of queue.Store.
type Store struct {
	mu         sync.Mutex
	jobs       map[int64]*job.Job
	groups     map[int64]*job.Group
	jobErrors  map[int64][]*job.JobError
	nextJobID  int64
	nextGroup  int64
	nextJobErr int64
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		jobs:      make(map[int64]*job.Job),
		groups:    make(map[int64]*job.Group),
		jobErrors: make(map[int64][]*job.JobError),
	}
}

func (s *Store) CreateJob(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.GroupID != nil {
		g, ok := s.groups[*j.GroupID]
		if !ok {
			return job.ErrGroupNotFound
		}
		for _, member := range s.jobs {
			if member.GroupID != nil && *member.GroupID == g.ID && member.Terminal() {
				return job.NewValidationError(fmt.Sprintf(
					"cannot add job [%s] to group [%s] because this group has executed jobs", j.Name, g.Reference))
			}
		}
	}

	s.nextJobID++
	j.ID = s.nextJobID
	copied := *j
	s.jobs[j.ID] = &copied
	return nil
}

func (s *Store) GetJob(_ context.Context, id int64) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	copied := *j
	return &copied, nil
}

func (s *Store) ListJobs(_ context.Context, filter queue.JobFilter) ([]job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []job.Job
	for _, j := range s.jobs {
		if filter.Name != "" && j.Name != filter.Name {
			continue
		}
		if filter.Pending && j.Terminal() {
			continue
		}
		if filter.Reference != "" {
			if j.GroupID == nil {
				continue
			}
			g, ok := s.groups[*j.GroupID]
			if !ok || g.Reference != filter.Reference {
				continue
			}
		}
		out = append(out, *j)
	}

	sort.Slice(out, func(a, b int) bool {
		if !out[a].Added.Equal(out[b].Added) {
			return out[a].Added.After(out[b].Added)
		}
		return out[a].ID > out[b].ID
	})

	if filter.Cursor != nil {
		trimmed := out[:0]
		for _, j := range out {
			if j.Added.Before(filter.Cursor.Added) ||
				(j.Added.Equal(filter.Cursor.Added) && j.ID < filter.Cursor.ID) {
				trimmed = append(trimmed, j)
			}
		}
		out = trimmed
	}

	if filter.PageSize > 0 && len(out) > filter.PageSize+1 {
		out = out[:filter.PageSize+1]
	}
	return out, nil
}

func (s *Store) MarkExecutedByIdentity(_ context.Context, identity string, executed time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var marked int64
	for _, j := range s.jobs {
		if j.Identity == identity && j.Executed == nil {
			stamp := executed
			j.Executed = &stamp
			marked++
		}
	}
	return marked, nil
}

func (s *Store) ClaimJob(_ context.Context, id int64, started time.Time) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	if j.Started != nil || j.Terminal() {
		return nil, job.ErrJobAlreadyClaimed
	}

	stamp := started
	j.Started = &stamp
	copied := *j
	return &copied, nil
}

func (s *Store) CompleteJob(_ context.Context, id int64, executed time.Time, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return job.ErrJobNotFound
	}
	stamp := executed
	j.Executed = &stamp
	j.Result = result
	return nil
}

func (s *Store) FailJob(_ context.Context, id int64, scheduled time.Time, jobErr *job.JobError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return job.ErrJobNotFound
	}

	j.Started = nil
	stamp := scheduled
	j.Scheduled = &stamp
	j.Priority--

	s.nextJobErr++
	recorded := *jobErr
	recorded.ID = s.nextJobErr
	recorded.JobID = id
	s.jobErrors[id] = append(s.jobErrors[id], &recorded)
	return nil
}

func (s *Store) CountJobErrors(_ context.Context, id int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobErrors[id]), nil
}

func (s *Store) Health(_ context.Context) (*queue.HealthStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &queue.HealthStatus{}
	status.Queue.Length = len(s.jobs)
	for _, j := range s.jobs {
		if j.Executed == nil {
			status.Queue.Executed++
		}
	}
	for _, errs := range s.jobErrors {
		status.Errors.Number += len(errs)
	}
	return status, nil
}

func (s *Store) CreateGroup(_ context.Context, g *job.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.groups {
		if existing.Reference != g.Reference || existing.ID == g.ID {
			continue
		}
		for _, j := range s.jobs {
			if j.GroupID != nil && *j.GroupID == existing.ID && !j.Terminal() {
				return job.NewValidationError(fmt.Sprintf(
					"group reference [%s] still has unexecuted jobs", g.Reference))
			}
		}
	}

	s.nextGroup++
	g.ID = s.nextGroup
	if g.Created.IsZero() {
		g.Created = time.Now().UTC()
	}
	copied := *g
	s.groups[g.ID] = &copied
	return nil
}

func (s *Store) LatestGroupByReference(_ context.Context, reference string) (*job.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *job.Group
	for _, g := range s.groups {
		if g.Reference != reference {
			continue
		}
		if latest == nil || g.Created.After(latest.Created) ||
			(g.Created.Equal(latest.Created) && g.ID > latest.ID) {
			latest = g
		}
	}
	if latest == nil {
		return nil, job.ErrGroupNotFound
	}
	copied := *latest
	return &copied, nil
}

func (s *Store) SetFinalJob(_ context.Context, groupID, jobID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return job.ErrGroupNotFound
	}
	j, ok := s.jobs[jobID]
	if !ok {
		return job.ErrJobNotFound
	}

	if j.GroupID == nil || *j.GroupID != groupID {
		for _, member := range s.jobs {
			if member.GroupID != nil && *member.GroupID == groupID && member.Terminal() {
				return job.NewValidationError(fmt.Sprintf(
					"cannot add job [%s] to group [%s] because this group has executed jobs", j.Name, g.Reference))
			}
		}
		gid := groupID
		j.GroupID = &gid
	}

	jid := jobID
	g.FinalJobID = &jid
	return nil
}

func (s *Store) GroupStats(_ context.Context, groupID, excludeJobID int64) (*queue.GroupStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &queue.GroupStats{}
	for _, j := range s.jobs {
		if j.GroupID == nil || *j.GroupID != groupID {
			continue
		}
		stats.Total++
		if j.Executed != nil {
			stats.Executed++
		}
		if j.Cancelled != nil {
			stats.Cancelled++
		}
		if j.Executed == nil && j.Cancelled == nil && j.ID != excludeJobID {
			stats.Unfinished++
		}
	}
	return stats, nil
}

func (s *Store) LatestExecuted(_ context.Context, groupID int64) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *time.Time
	for _, j := range s.jobs {
		if j.GroupID == nil || *j.GroupID != groupID || j.Executed == nil {
			continue
		}
		if latest == nil || j.Executed.After(*latest) {
			stamp := *j.Executed
			latest = &stamp
		}
	}
	return latest, nil
}

// JobErrors returns a job's recorded error history, oldest first.
func (s *Store) JobErrors(id int64) []*job.JobError {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*job.JobError, 0, len(s.jobErrors[id]))
	for _, e := range s.jobErrors[id] {
		copied := *e
		out = append(out, &copied)
	}
	return out
}

var _ queue.Store = (*Store)(nil)
