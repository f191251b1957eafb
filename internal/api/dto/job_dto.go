package dto

import (
	"encoding/json"
	"time"
)

type ScheduleJobRequest struct {
	Name     string         `json:"name" binding:"required"`
	Args     []any          `json:"args"`
	Kwargs   map[string]any `json:"kwargs"`
	Meta     map[string]any `json:"meta"`
	RunAfter *time.Time     `json:"run_after"`
	Priority int            `json:"priority"`
	Group    string         `json:"group"`
}

type DescheduleRequest struct {
	Name   string         `json:"name" binding:"required"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

type ListJobsRequest struct {
	Reference string `form:"reference"`
	Name      string `form:"name"`
	Pending   bool   `form:"pending"`
	PageSize  int    `form:"page_size"`
	Cursor    string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// JobDTO is the wire shape of a job. Args, kwargs, meta and result are stored
// as JSON text, so they are emitted verbatim instead of re-encoded.
type JobDTO struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Args      json.RawMessage `json:"args"`
	Kwargs    json.RawMessage `json:"kwargs"`
	Meta      json.RawMessage `json:"meta"`
	Result    json.RawMessage `json:"result,omitempty"`
	Priority  int             `json:"priority"`
	Identity  string          `json:"identity"`
	Status    string          `json:"status"`
	Fairness  int             `json:"fairness"`
	GroupID   *int64          `json:"group_id,omitempty"`
	Added     time.Time       `json:"added"`
	Scheduled *time.Time      `json:"scheduled,omitempty"`
	Started   *time.Time      `json:"started,omitempty"`
	Executed  *time.Time      `json:"executed,omitempty"`
	Cancelled *time.Time      `json:"cancelled,omitempty"`
}

type DescheduleResponse struct {
	Identity string `json:"identity"`
}
