package dto

import "time"

type GroupDTO struct {
	ID          int64     `json:"id"`
	Reference   string    `json:"reference"`
	Description string    `json:"description,omitempty"`
	Created     time.Time `json:"created"`
	FinalJobID  *int64    `json:"final_job_id,omitempty"`
	Total       int       `json:"total"`
	Executed    int       `json:"executed"`
	Cancelled   int       `json:"cancelled"`
	Completed   bool      `json:"completed"`
}

type GroupProgressResponse struct {
	Reference      string   `json:"reference"`
	Total          int      `json:"total"`
	Done           int      `json:"done"`
	Completed      bool     `json:"completed"`
	EstimatedTotal *float64 `json:"estimated_total_seconds,omitempty"`
	Remaining      *float64 `json:"remaining_seconds,omitempty"`
	Elapsed        *float64 `json:"elapsed_seconds,omitempty"`
}

type SetFinalJobRequest struct {
	JobID int64 `json:"job_id" binding:"required"`
}
