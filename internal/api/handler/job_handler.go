package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/asyncq/internal/api/dto"
	"github.com/cuongbtq/asyncq/internal/job"
	"github.com/cuongbtq/asyncq/internal/queue"
)

// ScheduleJob handles POST /api/v1/jobs
// Persists a pending job and notifies the worker pool.
func (h *JobHandler) ScheduleJob(c *gin.Context) {
	var req dto.ScheduleJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	scheduled, err := h.queue.Schedule(c.Request.Context(), req.Name, req.Args, req.Kwargs, &queue.ScheduleOptions{
		RunAfter: req.RunAfter,
		Meta:     req.Meta,
		Priority: req.Priority,
		Group:    req.Group,
	})
	if err != nil {
		h.logger.Error("Failed to schedule job",
			slog.String("name", req.Name),
			slog.String("error", err.Error()),
		)
		respondError(c, err, "Failed to schedule job")
		return
	}

	c.JSON(http.StatusCreated, toJobDTO(scheduled))
}

// DescheduleJobs handles POST /api/v1/jobs/deschedule
// Suppresses future execution of every job matching the identity fingerprint.
func (h *JobHandler) DescheduleJobs(c *gin.Context) {
	var req dto.DescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if err := h.queue.Deschedule(c.Request.Context(), req.Name, req.Args, req.Kwargs); err != nil {
		h.logger.Error("Failed to deschedule jobs",
			slog.String("name", req.Name),
			slog.String("error", err.Error()),
		)
		respondError(c, err, "Failed to deschedule jobs")
		return
	}

	identity, err := job.Identity(req.Name, req.Args, req.Kwargs)
	if err != nil {
		respondError(c, err, "Failed to deschedule jobs")
		return
	}

	c.JSON(http.StatusOK, dto.DescheduleResponse{Identity: identity})
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("job_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be an integer",
		})
		return
	}

	found, err := h.store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, err, "Failed to get job")
		return
	}

	c.JSON(http.StatusOK, toJobDTO(found))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs with optional filtering and keyset pagination.
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.store.ListJobs(c.Request.Context(), queue.JobFilter{
		Reference: req.Reference,
		Name:      req.Name,
		Pending:   req.Pending,
		PageSize:  req.PageSize,
		Cursor:    cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = toJobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&queue.JobCursor{
			Added: last.Added,
			ID:    last.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

func toJobDTO(j *job.Job) dto.JobDTO {
	return dto.JobDTO{
		ID:        j.ID,
		Name:      j.Name,
		Args:      rawOrNull(j.Args),
		Kwargs:    rawOrNull(j.Kwargs),
		Meta:      rawOrNull(j.Meta),
		Result:    rawOrEmpty(j.Result),
		Priority:  j.Priority,
		Identity:  j.Identity,
		Status:    j.Status(),
		Fairness:  j.Fairness,
		GroupID:   j.GroupID,
		Added:     j.Added,
		Scheduled: j.Scheduled,
		Started:   j.Started,
		Executed:  j.Executed,
		Cancelled: j.Cancelled,
	}
}

func rawOrNull(s string) []byte {
	if s == "" {
		return []byte("null")
	}
	return []byte(s)
}

func rawOrEmpty(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}
