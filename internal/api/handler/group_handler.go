package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/asyncq/internal/api/dto"
)

// GetGroup handles GET /api/v1/groups/:reference
// Returns the latest generation for the reference with member counts.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	reference := c.Param("reference")
	ctx := c.Request.Context()

	g, err := h.store.LatestGroupByReference(ctx, reference)
	if err != nil {
		respondError(c, err, "Failed to get group")
		return
	}

	stats, err := h.store.GroupStats(ctx, g.ID, 0)
	if err != nil {
		h.logger.Error("Failed to aggregate group stats",
			slog.String("reference", reference),
			slog.String("error", err.Error()),
		)
		respondError(c, err, "Failed to get group")
		return
	}

	completed, err := h.queue.Groups().HasCompleted(ctx, g, nil)
	if err != nil {
		respondError(c, err, "Failed to get group")
		return
	}

	c.JSON(http.StatusOK, dto.GroupDTO{
		ID:          g.ID,
		Reference:   g.Reference,
		Description: g.Description,
		Created:     g.Created,
		FinalJobID:  g.FinalJobID,
		Total:       stats.Total,
		Executed:    stats.Executed,
		Cancelled:   stats.Cancelled,
		Completed:   completed,
	})
}

// GetGroupProgress handles GET /api/v1/groups/:reference/progress
// Returns the time-to-completion estimate for the latest generation.
func (h *GroupHandler) GetGroupProgress(c *gin.Context) {
	reference := c.Param("reference")
	ctx := c.Request.Context()

	g, err := h.store.LatestGroupByReference(ctx, reference)
	if err != nil {
		respondError(c, err, "Failed to get group progress")
		return
	}

	stats, err := h.store.GroupStats(ctx, g.ID, 0)
	if err != nil {
		respondError(c, err, "Failed to get group progress")
		return
	}

	estimate, err := h.queue.Groups().EstimateDuration(ctx, g)
	if err != nil {
		h.logger.Error("Failed to estimate group duration",
			slog.String("reference", reference),
			slog.String("error", err.Error()),
		)
		respondError(c, err, "Failed to get group progress")
		return
	}

	resp := dto.GroupProgressResponse{
		Reference: g.Reference,
		Total:     stats.Total,
		Done:      stats.Done(),
		Completed: stats.Total > 0 && stats.Unfinished == 0,
	}

	// No estimate until at least one member finished.
	if estimate != nil {
		total := estimate.EstimatedTotal.Seconds()
		remaining := estimate.Remaining.Seconds()
		elapsed := estimate.Elapsed.Seconds()
		resp.EstimatedTotal = &total
		resp.Remaining = &remaining
		resp.Elapsed = &elapsed
	}

	c.JSON(http.StatusOK, resp)
}

// SetFinalJob handles POST /api/v1/groups/:reference/final-job
// Points the latest generation at its completion-trigger job.
func (h *GroupHandler) SetFinalJob(c *gin.Context) {
	reference := c.Param("reference")

	var req dto.SetFinalJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	ctx := c.Request.Context()

	g, err := h.store.LatestGroupByReference(ctx, reference)
	if err != nil {
		respondError(c, err, "Failed to set final job")
		return
	}

	final, err := h.store.GetJob(ctx, req.JobID)
	if err != nil {
		respondError(c, err, "Failed to set final job")
		return
	}

	if err := h.queue.Groups().OnCompletion(ctx, g, final); err != nil {
		h.logger.Error("Failed to set final job",
			slog.String("reference", reference),
			slog.Int64("job_id", req.JobID),
			slog.String("error", err.Error()),
		)
		respondError(c, err, "Failed to set final job")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reference":    g.Reference,
		"final_job_id": req.JobID,
	})
}
