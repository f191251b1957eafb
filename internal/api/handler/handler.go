package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/asyncq/internal/job"
	"github.com/cuongbtq/asyncq/internal/queue"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger *slog.Logger
	Queue  *queue.Queue
	Store  queue.Store
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	queue  *queue.Queue
	store  queue.Store
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		queue:  deps.Queue,
		store:  deps.Store,
	}
}

// GroupHandler handles group-related HTTP requests
type GroupHandler struct {
	logger *slog.Logger
	queue  *queue.Queue
	store  queue.Store
}

// NewGroupHandler creates a new GroupHandler instance
func NewGroupHandler(deps *Dependencies) *GroupHandler {
	return &GroupHandler{
		logger: deps.Logger,
		queue:  deps.Queue,
		store:  deps.Store,
	}
}

// respondError maps domain errors onto HTTP status codes.
func respondError(c *gin.Context, err error, fallback string) {
	var validationErr *job.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusConflict, gin.H{"error": validationErr.Reason})
	case errors.Is(err, job.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, job.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
