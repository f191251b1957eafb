package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/asyncq/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Queue health snapshot. The response shape is a wire contract consumed
	// by monitoring, keep it stable.
	r.GET("/health", func(c *gin.Context) {
		status, err := deps.Queue.Health(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Failed to read queue health",
			})
			return
		}
		c.JSON(http.StatusOK, status)
	})

	jobHandler := handler.NewJobHandler(deps)
	groupHandler := handler.NewGroupHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Schedule a new job
			jobs.POST("", jobHandler.ScheduleJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/deschedule - Suppress jobs by identity
			jobs.POST("/deschedule", jobHandler.DescheduleJobs)
		}

		groups := v1.Group("/groups")
		{
			// GET /api/v1/groups/:reference - Latest generation with counts
			groups.GET("/:reference", groupHandler.GetGroup)

			// GET /api/v1/groups/:reference/progress - Duration estimate
			groups.GET("/:reference/progress", groupHandler.GetGroupProgress)

			// POST /api/v1/groups/:reference/final-job - Completion trigger
			groups.POST("/:reference/final-job", groupHandler.SetFinalJob)
		}
	}

	return r
}
