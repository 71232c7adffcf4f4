package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/catalogjobs/internal/job"
	"github.com/joshu-sajeev/catalogjobs/internal/worker"
	"github.com/joshu-sajeev/catalogjobs/middleware"
)

type Dependencies struct {
	Jobs           job.JobHandlerInterface
	Batches        worker.BatchHandlerInterface
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	if deps.RequestTimeout > 0 {
		r.Use(middleware.TimeoutMiddleware(deps.RequestTimeout))
	}
	r.Use(middleware.ErrorHandler())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	jobs := r.Group("/jobs")
	{
		jobs.GET("", deps.Jobs.List)
		jobs.POST("", deps.Jobs.Create)
		jobs.PATCH("", deps.Jobs.Transition)
		jobs.DELETE("", deps.Jobs.Delete)

		// registered before /:id so the static segment wins
		jobs.POST("/worker", deps.Batches.Run)
		jobs.GET("/worker", deps.Batches.Active)

		jobs.GET("/:id", deps.Jobs.Get)
	}

	return r
}
