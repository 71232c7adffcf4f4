package worker

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/middleware"
)

type BatchHandler struct {
	runner BatchRunner
	jobs   ActiveJobFinder
}

func NewBatchHandler(runner BatchRunner, jobs ActiveJobFinder) *BatchHandler {
	return &BatchHandler{runner: runner, jobs: jobs}
}

var _ BatchHandlerInterface = (*BatchHandler)(nil)

// Run handles POST /jobs/worker. The batch outlives a dropped client
// connection so that a started batch always records its outcome.
func (h *BatchHandler) Run(c *gin.Context) {
	var req dto.WorkerRunDTO
	if !middleware.Bind(c, &req) {
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	resp, err := h.runner.RunBatch(ctx, req.JobID, req.BatchSize, req.ParallelCount)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Active handles GET /jobs/worker.
func (h *BatchHandler) Active(c *gin.Context) {
	job, err := h.jobs.ActiveJob(c.Request.Context())
	if err != nil {
		c.Error(storeError(err, "failed to get active job"))
		return
	}

	c.JSON(http.StatusOK, dto.ActiveJobResponseDTO{ActiveJob: dto.NewJobResponse(job)})
}
