package job

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/joshu-sajeev/catalogjobs/middleware"
)

type JobHandler struct {
	service JobServiceInterface
}

func NewJobHandler(s JobServiceInterface) *JobHandler {
	return &JobHandler{service: s}
}

var _ JobHandlerInterface = (*JobHandler)(nil)

// Create handles POST /jobs and returns 201 with the pending job.
func (h *JobHandler) Create(c *gin.Context) {
	var req dto.JobCreateDTO

	if !middleware.Bind(c, &req) {
		return
	}

	job, err := h.service.CreateJob(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// Get handles GET /jobs/:id.
func (h *JobHandler) Get(c *gin.Context) {
	id, ok := parseID(c, c.Param("id"))
	if !ok {
		return
	}

	job, err := h.service.GetJobByID(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// List handles GET /jobs?status=&jobType= and returns the newest jobs plus the active one.
func (h *JobHandler) List(c *gin.Context) {
	filter := models.JobFilter{
		Status:  config.JobStatus(c.Query("status")),
		JobType: config.JobType(c.Query("jobType")),
	}

	resp, err := h.service.ListJobs(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Transition handles PATCH /jobs with {id, action}.
func (h *JobHandler) Transition(c *gin.Context) {
	var req dto.JobTransitionDTO
	if !middleware.Bind(c, &req) {
		return
	}

	job, err := h.service.Transition(c.Request.Context(), req.ID, req.Action)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// Delete handles DELETE /jobs?id= and returns 204.
func (h *JobHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, c.Query("id"))
	if !ok {
		return
	}

	if err := h.service.DeleteJob(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context, raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || id < 1 {
		c.Error(common.Kindf(http.StatusBadRequest, common.ErrValidation, "invalid ID"))
		return 0, false
	}
	return uint(id), true
}
