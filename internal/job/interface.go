package job

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
)

// JobRepoInterface defines the contract for job repository operations.
type JobRepoInterface interface {
	CreateExclusive(ctx context.Context, job *models.Job) (*models.Job, error)
	Get(ctx context.Context, id uint) (*models.Job, error)
	List(ctx context.Context, filter models.JobFilter, limit int) ([]models.Job, error)
	ActiveJob(ctx context.Context) (*models.Job, error)
	UpdateIfVersion(ctx context.Context, id uint, version int, updates map[string]any) (bool, error)
	DeleteUnlessRunning(ctx context.Context, id uint) (bool, error)
}

// JobServiceInterface defines the contract for job business logic operations.
type JobServiceInterface interface {
	CreateJob(ctx context.Context, dto *dto.JobCreateDTO) (*dto.JobResponseDTO, error)
	GetJobByID(ctx context.Context, id uint) (*dto.JobResponseDTO, error)
	ListJobs(ctx context.Context, filter models.JobFilter) (*dto.JobListResponseDTO, error)
	Transition(ctx context.Context, id uint, action config.JobAction) (*dto.JobResponseDTO, error)
	DeleteJob(ctx context.Context, id uint) error
}

// JobHandlerInterface defines the contract for HTTP request handlers.
type JobHandlerInterface interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	List(c *gin.Context)
	Transition(c *gin.Context)
	Delete(c *gin.Context)
}

// Trigger schedules background batch processing of a running job.
// Fire must return immediately.
type Trigger interface {
	Fire(jobID uint)
}
