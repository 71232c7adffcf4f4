package dto

import (
	"encoding/json"
	"time"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
)

type JobCreateDTO struct {
	JobType    config.JobType  `json:"jobType" validate:"required"`
	Config     json.RawMessage `json:"config" validate:"required"`
	TotalItems int             `json:"totalItems" validate:"required,gt=0"`
}

type JobTransitionDTO struct {
	ID     uint             `json:"id" validate:"required,gt=0"`
	Action config.JobAction `json:"action" validate:"required,oneof=start pause resume cancel"`
}

type JobResponseDTO struct {
	ID             uint             `json:"id"`
	JobType        config.JobType   `json:"jobType"`
	Status         config.JobStatus `json:"status"`
	TotalItems     int              `json:"totalItems"`
	ProcessedItems int              `json:"processedItems"`
	SuccessCount   int              `json:"successCount"`
	ErrorCount     int              `json:"errorCount"`
	Progress       float64          `json:"progress"`
	LastError      *string          `json:"lastError"`
	Config         json.RawMessage  `json:"config,omitempty"`
	StartedAt      *time.Time       `json:"startedAt"`
	PausedAt       *time.Time       `json:"pausedAt"`
	CompletedAt    *time.Time       `json:"completedAt"`
	LastActivityAt *time.Time       `json:"lastActivityAt"`
	Version        int              `json:"version"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

type JobListResponseDTO struct {
	Jobs      []JobResponseDTO `json:"jobs"`
	ActiveJob *JobResponseDTO  `json:"activeJob"`
}

// NewJobResponse maps a stored job to its API shape. A nil job maps to nil.
func NewJobResponse(job *models.Job) *JobResponseDTO {
	if job == nil {
		return nil
	}

	var progress float64
	if job.TotalItems > 0 {
		progress = float64(job.ProcessedItems) / float64(job.TotalItems) * 100
	}

	return &JobResponseDTO{
		ID:             job.ID,
		JobType:        job.JobType,
		Status:         job.Status,
		TotalItems:     job.TotalItems,
		ProcessedItems: job.ProcessedItems,
		SuccessCount:   job.SuccessCount,
		ErrorCount:     job.ErrorCount,
		Progress:       progress,
		LastError:      job.LastError,
		Config:         json.RawMessage(job.Config),
		StartedAt:      job.StartedAt,
		PausedAt:       job.PausedAt,
		CompletedAt:    job.CompletedAt,
		LastActivityAt: job.LastActivityAt,
		Version:        job.Version,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
}
