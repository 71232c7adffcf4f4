package models

import (
	"time"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"gorm.io/datatypes"
)

type Job struct {
	ID             uint             `gorm:"primaryKey;autoIncrement"`
	JobType        config.JobType   `gorm:"type:varchar(50);not null;index"`
	Status         config.JobStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	TotalItems     int              `gorm:"not null"`
	ProcessedItems int              `gorm:"not null;default:0"`
	SuccessCount   int              `gorm:"not null;default:0"`
	ErrorCount     int              `gorm:"not null;default:0"`
	LastError      *string          `gorm:"type:text"`
	Config         datatypes.JSON   `gorm:"type:jsonb"`
	StartedAt      *time.Time
	PausedAt       *time.Time
	CompletedAt    *time.Time
	LastActivityAt *time.Time
	LeaseOwner     string `gorm:"type:varchar(64);not null;default:''"`
	LeasedUntil    *time.Time
	Version        int       `gorm:"not null;default:1"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// JobFilter narrows a job listing. Zero values match everything.
type JobFilter struct {
	Status  config.JobStatus
	JobType config.JobType
}

// BatchDelta is the outcome of one worker batch, applied to a job in a single update.
type BatchDelta struct {
	Attempted int
	Succeeded int
	Failed    int
	LastError string
	At        time.Time
}
