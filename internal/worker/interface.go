package worker

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/catalogjobs/internal/classifier"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/joshu-sajeev/catalogjobs/internal/rewriter"
	"github.com/joshu-sajeev/catalogjobs/internal/settings"
)

type ActiveJobFinder interface {
	ActiveJob(ctx context.Context) (*models.Job, error)
}

type JobStore interface {
	ActiveJobFinder
	Get(ctx context.Context, id uint) (*models.Job, error)
	AcquireLease(ctx context.Context, id uint, owner string, now time.Time, ttl time.Duration) (bool, error)
	ExtendLease(ctx context.Context, id uint, owner string, until time.Time) (bool, error)
	ReleaseLease(ctx context.Context, id uint, owner string) error
	ApplyBatch(ctx context.Context, id uint, owner string, delta models.BatchDelta) (*models.Job, error)
}

type BatchRunner interface {
	RunBatch(ctx context.Context, jobID uint, batchSize, parallelCount int) (*dto.BatchResponseDTO, error)
}

type ProductStore interface {
	Get(ctx context.Context, id uint) (*models.Product, error)
	UpdateCategory(ctx context.Context, id uint, category string) error
	Rename(ctx context.Context, id uint, name string) error
	UpsertSEO(ctx context.Context, seo *models.ProductSEO) error
	HasSEO(ctx context.Context, productID uint) (bool, error)
}

type Classifier interface {
	Classify(name string) *classifier.Match
}

type Rewriter interface {
	Rewrite(ctx context.Context, name string, creds rewriter.Credentials) (*rewriter.Result, error)
}

type SettingsLoader interface {
	Load(ctx context.Context) (settings.Settings, error)
}

type BatchHandlerInterface interface {
	Run(c *gin.Context)
	Active(c *gin.Context)
}
