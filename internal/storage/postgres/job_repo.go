package postgres

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/job"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"gorm.io/gorm"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

var _ job.JobRepoInterface = (*JobRepository)(nil)

// CreateExclusive inserts job unless another job is pending, running or paused.
// On conflict it returns the existing active job together with
// common.ErrActiveJobExists. The check and the insert share a transaction; on
// PostgreSQL the jobs_single_active index closes the remaining window.
func (r *JobRepository) CreateExclusive(ctx context.Context, job *models.Job) (*models.Job, error) {
	var active *models.Job

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Job
		err := tx.Where("status IN ?", config.ActiveStatuses).
			Order("created_at DESC, id DESC").
			First(&existing).Error
		switch {
		case err == nil:
			active = &existing
			return common.ErrActiveJobExists
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		return tx.Create(job).Error
	})

	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, common.ErrActiveJobExists):
		return active, fmt.Errorf("create job: %w", err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		existing, _ := r.ActiveJob(ctx)
		return existing, fmt.Errorf("create job: %w", common.ErrActiveJobExists)
	default:
		return nil, fmt.Errorf("create job: %w", err)
	}
}

// Get retrieves a single job record by its ID.
func (r *JobRepository) Get(ctx context.Context, id uint) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job not found: %w", err)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// List returns up to limit jobs matching filter, newest first.
func (r *JobRepository) List(ctx context.Context, filter models.JobFilter, limit int) ([]models.Job, error) {
	q := r.db.WithContext(ctx).Model(&models.Job{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.JobType != "" {
		q = q.Where("job_type = ?", filter.JobType)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var jobs []models.Job
	if err := q.Order("created_at DESC, id DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// ActiveJob returns the most recent pending, running or paused job, or nil if there is none.
func (r *JobRepository) ActiveJob(ctx context.Context) (*models.Job, error) {
	var jobs []models.Job
	if err := r.db.WithContext(ctx).
		Where("status IN ?", config.ActiveStatuses).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("get active job: %w", err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// UpdateIfVersion applies updates only if the row still carries version and
// bumps the version. It reports whether the row was updated.
func (r *JobRepository) UpdateIfVersion(ctx context.Context, id uint, version int, updates map[string]any) (bool, error) {
	values := maps.Clone(updates)
	values["version"] = gorm.Expr("version + ?", 1)

	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND version = ?", id, version).
		Updates(values)
	if res.Error != nil {
		return false, fmt.Errorf("update job: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// DeleteUnlessRunning permanently removes the job unless it is running.
// It reports whether a row was deleted.
func (r *JobRepository) DeleteUnlessRunning(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status <> ?", id, config.JobStatusRunning).
		Delete(&models.Job{})
	if res.Error != nil {
		return false, fmt.Errorf("delete job: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// AcquireLease claims the single batch slot of a running job until now+ttl.
// It fails (false, nil) while another owner holds an unexpired lease.
func (r *JobRepository) AcquireLease(ctx context.Context, id uint, owner string, now time.Time, ttl time.Duration) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, config.JobStatusRunning).
		Where("(lease_owner = '' OR leased_until IS NULL OR leased_until < ?)", now).
		Updates(map[string]any{
			"lease_owner":  owner,
			"leased_until": now.Add(ttl),
		})
	if res.Error != nil {
		return false, fmt.Errorf("acquire lease: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ExtendLease moves the expiry of a lease owner still holds to until. It
// reports false once the lease was taken over or released, or the job left
// the running and paused states.
func (r *JobRepository) ExtendLease(ctx context.Context, id uint, owner string, until time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND lease_owner = ?", id, owner).
		Where("status IN ?", []config.JobStatus{config.JobStatusRunning, config.JobStatusPaused}).
		Update("leased_until", until)
	if res.Error != nil {
		return false, fmt.Errorf("extend lease: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ReleaseLease drops the lease if owner still holds it.
func (r *JobRepository) ReleaseLease(ctx context.Context, id uint, owner string) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND lease_owner = ?", id, owner).
		Updates(map[string]any{
			"lease_owner":  "",
			"leased_until": nil,
		}).Error; err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// ApplyBatch folds a batch outcome into the job in one statement and releases
// the lease. The row must still be leased by owner and be running or paused;
// otherwise nothing is written and common.ErrLeaseLost is returned. The job
// becomes completed only if it is still running and the counters reach
// total_items.
func (r *JobRepository) ApplyBatch(ctx context.Context, id uint, owner string, d models.BatchDelta) (*models.Job, error) {
	const exhausted = "status = ? AND processed_items + ? >= total_items"

	updates := map[string]any{
		"processed_items": gorm.Expr("processed_items + ?", d.Attempted),
		"success_count":   gorm.Expr("success_count + ?", d.Succeeded),
		"error_count":     gorm.Expr("error_count + ?", d.Failed),
		"status": gorm.Expr("CASE WHEN "+exhausted+" THEN ? ELSE status END",
			config.JobStatusRunning, d.Attempted, config.JobStatusCompleted),
		"completed_at": gorm.Expr("CASE WHEN "+exhausted+" THEN ? ELSE completed_at END",
			config.JobStatusRunning, d.Attempted, d.At),
		"last_activity_at": d.At,
		"lease_owner":      "",
		"leased_until":     nil,
		"version":          gorm.Expr("version + ?", 1),
	}
	if d.LastError != "" {
		updates["last_error"] = d.LastError
	}

	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND lease_owner = ?", id, owner).
		Where("status IN ?", []config.JobStatus{config.JobStatusRunning, config.JobStatusPaused}).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("apply batch: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("apply batch: %w", common.ErrLeaseLost)
	}

	return r.Get(ctx, id)
}

// ReleaseExpiredLeases clears leases whose holder did not finish in time.
func (r *JobRepository) ReleaseExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("lease_owner <> '' AND leased_until < ?", now).
		Updates(map[string]any{
			"lease_owner":  "",
			"leased_until": nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("release expired leases: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListStale returns running, unleased jobs without activity since idleSince.
func (r *JobRepository) ListStale(ctx context.Context, now, idleSince time.Time) ([]models.Job, error) {
	var jobs []models.Job
	if err := r.db.WithContext(ctx).
		Where("status = ?", config.JobStatusRunning).
		Where("(lease_owner = '' OR leased_until IS NULL OR leased_until < ?)", now).
		Where("(last_activity_at IS NULL OR last_activity_at < ?)", idleSince).
		Order("id").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	return jobs, nil
}
