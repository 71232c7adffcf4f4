package job

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type JobService struct {
	repo    JobRepoInterface
	trigger Trigger
	logger  *slog.Logger
	now     func() time.Time
}

// NewJobService wires the controller. trigger may be nil, in which case
// running jobs only advance through explicit worker calls.
func NewJobService(repo JobRepoInterface, trigger Trigger, logger *slog.Logger) *JobService {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		repo:    repo,
		trigger: trigger,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ JobServiceInterface = (*JobService)(nil)

// CreateJob validates the request, enforces the single active job rule and
// persists a pending job with zeroed counters.
func (s *JobService) CreateJob(ctx context.Context, req *dto.JobCreateDTO) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	if req.JobType == "" || req.TotalItems <= 0 {
		return nil, common.APIError{
			Status:  http.StatusBadRequest,
			Message: "jobType and totalItems are required",
			Fields: map[string]any{
				"jobType":    string(req.JobType),
				"totalItems": req.TotalItems,
			},
			Err: common.ErrValidation,
		}
	}

	if !req.JobType.Valid() {
		return nil, common.APIError{
			Status:  http.StatusBadRequest,
			Message: "invalid job type",
			Fields: map[string]any{
				"provided": req.JobType,
				"allowed":  config.AllowedJobTypes,
			},
			Err: common.ErrValidation,
		}
	}

	if _, err := validateJobConfig(req.JobType, req.Config, req.TotalItems); err != nil {
		return nil, err
	}

	job := models.Job{
		JobType:    req.JobType,
		Status:     config.JobStatusPending,
		TotalItems: req.TotalItems,
		Config:     datatypes.JSON(req.Config),
		Version:    1,
	}

	active, err := s.repo.CreateExclusive(ctx, &job)
	if err != nil {
		if errors.Is(err, common.ErrActiveJobExists) {
			return nil, common.Kindf(http.StatusConflict, common.ErrConflict, "an active job already exists").
				WithFields(map[string]any{"activeJob": dto.NewJobResponse(active)})
		}
		return nil, mapRepoError(err, "failed to add job to database")
	}

	s.logger.Info("job created",
		slog.Uint64("job_id", uint64(job.ID)),
		slog.String("job_type", string(job.JobType)),
		slog.Int("total_items", job.TotalItems),
	)

	return dto.NewJobResponse(&job), nil
}

// GetJobByID retrieves a job by its ID from the repository.
func (s *JobService) GetJobByID(ctx context.Context, id uint) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "failed to get job")
	}

	return dto.NewJobResponse(job), nil
}

// ListJobs returns the newest jobs matching filter and the current active job.
func (s *JobService) ListJobs(ctx context.Context, filter models.JobFilter) (*dto.JobListResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, common.APIError{
			Status:  http.StatusBadRequest,
			Message: "invalid status filter",
			Fields:  map[string]any{"provided": filter.Status, "allowed": config.AllowedStatuses},
			Err:     common.ErrValidation,
		}
	}
	if filter.JobType != "" && !filter.JobType.Valid() {
		return nil, common.APIError{
			Status:  http.StatusBadRequest,
			Message: "invalid job type filter",
			Fields:  map[string]any{"provided": filter.JobType, "allowed": config.AllowedJobTypes},
			Err:     common.ErrValidation,
		}
	}

	jobs, err := s.repo.List(ctx, filter, config.ListLimit)
	if err != nil {
		return nil, mapRepoError(err, "failed to list jobs")
	}

	active, err := s.repo.ActiveJob(ctx)
	if err != nil {
		return nil, mapRepoError(err, "failed to get active job")
	}

	resp := &dto.JobListResponseDTO{
		Jobs:      make([]dto.JobResponseDTO, len(jobs)),
		ActiveJob: dto.NewJobResponse(active),
	}
	for i := range jobs {
		resp.Jobs[i] = *dto.NewJobResponse(&jobs[i])
	}

	return resp, nil
}

// Transition applies a controller action to a job. Entering running fires the
// worker trigger without waiting for it.
func (s *JobService) Transition(ctx context.Context, id uint, action config.JobAction) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	rule, ok := config.Transitions[action]
	if !ok {
		return nil, common.APIError{
			Status:  http.StatusBadRequest,
			Message: "invalid action",
			Fields:  map[string]any{"provided": action},
			Err:     common.ErrValidation,
		}
	}

	// a batch write bumps the version too, so a failed swap is retried once
	// against a fresh read
	for attempt := 1; ; attempt++ {
		job, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, mapRepoError(err, "failed to get job")
		}

		if !action.Allows(job.Status) {
			return nil, common.Kindf(http.StatusBadRequest, common.ErrInvalidTransition,
				"cannot %s a %s job", action, job.Status).
				WithFields(map[string]any{
					"status":  job.Status,
					"action":  action,
					"allowed": rule.From,
				})
		}

		if action == config.ActionStart {
			active, err := s.repo.ActiveJob(ctx)
			if err != nil {
				return nil, mapRepoError(err, "failed to get active job")
			}
			if active != nil && active.ID != job.ID {
				return nil, common.Kindf(http.StatusConflict, common.ErrConflict, "another job is active").
					WithFields(map[string]any{"activeJob": dto.NewJobResponse(active)})
			}
		}

		updated, err := s.repo.UpdateIfVersion(ctx, id, job.Version, transitionUpdates(action, s.now()))
		if err != nil {
			return nil, mapRepoError(err, "failed to update job")
		}
		if updated {
			break
		}
		if attempt == 2 {
			return nil, common.Kindf(http.StatusConflict, common.ErrConflict, "job was modified concurrently, retry")
		}
		s.logger.Debug("job version moved, retrying transition",
			slog.Uint64("job_id", uint64(id)),
			slog.String("action", string(action)),
		)
	}

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "failed to get job")
	}

	s.logger.Info("job transitioned",
		slog.Uint64("job_id", uint64(id)),
		slog.String("action", string(action)),
		slog.String("status", string(job.Status)),
	)

	if rule.To == config.JobStatusRunning && s.trigger != nil {
		s.trigger.Fire(id)
	}

	return dto.NewJobResponse(job), nil
}

// DeleteJob permanently removes a job that is not running.
func (s *JobService) DeleteJob(ctx context.Context, id uint) error {
	if err := ctx.Err(); err != nil {
		return common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return mapRepoError(err, "failed to get job")
	}

	if job.Status == config.JobStatusRunning {
		return runningDeleteError()
	}

	deleted, err := s.repo.DeleteUnlessRunning(ctx, id)
	if err != nil {
		return mapRepoError(err, "failed to delete job")
	}
	if !deleted {
		// started or removed between the read and the delete
		if _, err := s.repo.Get(ctx, id); err != nil {
			return mapRepoError(err, "failed to get job")
		}
		return runningDeleteError()
	}

	s.logger.Info("job deleted", slog.Uint64("job_id", uint64(id)))
	return nil
}

func runningDeleteError() error {
	return common.Kindf(http.StatusBadRequest, common.ErrInvalidState,
		"cannot delete a running job, pause or cancel it first")
}

func transitionUpdates(action config.JobAction, now time.Time) map[string]any {
	updates := map[string]any{
		"status":           config.Transitions[action].To,
		"last_activity_at": now,
	}

	switch action {
	case config.ActionStart:
		updates["started_at"] = gorm.Expr("COALESCE(started_at, ?)", now)
		updates["paused_at"] = nil
	case config.ActionResume:
		updates["paused_at"] = nil
	case config.ActionPause:
		updates["paused_at"] = now
	case config.ActionCancel:
		updates["completed_at"] = now
	}

	return updates
}

// mapRepoError converts repository and context errors into API errors.
func mapRepoError(err error, fallback string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return common.Errf(http.StatusRequestTimeout, "request timed out")
	case errors.Is(err, gorm.ErrRecordNotFound), strings.Contains(err.Error(), "job not found"):
		return common.Kindf(http.StatusNotFound, common.ErrNotFound, "job not found")
	default:
		return common.Errf(http.StatusInternalServerError, "%s", fallback)
	}
}
