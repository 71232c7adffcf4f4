package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/logger"
	"github.com/joshu-sajeev/catalogjobs/internal/mocks"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo *mocks.JobRepoMock, trigger Trigger) *JobService {
	s := NewJobService(repo, trigger, logger.Discard())
	s.now = func() time.Time { return fixedNow }
	return s
}

func requireAPIError(t *testing.T, err error, status int, kind error) common.APIError {
	t.Helper()
	var apiErr common.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %T: %v", err, err)
	assert.Equal(t, status, apiErr.Status)
	if kind != nil {
		assert.ErrorIs(t, err, kind)
	}
	return apiErr
}

func TestJobService_CreateJob(t *testing.T) {
	validConfig := json.RawMessage(`{"urunIds":[1,2,3]}`)

	tests := []struct {
		name       string
		ctx        func() context.Context
		input      *dto.JobCreateDTO
		setupMock  func(*mocks.JobRepoMock)
		wantStatus int
		wantKind   error
		check      func(t *testing.T, got *dto.JobResponseDTO, err error)
	}{
		{
			name:  "success",
			input: &dto.JobCreateDTO{JobType: config.JobTypeCategory, Config: validConfig, TotalItems: 3},
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("CreateExclusive", mock.Anything, mock.MatchedBy(func(j *models.Job) bool {
					return j.Status == config.JobStatusPending && j.TotalItems == 3 &&
						j.ProcessedItems == 0 && j.Version == 1
				})).Run(func(args mock.Arguments) {
					args.Get(1).(*models.Job).ID = 11
				}).Return(nil, nil)
			},
			check: func(t *testing.T, got *dto.JobResponseDTO, err error) {
				require.NoError(t, err)
				assert.Equal(t, uint(11), got.ID)
				assert.Equal(t, config.JobStatusPending, got.Status)
				assert.Zero(t, got.SuccessCount)
				assert.Zero(t, got.ErrorCount)
			},
		},
		{
			name:       "missing job type",
			input:      &dto.JobCreateDTO{Config: validConfig, TotalItems: 3},
			setupMock:  func(m *mocks.JobRepoMock) {},
			wantStatus: http.StatusBadRequest,
			wantKind:   common.ErrValidation,
		},
		{
			name:       "zero total items",
			input:      &dto.JobCreateDTO{JobType: config.JobTypeCategory, Config: validConfig},
			setupMock:  func(m *mocks.JobRepoMock) {},
			wantStatus: http.StatusBadRequest,
			wantKind:   common.ErrValidation,
		},
		{
			name:       "unknown job type",
			input:      &dto.JobCreateDTO{JobType: "image_upload", Config: validConfig, TotalItems: 3},
			setupMock:  func(m *mocks.JobRepoMock) {},
			wantStatus: http.StatusBadRequest,
			wantKind:   common.ErrValidation,
		},
		{
			name:       "item count mismatch",
			input:      &dto.JobCreateDTO{JobType: config.JobTypeCategory, Config: validConfig, TotalItems: 5},
			setupMock:  func(m *mocks.JobRepoMock) {},
			wantStatus: http.StatusBadRequest,
			wantKind:   common.ErrValidation,
			check: func(t *testing.T, _ *dto.JobResponseDTO, err error) {
				assert.Contains(t, err.Error(), "totalItems does not match")
			},
		},
		{
			name: "unknown config field",
			input: &dto.JobCreateDTO{
				JobType:    config.JobTypeSeo,
				Config:     json.RawMessage(`{"urunIds":[1],"apiKey":"x"}`),
				TotalItems: 1,
			},
			setupMock:  func(m *mocks.JobRepoMock) {},
			wantStatus: http.StatusBadRequest,
			wantKind:   common.ErrValidation,
		},
		{
			name: "zero product id",
			input: &dto.JobCreateDTO{
				JobType:    config.JobTypeCategory,
				Config:     json.RawMessage(`{"urunIds":[1,0]}`),
				TotalItems: 2,
			},
			setupMock:  func(m *mocks.JobRepoMock) {},
			wantStatus: http.StatusBadRequest,
			wantKind:   common.ErrValidation,
		},
		{
			name:  "active job exists",
			input: &dto.JobCreateDTO{JobType: config.JobTypeCategory, Config: validConfig, TotalItems: 3},
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("CreateExclusive", mock.Anything, mock.Anything).
					Return(&models.Job{ID: 9, Status: config.JobStatusPaused},
						fmt.Errorf("create job: %w", common.ErrActiveJobExists))
			},
			wantStatus: http.StatusConflict,
			wantKind:   common.ErrConflict,
			check: func(t *testing.T, _ *dto.JobResponseDTO, err error) {
				var apiErr common.APIError
				require.True(t, errors.As(err, &apiErr))
				active, ok := apiErr.Fields["activeJob"].(*dto.JobResponseDTO)
				require.True(t, ok)
				assert.Equal(t, uint(9), active.ID)
			},
		},
		{
			name:  "repository failure",
			input: &dto.JobCreateDTO{JobType: config.JobTypeCategory, Config: validConfig, TotalItems: 3},
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("CreateExclusive", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "cancelled context",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			input:      &dto.JobCreateDTO{JobType: config.JobTypeCategory, Config: validConfig, TotalItems: 3},
			setupMock:  func(m *mocks.JobRepoMock) {},
			wantStatus: http.StatusRequestTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.JobRepoMock)
			tt.setupMock(repo)
			s := newTestService(repo, nil)

			ctx := context.Background()
			if tt.ctx != nil {
				ctx = tt.ctx()
			}

			got, err := s.CreateJob(ctx, tt.input)

			if tt.wantStatus != 0 {
				assert.Nil(t, got)
				requireAPIError(t, err, tt.wantStatus, tt.wantKind)
			}
			if tt.check != nil {
				tt.check(t, got, err)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestJobService_Transition(t *testing.T) {
	job := func(status config.JobStatus) *models.Job {
		return &models.Job{ID: 1, JobType: config.JobTypeCategory, Status: status, TotalItems: 3, Version: 4}
	}

	tests := []struct {
		name        string
		action      config.JobAction
		setupMock   func(*mocks.JobRepoMock)
		wantFire    bool
		wantStatus  int
		wantKind    error
		wantUpdates func(t *testing.T, updates map[string]any)
	}{
		{
			name:   "start pending job",
			action: config.ActionStart,
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, uint(1)).Return(job(config.JobStatusPending), nil).Once()
				m.On("ActiveJob", mock.Anything).Return(job(config.JobStatusPending), nil)
				m.On("UpdateIfVersion", mock.Anything, uint(1), 4, mock.Anything).Return(true, nil)
				m.On("Get", mock.Anything, uint(1)).Return(job(config.JobStatusRunning), nil).Once()
			},
			wantFire: true,
			wantUpdates: func(t *testing.T, updates map[string]any) {
				assert.Equal(t, config.JobStatusRunning, updates["status"])
				assert.Contains(t, updates, "started_at")
				assert.Nil(t, updates["paused_at"])
				assert.Equal(t, fixedNow, updates["last_activity_at"])
			},
		},
		{
			name:   "resume paused job",
			action: config.ActionResume,
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, uint(1)).Return(job(config.JobStatusPaused), nil).Once()
				m.On("UpdateIfVersion", mock.Anything, uint(1), 4, mock.Anything).Return(true, nil)
				m.On("Get", mock.Anything, uint(1)).Return(job(config.JobStatusRunning), nil).Once()
			},
			wantFire: true,
			wantUpdates: func(t *testing.T, updates map[string]any) {
				assert.Equal(t, config.JobStatusRunning, updates["status"])
				assert.NotContains(t, updates, "started_at")
			},
		},
		{
			name:   "pause running job",
			action: config.ActionPause,
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, uint(1)).Return(job(config.JobStatusRunning), nil).Once()
				m.On("UpdateIfVersion", mock.Anything, uint(1), 4, mock.Anything).Return(true, nil)
				m.On("Get", mock.Anything, uint(1)).Return(job(config.JobStatusPaused), nil).Once()
			},
			wantUpdates: func(t *testing.T, updates map[string]any) {
				assert.Equal(t, config.JobStatusPaused, updates["status"])
				assert.Equal(t, fixedNow, updates["paused_at"])
			},
		},
		{
			name:   "cancel paused job",
			action: config.ActionCancel,
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, uint(1)).Return(job(config.JobStatusPaused), nil).Once()
				m.On("UpdateIfVersion", mock.Anything, uint(1), 4, mock.Anything).Return(true, nil)
				m.On("Get", mock.Anything, uint(1)).Return(job(config.JobStatusCancelled), nil).Once()
			},
			wantUpdates: func(t *testing.T, updates map[string]any) {
				assert.Equal(t, config.JobStatusCancelled, updates["status"])
				assert.Equal(t, fixedNow, updates["completed_at"])
			},
		},
		{
			name:   "pause pending job is rejected",
			action: config.ActionPause,
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, uint(1)).Return(job(config.JobStatusPending), nil)
			},
			wantStatus: http.StatusBadRequest,
			wantKind:   common.ErrInvalidTransition,
		},
		{
			name:   "resume running job is rejected",
			action: config.ActionResume,
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, uint(1)).Return(job(config.JobStatusRunning), nil)
			},
			wantStatus: http.StatusBadRequest,
			wantKind:   common.ErrInvalidTransition,
		},
		{
			name:   "cancel completed job is rejected",
			action: config.ActionCancel,
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, uint(1)).Return(job(config.JobStatusCompleted), nil)
			},
			wantStatus: http.StatusBadRequest,
			wantKind:   common.ErrInvalidTransition,
		},
		{
			name:       "unknown action",
			action:     "restart",
			setupMock:  func(m *mocks.JobRepoMock) {},
			wantStatus: http.StatusBadRequest,
			wantKind:   common.ErrValidation,
		},
		{
			name:   "job not found",
			action: config.ActionStart,
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, uint(1)).Return(nil, fmt.Errorf("job not found: %w", gorm.ErrRecordNotFound))
			},
			wantStatus: http.StatusNotFound,
			wantKind:   common.ErrNotFound,
		},
		{
			name:   "start while another job is active",
			action: config.ActionStart,
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, uint(1)).Return(job(config.JobStatusPending), nil)
				m.On("ActiveJob", mock.Anything).Return(&models.Job{ID: 2, Status: config.JobStatusRunning}, nil)
			},
			wantStatus: http.StatusConflict,
			wantKind:   common.ErrConflict,
		},
		{
			name:   "concurrent modification",
			action: config.ActionPause,
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, uint(1)).Return(job(config.JobStatusRunning), nil).Twice()
				m.On("UpdateIfVersion", mock.Anything, uint(1), 4, mock.Anything).Return(false, nil).Twice()
			},
			wantStatus: http.StatusConflict,
			wantKind:   common.ErrConflict,
		},
		{
			name:   "pause retried after a batch bumped the version",
			action: config.ActionPause,
			setupMock: func(m *mocks.JobRepoMock) {
				bumped := job(config.JobStatusRunning)
				bumped.Version = 5
				m.On("Get", mock.Anything, uint(1)).Return(job(config.JobStatusRunning), nil).Once()
				m.On("UpdateIfVersion", mock.Anything, uint(1), 4, mock.Anything).Return(false, nil).Once()
				m.On("Get", mock.Anything, uint(1)).Return(bumped, nil).Once()
				m.On("UpdateIfVersion", mock.Anything, uint(1), 5, mock.Anything).Return(true, nil).Once()
				m.On("Get", mock.Anything, uint(1)).Return(job(config.JobStatusPaused), nil).Once()
			},
			wantUpdates: func(t *testing.T, updates map[string]any) {
				assert.Equal(t, config.JobStatusPaused, updates["status"])
			},
		},
		{
			name:   "retry finds the job completed",
			action: config.ActionCancel,
			setupMock: func(m *mocks.JobRepoMock) {
				done := job(config.JobStatusCompleted)
				done.Version = 5
				m.On("Get", mock.Anything, uint(1)).Return(job(config.JobStatusRunning), nil).Once()
				m.On("UpdateIfVersion", mock.Anything, uint(1), 4, mock.Anything).Return(false, nil).Once()
				m.On("Get", mock.Anything, uint(1)).Return(done, nil).Once()
			},
			wantStatus: http.StatusBadRequest,
			wantKind:   common.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.JobRepoMock)
			tt.setupMock(repo)
			trigger := new(mocks.TriggerMock)
			if tt.wantFire {
				trigger.On("Fire", uint(1)).Once()
			}
			s := newTestService(repo, trigger)

			got, err := s.Transition(context.Background(), 1, tt.action)

			if tt.wantStatus != 0 {
				assert.Nil(t, got)
				requireAPIError(t, err, tt.wantStatus, tt.wantKind)
			} else {
				require.NoError(t, err)
				assert.Equal(t, config.Transitions[tt.action].To, got.Status)
			}

			if tt.wantUpdates != nil {
				for _, call := range repo.Calls {
					if call.Method == "UpdateIfVersion" {
						tt.wantUpdates(t, call.Arguments.Get(3).(map[string]any))
					}
				}
			}

			repo.AssertExpectations(t)
			trigger.AssertExpectations(t)
			if !tt.wantFire {
				trigger.AssertNotCalled(t, "Fire", mock.Anything)
			}
		})
	}
}

func TestJobService_DeleteJob(t *testing.T) {
	tests := []struct {
		name       string
		setupMock  func(*mocks.JobRepoMock)
		wantStatus int
		wantKind   error
	}{
		{
			name: "delete paused job",
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, uint(1)).Return(&models.Job{ID: 1, Status: config.JobStatusPaused}, nil)
				m.On("DeleteUnlessRunning", mock.Anything, uint(1)).Return(true, nil)
			},
		},
		{
			name: "running job is refused",
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, uint(1)).Return(&models.Job{ID: 1, Status: config.JobStatusRunning}, nil)
			},
			wantStatus: http.StatusBadRequest,
			wantKind:   common.ErrInvalidState,
		},
		{
			name: "started between read and delete",
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, uint(1)).Return(&models.Job{ID: 1, Status: config.JobStatusPending}, nil)
				m.On("DeleteUnlessRunning", mock.Anything, uint(1)).Return(false, nil)
			},
			wantStatus: http.StatusBadRequest,
			wantKind:   common.ErrInvalidState,
		},
		{
			name: "not found",
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, uint(1)).Return(nil, fmt.Errorf("job not found: %w", gorm.ErrRecordNotFound))
			},
			wantStatus: http.StatusNotFound,
			wantKind:   common.ErrNotFound,
		},
		{
			name: "delete failure",
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, uint(1)).Return(&models.Job{ID: 1, Status: config.JobStatusCompleted}, nil)
				m.On("DeleteUnlessRunning", mock.Anything, uint(1)).Return(false, errors.New("disk full"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.JobRepoMock)
			tt.setupMock(repo)

			err := newTestService(repo, nil).DeleteJob(context.Background(), 1)

			if tt.wantStatus == 0 {
				require.NoError(t, err)
			} else {
				requireAPIError(t, err, tt.wantStatus, tt.wantKind)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestJobService_ListJobs(t *testing.T) {
	tests := []struct {
		name       string
		filter     models.JobFilter
		setupMock  func(*mocks.JobRepoMock)
		wantStatus int
		check      func(t *testing.T, got *dto.JobListResponseDTO)
	}{
		{
			name:   "jobs with active job",
			filter: models.JobFilter{JobType: config.JobTypeSeo},
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("List", mock.Anything, models.JobFilter{JobType: config.JobTypeSeo}, config.ListLimit).
					Return([]models.Job{{ID: 3}, {ID: 2}}, nil)
				m.On("ActiveJob", mock.Anything).Return(&models.Job{ID: 3, Status: config.JobStatusRunning}, nil)
			},
			check: func(t *testing.T, got *dto.JobListResponseDTO) {
				require.Len(t, got.Jobs, 2)
				assert.Equal(t, uint(3), got.Jobs[0].ID)
				require.NotNil(t, got.ActiveJob)
				assert.Equal(t, uint(3), got.ActiveJob.ID)
			},
		},
		{
			name: "empty",
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("List", mock.Anything, models.JobFilter{}, config.ListLimit).Return([]models.Job{}, nil)
				m.On("ActiveJob", mock.Anything).Return(nil, nil)
			},
			check: func(t *testing.T, got *dto.JobListResponseDTO) {
				assert.Empty(t, got.Jobs)
				assert.NotNil(t, got.Jobs)
				assert.Nil(t, got.ActiveJob)
			},
		},
		{
			name:       "invalid status filter",
			filter:     models.JobFilter{Status: "failed"},
			setupMock:  func(m *mocks.JobRepoMock) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "list failure",
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("List", mock.Anything, models.JobFilter{}, config.ListLimit).Return(nil, errors.New("boom"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.JobRepoMock)
			tt.setupMock(repo)

			got, err := newTestService(repo, nil).ListJobs(context.Background(), tt.filter)

			if tt.wantStatus != 0 {
				requireAPIError(t, err, tt.wantStatus, nil)
			} else {
				require.NoError(t, err)
				tt.check(t, got)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestJobService_GetJobByID(t *testing.T) {
	repo := new(mocks.JobRepoMock)
	repo.On("Get", mock.Anything, uint(5)).Return(&models.Job{ID: 5, TotalItems: 4, ProcessedItems: 2}, nil)

	got, err := newTestService(repo, nil).GetJobByID(context.Background(), 5)

	require.NoError(t, err)
	assert.Equal(t, uint(5), got.ID)
	assert.InDelta(t, 50.0, got.Progress, 0.001)
	repo.AssertExpectations(t)
}
