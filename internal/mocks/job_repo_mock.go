package mocks

import (
	"context"

	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/stretchr/testify/mock"
)

type JobRepoMock struct {
	mock.Mock
}

func (m *JobRepoMock) CreateExclusive(ctx context.Context, job *models.Job) (*models.Job, error) {
	args := m.Called(ctx, job)

	active, _ := args.Get(0).(*models.Job)
	return active, args.Error(1)
}

func (m *JobRepoMock) Get(ctx context.Context, id uint) (*models.Job, error) {
	args := m.Called(ctx, id)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) List(ctx context.Context, filter models.JobFilter, limit int) ([]models.Job, error) {
	args := m.Called(ctx, filter, limit)

	jobs, _ := args.Get(0).([]models.Job)
	return jobs, args.Error(1)
}

func (m *JobRepoMock) ActiveJob(ctx context.Context) (*models.Job, error) {
	args := m.Called(ctx)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) UpdateIfVersion(ctx context.Context, id uint, version int, updates map[string]any) (bool, error) {
	args := m.Called(ctx, id, version, updates)
	return args.Bool(0), args.Error(1)
}

func (m *JobRepoMock) DeleteUnlessRunning(ctx context.Context, id uint) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}
