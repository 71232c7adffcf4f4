package mocks

import (
	"context"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/stretchr/testify/mock"
)

type JobServiceMock struct {
	mock.Mock
}

func (m *JobServiceMock) CreateJob(ctx context.Context, req *dto.JobCreateDTO) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, req)

	job, _ := args.Get(0).(*dto.JobResponseDTO)
	return job, args.Error(1)
}

func (m *JobServiceMock) GetJobByID(ctx context.Context, id uint) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, id)

	job, _ := args.Get(0).(*dto.JobResponseDTO)
	return job, args.Error(1)
}

func (m *JobServiceMock) ListJobs(ctx context.Context, filter models.JobFilter) (*dto.JobListResponseDTO, error) {
	args := m.Called(ctx, filter)

	resp, _ := args.Get(0).(*dto.JobListResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) Transition(ctx context.Context, id uint, action config.JobAction) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, id, action)

	job, _ := args.Get(0).(*dto.JobResponseDTO)
	return job, args.Error(1)
}

func (m *JobServiceMock) DeleteJob(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
