package mocks

import (
	"context"

	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/stretchr/testify/mock"
)

type BatchRunnerMock struct {
	mock.Mock
}

func (m *BatchRunnerMock) RunBatch(ctx context.Context, jobID uint, batchSize, parallelCount int) (*dto.BatchResponseDTO, error) {
	args := m.Called(ctx, jobID, batchSize, parallelCount)

	resp, _ := args.Get(0).(*dto.BatchResponseDTO)
	return resp, args.Error(1)
}
