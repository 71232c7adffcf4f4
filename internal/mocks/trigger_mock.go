package mocks

import "github.com/stretchr/testify/mock"

type TriggerMock struct {
	mock.Mock
}

func (m *TriggerMock) Fire(jobID uint) {
	m.Called(jobID)
}
