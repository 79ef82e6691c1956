package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

// ConflictLogRepository is a mock type for the repository.ConflictLogRepository interface
type ConflictLogRepository struct {
	mock.Mock
}

// SaveBatch provides a mock function with given fields: ctx, logs
func (m *ConflictLogRepository) SaveBatch(ctx context.Context, logs []domain.ConflictLog) error {
	ret := m.Called(ctx, logs)
	return ret.Error(0)
}

// ListByTrip provides a mock function with given fields: ctx, tripID, limit
func (m *ConflictLogRepository) ListByTrip(ctx context.Context, tripID string, limit int) ([]domain.ConflictLog, error) {
	ret := m.Called(ctx, tripID, limit)
	var logs []domain.ConflictLog
	if v := ret.Get(0); v != nil {
		logs = v.([]domain.ConflictLog)
	}
	return logs, ret.Error(1)
}

// DeleteBefore provides a mock function with given fields: ctx, cutoff
func (m *ConflictLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ret := m.Called(ctx, cutoff)
	return ret.Get(0).(int64), ret.Error(1)
}
