package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

// TripRepository is a mock type for the repository.TripRepository interface
type TripRepository struct {
	mock.Mock
}

// FindByID provides a mock function with given fields: ctx, id
func (m *TripRepository) FindByID(ctx context.Context, id string) (*domain.Trip, error) {
	ret := m.Called(ctx, id)
	var trip *domain.Trip
	if v := ret.Get(0); v != nil {
		trip = v.(*domain.Trip)
	}
	return trip, ret.Error(1)
}

// IsCollaborator provides a mock function with given fields: ctx, tripID, userID
func (m *TripRepository) IsCollaborator(ctx context.Context, tripID, userID string) (bool, error) {
	ret := m.Called(ctx, tripID, userID)
	return ret.Bool(0), ret.Error(1)
}
