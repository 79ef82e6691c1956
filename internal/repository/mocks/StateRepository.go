package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
	"github.com/hasanmk52/terra-voyage-sub003/internal/repository"
)

// StateRepository is a mock type for the repository.StateRepository interface
type StateRepository struct {
	mock.Mock
}

// PublishRoomMessage provides a mock function with given fields: ctx, tripID, msg
func (m *StateRepository) PublishRoomMessage(ctx context.Context, tripID string, msg domain.RoomMessage) error {
	ret := m.Called(ctx, tripID, msg)
	return ret.Error(0)
}

// SubscribeRoom provides a mock function with given fields: ctx, tripID
func (m *StateRepository) SubscribeRoom(ctx context.Context, tripID string) (repository.RoomSubscription, error) {
	ret := m.Called(ctx, tripID)
	var sub repository.RoomSubscription
	if v := ret.Get(0); v != nil {
		sub = v.(repository.RoomSubscription)
	}
	return sub, ret.Error(1)
}

// SavePresence provides a mock function with given fields: ctx, tripID, p, ttl
func (m *StateRepository) SavePresence(ctx context.Context, tripID string, p domain.UserPresence, ttl time.Duration) error {
	ret := m.Called(ctx, tripID, p, ttl)
	return ret.Error(0)
}

// DeletePresence provides a mock function with given fields: ctx, tripID, userID
func (m *StateRepository) DeletePresence(ctx context.Context, tripID, userID string) error {
	ret := m.Called(ctx, tripID, userID)
	return ret.Error(0)
}

// ListPresence provides a mock function with given fields: ctx, tripID
func (m *StateRepository) ListPresence(ctx context.Context, tripID string) ([]domain.UserPresence, error) {
	ret := m.Called(ctx, tripID)
	var users []domain.UserPresence
	if v := ret.Get(0); v != nil {
		users = v.([]domain.UserPresence)
	}
	return users, ret.Error(1)
}

// PushEvent provides a mock function with given fields: ctx, tripID, ev
func (m *StateRepository) PushEvent(ctx context.Context, tripID string, ev domain.CollaborationEvent) error {
	ret := m.Called(ctx, tripID, ev)
	return ret.Error(0)
}

// RecentEvents provides a mock function with given fields: ctx, tripID, limit
func (m *StateRepository) RecentEvents(ctx context.Context, tripID string, limit int) ([]domain.CollaborationEvent, error) {
	ret := m.Called(ctx, tripID, limit)
	var events []domain.CollaborationEvent
	if v := ret.Get(0); v != nil {
		events = v.([]domain.CollaborationEvent)
	}
	return events, ret.Error(1)
}

// MarkConflictSeen provides a mock function with given fields: ctx, fingerprint, ttl
func (m *StateRepository) MarkConflictSeen(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error) {
	ret := m.Called(ctx, fingerprint, ttl)
	return ret.Bool(0), ret.Error(1)
}

// CheckRateLimit provides a mock function with given fields: ctx, key, limit, window
func (m *StateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	ret := m.Called(ctx, key, limit, window)
	return ret.Bool(0), ret.Error(1)
}
