package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
	"github.com/hasanmk52/terra-voyage-sub003/internal/repository"
)

// TripAccessService 判断用户能否进入某个行程房间。
type TripAccessService struct {
	tripRepo repository.TripRepository
}

// NewTripAccessService 创建 TripAccessService 实例
func NewTripAccessService(tripRepo repository.TripRepository) *TripAccessService {
	if tripRepo == nil {
		panic("TripRepository cannot be nil for TripAccessService")
	}
	return &TripAccessService{tripRepo: tripRepo}
}

// Authorize 在用户是行程所有者或协作者时返回行程。
func (s *TripAccessService) Authorize(ctx context.Context, tripID, userID string) (*domain.Trip, error) {
	logCtx := logrus.WithFields(logrus.Fields{"trip_id": tripID, "user_id": userID})
	if tripID == "" || userID == "" {
		return nil, ErrTripAccessDenied
	}

	trip, err := s.tripRepo.FindByID(ctx, tripID)
	if err != nil {
		if mapped := mapRepoError(err); mapped == ErrTripNotFound {
			return nil, ErrTripNotFound
		}
		logCtx.WithError(err).Error("Failed to load trip")
		return nil, ErrInternalServer
	}
	if trip.UserID == userID {
		return trip, nil
	}

	ok, err := s.tripRepo.IsCollaborator(ctx, tripID, userID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to check trip collaborator")
		return nil, ErrInternalServer
	}
	if !ok {
		logCtx.Warn("Trip access denied")
		return nil, ErrTripAccessDenied
	}
	return trip, nil
}
