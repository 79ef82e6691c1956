package repository

import (
	"context"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

// TripRepository 只读地访问外部维护的行程数据，用于房间访问控制。
type TripRepository interface {
	// FindByID 根据行程 ID 查找行程。不存在时返回 ErrTripNotFound。
	FindByID(ctx context.Context, id string) (*domain.Trip, error)

	// IsCollaborator 判断用户是否为行程的协作者（不含所有者）。
	IsCollaborator(ctx context.Context, tripID, userID string) (bool, error)
}
