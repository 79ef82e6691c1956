package repository

import (
	"context"
	"time"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

// RoomSubscription 是对一个行程房间频道的订阅。
type RoomSubscription interface {
	// Messages 返回收到的房间消息，订阅关闭后通道被关闭。
	Messages() <-chan domain.RoomMessage
	Close() error
}

// StateRepository 定义了行程房间的实时状态操作，通常由 Redis 实现。
type StateRepository interface {
	// === PubSub ===

	// PublishRoomMessage 把消息发布到行程房间的频道，供其他实例转发。
	PublishRoomMessage(ctx context.Context, tripID string, msg domain.RoomMessage) error

	// SubscribeRoom 订阅行程房间的频道。
	SubscribeRoom(ctx context.Context, tripID string) (RoomSubscription, error)

	// === Presence ===

	// SavePresence 保存或刷新用户在房间内的在线状态，ttl 后自动过期。
	SavePresence(ctx context.Context, tripID string, p domain.UserPresence, ttl time.Duration) error

	// DeletePresence 删除用户的在线状态。
	DeletePresence(ctx context.Context, tripID, userID string) error

	// ListPresence 返回房间内未过期的在线用户，按加入顺序排列。
	ListPresence(ctx context.Context, tripID string) ([]domain.UserPresence, error)

	// === Event History ===

	// PushEvent 把协作事件加入房间最近事件列表，并保持列表长度。
	PushEvent(ctx context.Context, tripID string, ev domain.CollaborationEvent) error

	// RecentEvents 返回最近的 limit 条事件，按写入顺序排列。
	RecentEvents(ctx context.Context, tripID string, limit int) ([]domain.CollaborationEvent, error)

	// === Conflict De-duplication ===

	// MarkConflictSeen 原子地登记一个冲突指纹。首次登记返回 true。
	MarkConflictSeen(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error)

	// === Rate Limiting ===

	// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
	// 返回 true 如果超限，false 如果未超限。
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
