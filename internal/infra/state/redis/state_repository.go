package redisstate

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
	"github.com/hasanmk52/terra-voyage-sub003/internal/repository"
)

const (
	// 每个行程保留的最近事件条数
	eventHistoryLimit = 100
	eventHistoryTTL   = 24 * time.Hour
	// 订阅转发通道的缓冲大小
	subscriptionBuffer = 256
)

// RedisStateRepository 是 StateRepository 接口的 Redis 实现
type RedisStateRepository struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "tv:" // 默认前缀 "tv:" (terra voyage)
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

var _ repository.StateRepository = (*RedisStateRepository)(nil)

// --- Key Generation Helpers ---
func (r *RedisStateRepository) tripPubSubChannel(tripID string) string {
	return fmt.Sprintf("%strip:%s:pubsub", r.keyPrefix, tripID)
}

// 按首次加入时间排序的在线用户索引
func (r *RedisStateRepository) tripPresenceIndexKey(tripID string) string {
	return fmt.Sprintf("%strip:%s:presence", r.keyPrefix, tripID)
}

func (r *RedisStateRepository) tripPresenceKey(tripID, userID string) string {
	return fmt.Sprintf("%strip:%s:presence:%s", r.keyPrefix, tripID, userID)
}

func (r *RedisStateRepository) tripEventHistoryKey(tripID string) string {
	return fmt.Sprintf("%strip:%s:events", r.keyPrefix, tripID)
}

func (r *RedisStateRepository) conflictSeenKey(fingerprint string) string {
	sum := sha1.Sum([]byte(fingerprint))
	return fmt.Sprintf("%sconflict:seen:%s", r.keyPrefix, hex.EncodeToString(sum[:]))
}

// --- PubSub ---

// PublishRoomMessage 将消息发布到行程房间的频道。
func (r *RedisStateRepository) PublishRoomMessage(ctx context.Context, tripID string, msg domain.RoomMessage) error {
	channel := r.tripPubSubChannel(tripID)
	payloadBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal room message for publish (trip %s, event %s): %w", tripID, msg.Envelope.Event, err)
	}
	payload := string(payloadBytes)
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel":      channel,
			"payload_size": len(payload),
			"event":        msg.Envelope.Event,
			"trip_id":      tripID,
		}).WithError(err).Error("Redis Publish failed")
		return fmt.Errorf("redis: failed to publish room message to channel %s: %w", channel, err)
	}
	return nil
}

// SubscribeRoom 订阅行程房间频道，确认订阅成功后才返回。
func (r *RedisStateRepository) SubscribeRoom(ctx context.Context, tripID string) (repository.RoomSubscription, error) {
	channel := r.tripPubSubChannel(tripID)
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: failed to subscribe to channel %s: %w", channel, err)
	}
	sub := &roomSubscription{
		pubsub: pubsub,
		out:    make(chan domain.RoomMessage, subscriptionBuffer),
		log:    logrus.WithFields(logrus.Fields{"channel": channel, "trip_id": tripID}),
	}
	go sub.forward()
	return sub, nil
}

type roomSubscription struct {
	pubsub *redis.PubSub
	out    chan domain.RoomMessage
	log    *logrus.Entry
}

func (s *roomSubscription) Messages() <-chan domain.RoomMessage { return s.out }

func (s *roomSubscription) Close() error { return s.pubsub.Close() }

// forward 把 Redis 消息解码后转发到 out，pubsub 关闭后关闭 out。
func (s *roomSubscription) forward() {
	defer close(s.out)
	for m := range s.pubsub.Channel() {
		var msg domain.RoomMessage
		if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
			s.log.WithError(err).Warn("Dropping malformed room message")
			continue
		}
		s.out <- msg
	}
}

// --- Presence ---

// SavePresence 写入用户的在线状态并刷新过期时间，首次写入时登记加入顺序。
func (r *RedisStateRepository) SavePresence(ctx context.Context, tripID string, p domain.UserPresence, ttl time.Duration) error {
	if p.UserID == "" {
		return errors.New("redis: presence without user id")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal presence for user %s: %w", p.UserID, err)
	}
	indexKey := r.tripPresenceIndexKey(tripID)
	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.tripPresenceKey(tripID, p.UserID), data, ttl)
	pipe.ZAddNX(ctx, indexKey, &redis.Z{Score: float64(r.now().UnixNano()), Member: p.UserID})
	if ttl > 0 {
		pipe.Expire(ctx, indexKey, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to save presence for user %s in trip %s: %w", p.UserID, tripID, err)
	}
	return nil
}

// DeletePresence 删除用户的在线状态。
func (r *RedisStateRepository) DeletePresence(ctx context.Context, tripID, userID string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.tripPresenceKey(tripID, userID))
	pipe.ZRem(ctx, r.tripPresenceIndexKey(tripID), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to delete presence for user %s in trip %s: %w", userID, tripID, err)
	}
	return nil
}

// ListPresence 返回未过期的在线用户，顺手清理索引中已过期的成员。
func (r *RedisStateRepository) ListPresence(ctx context.Context, tripID string) ([]domain.UserPresence, error) {
	indexKey := r.tripPresenceIndexKey(tripID)
	userIDs, err := r.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to list presence index for trip %s from %s: %w", tripID, indexKey, err)
	}
	if len(userIDs) == 0 {
		return []domain.UserPresence{}, nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = r.tripPresenceKey(tripID, id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to load presence for trip %s: %w", tripID, err)
	}

	users := make([]domain.UserPresence, 0, len(values))
	var expired []interface{}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			expired = append(expired, userIDs[i])
			continue
		}
		var p domain.UserPresence
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			logrus.Warnf("redis: failed to unmarshal presence for trip %s: %v, data: %s", tripID, err, s)
			continue
		}
		users = append(users, p)
	}
	if len(expired) > 0 {
		if err := r.client.ZRem(ctx, indexKey, expired...).Err(); err != nil {
			logrus.WithError(err).WithField("trip_id", tripID).Warn("redis: failed to prune expired presence")
		}
	}
	return users, nil
}

// --- Event History ---

// PushEvent 将事件追加到行程的最近事件列表。
func (r *RedisStateRepository) PushEvent(ctx context.Context, tripID string, ev domain.CollaborationEvent) error {
	key := r.tripEventHistoryKey(tripID)
	eventBytes, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal event for history (trip %s, type %s): %w", tripID, ev.Type, err)
	}
	pipe := r.client.Pipeline()
	pipe.RPush(ctx, key, string(eventBytes))
	pipe.LTrim(ctx, key, -eventHistoryLimit, -1) // 保留最近 100 条
	pipe.Expire(ctx, key, eventHistoryTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to push event to history for trip %s on key %s: %w", tripID, key, err)
	}
	return nil
}

// RecentEvents 获取存储在 Redis 中的最近事件。
func (r *RedisStateRepository) RecentEvents(ctx context.Context, tripID string, limit int) ([]domain.CollaborationEvent, error) {
	if limit <= 0 || limit > eventHistoryLimit {
		limit = eventHistoryLimit
	}
	key := r.tripEventHistoryKey(tripID)
	eventStrs, err := r.client.LRange(ctx, key, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to get recent events for trip %s from %s: %w", tripID, key, err)
	}
	events := make([]domain.CollaborationEvent, 0, len(eventStrs))
	for _, s := range eventStrs {
		var ev domain.CollaborationEvent
		if err := json.Unmarshal([]byte(s), &ev); err == nil {
			events = append(events, ev)
		} else {
			logrus.Warnf("redis: failed to unmarshal event from history for trip %s: %v, data: %s", tripID, err, s)
		}
	}
	return events, nil
}

// --- Conflict De-duplication ---

// MarkConflictSeen 用 SETNX 登记冲突指纹，多个实例检测到同一冲突时只有一个返回 true。
func (r *RedisStateRepository) MarkConflictSeen(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error) {
	key := r.conflictSeenKey(fingerprint)
	ok, err := r.client.SetNX(ctx, key, r.now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to mark conflict seen on key %s: %w", key, err)
	}
	return ok, nil
}

// --- Rate Limiting ---

// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
// 固定窗口：过期时间只在窗口的第一个请求创建计数器时设置，之后的请求不会延长窗口。
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, error) {
	pipe := r.client.TxPipeline()
	pipe.SetNX(ctx, key, 0, duration)
	incrCmd := pipe.Incr(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: pipeline failed for rate limit check on key %s: %w", key, err)
	}
	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to get incr result for rate limit on key %s: %w", key, err)
	}
	// 计数大于限制则超限
	return count > int64(limit), nil
}
