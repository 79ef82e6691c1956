package redisstate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

func setupTestRedis(t *testing.T) (*RedisStateRepository, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := NewRedisStateRepository(client, "")
	clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return repo, s
}

func TestNewRedisStateRepository_PanicsOnNilClient(t *testing.T) {
	assert.Panics(t, func() { NewRedisStateRepository(nil, "") })
}

func TestPresence_SaveListDelete(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, repo.SavePresence(ctx, "trip-1", domain.UserPresence{UserID: "alice", UserName: "Alice", IsOnline: true}, time.Minute))
	require.NoError(t, repo.SavePresence(ctx, "trip-1", domain.UserPresence{UserID: "bob", UserName: "Bob", IsOnline: true}, time.Minute))
	// 刷新不改变加入顺序
	require.NoError(t, repo.SavePresence(ctx, "trip-1", domain.UserPresence{UserID: "alice", UserName: "Alice B.", IsOnline: true}, time.Minute))

	users, err := repo.ListPresence(ctx, "trip-1")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].UserID)
	assert.Equal(t, "Alice B.", users[0].UserName)
	assert.Equal(t, "bob", users[1].UserID)

	require.NoError(t, repo.DeletePresence(ctx, "trip-1", "alice"))
	users, err = repo.ListPresence(ctx, "trip-1")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].UserID)

	// 其他行程不受影响
	users, err = repo.ListPresence(ctx, "trip-2")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestPresence_ExpiresAndPrunes(t *testing.T) {
	repo, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, repo.SavePresence(ctx, "trip-1", domain.UserPresence{UserID: "alice", IsOnline: true}, 30*time.Second))
	require.NoError(t, repo.SavePresence(ctx, "trip-1", domain.UserPresence{UserID: "bob", IsOnline: true}, 2*time.Minute))

	s.FastForward(time.Minute)

	users, err := repo.ListPresence(ctx, "trip-1")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].UserID)

	members, err := s.ZMembers(repo.tripPresenceIndexKey("trip-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, members, "过期成员应从索引中清理")
}

func TestPresence_RejectsEmptyUser(t *testing.T) {
	repo, _ := setupTestRedis(t)
	assert.Error(t, repo.SavePresence(context.Background(), "trip-1", domain.UserPresence{}, time.Minute))
}

func TestEventHistory_TrimsAndOrders(t *testing.T) {
	repo, s := setupTestRedis(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i := 0; i < eventHistoryLimit+5; i++ {
		ev := domain.CollaborationEvent{
			Type:      domain.EventCommentAdded,
			TripID:    "trip-1",
			UserID:    "alice",
			Timestamp: t0.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, repo.PushEvent(ctx, "trip-1", ev))
	}

	all, err := repo.RecentEvents(ctx, "trip-1", 0)
	require.NoError(t, err)
	require.Len(t, all, eventHistoryLimit)
	assert.True(t, all[0].Timestamp.Equal(t0.Add(5*time.Second)))

	last, err := repo.RecentEvents(ctx, "trip-1", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.True(t, last[1].Timestamp.Equal(t0.Add(time.Duration(eventHistoryLimit+4)*time.Second)))

	assert.True(t, s.TTL(repo.tripEventHistoryKey("trip-1")) > 0)
}

func TestMarkConflictSeen_OnlyFirstWins(t *testing.T) {
	repo, s := setupTestRedis(t)
	ctx := context.Background()

	first, err := repo.MarkConflictSeen(ctx, "trip-1|activity:a1|alice,bob", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.MarkConflictSeen(ctx, "trip-1|activity:a1|alice,bob", time.Minute)
	require.NoError(t, err)
	assert.False(t, second)

	s.FastForward(2 * time.Minute)
	again, err := repo.MarkConflictSeen(ctx, "trip-1|activity:a1|alice,bob", time.Minute)
	require.NoError(t, err)
	assert.True(t, again, "指纹过期后可以再次登记")
}

func TestCheckRateLimit(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		exceeded, err := repo.CheckRateLimit(ctx, "ratelimit:1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, exceeded)
	}
	exceeded, err := repo.CheckRateLimit(ctx, "ratelimit:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, exceeded)
}

func TestCheckRateLimit_FixedWindowNotExtendedByTraffic(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()
	key := "ratelimit:5.6.7.8"

	for i := 0; i < 3; i++ {
		_, err := repo.CheckRateLimit(ctx, key, 2, 10*time.Second)
		require.NoError(t, err)
	}

	// 超限后每 3 秒继续请求，窗口仍在第一次请求的 10 秒后结束
	blocked := 0
	for i := 0; i < 3; i++ {
		mr.FastForward(3 * time.Second)
		exceeded, err := repo.CheckRateLimit(ctx, key, 2, 10*time.Second)
		require.NoError(t, err)
		if exceeded {
			blocked++
		}
	}
	assert.Equal(t, 3, blocked)
	assert.LessOrEqual(t, mr.TTL(key), time.Second)

	mr.FastForward(2 * time.Second)
	exceeded, err := repo.CheckRateLimit(ctx, key, 2, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, exceeded, "新窗口重新计数")
	assert.Equal(t, "1", mustGet(t, mr, key))
	assert.Equal(t, 10*time.Second, mr.TTL(key))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestPublishSubscribe_RoundTrip(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()

	sub, err := repo.SubscribeRoom(ctx, "trip-1")
	require.NoError(t, err)

	env, err := domain.NewEnvelope(domain.MsgUserTyping, domain.UserTypingPayload{UserID: "alice", IsTyping: true})
	require.NoError(t, err)
	require.NoError(t, repo.PublishRoomMessage(ctx, "trip-1", domain.RoomMessage{
		Origin:        "node-a",
		TripID:        "trip-1",
		ExcludeUserID: "alice",
		Envelope:      env,
	}))

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, "node-a", msg.Origin)
		assert.Equal(t, "alice", msg.ExcludeUserID)
		assert.Equal(t, domain.MsgUserTyping, msg.Envelope.Event)
		var p domain.UserTypingPayload
		require.NoError(t, msg.Envelope.Decode(&p))
		assert.True(t, p.IsTyping)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received from subscription")
	}

	require.NoError(t, sub.Close())
	select {
	case _, ok := <-sub.Messages():
		assert.False(t, ok, "关闭订阅后通道应被关闭")
	case <-time.After(2 * time.Second):
		t.Fatal("subscription channel was not closed")
	}
}
