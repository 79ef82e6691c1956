package presence_test

import (
	"testing"

	"github.com/hasanmk52/terra-voyage-sub003/internal/collab/presence"
	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func online(id, name string) domain.UserPresence {
	return domain.UserPresence{UserID: id, UserName: name, IsOnline: true}
}

func offline(id string) domain.UserPresence {
	return domain.UserPresence{UserID: id, IsOnline: false}
}

func TestTracker_Apply_AddsOnlineUser(t *testing.T) {
	tr := presence.NewTracker()
	tr.Apply(online("u1", "Ana"))
	tr.Apply(online("u2", "Ben"))

	users := tr.Online()
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].UserID)
	assert.Equal(t, "u2", users[1].UserID)
	assert.True(t, tr.Contains("u1"))
}

func TestTracker_Apply_DeduplicatesByUserID(t *testing.T) {
	tr := presence.NewTracker()
	tr.Apply(online("u1", "Ana"))
	tr.Apply(online("u1", "Ana Maria")) // 同一用户的第二次更新只替换，不新增

	users := tr.Online()
	require.Len(t, users, 1)
	assert.Equal(t, "Ana Maria", users[0].UserName)
}

func TestTracker_Apply_OfflineRemovesEntry(t *testing.T) {
	tr := presence.NewTracker()
	tr.Apply(online("u1", "Ana"))
	tr.Apply(online("u2", "Ben"))

	tr.Apply(offline("u1"))

	assert.Equal(t, 1, tr.Len())
	assert.False(t, tr.Contains("u1"), "离线用户不应保留占位条目")
}

func TestTracker_Apply_OfflineForUnknownUserIsNoop(t *testing.T) {
	tr := presence.NewTracker()
	tr.Apply(online("u1", "Ana"))
	before := tr.Online()

	tr.Apply(offline("ghost"))
	tr.Apply(offline("ghost"))

	assert.Equal(t, before, tr.Online())
}

func TestTracker_Replace_FiltersOffline(t *testing.T) {
	tr := presence.NewTracker()
	tr.Apply(online("stale", "Old"))

	tr.Replace([]domain.UserPresence{
		online("u1", "Ana"),
		offline("u2"),
		online("u3", "Cy"),
	})

	users := tr.Online()
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].UserID)
	assert.Equal(t, "u3", users[1].UserID)
	assert.False(t, tr.Contains("stale"))
}

func TestTracker_Online_ReturnsCopy(t *testing.T) {
	tr := presence.NewTracker()
	tr.Apply(online("u1", "Ana"))

	users := tr.Online()
	users[0].UserName = "mutated"

	assert.Equal(t, "Ana", tr.Online()[0].UserName)
}
