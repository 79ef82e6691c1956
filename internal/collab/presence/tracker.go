// Package presence 维护一个行程房间内的在线用户名单。
package presence

import (
	"sync"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

// Tracker 是按 userId 去重的在线用户集合。
// 名单中只保存在线用户，离线更新会直接删除对应条目。
type Tracker struct {
	mu    sync.RWMutex
	order []string
	users map[string]domain.UserPresence
}

// NewTracker 创建一个空的 Tracker。
func NewTracker() *Tracker {
	return &Tracker{users: make(map[string]domain.UserPresence)}
}

// Apply 处理单个用户的在线状态更新：先移除旧条目，仅当在线时重新插入。
// 对不在名单中的用户应用离线更新不会改变名单。
func (t *Tracker) Apply(p domain.UserPresence) {
	if p.UserID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(p.UserID)
	if p.IsOnline {
		t.users[p.UserID] = p
		t.order = append(t.order, p.UserID)
	}
}

// Replace 用完整快照替换本地名单，只保留在线用户。
func (t *Tracker) Replace(snapshot []domain.UserPresence) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users = make(map[string]domain.UserPresence, len(snapshot))
	t.order = t.order[:0]
	for _, p := range snapshot {
		if !p.IsOnline || p.UserID == "" {
			continue
		}
		if _, dup := t.users[p.UserID]; !dup {
			t.order = append(t.order, p.UserID)
		}
		t.users[p.UserID] = p
	}
}

// Online 返回当前名单的副本，顺序为最近一次加入的先后顺序。
func (t *Tracker) Online() []domain.UserPresence {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.UserPresence, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.users[id])
	}
	return out
}

// Len returns the number of online users.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users)
}

// Contains reports whether userID is currently online.
func (t *Tracker) Contains(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.users[userID]
	return ok
}

func (t *Tracker) remove(userID string) {
	if _, ok := t.users[userID]; !ok {
		return
	}
	delete(t.users, userID)
	for i, id := range t.order {
		if id == userID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}
