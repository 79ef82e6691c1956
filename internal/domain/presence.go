package domain

import "time"

// UserPresence 表示用户在某个行程房间内的在线状态，不做持久化。
type UserPresence struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	UserImage string    `json:"userImage,omitempty"`
	IsOnline  bool      `json:"isOnline"`
	LastSeen  time.Time `json:"lastSeen,omitempty"`
}

// Actor 是经过认证中间件识别出的操作者身份（仅用于展示，不在本服务内认证）。
type Actor struct {
	UserID    string
	UserName  string
	UserImage string
}

// Presence builds the presence record announced for this actor.
func (a Actor) Presence(online bool, now time.Time) UserPresence {
	return UserPresence{
		UserID:    a.UserID,
		UserName:  a.UserName,
		UserImage: a.UserImage,
		IsOnline:  online,
		LastSeen:  now,
	}
}
