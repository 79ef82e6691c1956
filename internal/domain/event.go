package domain

import (
	"fmt"
	"time"
)

// EventType 标识协作事件的种类。
type EventType string

const (
	EventActivityUpdated EventType = "activity_updated"
	EventTripUpdated     EventType = "trip_updated"
	EventCommentAdded    EventType = "comment_added"
	EventVoteAdded       EventType = "vote_added"
	EventUserTyping      EventType = "user_typing"
	EventCursorMove      EventType = "cursor_move"
	EventPresenceUpdate  EventType = "presence_update"
	EventJoin            EventType = "join"
	EventLeave           EventType = "leave"
)

// Validate reports whether t is one of the known event types.
func (t EventType) Validate() error {
	switch t {
	case EventActivityUpdated, EventTripUpdated, EventCommentAdded, EventVoteAdded,
		EventUserTyping, EventCursorMove, EventPresenceUpdate, EventJoin, EventLeave:
		return nil
	default:
		return fmt.Errorf("unknown event type: %q", string(t))
	}
}

// IsEdit reports whether the event mutates a shared entity and so takes part in conflict detection.
func (t EventType) IsEdit() bool {
	return t == EventActivityUpdated || t == EventTripUpdated
}

// CursorPosition 是光标在页面上的坐标。
type CursorPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EventData 是事件负载解析后的类型化表示。
// 不同 EventType 只使用其中的一部分字段。
type EventData struct {
	ActivityID string          `json:"activityId,omitempty"`
	Changes    Fields          `json:"changes,omitempty"`
	Comment    Fields          `json:"comment,omitempty"`
	Vote       Fields          `json:"vote,omitempty"`
	Location   string          `json:"location,omitempty"`
	Position   *CursorPosition `json:"position,omitempty"`
	Element    string          `json:"element,omitempty"`
}

// CollaborationEvent 是在一个行程房间内广播的一次活动。
type CollaborationEvent struct {
	Type      EventType `json:"type"`
	TripID    string    `json:"tripId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}

// Wellformed reports whether the event carries the identity and time needed to take part
// in conflict detection.
func (e CollaborationEvent) Wellformed() bool {
	return e.TripID != "" && e.UserID != "" && !e.Timestamp.IsZero()
}

// Target returns the entity an edit event is aimed at: the activity when the payload
// names one, otherwise the trip itself.
func (e CollaborationEvent) Target() (EntityType, string) {
	if e.Data.ActivityID != "" {
		return EntityActivity, e.Data.ActivityID
	}
	return EntityTrip, e.TripID
}
