package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// 客户端 -> 服务端 的消息名
const (
	MsgJoinTrip        = "join-trip"
	MsgLeaveTrip       = "leave-trip"
	MsgActivityUpdated = "activity-updated"
	MsgTripUpdated     = "trip-updated"
	MsgCommentAdded    = "comment-added"
	MsgVoteAdded       = "vote-added"
	MsgTypingStart     = "typing-start"
	MsgTypingStop      = "typing-stop"
	MsgCursorMove      = "cursor-move"
	MsgResolveConflict = "resolve-conflict"
)

// 服务端 -> 客户端 的消息名
const (
	MsgCollaborationEvent  = "collaboration-event"
	MsgUserPresenceUpdated = "user-presence-updated"
	MsgOnlineUsers         = "online-users"
	MsgUserTyping          = "user-typing"
	MsgUserCursor          = "user-cursor"
	MsgError               = "error"
	MsgConflictDetected    = "conflict-detected"
	MsgConflictResolution  = "conflict-resolution"
	MsgConflictResolved    = "conflict-resolved"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrMissingTripID    = errors.New("tripId is required")
)

// Envelope 是 websocket 上双向传输的消息外壳。
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope 把负载序列化进消息外壳。
func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return Envelope{Event: event, Payload: b}, nil
}

// ParseEnvelope 解析原始 websocket 帧。
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: event name is empty", ErrMalformedMessage)
	}
	return env, nil
}

// Decode unmarshals the payload into v and runs its validation when it has one.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformedMessage, e.Event)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedMessage, e.Event, err)
	}
	if vv, ok := v.(interface{ Validate() error }); ok {
		if err := vv.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedMessage, e.Event, err)
		}
	}
	return nil
}

// Bytes 序列化整个消息外壳，用于直接写入 websocket。
func (e Envelope) Bytes() ([]byte, error) {
	return json.Marshal(e)
}

// --- 客户端发出的负载 ---

type JoinTripPayload struct {
	TripID    string `json:"tripId"`
	UserName  string `json:"userName,omitempty"`
	UserImage string `json:"userImage,omitempty"`
}

func (p JoinTripPayload) Validate() error {
	if p.TripID == "" {
		return ErrMissingTripID
	}
	return nil
}

type LeaveTripPayload struct {
	TripID string `json:"tripId"`
}

func (p LeaveTripPayload) Validate() error {
	if p.TripID == "" {
		return ErrMissingTripID
	}
	return nil
}

type ActivityUpdatedPayload struct {
	TripID     string `json:"tripId"`
	ActivityID string          `json:"activityId"`
	Changes    ActivityChanges `json:"changes"`
}

func (p ActivityUpdatedPayload) Validate() error {
	if p.TripID == "" {
		return ErrMissingTripID
	}
	if p.ActivityID == "" {
		return errors.New("activityId is required")
	}
	return nil
}

type TripUpdatedPayload struct {
	TripID  string      `json:"tripId"`
	Changes TripChanges `json:"changes"`
}

func (p TripUpdatedPayload) Validate() error {
	if p.TripID == "" {
		return ErrMissingTripID
	}
	return nil
}

// CommentAddedPayload 携带已经由持久层保存好的评论，仅用于即时展示。
type CommentAddedPayload struct {
	TripID     string         `json:"tripId"`
	ActivityID string         `json:"activityId,omitempty"`
	Comment    CommentChanges `json:"comment"`
}

func (p CommentAddedPayload) Validate() error {
	if p.TripID == "" {
		return ErrMissingTripID
	}
	if len(p.Comment) == 0 {
		return errors.New("comment is required")
	}
	return nil
}

type VoteAddedPayload struct {
	TripID     string `json:"tripId"`
	ActivityID string `json:"activityId,omitempty"`
	Vote       Fields `json:"vote"`
}

func (p VoteAddedPayload) Validate() error {
	if p.TripID == "" {
		return ErrMissingTripID
	}
	if len(p.Vote) == 0 {
		return errors.New("vote is required")
	}
	return nil
}

type TypingPayload struct {
	TripID   string `json:"tripId"`
	Location string `json:"location,omitempty"`
}

func (p TypingPayload) Validate() error {
	if p.TripID == "" {
		return ErrMissingTripID
	}
	return nil
}

type CursorMovePayload struct {
	TripID   string         `json:"tripId"`
	Position CursorPosition `json:"position"`
	Element  string         `json:"element,omitempty"`
}

func (p CursorMovePayload) Validate() error {
	if p.TripID == "" {
		return ErrMissingTripID
	}
	return nil
}

type ResolveConflictPayload struct {
	TripID     string     `json:"tripId"`
	ConflictID string     `json:"conflictId"`
	Strategy   Strategy   `json:"strategy,omitempty"`
	UserInput  *UserInput `json:"userInput,omitempty"`
}

func (p ResolveConflictPayload) Validate() error {
	if p.TripID == "" {
		return ErrMissingTripID
	}
	if p.ConflictID == "" {
		return errors.New("conflictId is required")
	}
	if p.Strategy != "" && !p.Strategy.Known() {
		return errors.New("unknown resolution strategy")
	}
	return nil
}

// --- 服务端推送的负载 ---

type UserTypingPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Location string `json:"location,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

type UserCursorPayload struct {
	UserID   string         `json:"userId"`
	UserName string         `json:"userName"`
	Position CursorPosition `json:"position"`
	Element  string         `json:"element,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type ConflictDetectedPayload struct {
	Conflict ConflictEvent   `json:"conflict"`
	Summary  ConflictSummary `json:"summary"`
	Severity Severity        `json:"severity"`
}

type ConflictResolutionPayload struct {
	ConflictID string             `json:"conflictId"`
	Resolution ConflictResolution `json:"resolution"`
}

type ConflictResolvedPayload struct {
	Conflict   ConflictEvent      `json:"conflict"`
	Resolution ConflictResolution `json:"resolution"`
}

// RoomMessage 是实例之间通过 Redis 频道转发的房间消息。
// Origin 为发布者的实例 id，实例会忽略自己发布的消息。
// ExcludeUserID 非空时，接收方不会把消息投递给该用户的连接。
type RoomMessage struct {
	Origin        string   `json:"origin"`
	TripID        string   `json:"tripId"`
	ExcludeUserID string   `json:"excludeUserId,omitempty"`
	Envelope      Envelope `json:"envelope"`
}
