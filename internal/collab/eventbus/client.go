package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hasanmk52/terra-voyage-sub003/internal/collab/presence"
	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

const (
	// DefaultMaxReconnectAttempts 是自动重连的最大次数。
	DefaultMaxReconnectAttempts = 5
	// DefaultBaseBackoff 是退避的时间单位，第 n 次重连等待 2^n 个单位。
	DefaultBaseBackoff = time.Second

	leaveTimeout = 2 * time.Second
)

// ErrClientStopped 表示客户端已经 Stop，不能再连接。
var ErrClientStopped = errors.New("eventbus: client stopped")

// Handlers 是服务端推送事件的回调，均可为 nil。
// 回调在连接的读 goroutine 上执行，不应长时间阻塞。
type Handlers struct {
	OnCollaborationEvent func(domain.CollaborationEvent)
	OnUserPresenceUpdate func(domain.UserPresence)
	OnOnlineUsers        func([]domain.UserPresence)
	OnUserTyping         func(domain.UserTypingPayload)
	OnUserCursor         func(domain.UserCursorPayload)
	OnConflictDetected   func(domain.ConflictDetectedPayload)
	OnConflictResolution func(domain.ConflictResolutionPayload)
	OnConflictResolved   func(domain.ConflictResolvedPayload)
	OnServerError        func(message string)
}

// Options 配置 Client。
type Options struct {
	TripID  string
	Enabled bool
	// MaxReconnectAttempts 为零时使用 DefaultMaxReconnectAttempts。
	MaxReconnectAttempts int
	// BaseBackoff 为零时使用 DefaultBaseBackoff。
	BaseBackoff time.Duration
	Handlers    Handlers
	Logger      *logrus.Entry
}

// Client 维护一个行程房间的连接。
// 连接成功后自动发送 join-trip，Stop 时发送 leave-trip，两者总是成对出现。
// 断线后按 2^attempt × BaseBackoff 退避重连，达到上限后需要调用 RetryConnection。
type Client struct {
	ch       Channel
	opts     Options
	log      *logrus.Entry
	presence *presence.Tracker

	mu      sync.Mutex
	ctx     context.Context
	started bool
	stopped bool
	// connecting 为 true 时由 connect 负责 Stop 之后的 leave-trip 和断开
	connecting bool
	connected  bool
	joined     bool
	connErr    string
	attempts   int
	timer      *time.Timer
	gen        uint64
}

// New 创建 Client，不会建立连接。
func New(ch Channel, opts Options) *Client {
	if ch == nil {
		panic("eventbus: channel cannot be nil")
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = DefaultBaseBackoff
	}
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		ch:       ch,
		opts:     opts,
		log:      log.WithFields(logrus.Fields{"component": "eventbus_client", "trip_id": opts.TripID}),
		presence: presence.NewTracker(),
	}
}

// Backoff 返回第 attempt 次（从 0 开始）自动重连前的等待时间。
func Backoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<uint(attempt))
}

// Start 打开连接并加入房间。未启用或缺少 TripID 时什么也不做。
// 首次连接失败会进入自动重连，错误同时通过 ConnectionError 暴露。
func (c *Client) Start(ctx context.Context) error {
	if !c.opts.Enabled || c.opts.TripID == "" {
		return nil
	}
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrClientStopped
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.ctx = ctx
	c.mu.Unlock()

	c.ch.OnMessage(c.dispatch)
	c.ch.OnError(c.handleFailure)
	return c.connect()
}

// Stop 离开房间、关闭连接并取消挂起的重连。可以重复调用。
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.cancelTimerLocked()
	joined := c.joined
	connecting := c.connecting
	c.joined = false
	c.connected = false
	c.mu.Unlock()

	if connecting {
		c.log.Info("Collaboration client stopping, connect in flight")
		return
	}
	c.leaveAndDisconnect(joined)
	c.log.Info("Collaboration client stopped")
}

func (c *Client) leaveAndDisconnect(joined bool) {
	if joined {
		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		if err := c.send(ctx, domain.MsgLeaveTrip, domain.LeaveTripPayload{TripID: c.opts.TripID}); err != nil {
			c.log.WithError(err).Debug("Failed to send leave-trip")
		}
		cancel()
	}
	if err := c.ch.Disconnect(); err != nil {
		c.log.WithError(err).Debug("Channel disconnect returned error")
	}
}

// RetryConnection 在断开状态下重置重连计数并立即连接。
func (c *Client) RetryConnection() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrClientStopped
	}
	if !c.started || c.connected {
		c.mu.Unlock()
		return nil
	}
	c.cancelTimerLocked()
	c.attempts = 0
	c.mu.Unlock()
	return c.connect()
}

// IsConnected reports whether the room connection is up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ConnectionError 返回最近一次连接错误，连接正常时为空字符串。
func (c *Client) ConnectionError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connErr
}

// ReconnectAttempts 返回当前已进行的自动重连次数。
func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// OnlineUsers 返回当前房间在线用户的副本。
func (c *Client) OnlineUsers() []domain.UserPresence {
	return c.presence.Online()
}

// --- 发送 ---
// 以下方法在未连接时静默丢弃，不排队也不重放。

func (c *Client) EmitActivityUpdate(activityID string, changes domain.ActivityChanges) {
	c.emit(domain.MsgActivityUpdated, domain.ActivityUpdatedPayload{TripID: c.opts.TripID, ActivityID: activityID, Changes: changes})
}

func (c *Client) EmitTripUpdate(changes domain.TripChanges) {
	c.emit(domain.MsgTripUpdated, domain.TripUpdatedPayload{TripID: c.opts.TripID, Changes: changes})
}

func (c *Client) EmitCommentAdded(activityID string, comment domain.CommentChanges) {
	c.emit(domain.MsgCommentAdded, domain.CommentAddedPayload{TripID: c.opts.TripID, ActivityID: activityID, Comment: comment})
}

func (c *Client) EmitVoteAdded(activityID string, vote domain.Fields) {
	c.emit(domain.MsgVoteAdded, domain.VoteAddedPayload{TripID: c.opts.TripID, ActivityID: activityID, Vote: vote})
}

func (c *Client) EmitTypingStart(location string) {
	c.emit(domain.MsgTypingStart, domain.TypingPayload{TripID: c.opts.TripID, Location: location})
}

func (c *Client) EmitTypingStop() {
	c.emit(domain.MsgTypingStop, domain.TypingPayload{TripID: c.opts.TripID})
}

func (c *Client) EmitCursorMove(position domain.CursorPosition, element string) {
	c.emit(domain.MsgCursorMove, domain.CursorMovePayload{TripID: c.opts.TripID, Position: position, Element: element})
}

func (c *Client) EmitResolveConflict(conflictID string, strategy domain.Strategy, input *domain.UserInput) {
	c.emit(domain.MsgResolveConflict, domain.ResolveConflictPayload{
		TripID:     c.opts.TripID,
		ConflictID: conflictID,
		Strategy:   strategy,
		UserInput:  input,
	})
}

func (c *Client) emit(event string, payload any) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.mu.Unlock()

	if err := c.send(ctx, event, payload); err != nil {
		c.log.WithError(err).WithField("event", event).Debug("Emit dropped")
	}
}

func (c *Client) send(ctx context.Context, event string, payload any) error {
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	return c.ch.Send(ctx, env)
}

// --- 连接与重连 ---

func (c *Client) connect() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrClientStopped
	}
	ctx := c.ctx
	c.connecting = true
	c.mu.Unlock()

	if err := c.ch.Connect(ctx); err != nil {
		c.endConnecting()
		c.handleFailure(err)
		return err
	}
	if err := c.send(ctx, domain.MsgJoinTrip, domain.JoinTripPayload{TripID: c.opts.TripID}); err != nil {
		_ = c.ch.Disconnect()
		c.endConnecting()
		c.handleFailure(err)
		return err
	}

	c.mu.Lock()
	c.connecting = false
	if c.stopped {
		// Stop 在连接过程中被调用，join-trip 已经发出，补发 leave-trip
		c.mu.Unlock()
		c.leaveAndDisconnect(true)
		c.log.Info("Collaboration client stopped")
		return ErrClientStopped
	}
	c.connected = true
	c.joined = true
	c.connErr = ""
	c.attempts = 0
	c.mu.Unlock()
	c.log.Info("Joined trip room")
	return nil
}

func (c *Client) endConnecting() {
	c.mu.Lock()
	c.connecting = false
	c.mu.Unlock()
}

// handleFailure 记录错误，在未超过上限时安排下一次重连。
func (c *Client) handleFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.connected = false
	c.joined = false
	c.connErr = err.Error()

	logCtx := c.log.WithError(err).WithField("attempt", c.attempts)
	if c.attempts >= c.opts.MaxReconnectAttempts {
		logCtx.Warn("Reconnect limit reached, waiting for manual retry")
		return
	}
	delay := Backoff(c.opts.BaseBackoff, c.attempts)
	c.attempts++
	c.cancelTimerLocked()
	gen := c.gen
	c.timer = time.AfterFunc(delay, func() { c.reconnect(gen) })
	logCtx.WithField("delay_ms", delay.Milliseconds()).Warn("Connection lost, scheduling reconnect")
}

func (c *Client) reconnect(gen uint64) {
	c.mu.Lock()
	if c.stopped || c.connected || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()
	_ = c.connect()
}

func (c *Client) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

// --- 接收 ---

func (c *Client) dispatch(env domain.Envelope) {
	h := c.opts.Handlers
	var err error
	switch env.Event {
	case domain.MsgOnlineUsers:
		var users []domain.UserPresence
		if err = env.Decode(&users); err == nil {
			c.presence.Replace(users)
			if h.OnOnlineUsers != nil {
				h.OnOnlineUsers(c.presence.Online())
			}
		}
	case domain.MsgUserPresenceUpdated:
		var p domain.UserPresence
		if err = env.Decode(&p); err == nil {
			c.presence.Apply(p)
			if h.OnUserPresenceUpdate != nil {
				h.OnUserPresenceUpdate(p)
			}
		}
	case domain.MsgCollaborationEvent:
		var ev domain.CollaborationEvent
		if err = env.Decode(&ev); err == nil && h.OnCollaborationEvent != nil {
			h.OnCollaborationEvent(ev)
		}
	case domain.MsgUserTyping:
		var p domain.UserTypingPayload
		if err = env.Decode(&p); err == nil && h.OnUserTyping != nil {
			h.OnUserTyping(p)
		}
	case domain.MsgUserCursor:
		var p domain.UserCursorPayload
		if err = env.Decode(&p); err == nil && h.OnUserCursor != nil {
			h.OnUserCursor(p)
		}
	case domain.MsgConflictDetected:
		var p domain.ConflictDetectedPayload
		if err = env.Decode(&p); err == nil && h.OnConflictDetected != nil {
			h.OnConflictDetected(p)
		}
	case domain.MsgConflictResolution:
		var p domain.ConflictResolutionPayload
		if err = env.Decode(&p); err == nil && h.OnConflictResolution != nil {
			h.OnConflictResolution(p)
		}
	case domain.MsgConflictResolved:
		var p domain.ConflictResolvedPayload
		if err = env.Decode(&p); err == nil && h.OnConflictResolved != nil {
			h.OnConflictResolved(p)
		}
	case domain.MsgError:
		var p domain.ErrorPayload
		if err = env.Decode(&p); err == nil && h.OnServerError != nil {
			h.OnServerError(p.Message)
		}
	default:
		c.log.WithField("event", env.Event).Debug("Ignoring unknown event")
	}
	if err != nil {
		c.log.WithError(err).WithField("event", env.Event).Warn("Failed to decode pushed event")
	}
}
