package hub

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
	"github.com/hasanmk52/terra-voyage-sub003/internal/repository"
	"github.com/hasanmk52/terra-voyage-sub003/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. 编辑事件会携带完整的 changes
	maxMessageSize = 32 * 1024

	// 单条消息交给服务层处理的超时
	serviceTimeout = 5 * time.Second

	// DefaultHeartbeatInterval 是刷新在线状态的间隔，必须小于 service.PresenceTTL
	DefaultHeartbeatInterval = 30 * time.Second
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type   string  // "register", "unregister"
	TripID string  // 行程房间 ID
	Client *Client // 用于 register/unregister
}

// Collaboration 是 Hub 依赖的协作服务。
type Collaboration interface {
	InstanceID() string
	ProcessIncoming(ctx context.Context, tripID string, actor domain.Actor, env domain.Envelope) (service.Outcome, error)
	Leave(ctx context.Context, tripID string, actor domain.Actor) (service.Outcome, error)
	Heartbeat(ctx context.Context, tripID string, actor domain.Actor) error
	ApplyRemote(ctx context.Context, env domain.Envelope) error
}

// Subscriber 订阅行程房间在 Redis 上的频道。
type Subscriber interface {
	SubscribeRoom(ctx context.Context, tripID string) (repository.RoomSubscription, error)
}

// Hub 维护活跃客户端集合，并在本地连接与其他实例之间转发房间消息
type Hub struct {
	// 内部通道，处理连接注册/注销和来自其他实例的消息
	messageChan chan HubMessage

	// map[tripID]map[*Client]bool
	rooms   map[string]map[*Client]bool
	roomsMu sync.RWMutex

	// 每个有本地客户端的房间一个订阅
	subs   map[string]repository.RoomSubscription
	subsMu sync.Mutex

	collab            Collaboration
	subscriber        Subscriber
	heartbeatInterval time.Duration

	done     chan struct{}
	stopOnce sync.Once
	log      *logrus.Entry
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(collab Collaboration, subscriber Subscriber, heartbeatInterval time.Duration) *Hub {
	if collab == nil {
		panic("Collaboration service cannot be nil for Hub")
	}
	if subscriber == nil {
		panic("Subscriber cannot be nil for Hub")
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	return &Hub{
		messageChan:       make(chan HubMessage, 512),
		rooms:             make(map[string]map[*Client]bool),
		subs:              make(map[string]repository.RoomSubscription),
		collab:            collab,
		subscriber:        subscriber,
		heartbeatInterval: heartbeatInterval,
		done:              make(chan struct{}),
		log:               logrus.WithField("component", "hub"),
	}
}

// Run 启动 Hub 的主事件处理循环，应在单独的 goroutine 中运行。
// StopAllSubscriptions 之后返回。
func (h *Hub) Run() {
	h.log.Info("Hub is running...")
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-h.messageChan:
			switch msg.Type {
			case "register":
				h.registerClient(msg.Client)
			case "unregister":
				h.unregisterClient(msg.Client)
			default:
				h.log.Warnf("Hub: Received unknown message type: %s for trip %s", msg.Type, msg.TripID)
			}
		case <-ticker.C:
			h.heartbeat()
		case <-h.done:
			h.log.Info("Hub is shutting down...")
			return
		}
	}
}

// registerClient 处理客户端注册逻辑
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		h.log.Error("Hub: Attempted to register a nil client")
		return
	}
	tripID := client.TripID()
	logCtx := h.log.WithFields(logrus.Fields{"trip_id": tripID, "user_id": client.UserID()})

	h.roomsMu.Lock()
	first := false
	if _, ok := h.rooms[tripID]; !ok {
		h.rooms[tripID] = make(map[*Client]bool)
		first = true
	}
	h.rooms[tripID][client] = true
	h.roomsMu.Unlock()
	client.markRegistered()
	logCtx.Info("Client registered to Hub")

	if first {
		go h.ensureSubscribed(tripID)
	}
}

// unregisterClient 处理客户端注销逻辑：关闭发送通道，必要时宣布离开并释放房间订阅
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		h.log.Error("Hub: Attempted to unregister a nil client")
		return
	}
	tripID := client.TripID()
	logCtx := h.log.WithFields(logrus.Fields{"trip_id": tripID, "user_id": client.UserID()})

	h.roomsMu.Lock()
	roomClients, ok := h.rooms[tripID]
	if !ok || !roomClients[client] {
		h.roomsMu.Unlock()
		logCtx.Warn("Client not found in room during unregister")
		return
	}
	delete(roomClients, client)
	close(client.send)

	// 同一用户在本实例还有其他已加入的连接时不宣布离开
	lastForUser := true
	for other := range roomClients {
		if other.UserID() == client.UserID() && other.Joined() {
			lastForUser = false
			break
		}
	}
	empty := len(roomClients) == 0
	if empty {
		delete(h.rooms, tripID)
	}
	h.roomsMu.Unlock()
	logCtx.Info("Client unregistered from Hub")

	if client.Joined() && lastForUser {
		go h.leave(tripID, client.Actor())
	}
	if empty {
		logCtx.Info("Room empty, releasing subscription")
		go h.releaseSubscription(tripID)
	}
}

// leave 替断开但没有发送 leave-trip 的用户宣布离开
func (h *Hub) leave(tripID string, actor domain.Actor) {
	ctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
	defer cancel()
	out, err := h.collab.Leave(ctx, tripID, actor)
	if err != nil {
		h.log.WithFields(logrus.Fields{"trip_id": tripID, "user_id": actor.UserID}).WithError(err).Warn("Failed to announce leave")
		return
	}
	h.deliver(tripID, nil, actor.UserID, out)
}

// handleClientMessage 处理一条客户端消息。在客户端的读 goroutine 中调用，保证同一连接按顺序处理
func (h *Hub) handleClientMessage(client *Client, raw []byte) {
	logCtx := h.log.WithFields(logrus.Fields{"trip_id": client.TripID(), "user_id": client.UserID()})

	env, err := domain.ParseEnvelope(raw)
	if err != nil {
		logCtx.WithError(err).Debug("Malformed client message")
		client.sendError(service.ErrInvalidMessage.Error())
		return
	}
	if env.Event != domain.MsgJoinTrip && !client.Joined() {
		client.sendError(service.ErrNotJoined.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
	defer cancel()
	out, err := h.collab.ProcessIncoming(ctx, client.TripID(), client.Actor(), env)
	if err != nil {
		logCtx.WithError(err).WithField("event", env.Event).Warn("Error processing client message")
		client.sendError(err.Error())
		return
	}

	switch out.Membership {
	case service.MembershipJoined:
		client.setJoined(true, out.Actor)
	case service.MembershipLeft:
		client.setJoined(false, out.Actor)
	}
	h.deliver(client.TripID(), client, "", out)
}

// handleRemoteMessage 同步其他实例的冲突变化并转发给本地客户端。
// 同一房间的消息由 forward 依次调用，保持发布顺序。
func (h *Hub) handleRemoteMessage(tripID string, remote domain.RoomMessage) {
	if remote.Origin == h.collab.InstanceID() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
	defer cancel()
	if err := h.collab.ApplyRemote(ctx, remote.Envelope); err != nil {
		h.log.WithFields(logrus.Fields{"trip_id": tripID, "event": remote.Envelope.Event}).WithError(err).Warn("Failed to apply remote message")
	}
	data, err := remote.Envelope.Bytes()
	if err != nil {
		return
	}
	h.broadcast(tripID, data, func(c *Client) bool {
		return remote.ExcludeUserID != "" && c.UserID() == remote.ExcludeUserID
	})
}

// Deliver 把服务层产生的消息投递给本地客户端（Reply 被忽略）。
// 用于不经过 WebSocket 发起的操作，例如 HTTP 接口。
func (h *Hub) Deliver(tripID, excludeUserID string, out service.Outcome) {
	out.Reply = nil
	h.deliver(tripID, nil, excludeUserID, out)
}

func (h *Hub) deliver(tripID string, sender *Client, excludeUserID string, out service.Outcome) {
	for _, env := range out.Reply {
		if sender == nil {
			break
		}
		if data, err := env.Bytes(); err == nil {
			sender.enqueue(data)
		}
	}
	others := func(c *Client) bool {
		return c == sender || (excludeUserID != "" && c.UserID() == excludeUserID)
	}
	for _, env := range out.Broadcast {
		if data, err := env.Bytes(); err == nil {
			h.broadcast(tripID, data, others)
		}
	}
	for _, env := range out.BroadcastAll {
		if data, err := env.Bytes(); err == nil {
			h.broadcast(tripID, data, nil)
		}
	}
}

// broadcast 将消息发送给房间内的客户端，skip 返回 true 的客户端被排除
func (h *Hub) broadcast(tripID string, message []byte, skip func(*Client) bool) {
	h.roomsMu.RLock()
	roomClients := h.rooms[tripID]
	// 复制接收者列表，避免长时间持有锁
	clientsToSend := make([]*Client, 0, len(roomClients))
	for client := range roomClients {
		if skip == nil || !skip(client) {
			clientsToSend = append(clientsToSend, client)
		}
	}
	// 发送在读锁内完成，unregister 关闭 send 通道需要写锁
	logCtx := h.log.WithFields(logrus.Fields{
		"trip_id":         tripID,
		"message_size":    len(message),
		"recipient_count": len(clientsToSend),
	})
	for _, client := range clientsToSend {
		select {
		case client.send <- message:
		default:
			logCtx.WithField("receiver_user_id", client.UserID()).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
	h.roomsMu.RUnlock()
}

// heartbeat 为每个房间内已加入的用户刷新在线状态
func (h *Hub) heartbeat() {
	type member struct {
		tripID string
		actor  domain.Actor
	}
	seen := make(map[member]bool)
	var members []member

	h.roomsMu.RLock()
	for tripID, roomClients := range h.rooms {
		for client := range roomClients {
			if !client.Joined() {
				continue
			}
			m := member{tripID: tripID, actor: client.Actor()}
			if !seen[m] {
				seen[m] = true
				members = append(members, m)
			}
		}
	}
	h.roomsMu.RUnlock()

	if len(members) == 0 {
		return
	}
	go func() {
		for _, m := range members {
			ctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
			_ = h.collab.Heartbeat(ctx, m.tripID, m.actor)
			cancel()
		}
	}()
}

// --- Redis 订阅 ---

// ensureSubscribed 在房间仍有本地客户端且尚未订阅时订阅房间频道
func (h *Hub) ensureSubscribed(tripID string) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	if _, ok := h.subs[tripID]; ok || !h.hasRoom(tripID) || h.stopped() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
	defer cancel()
	sub, err := h.subscriber.SubscribeRoom(ctx, tripID)
	if err != nil {
		h.log.WithField("trip_id", tripID).WithError(err).Error("Failed to subscribe to trip channel")
		return
	}
	h.subs[tripID] = sub
	h.log.WithField("trip_id", tripID).Info("Subscribed to trip channel")
	go h.forward(tripID, sub)
}

// releaseSubscription 在房间已没有本地客户端时取消订阅
func (h *Hub) releaseSubscription(tripID string) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	sub, ok := h.subs[tripID]
	if !ok || h.hasRoom(tripID) {
		return
	}
	delete(h.subs, tripID)
	if err := sub.Close(); err != nil {
		h.log.WithField("trip_id", tripID).WithError(err).Warn("Failed to close trip subscription")
	}
	h.log.WithField("trip_id", tripID).Info("Unsubscribed from trip channel")
}

// forward 在订阅自己的 goroutine 上逐条处理房间消息，订阅关闭后退出。
// 不经过 Hub 主循环，服务层 IO 不会阻塞注册注销。
func (h *Hub) forward(tripID string, sub repository.RoomSubscription) {
	for msg := range sub.Messages() {
		h.handleRemoteMessage(tripID, msg)
	}
}

func (h *Hub) hasRoom(tripID string) bool {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[tripID]) > 0
}

func (h *Hub) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// --- 公共方法 ---

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 返回 false 如果队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		h.log.WithFields(logrus.Fields{
			"message_type": msg.Type,
			"trip_id":      msg.TripID,
		}).Warn("Hub message channel full, dropping message")
		return false
	}
}

// ActiveTripIDs 返回当前有本地客户端的行程 ID，按字典序排列。
func (h *Hub) ActiveTripIDs() []string {
	h.roomsMu.RLock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	h.roomsMu.RUnlock()
	sort.Strings(ids)
	return ids
}

// StopAllSubscriptions 关闭所有房间订阅并让 Run 返回。可以重复调用。
func (h *Hub) StopAllSubscriptions() {
	h.stopOnce.Do(func() { close(h.done) })

	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	for tripID, sub := range h.subs {
		if err := sub.Close(); err != nil {
			h.log.WithField("trip_id", tripID).WithError(err).Warn("Failed to close trip subscription")
		}
		delete(h.subs, tripID)
	}
	h.log.Info("All trip subscriptions stopped")
}
