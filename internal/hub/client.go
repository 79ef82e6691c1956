package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

// 注册消息在 Hub 队列中等待的上限
const registerWait = 5 * time.Second

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	tripID string
	userID string
	send   chan []byte

	// registerClient 处理后关闭，ReadPump 在此之前不读取消息
	registered     chan struct{}
	registeredOnce sync.Once

	mu     sync.Mutex
	actor  domain.Actor
	joined bool
}

// NewClient 创建一个新的 Client 实例
func (h *Hub) NewClient(conn *websocket.Conn, tripID string, actor domain.Actor) *Client {
	return &Client{
		hub:        h,
		conn:       conn,
		tripID:     tripID,
		userID:     actor.UserID,
		actor:      actor,
		send:       make(chan []byte, 256),
		registered: make(chan struct{}),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// ReadPump 读取客户端消息并按顺序交给 Hub 处理。
// 它在自己的 goroutine 中运行。
func (c *Client) ReadPump() {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": c.userID, "trip_id": c.tripID})
	defer func() {
		// 请求 Hub 注销此客户端
		select {
		case c.hub.messageChan <- HubMessage{Type: "unregister", TripID: c.tripID, Client: c}:
		case <-time.After(1 * time.Second):
			logCtx.Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		logCtx.Info("readPump exited, unregistered client")
	}()

	select {
	case <-c.registered:
	case <-time.After(registerWait):
		logCtx.Warn("Client was not registered in time, closing connection")
		return
	}

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			logCtx.Debugf("Received non-text message type: %d", messageType)
			continue
		}
		c.hub.handleClientMessage(c, message)
	}
}

// WritePump 将消息从 send 通道写入 WebSocket 连接，并定期发送 Ping。
// 它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": c.userID, "trip_id": c.tripID})
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logCtx.Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 在注销时关闭了 send 通道
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}

// enqueue 把消息放入发送队列。客户端已注销或队列已满时返回 false
func (c *Client) enqueue(data []byte) bool {
	c.hub.roomsMu.RLock()
	defer c.hub.roomsMu.RUnlock()
	if !c.hub.rooms[c.tripID][c] {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		logrus.WithFields(logrus.Fields{"user_id": c.userID, "trip_id": c.tripID}).Warn("Client send channel full, message dropped")
		return false
	}
}

func (c *Client) sendError(message string) {
	env, err := domain.NewEnvelope(domain.MsgError, domain.ErrorPayload{Message: message})
	if err != nil {
		return
	}
	if data, err := env.Bytes(); err == nil {
		c.enqueue(data)
	}
}

func (c *Client) markRegistered() {
	c.registeredOnce.Do(func() { close(c.registered) })
}

func (c *Client) setJoined(joined bool, actor domain.Actor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = joined
	if actor.UserID == c.userID {
		c.actor = actor
	}
}

// Joined 报告客户端是否已发送 join-trip。
func (c *Client) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// Actor 返回客户端当前的身份（加入时可能更新了展示名）。
func (c *Client) Actor() domain.Actor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actor
}

func (c *Client) TripID() string { return c.tripID }
func (c *Client) UserID() string { return c.userID }
func (c *Client) CloseConn()     { c.conn.Close() }
