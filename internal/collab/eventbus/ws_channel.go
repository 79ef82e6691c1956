package eventbus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

const (
	wsWriteWait = 10 * time.Second
	// 服务端每 54s 发一次 ping，这里留出余量
	wsReadWait = 70 * time.Second
)

// ErrNotConnected 表示在未连接时调用了 Send。
var ErrNotConnected = errors.New("eventbus: channel not connected")

// WSChannel 是基于 gorilla/websocket 的 Channel 实现，
// 连接 {baseURL}/ws/trips/{tripId} 并携带 Bearer token。
type WSChannel struct {
	endpoint string
	header   http.Header
	dialer   *websocket.Dialer
	log      *logrus.Entry

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	onMessage func(domain.Envelope)
	onError   func(error)
}

// NewWSChannel 根据服务地址（http(s) 或 ws(s)）构造连接到指定行程房间的通道。
func NewWSChannel(baseURL, tripID, token string) (*WSChannel, error) {
	endpoint, err := roomEndpoint(baseURL, tripID)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &WSChannel{
		endpoint: endpoint,
		header:   header,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		log:      logrus.WithFields(logrus.Fields{"component": "ws_channel", "trip_id": tripID}),
	}, nil
}

func roomEndpoint(baseURL, tripID string) (string, error) {
	if tripID == "" {
		return "", errors.New("eventbus: trip id is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("eventbus: invalid server url %q: %w", baseURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("eventbus: unsupported url scheme %q", u.Scheme)
	}
	prefix := strings.TrimSuffix(u.Path, "/") + "/ws/trips/"
	u.Path = prefix + tripID
	u.RawPath = prefix + url.PathEscape(tripID)
	return u.String(), nil
}

// Endpoint 返回拨号使用的完整地址。
func (w *WSChannel) Endpoint() string { return w.endpoint }

func (w *WSChannel) OnMessage(fn func(domain.Envelope)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onMessage = fn
}

func (w *WSChannel) OnError(fn func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = fn
}

// Connect 拨号并启动读循环。已连接时先关闭旧连接。
func (w *WSChannel) Connect(ctx context.Context) error {
	conn, resp, err := w.dialer.DialContext(ctx, w.endpoint, w.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("eventbus: dial %s: %w (status %d)", w.endpoint, err, resp.StatusCode)
		}
		return fmt.Errorf("eventbus: dial %s: %w", w.endpoint, err)
	}

	w.mu.Lock()
	old := w.conn
	w.conn = conn
	w.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(wsWriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	go w.readLoop(conn)
	w.log.Debug("WebSocket connected")
	return nil
}

// Disconnect 发送关闭帧并关闭当前连接。
func (w *WSChannel) Disconnect() error {
	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()
	if conn == nil {
		return nil
	}
	w.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
	w.writeMu.Unlock()
	return conn.Close()
}

// Send 以文本帧写出一条消息。
func (w *WSChannel) Send(ctx context.Context, env domain.Envelope) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := env.Bytes()
	if err != nil {
		return err
	}

	deadline := time.Now().Add(wsWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("eventbus: write %s: %w", env.Event, err)
	}
	return nil
}

func (w *WSChannel) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			current := w.conn == conn
			if current {
				w.conn = nil
			}
			onError := w.onError
			w.mu.Unlock()
			_ = conn.Close()
			// 主动 Disconnect 或被新连接替换时不上报
			if current && onError != nil {
				onError(err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
		if msgType != websocket.TextMessage {
			continue
		}
		env, err := domain.ParseEnvelope(data)
		if err != nil {
			w.log.WithError(err).Warn("Dropping malformed message from server")
			continue
		}
		w.mu.Lock()
		onMessage := w.onMessage
		w.mu.Unlock()
		if onMessage != nil {
			onMessage(env)
		}
	}
}
