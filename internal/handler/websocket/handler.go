package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	handlerhttp "github.com/hasanmk52/terra-voyage-sub003/internal/handler/http"
	"github.com/hasanmk52/terra-voyage-sub003/internal/hub"
	"github.com/hasanmk52/terra-voyage-sub003/internal/middleware"
	"github.com/hasanmk52/terra-voyage-sub003/internal/service"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
	access   *service.TripAccessService
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
// allowedOrigin 为空或 "*" 时接受任意来源。
func NewWebSocketHandler(h *hub.Hub, access *service.TripAccessService, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if access == nil {
		panic("TripAccessService cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			// 非浏览器客户端不带 Origin
			return origin == "" || origin == allowedOrigin
		},
	}

	return &WebSocketHandler{upgrader: upgrader, hub: h, access: access}
}

// HandleConnection 处理 WebSocket 连接请求
// URL 预期格式: /ws/trips/{tripId}
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	// 1. 获取认证用户 (由 Auth 中间件设置)
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		logrus.Warn("WS Handler: User ID not found in context")
		handlerhttp.ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return
	}
	tripID := c.Param("tripId")
	logCtx := logrus.WithFields(logrus.Fields{"user_id": actor.UserID, "trip_id": tripID})

	// 2. 升级前检查行程访问权限，失败时仍可返回普通 HTTP 错误
	if _, err := h.access.Authorize(c.Request.Context(), tripID, actor.UserID); err != nil {
		logCtx.WithError(err).Warn("WS Handler: Trip access check failed")
		handlerhttp.HandleServiceError(c, err)
		return
	}

	// 3. 升级 HTTP 连接到 WebSocket
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了 HTTP 错误
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	// 4. 创建 Client 并请求 Hub 注册
	client := h.hub.NewClient(conn, tripID, actor)
	if !h.hub.QueueMessage(hub.HubMessage{Type: "register", TripID: tripID, Client: client}) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		client.CloseConn()
		return
	}

	// 5. 启动读写 goroutine。ReadPump 会等待 Hub 处理完注册
	client.Run()
	logCtx.Debug("WS Handler: Client read/write pumps started")
}
