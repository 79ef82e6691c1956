package bootstrap

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	httpHandler "github.com/hasanmk52/terra-voyage-sub003/internal/handler/http"
	wsHandler "github.com/hasanmk52/terra-voyage-sub003/internal/handler/websocket"
)

// RouterDeps 是组装路由需要的处理器和中间件
type RouterDeps struct {
	Log         *logrus.Logger
	TripHandler *httpHandler.TripHandler
	WSHandler   *wsHandler.WebSocketHandler
	Auth        gin.HandlerFunc
	RateLimit   gin.HandlerFunc
	CORSOrigin  string
}

// NewRouter 创建 gin 引擎并注册所有路由
func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(d.Log))
	router.Use(CORS(d.CORSOrigin))
	if d.RateLimit != nil {
		router.Use(d.RateLimit)
	}

	trips := router.Group("/api/trips/:tripId", d.Auth)
	{
		trips.GET("/conflicts", d.TripHandler.ListConflicts)
		trips.POST("/conflicts/:conflictId/resolve", d.TripHandler.ResolveConflict)
		trips.GET("/conflict-log", d.TripHandler.ConflictHistory)
		trips.PUT("/entities/:entityId/strategy", d.TripHandler.SetStrategy)
		trips.GET("/presence", d.TripHandler.Presence)
		trips.GET("/events", d.TripHandler.RecentEvents)
	}
	wsRoutes := router.Group("/ws", d.Auth)
	{
		wsRoutes.GET("/trips/:tripId", d.WSHandler.HandleConnection)
	}
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	return router
}

// CORS 只允许配置的来源
func CORS(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		// 查询参数可能带 access_token，不记录
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
