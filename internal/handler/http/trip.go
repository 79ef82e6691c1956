package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
	"github.com/hasanmk52/terra-voyage-sub003/internal/middleware"
	"github.com/hasanmk52/terra-voyage-sub003/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// Deliverer 把服务层结果投递给本实例上该行程的 WebSocket 连接，由 hub.Hub 实现。
type Deliverer interface {
	Deliver(tripID, excludeUserID string, out service.Outcome)
}

// TripHandler 封装了行程协作相关的 HTTP 接口
type TripHandler struct {
	access *service.TripAccessService
	collab *service.CollaborationService
	rooms  Deliverer
}

// NewTripHandler 创建 TripHandler 实例
func NewTripHandler(access *service.TripAccessService, collab *service.CollaborationService, rooms Deliverer) *TripHandler {
	if access == nil {
		panic("TripAccessService cannot be nil for TripHandler")
	}
	if collab == nil {
		panic("CollaborationService cannot be nil for TripHandler")
	}
	if rooms == nil {
		panic("Deliverer cannot be nil for TripHandler")
	}
	return &TripHandler{access: access, collab: collab, rooms: rooms}
}

// ResolveConflictRequest 定义解决冲突的请求体，所有字段可选
type ResolveConflictRequest struct {
	Strategy           domain.Strategy `json:"strategy"`
	Winner             string          `json:"winner"`
	ConflictingChanges domain.Fields   `json:"conflictingChanges"`
}

// ResolveConflictResponse 定义解决冲突的响应
type ResolveConflictResponse struct {
	Conflict   domain.ConflictEvent      `json:"conflict"`
	Resolution domain.ConflictResolution `json:"resolution"`
}

// SetStrategyRequest 定义设置解决策略的请求体
type SetStrategyRequest struct {
	Strategy domain.Strategy `json:"strategy" binding:"required"`
}

// authorize 校验当前用户能访问路径中的行程
func (h *TripHandler) authorize(c *gin.Context) (string, domain.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		logrus.Warn("Handler: User ID not found in context, middleware missing or failed?")
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return "", domain.Actor{}, false
	}
	tripID := c.Param("tripId")
	if _, err := h.access.Authorize(c.Request.Context(), tripID, actor.UserID); err != nil {
		HandleServiceError(c, err)
		return "", domain.Actor{}, false
	}
	return tripID, actor, true
}

// ListConflicts 返回行程内未解决的冲突，可用 entityId 过滤
func (h *TripHandler) ListConflicts(c *gin.Context) {
	tripID, _, ok := h.authorize(c)
	if !ok {
		return
	}
	conflicts := h.collab.ActiveConflicts(tripID, c.Query("entityId"))
	SuccessResponse(c, http.StatusOK, gin.H{"conflicts": conflicts})
}

// ResolveConflict 解决一个冲突。需要用户输入时返回 200 且 requiresUserInput 为 true
func (h *TripHandler) ResolveConflict(c *gin.Context) {
	tripID, actor, ok := h.authorize(c)
	if !ok {
		return
	}
	var req ResolveConflictRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if req.Strategy != "" && !req.Strategy.Known() {
		HandleServiceError(c, service.ErrInvalidStrategy)
		return
	}
	var input *domain.UserInput
	if req.Winner != "" || req.ConflictingChanges != nil {
		input = &domain.UserInput{Winner: req.Winner, ConflictingChanges: req.ConflictingChanges}
	}

	res, err := h.collab.ResolveConflict(c.Request.Context(), tripID, c.Param("conflictId"), actor, req.Strategy, input)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	h.rooms.Deliver(tripID, "", res.Outcome)

	logrus.WithFields(logrus.Fields{
		"trip_id":     tripID,
		"user_id":     actor.UserID,
		"conflict_id": res.Conflict.ID,
		"strategy":    res.Resolution.Strategy,
	}).Info("Handler.ResolveConflict: conflict resolution requested over HTTP")
	SuccessResponse(c, http.StatusOK, ResolveConflictResponse{Conflict: res.Conflict, Resolution: res.Resolution})
}

// SetStrategy 为实体设置冲突解决策略
func (h *TripHandler) SetStrategy(c *gin.Context) {
	tripID, _, ok := h.authorize(c)
	if !ok {
		return
	}
	var req SetStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: strategy is required")
		return
	}
	entityID := c.Param("entityId")
	if err := h.collab.SetStrategy(tripID, entityID, req.Strategy); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"entityId": entityID, "strategy": req.Strategy})
}

// Presence 返回行程的在线用户
func (h *TripHandler) Presence(c *gin.Context) {
	tripID, _, ok := h.authorize(c)
	if !ok {
		return
	}
	users, err := h.collab.Presence(c.Request.Context(), tripID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if users == nil {
		users = []domain.UserPresence{}
	}
	SuccessResponse(c, http.StatusOK, gin.H{"users": users})
}

// RecentEvents 返回最近的协作事件
func (h *TripHandler) RecentEvents(c *gin.Context) {
	tripID, _, ok := h.authorize(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	events, err := h.collab.RecentEvents(c.Request.Context(), tripID, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if events == nil {
		events = []domain.CollaborationEvent{}
	}
	SuccessResponse(c, http.StatusOK, gin.H{"events": events})
}

// ConflictHistory 返回已解决冲突的审计记录
func (h *TripHandler) ConflictHistory(c *gin.Context) {
	tripID, _, ok := h.authorize(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	logs, err := h.collab.ConflictHistory(c.Request.Context(), tripID, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if logs == nil {
		logs = []domain.ConflictLog{}
	}
	SuccessResponse(c, http.StatusOK, gin.H{"history": logs})
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		ErrorResponse(c, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, true
}
