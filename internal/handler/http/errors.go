package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hasanmk52/terra-voyage-sub003/internal/service"
)

// HandleServiceError 把服务层错误映射为 HTTP 状态码
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTripNotFound), errors.Is(err, service.ErrConflictNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrTripAccessDenied):
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidStrategy),
		errors.Is(err, service.ErrInvalidMessage),
		errors.Is(err, service.ErrTripMismatch):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	default:
		// 内部错误只记录日志，不把细节返回给客户端
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
