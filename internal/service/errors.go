package service

import (
	"errors"

	"github.com/hasanmk52/terra-voyage-sub003/internal/collab/conflict"
	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
	"github.com/hasanmk52/terra-voyage-sub003/internal/repository"
)

var (
	ErrTripNotFound     = errors.New("trip not found")
	ErrTripAccessDenied = errors.New("you do not have access to this trip")
	ErrTripMismatch     = errors.New("message trip id does not match the connection")
	ErrConflictNotFound = errors.New("conflict not found")
	ErrInvalidStrategy  = errors.New("unknown resolution strategy")
	ErrNotJoined        = errors.New("join the trip before sending events")
	ErrInternalServer   = errors.New("internal server error")
	ErrInvalidMessage   = errors.New("invalid message")
	ErrUnsupportedEvent = errors.New("unsupported event")
)

// mapRepoError 将仓库层与协作核心的错误映射到服务层定义的错误。
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrTripNotFound
	case errors.Is(err, conflict.ErrConflictNotFound):
		return ErrConflictNotFound
	case errors.Is(err, domain.ErrMalformedMessage), errors.Is(err, domain.ErrMissingTripID):
		return ErrInvalidMessage
	default:
		return ErrInternalServer
	}
}
