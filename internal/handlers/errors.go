package handlers

import (
	"errors"
	"net/http"

	"roomlink/internal/httpclient"
	"roomlink/internal/lobby"
	"roomlink/internal/peer"
	"roomlink/internal/room"
	"roomlink/internal/services"
	"roomlink/internal/session"
	"roomlink/internal/websocket"
	"roomlink/pkg/logger"

	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	var (
		denied   *services.DeniedError
		apiErr   *httpclient.APIError
		mediaErr *peer.MediaError
	)
	switch {
	case errors.As(err, &denied):
		if denied.Status >= 400 {
			return denied.Status
		}
		return http.StatusForbidden
	case errors.As(err, &apiErr):
		return apiErr.Status
	case errors.As(err, &mediaErr):
		return http.StatusServiceUnavailable
	case websocket.IsTimeout(err):
		return http.StatusGatewayTimeout

	case errors.Is(err, services.ErrRoomCodeRequired),
		errors.Is(err, services.ErrRoomNameRequired),
		errors.Is(err, room.ErrEmptyMessage),
		errors.Is(err, lobby.ErrInvalidInvite):
		return http.StatusBadRequest

	case errors.Is(err, lobby.ErrNoPendingInvite):
		return http.StatusNotFound

	case errors.Is(err, session.ErrNoRoom),
		errors.Is(err, session.ErrClosed),
		errors.Is(err, room.ErrNotJoined),
		errors.Is(err, lobby.ErrNotJoined),
		errors.Is(err, peer.ErrCallInProgress),
		errors.Is(err, peer.ErrUnexpectedSignal),
		errors.Is(err, peer.ErrDataChannelNotOpen):
		return http.StatusConflict

	case errors.Is(err, session.ErrNoArchive),
		errors.Is(err, room.ErrCallsDisabled):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func abort(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
