package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type LobbyHandlers struct {
	ctrl Controller
}

func NewLobbyHandlers(ctrl Controller) *LobbyHandlers {
	return &LobbyHandlers{ctrl: ctrl}
}

func (h *LobbyHandlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Status())
}

func (h *LobbyHandlers) Online(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.ctrl.Online()})
}

// ActiveInvite returns the invite awaiting an answer, 204 when none.
func (h *LobbyHandlers) ActiveInvite(c *gin.Context) {
	invite, ok := h.ctrl.ActiveInvite()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, invite)
}

func (h *LobbyHandlers) SendInvite(c *gin.Context) {
	var req struct {
		To       string `json:"to" binding:"required"`
		RoomCode string `json:"room_code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ctrl.Invite(req.To, req.RoomCode); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

func (h *LobbyHandlers) AcceptInvite(c *gin.Context) {
	result, err := h.ctrl.AcceptInvite(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(joinStatus(result), formatJoinResult(result))
}

func (h *LobbyHandlers) DeclineInvite(c *gin.Context) {
	if err := h.ctrl.DeclineInvite(); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "declined"})
}
