package handlers

import (
	"net/http"
	"strconv"

	"roomlink/internal/models"
	"roomlink/internal/services"

	"github.com/gin-gonic/gin"
)

type RoomHandlers struct {
	ctrl  Controller
	rooms RoomDirectory
}

func NewRoomHandlers(ctrl Controller, rooms RoomDirectory) *RoomHandlers {
	return &RoomHandlers{ctrl: ctrl, rooms: rooms}
}

func joinStatus(result services.JoinResult) int {
	if result.Outcome == services.JoinPending {
		return http.StatusAccepted
	}
	return http.StatusOK
}

func formatJoinResult(result services.JoinResult) gin.H {
	resp := gin.H{
		"code":    result.Code,
		"outcome": result.Outcome.String(),
	}
	if result.Message != "" {
		resp["message"] = result.Message
	}
	if result.Room != nil {
		resp["room"] = result.Room
	}
	if result.Participant != nil {
		resp["participant"] = result.Participant
	}
	return resp
}

func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms, err := h.rooms.ListRooms(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	if rooms == nil {
		rooms = []*models.Room{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.rooms.CreateRoom(c.Request.Context(), &req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

// EnterRoom runs the join gate for :code and joins the room when allowed.
func (h *RoomHandlers) EnterRoom(c *gin.Context) {
	result, err := h.ctrl.EnterRoom(c.Request.Context(), c.Param("code"))
	if err != nil {
		resp := gin.H{"error": err.Error()}
		if result.ShouldLeave() {
			resp["leave"] = true
		}
		c.JSON(statusFor(err), resp)
		return
	}
	c.JSON(joinStatus(result), formatJoinResult(result))
}

func (h *RoomHandlers) LeaveRoom(c *gin.Context) {
	if err := h.ctrl.LeaveRoom(c.Request.Context()); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

func (h *RoomHandlers) Messages(c *gin.Context) {
	messages, err := h.ctrl.Messages()
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *RoomHandlers) SendMessage(c *gin.Context) {
	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.ctrl.SendChat(c.Request.Context(), req.Body)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *RoomHandlers) StartCall(c *gin.Context) {
	if err := h.ctrl.StartCall(c.Request.Context()); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "calling"})
}

func (h *RoomHandlers) Hangup(c *gin.Context) {
	if err := h.ctrl.Hangup(); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "idle"})
}

func (h *RoomHandlers) Ping(c *gin.Context) {
	if err := h.ctrl.Ping(); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (h *RoomHandlers) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	messages, err := h.ctrl.History(c.Request.Context(), c.Param("code"), limit)
	if err != nil {
		abort(c, err)
		return
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
