package handlers

import (
	"github.com/gin-gonic/gin"
)

// NewRouter builds the local control API.
func NewRouter(ctrl Controller, rooms RoomDirectory, identity IdentitySource) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	lobbyH := NewLobbyHandlers(ctrl)
	roomH := NewRoomHandlers(ctrl, rooms)
	authH := NewAuthHandlers(identity)

	r.GET("/status", lobbyH.Status)
	r.GET("/me", authH.Me)

	lobbyGroup := r.Group("/lobby")
	{
		lobbyGroup.GET("/online", lobbyH.Online)
		lobbyGroup.GET("/invite", lobbyH.ActiveInvite)
		lobbyGroup.POST("/invites", lobbyH.SendInvite)
		lobbyGroup.POST("/invite/accept", lobbyH.AcceptInvite)
		lobbyGroup.POST("/invite/decline", lobbyH.DeclineInvite)
	}

	roomsGroup := r.Group("/rooms")
	{
		roomsGroup.GET("", roomH.ListRooms)
		roomsGroup.POST("", roomH.CreateRoom)
		roomsGroup.POST("/:code/enter", roomH.EnterRoom)
		roomsGroup.GET("/:code/history", roomH.History)
	}

	roomGroup := r.Group("/room")
	{
		roomGroup.POST("/leave", roomH.LeaveRoom)
		roomGroup.GET("/messages", roomH.Messages)
		roomGroup.POST("/messages", roomH.SendMessage)
		roomGroup.POST("/call", roomH.StartCall)
		roomGroup.POST("/hangup", roomH.Hangup)
		roomGroup.POST("/ping", roomH.Ping)
	}

	return r
}
