package handlers

import (
	"context"

	"roomlink/internal/models"
	"roomlink/internal/services"
)

// Controller is what the control API drives. session.Session implements it.
type Controller interface {
	Status() models.SessionStatus

	Online() []string
	ActiveInvite() (models.Invite, bool)
	Invite(toUserID, roomCode string) error
	AcceptInvite(ctx context.Context) (services.JoinResult, error)
	DeclineInvite() error

	EnterRoom(ctx context.Context, code string) (services.JoinResult, error)
	LeaveRoom(ctx context.Context) error
	Messages() ([]models.ChatMessage, error)
	SendChat(ctx context.Context, body string) (models.ChatMessage, error)
	StartCall(ctx context.Context) error
	Hangup() error
	Ping() error
	History(ctx context.Context, code string, limit int) ([]models.ChatMessage, error)
}

// RoomDirectory is the backend room listing and creation.
type RoomDirectory interface {
	ListRooms(ctx context.Context) ([]*models.Room, error)
	CreateRoom(ctx context.Context, req *models.CreateRoomRequest) (*models.Room, error)
}

// IdentitySource reports the signed-in user.
type IdentitySource interface {
	Me(ctx context.Context) (*models.User, error)
}
