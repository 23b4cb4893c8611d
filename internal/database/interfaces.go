package database

import (
	"context"

	"roomlink/internal/models"
)

type MessageRepository interface {
	// SaveMessage stores msg for roomCode. Saving a message id twice is a
	// no-op.
	SaveMessage(ctx context.Context, roomCode string, msg models.ChatMessage) error
	// LoadRecentMessages returns up to limit messages of roomCode, oldest first.
	LoadRecentMessages(ctx context.Context, roomCode string, limit int) ([]models.ChatMessage, error)
}

// Archive is the local chat history kept next to the live room.
type Archive interface {
	MessageRepository
	Close() error
}
