package database

import (
	"context"
	"fmt"
	"time"

	"roomlink/internal/models"
	"roomlink/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	room_code   TEXT        NOT NULL,
	message_id  TEXT        NOT NULL,
	body        TEXT        NOT NULL,
	user_id     TEXT        NOT NULL DEFAULT '',
	user_name   TEXT        NOT NULL DEFAULT '',
	inserted_at TEXT        NOT NULL DEFAULT '',
	received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (room_code, message_id)
);
CREATE INDEX IF NOT EXISTS chat_messages_room_received_idx ON chat_messages (room_code, received_at);`

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

// EnsureSchema creates the chat_messages table when missing.
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

func (db *PostgresDB) SaveMessage(ctx context.Context, roomCode string, msg models.ChatMessage) error {
	messageID := msg.ID
	if messageID == "" {
		// messages without a server id are keyed by arrival
		messageID = "local-" + time.Now().UTC().Format(time.RFC3339Nano)
	}

	query := `
		INSERT INTO chat_messages (room_code, message_id, body, user_id, user_name, inserted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (room_code, message_id) DO NOTHING`

	_, err := db.pool.Exec(ctx, query, roomCode, messageID, msg.Body, msg.UserID, msg.UserName, msg.InsertedAt)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (db *PostgresDB) LoadRecentMessages(ctx context.Context, roomCode string, limit int) ([]models.ChatMessage, error) {
	query := `
		SELECT message_id, body, user_id, user_name, inserted_at
		FROM chat_messages
		WHERE room_code = $1
		ORDER BY received_at DESC, message_id DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, roomCode, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ChatMessage, error) {
		var msg models.ChatMessage
		err := row.Scan(&msg.ID, &msg.Body, &msg.UserID, &msg.UserName, &msg.InsertedAt)
		return msg, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan messages: %w", err)
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
