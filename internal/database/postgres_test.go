package database

import (
	"context"
	"fmt"
	"os"
	"testing"

	"roomlink/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *PostgresDB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := NewPostgresDB(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.EnsureSchema(ctx))
	return db
}

func TestSaveAndLoadRecentMessages(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	room := "T" + uuid.NewString()[:8]

	for i := 1; i <= 5; i++ {
		require.NoError(t, db.SaveMessage(ctx, room, models.ChatMessage{
			ID:       fmt.Sprint(i),
			Body:     fmt.Sprintf("message %d", i),
			UserID:   "7",
			UserName: "Sam",
		}))
	}
	// duplicates are ignored
	require.NoError(t, db.SaveMessage(ctx, room, models.ChatMessage{ID: "5", Body: "again"}))

	msgs, err := db.LoadRecentMessages(ctx, room, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "message 3", msgs[0].Body)
	assert.Equal(t, "message 5", msgs[2].Body)
	assert.Equal(t, "Sam", msgs[2].UserName)

	other, err := db.LoadRecentMessages(ctx, room+"x", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}
