package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"API_URL", "WS_URL", "ACCESS_TOKEN", "ROOM_CODE", "PUSH_TIMEOUT",
		"CHAT_HISTORY_LIMIT", "ICE_SERVERS", "MEDIA_ENABLED", "CONTROL_ADDR",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "http://localhost:4000", cfg.API.URL)
	assert.Equal(t, "ws://localhost:4000/socket/websocket", cfg.Realtime.URL)
	assert.Equal(t, 10*time.Second, cfg.Realtime.PushTimeout)
	assert.Equal(t, 30*time.Second, cfg.Realtime.HeartbeatInterval)
	assert.Equal(t, 200, cfg.Room.ChatHistoryLimit)
	assert.True(t, cfg.Media.Enabled)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.Media.ICEServers)
	assert.Equal(t, "127.0.0.1:8090", cfg.Control.Addr)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_URL", "https://rooms.example.com/")
	t.Setenv("PUSH_TIMEOUT", "3s")
	t.Setenv("CHAT_HISTORY_LIMIT", "50")
	t.Setenv("ICE_SERVERS", "stun:a.example.com:3478, ,turn:b.example.com")
	t.Setenv("MEDIA_ENABLED", "false")
	t.Setenv("ROOM_CODE", "  ABC123 ")

	cfg := Load()

	assert.Equal(t, "https://rooms.example.com", cfg.API.URL)
	assert.Equal(t, 3*time.Second, cfg.Realtime.PushTimeout)
	assert.Equal(t, 50, cfg.Room.ChatHistoryLimit)
	assert.Equal(t, []string{"stun:a.example.com:3478", "turn:b.example.com"}, cfg.Media.ICEServers)
	assert.False(t, cfg.Media.Enabled)
	assert.Equal(t, "ABC123", cfg.Room.Code)
}
