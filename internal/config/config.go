package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	API      APIConfig
	Realtime RealtimeConfig
	Auth     AuthConfig
	Room     RoomConfig
	Media    MediaConfig
	Control  ControlConfig
	Storage  StorageConfig
	Log      LogConfig
}

type APIConfig struct {
	URL     string
	Timeout time.Duration
}

type RealtimeConfig struct {
	URL               string
	JoinTimeout       time.Duration
	PushTimeout       time.Duration
	HeartbeatInterval time.Duration
}

type AuthConfig struct {
	Token       string
	Email       string
	Password    string
	DisplayName string
}

type RoomConfig struct {
	Code             string
	ChatHistoryLimit int
}

type MediaConfig struct {
	Enabled    bool
	ICEServers []string
}

type ControlConfig struct {
	Addr string
}

type StorageConfig struct {
	RedisURL    string
	DatabaseURL string
}

type LogConfig struct {
	Level string
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env file: %v", err)
	}

	return &Config{
		API: APIConfig{
			URL:     strings.TrimRight(getEnvOrDefault("API_URL", "http://localhost:4000"), "/"),
			Timeout: getDurationOrDefault("HTTP_TIMEOUT", "15s"),
		},
		Realtime: RealtimeConfig{
			URL:               getEnvOrDefault("WS_URL", "ws://localhost:4000/socket/websocket"),
			JoinTimeout:       getDurationOrDefault("JOIN_TIMEOUT", "10s"),
			PushTimeout:       getDurationOrDefault("PUSH_TIMEOUT", "10s"),
			HeartbeatInterval: getDurationOrDefault("HEARTBEAT_INTERVAL", "30s"),
		},
		Auth: AuthConfig{
			Token:       os.Getenv("ACCESS_TOKEN"),
			Email:       os.Getenv("LOGIN_EMAIL"),
			Password:    os.Getenv("LOGIN_PASSWORD"),
			DisplayName: getEnvOrDefault("DISPLAY_NAME", "You"),
		},
		Room: RoomConfig{
			Code:             strings.TrimSpace(os.Getenv("ROOM_CODE")),
			ChatHistoryLimit: getIntOrDefault("CHAT_HISTORY_LIMIT", 200),
		},
		Media: MediaConfig{
			Enabled:    getBoolOrDefault("MEDIA_ENABLED", true),
			ICEServers: getListOrDefault("ICE_SERVERS", "stun:stun.l.google.com:19302"),
		},
		Control: ControlConfig{
			Addr: getEnvOrDefault("CONTROL_ADDR", "127.0.0.1:8090"),
		},
		Storage: StorageConfig{
			RedisURL:    os.Getenv("REDIS_URL"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Log: LogConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key, defaultValue string) time.Duration {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("Invalid duration for %s: %v", key, err)
	}
	return duration
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("Invalid integer for %s: %v", key, err)
	}
	return intValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Fatalf("Invalid boolean for %s: %v", key, err)
	}
	return boolValue
}

// getListOrDefault splits a comma separated value, dropping empty entries.
func getListOrDefault(key, defaultValue string) []string {
	var out []string
	for _, item := range strings.Split(getEnvOrDefault(key, defaultValue), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
