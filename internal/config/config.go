package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the sync engine needs to reach the chat backend.
// Values are read from the environment, with a .env file honored when present.
type Config struct {
	// APIBaseURL is the base URL of the REST API, e.g. https://chat.example.com/api.
	APIBaseURL string
	// WSURL is the websocket endpoint of the realtime channel.
	WSURL string
	// Token is the bearer token used for both REST calls and the websocket
	// handshake. Refreshing it is not this layer's concern.
	Token string

	// HeartbeatInterval is how often the heartbeat event is emitted while
	// connected.
	HeartbeatInterval time.Duration
	// ReconnectDelay is the fixed pause between reconnection attempts.
	ReconnectDelay time.Duration
	// RequestTimeout bounds every REST call.
	RequestTimeout time.Duration

	// MessagePageSize is the fixed page size for message history.
	MessagePageSize int
	// ChatPageSize is the fixed page size for the chat list.
	ChatPageSize int
}

// Load reads configuration from the environment. A missing .env file is not
// an error; production deployments set real environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL:        getEnv("CHATSYNC_API_URL", "http://localhost:8080/api"),
		WSURL:             getEnv("CHATSYNC_WS_URL", "ws://localhost:8080/ws"),
		Token:             os.Getenv("CHATSYNC_TOKEN"),
		HeartbeatInterval: getDuration("CHATSYNC_HEARTBEAT_INTERVAL", 25*time.Second),
		ReconnectDelay:    getDuration("CHATSYNC_RECONNECT_DELAY", 3*time.Second),
		RequestTimeout:    getDuration("CHATSYNC_REQUEST_TIMEOUT", 10*time.Second),
		MessagePageSize:   getInt("CHATSYNC_MESSAGE_PAGE_SIZE", 30),
		ChatPageSize:      getInt("CHATSYNC_CHAT_PAGE_SIZE", 20),
	}

	if cfg.Token == "" {
		return nil, fmt.Errorf("CHATSYNC_TOKEN is not set")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
