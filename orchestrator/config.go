// Package orchestrator hosts the client-facing gateway: session REST API,
// the per-session WebSocket endpoint and the bus fan-out to clients.
package orchestrator

import (
	"log/slog"
	"time"

	"github.com/mockpilot/mesh/shared/config"
)

// PlaceholderJWTSecret is the shipped default. Running with it is allowed so
// local demos work, but it is loudly logged.
const PlaceholderJWTSecret = "!!CHANGE_ME_TO_A_STRONG_RANDOM_SECRET_KEY!!"

type Config struct {
	ServiceName string
	APIVersion  string
	Host        string
	Port        int

	RedisURL string

	JWTSecretKey  string
	JWTAlgorithm  string
	JWTExpiration time.Duration

	MaxQueueSize      int
	HeartbeatInterval time.Duration

	STTServiceWSURL string

	AllowedOrigins []string
}

func LoadConfig() *Config {
	cfg := &Config{
		ServiceName: config.GetEnv("SERVICE_NAME", "orchestrator"),
		APIVersion:  config.GetEnv("API_VERSION", "v1"),
		Host:        config.GetEnv("HOST", "0.0.0.0"),
		Port:        config.GetEnvInt("PORT", 8000),

		RedisURL: config.GetEnv("REDIS_URL", "redis://localhost:6379/0"),

		JWTSecretKey:  config.GetEnv("JWT_SECRET_KEY", PlaceholderJWTSecret),
		JWTAlgorithm:  config.GetEnv("JWT_ALGORITHM", "HS256"),
		JWTExpiration: config.GetEnvMinutesWithFallback("JWT_ACCESS_TOKEN_EXPIRE_MINUTES", "JWT_EXPIRATION_DELTA", 7*24*time.Hour),

		MaxQueueSize:      config.GetEnvInt("WEBSOCKET_MAX_QUEUE_SIZE", 100),
		HeartbeatInterval: config.GetEnvSecondsWithFallback("WEBSOCKET_HEARTBEAT_INTERVAL_S", "WEBSOCKET_HEARTBEAT_INTERVAL", 25*time.Second),

		STTServiceWSURL: config.GetEnv("STT_SERVICE_WS_URL", "ws://localhost:8001/v1/stream"),

		AllowedOrigins: config.GetEnvSlice("ALLOWED_ORIGINS", []string{"*"}),
	}

	if cfg.JWTSecretKey == PlaceholderJWTSecret {
		slog.Error("orchestrator: JWT_SECRET_KEY is the shipped placeholder, tokens are forgeable")
	}

	return cfg
}
