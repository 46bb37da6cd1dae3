package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	DatabaseURL string
	RedisURL    string
	RabbitMQURL string

	ServerPort  string
	FrontendURL string
	EnableHSTS  bool
	RateLimit   string

	// Handshake and collaborator timing
	AckTimeout       time.Duration
	SpeechTimeout    time.Duration
	SpeechPoll       time.Duration
	PendingTTL       time.Duration
	TriggerPrefetch  int

	// Collaborator defaults
	SpeechEnabled bool
	SpeechCommand string
	NotifyCommand string

	ServerDebugMode  bool
	TriggerDebugMode bool

	OTELEnabled  bool
	OTELEndpoint string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		ServerPort:  getEnv("SERVER_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:  getEnvBool("ENABLE_HSTS", false),
		RateLimit:   getEnv("RATE_LIMIT", "20-S"),

		AckTimeout:      getEnvDurationMS("ACK_TIMEOUT_MS", 1000),
		SpeechTimeout:   getEnvDurationMS("SPEECH_TIMEOUT_MS", 10000),
		SpeechPoll:      getEnvDurationMS("SPEECH_POLL_MS", 250),
		PendingTTL:      getEnvDurationMS("PENDING_TTL_MS", int((12 * time.Hour).Milliseconds())),
		TriggerPrefetch: getEnvInt("TRIGGER_PREFETCH", 1),

		SpeechEnabled: getEnvBool("SPEECH_ENABLED", true),
		SpeechCommand: getEnv("SPEECH_COMMAND", "espeak-ng"),
		NotifyCommand: getEnv("NOTIFY_COMMAND", "notify-send"),

		ServerDebugMode:  getEnvBool("SERVER_DEBUG_MODE", false),
		TriggerDebugMode: getEnvBool("TRIGGER_DEBUG_MODE", false),

		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required for geofence event delivery and the cross-process handshake")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationMS(key string, defaultMS int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMS)) * time.Millisecond
}
