package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv    string
	Port      string
	LogLevel  string
	LogFormat string

	MongoURL      string
	MongoDatabase string
	RedisURL      string

	RabbitURL         string
	TranscodeQueue    string
	ConsumerRetryMax  int
	ReconnectInitial  time.Duration
	ReconnectMax      time.Duration
	HandlerTimeout    time.Duration
	LiveCacheTTL      time.Duration
	BunnyLibraryID    string
	ShutdownTimeout   time.Duration
}

func Load() (*Config, error) {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		MongoURL:      getEnv("MONGODB_URL", ""),
		MongoDatabase: getEnv("MONGODB_DATABASE", "streaming"),
		RedisURL:      getEnv("REDIS_URL", ""),

		RabbitURL:        getEnv("RABBITMQ_CONNECTION_URL", ""),
		TranscodeQueue:   getEnv("TRANSCODE_QUEUE", "bunny_video"),
		ConsumerRetryMax: getEnvInt("CONSUMER_RETRY_MAX", 5),
		ReconnectInitial: getEnvDuration("RECONNECT_INITIAL_BACKOFF", 1*time.Second),
		ReconnectMax:     getEnvDuration("RECONNECT_MAX_BACKOFF", 30*time.Second),
		HandlerTimeout:   getEnvDuration("HANDLER_TIMEOUT", 10*time.Second),
		LiveCacheTTL:     getEnvDuration("LIVE_CACHE_TTL", 5*time.Second),
		BunnyLibraryID:   getEnv("BUNNY_STREAM_VIDEO_LIBRARY_ID", ""),
		ShutdownTimeout:  getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if cfg.MongoURL == "" {
		return nil, fmt.Errorf("MONGODB_URL is required")
	}
	if cfg.RabbitURL == "" {
		return nil, fmt.Errorf("RABBITMQ_CONNECTION_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.ConsumerRetryMax < 1 {
		return nil, fmt.Errorf("CONSUMER_RETRY_MAX must be >= 1")
	}
	if cfg.ReconnectInitial <= 0 || cfg.ReconnectMax < cfg.ReconnectInitial {
		return nil, fmt.Errorf("reconnect backoff bounds are invalid: initial=%v max=%v", cfg.ReconnectInitial, cfg.ReconnectMax)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
