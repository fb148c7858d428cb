package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config собирает все настройки сервиса. Пустой DatabaseURL, RedisURL или
// KafkaBrokers переключает соответствующий слой на in-memory заглушку:
// так сервис поднимается локально без инфраструктуры.
type Config struct {
	// HTTPAddr — адрес публичного API.
	HTTPAddr string
	// MetricsAddr — адрес служебного сервера: /metrics, /health, /ready, /live.
	MetricsAddr string

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers []string

	// JWTSecret подписывает и проверяет bearer-токены. Общий для всех сервисов.
	JWTSecret string
	TokenTTL  time.Duration

	ConsumerMaxRetries   int
	ConsumerRetryBackoff time.Duration
	HandlerTimeout       time.Duration

	OutboxBatchSize    int
	OutboxPollInterval time.Duration
	OutboxMaxAttempts  int

	ReservationTTL time.Duration
	SweepInterval  time.Duration

	// ShutdownTimeout — предел на изящную остановку всех компонентов.
	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:             ":8080",
		MetricsAddr:          ":9090",
		JWTSecret:            "dev-secret-change-me",
		TokenTTL:             time.Hour,
		ConsumerMaxRetries:   3,
		ConsumerRetryBackoff: 100 * time.Millisecond,
		HandlerTimeout:       30 * time.Second,
		OutboxBatchSize:      100,
		OutboxPollInterval:   time.Second,
		OutboxMaxAttempts:    5,
		ReservationTTL:       10 * time.Minute,
		SweepInterval:        time.Minute,
		ShutdownTimeout:      10 * time.Second,
	}
}

// FromEnv читает настройки из окружения поверх значений по умолчанию.
func FromEnv() Config {
	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("SHOPFLOW_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("SHOPFLOW_METRICS_ADDR", cfg.MetricsAddr)
	cfg.DatabaseURL = envString("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = envString("REDIS_URL", cfg.RedisURL)
	cfg.JWTSecret = envString("JWT_SECRET", cfg.JWTSecret)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitBrokers(brokers)
	}

	cfg.TokenTTL = envDuration("JWT_TOKEN_TTL", cfg.TokenTTL)
	cfg.ConsumerMaxRetries = envInt("CONSUMER_MAX_RETRIES", cfg.ConsumerMaxRetries)
	cfg.ConsumerRetryBackoff = envDuration("CONSUMER_RETRY_BACKOFF", cfg.ConsumerRetryBackoff)
	cfg.HandlerTimeout = envDuration("CONSUMER_HANDLER_TIMEOUT", cfg.HandlerTimeout)
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxPollInterval = envDuration("OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxMaxAttempts = envInt("OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts)
	cfg.ReservationTTL = envDuration("RESERVATION_TTL", cfg.ReservationTTL)
	cfg.SweepInterval = envDuration("RESERVATION_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.ShutdownTimeout = envDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	return cfg
}

func splitBrokers(raw string) []string {
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}

func envString(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envDuration(name string, fallback time.Duration) time.Duration {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
