package app

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()

	if cfg.HTTPAddr != ":8080" || cfg.MetricsAddr != ":9090" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DatabaseURL != "" || cfg.RedisURL != "" || len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("infra must default to in-memory: %+v", cfg)
	}
	if cfg.OutboxPollInterval != time.Second || cfg.OutboxBatchSize != 100 {
		t.Fatalf("unexpected outbox defaults: %+v", cfg)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("SHOPFLOW_HTTP_ADDR", ":8181")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092 ,")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("CONSUMER_MAX_RETRIES", "7")
	t.Setenv("CONSUMER_RETRY_BACKOFF", "50ms")
	t.Setenv("RESERVATION_TTL", "5m")

	cfg := FromEnv()

	if cfg.HTTPAddr != ":8181" {
		t.Fatalf("http addr = %s", cfg.HTTPAddr)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("brokers = %v", cfg.KafkaBrokers)
	}
	if cfg.OutboxPollInterval != 250*time.Millisecond {
		t.Fatalf("poll interval = %s", cfg.OutboxPollInterval)
	}
	if cfg.ConsumerMaxRetries != 7 {
		t.Fatalf("max retries = %d", cfg.ConsumerMaxRetries)
	}
	if cfg.ConsumerRetryBackoff != 50*time.Millisecond {
		t.Fatalf("retry backoff = %s", cfg.ConsumerRetryBackoff)
	}
	if cfg.ReservationTTL != 5*time.Minute {
		t.Fatalf("reservation ttl = %s", cfg.ReservationTTL)
	}
}

func TestFromEnv_IgnoresInvalidValues(t *testing.T) {
	t.Setenv("CONSUMER_MAX_RETRIES", "not-a-number")
	t.Setenv("OUTBOX_POLL_INTERVAL", "-5s")

	cfg := FromEnv()

	if cfg.ConsumerMaxRetries != 3 {
		t.Fatalf("max retries = %d, want default 3", cfg.ConsumerMaxRetries)
	}
	if cfg.OutboxPollInterval != time.Second {
		t.Fatalf("poll interval = %s, want default 1s", cfg.OutboxPollInterval)
	}
}
