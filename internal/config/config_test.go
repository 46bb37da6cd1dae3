package config

import (
	"testing"
	"time"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("RABBITMQ_URL", "amqp://localhost")

	if _, err := Load(); err == nil {
		t.Error("expected error when DATABASE_URL is missing")
	}
}

func TestLoad_RequiresRabbitMQURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/taskfence")
	t.Setenv("RABBITMQ_URL", "")

	if _, err := Load(); err == nil {
		t.Error("expected error when RABBITMQ_URL is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/taskfence")
	t.Setenv("RABBITMQ_URL", "amqp://localhost")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.AckTimeout != time.Second {
		t.Errorf("AckTimeout = %v, want 1s", cfg.AckTimeout)
	}
	if cfg.SpeechTimeout != 10*time.Second {
		t.Errorf("SpeechTimeout = %v, want 10s", cfg.SpeechTimeout)
	}
	if !cfg.SpeechEnabled {
		t.Error("SpeechEnabled should default to true")
	}
	if cfg.RedisURL == "" {
		t.Error("RedisURL should have a default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/taskfence")
	t.Setenv("RABBITMQ_URL", "amqp://localhost")
	t.Setenv("ACK_TIMEOUT_MS", "250")
	t.Setenv("SPEECH_ENABLED", "false")
	t.Setenv("TRIGGER_PREFETCH", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.AckTimeout != 250*time.Millisecond {
		t.Errorf("AckTimeout = %v, want 250ms", cfg.AckTimeout)
	}
	if cfg.SpeechEnabled {
		t.Error("SpeechEnabled should be overridden to false")
	}
	if cfg.TriggerPrefetch != 4 {
		t.Errorf("TriggerPrefetch = %d, want 4", cfg.TriggerPrefetch)
	}
}
