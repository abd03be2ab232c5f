package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
port: "9090"
db:
  path: /tmp/relay.db
scheduler:
  tick: 500ms
lifecycle:
  offline_delay: 3s
auth:
  signing_key: secret
telegram:
  chat_ids: [11, 12]
kafka:
  brokers: ["k1:9092"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoad_FileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" || cfg.DB.Path != "/tmp/relay.db" {
		t.Fatalf("unexpected port/db: %+v", cfg)
	}
	if cfg.Scheduler.Tick != 500*time.Millisecond || cfg.Lifecycle.OfflineDelay != 3*time.Second {
		t.Fatalf("unexpected durations: %+v %+v", cfg.Scheduler, cfg.Lifecycle)
	}
	if cfg.Lifecycle.FastOfflineDelay != 50*time.Millisecond {
		t.Fatalf("expected default fast delay, got %s", cfg.Lifecycle.FastOfflineDelay)
	}
	if len(cfg.Telegram.ChatIDs) != 2 || cfg.Telegram.ChatIDs[1] != 12 {
		t.Fatalf("unexpected chat ids: %v", cfg.Telegram.ChatIDs)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Topic != "device-status" {
		t.Fatalf("unexpected kafka config: %+v", cfg.Kafka)
	}
	if cfg.Auth.TokenTTL != time.Hour || cfg.Profile.SaveInterval != time.Minute {
		t.Fatalf("unexpected defaults: %+v %+v", cfg.Auth, cfg.Profile)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RELAY_PORT", "7070")
	t.Setenv("RELAY_AUTH_SIGNING_KEY", "from-env")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "7070" || cfg.Auth.SigningKey != "from-env" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("RELAY_AUTH_SIGNING_KEY", "k")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.Scheduler.Tick != time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_RequiresSigningKey(t *testing.T) {
	_, err := Load(writeConfig(t, "port: \"1\"\n"))
	if !errors.Is(err, ErrMissingSigningKey) {
		t.Fatalf("expected ErrMissingSigningKey, got %v", err)
	}
}
