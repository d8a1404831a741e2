package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.Research.DefaultEntities) != 3 {
		t.Errorf("expected 3 default entities, got %d", len(cfg.Research.DefaultEntities))
	}
	if cfg.Research.Identifiers["datadog"] != "DDOG" {
		t.Errorf("expected datadog -> DDOG, got %s", cfg.Research.Identifiers["datadog"])
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected 3 retry attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BackoffBase != time.Second {
		t.Errorf("expected 1s backoff base, got %s", cfg.Retry.BackoffBase)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected info log level, got %s", cfg.Log.Level)
	}
	if len(cfg.Models.Endpoints) == 0 {
		t.Error("expected default model endpoints")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty default entities",
			modify:  func(c *Config) { c.Research.DefaultEntities = nil },
			wantErr: true,
		},
		{
			name:    "zero agent turns",
			modify:  func(c *Config) { c.Research.MaxAgentTurns = 0 },
			wantErr: true,
		},
		{
			name:    "temperature too low",
			modify:  func(c *Config) { c.Research.Temperature = -0.1 },
			wantErr: true,
		},
		{
			name:    "temperature too high",
			modify:  func(c *Config) { c.Research.Temperature = 1.1 },
			wantErr: true,
		},
		{
			name:    "zero retry attempts",
			modify:  func(c *Config) { c.Retry.MaxAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "shrinking backoff",
			modify:  func(c *Config) { c.Retry.BackoffMultiplier = 0.5 },
			wantErr: true,
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "unknown log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "scout.yaml")

	cfg := DefaultConfig()
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.Research.MaxAgentTurns = 5

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if loaded.NATS.URL != "nats://localhost:4222" {
		t.Errorf("NATS.URL = %s, want nats://localhost:4222", loaded.NATS.URL)
	}
	if loaded.Research.MaxAgentTurns != 5 {
		t.Errorf("MaxAgentTurns = %d, want 5", loaded.Research.MaxAgentTurns)
	}
	if loaded.Retry.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", loaded.Retry.MaxAttempts)
	}
}

func TestLoadFromFile_PartialOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scout.yaml")
	partial := "research:\n  max_agent_turns: 12\n"
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Research.MaxAgentTurns != 12 {
		t.Errorf("MaxAgentTurns = %d, want 12", cfg.Research.MaxAgentTurns)
	}
	// Unspecified sections keep their defaults
	if len(cfg.Research.DefaultEntities) != 3 {
		t.Errorf("expected default entities preserved, got %v", cfg.Research.DefaultEntities)
	}
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()

	other := &Config{}
	other.NATS.URL = "nats://elsewhere:4222"
	other.Research.Identifiers = map[string]string{"new relic": "NEWR"}
	other.Retry.MaxAttempts = 5
	other.Log.Level = "debug"

	base.Merge(other)

	if base.NATS.URL != "nats://elsewhere:4222" {
		t.Errorf("NATS.URL = %s", base.NATS.URL)
	}
	if base.Research.Identifiers["new relic"] != "NEWR" {
		t.Error("merged identifier missing")
	}
	if base.Research.Identifiers["datadog"] != "DDOG" {
		t.Error("existing identifiers should survive merge")
	}
	if base.Retry.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", base.Retry.MaxAttempts)
	}
	if base.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", base.Log.Level)
	}
	// Zero values in other must not clobber base
	if base.Retry.BackoffBase != time.Second {
		t.Errorf("BackoffBase = %s, want 1s", base.Retry.BackoffBase)
	}
}

func TestMergeNil(t *testing.T) {
	base := DefaultConfig()
	base.Merge(nil)
	if err := base.Validate(); err != nil {
		t.Errorf("merge with nil should leave config valid: %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SCOUT_NATS_URL", "nats://env:4222")
	t.Setenv("SCOUT_LOG_LEVEL", "warn")

	loader := NewLoader(nil)
	cfg := DefaultConfig()
	loader.applyEnvOverrides(cfg)

	if cfg.NATS.URL != "nats://env:4222" {
		t.Errorf("NATS.URL = %s, want env override", cfg.NATS.URL)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %s, want warn", cfg.Log.Level)
	}
}

func TestRetryPolicy(t *testing.T) {
	cfg := DefaultConfig()
	policy := cfg.RetryPolicy()

	if policy.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", policy.MaxAttempts)
	}
	if policy.BackoffBase != time.Second {
		t.Errorf("BackoffBase = %s, want 1s", policy.BackoffBase)
	}
	if policy.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %f, want 2.0", policy.BackoffMultiplier)
	}
	if policy.MaxBackoff != 10*time.Second {
		t.Errorf("MaxBackoff = %s, want 10s", policy.MaxBackoff)
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scout.yaml")
	if err := DefaultConfig().SaveToFile(path); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, 50*time.Millisecond, nil, func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	// Give the watcher a moment, then modify the file
	time.Sleep(100 * time.Millisecond)
	cfg := DefaultConfig()
	cfg.Research.MaxAgentTurns = 4
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-reloaded:
		if got.Research.MaxAgentTurns != 4 {
			t.Errorf("MaxAgentTurns = %d, want 4", got.Research.MaxAgentTurns)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
