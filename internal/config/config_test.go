package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default("/tmp/fs-home")

	if cfg.DataDir != filepath.Join("/tmp/fs-home", "data") {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, "/tmp/fs-home/data")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
	if got := cfg.DBPath(); got != filepath.Join("/tmp/fs-home", "data", "development.db") {
		t.Errorf("DBPath = %q", got)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg := Default(dir)
	cfg.Environment = "staging"
	cfg.PollInterval = 2 * time.Second
	cfg.RedisURL = "redis://localhost:6379/0"

	if err := SaveConfig(dir, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if loaded.Environment != "staging" {
		t.Errorf("Environment = %q, want %q", loaded.Environment, "staging")
	}
	if loaded.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want %v", loaded.PollInterval, 2*time.Second)
	}
	if loaded.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %q", loaded.RedisURL)
	}
	if loaded.MaxConflictRetries != 10 {
		t.Errorf("MaxConflictRetries = %d, want default 10", loaded.MaxConflictRetries)
	}
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log_level: debug\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.ExportExtension != ".fieldstore.json" {
		t.Errorf("ExportExtension = %q, want default", cfg.ExportExtension)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"FIELDSTORE_ENV":                  "test",
		"FIELDSTORE_MAX_CONFLICT_RETRIES": "3",
		"FIELDSTORE_POLL_INTERVAL":        "50ms",
		"FIELDSTORE_ACTOR":                "inspector-7",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default(t.TempDir())
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if cfg.Environment != "test" {
		t.Errorf("Environment = %q, want test", cfg.Environment)
	}
	if cfg.MaxConflictRetries != 3 {
		t.Errorf("MaxConflictRetries = %d, want 3", cfg.MaxConflictRetries)
	}
	if cfg.PollInterval != 50*time.Millisecond {
		t.Errorf("PollInterval = %v, want 50ms", cfg.PollInterval)
	}
	if cfg.Actor != "inspector-7" {
		t.Errorf("Actor = %q", cfg.Actor)
	}
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "retries not a number", key: "FIELDSTORE_MAX_CONFLICT_RETRIES", val: "many"},
		{name: "bad duration", key: "FIELDSTORE_RETRY_MAX_DELAY", val: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			err := cfg.ApplyEnv(func(k string) (string, bool) {
				if k == tt.key {
					return tt.val, true
				}
				return "", false
			})
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown log level", mutate: func(c *Config) { c.LogLevel = "loud" }},
		{name: "zero retries", mutate: func(c *Config) { c.MaxConflictRetries = 0 }},
		{name: "environment with slash", mutate: func(c *Config) { c.Environment = "../prod" }},
		{name: "extension without dot", mutate: func(c *Config) { c.ExportExtension = "json" }},
		{name: "redis url not a url", mutate: func(c *Config) { c.RedisURL = "not a url" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FIELDSTORE_HOME", dir)
	t.Setenv("FIELDSTORE_LOG_FORMAT", "json")

	cfg := Default(dir)
	cfg.LogFormat = "console"
	cfg.Environment = "field"
	if err := SaveConfig(dir, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", loaded.LogFormat)
	}
	if loaded.Environment != "field" {
		t.Errorf("Environment = %q, want field", loaded.Environment)
	}
}
