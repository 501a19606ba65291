package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configFile = "config.yaml"
	envPrefix  = "FIELDSTORE_"
)

// Config represents the fieldstore configuration.
type Config struct {
	Environment string `yaml:"environment" validate:"required,max=64,excludesall=/"`
	DataDir     string `yaml:"data_dir" validate:"required"`
	LogLevel    string `yaml:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat   string `yaml:"log_format" validate:"oneof=console json"`
	// Actor is recorded in the activity log.
	Actor string `yaml:"actor,omitempty"`

	MaxConflictRetries int           `yaml:"max_conflict_retries" validate:"min=1,max=100"`
	RetryInitialDelay  time.Duration `yaml:"retry_initial_delay" validate:"gte=0"`
	RetryMaxDelay      time.Duration `yaml:"retry_max_delay" validate:"gte=0"`
	PollInterval       time.Duration `yaml:"poll_interval" validate:"gt=0"`

	// RedisURL enables the cross-process change notifier when set.
	RedisURL string `yaml:"redis_url,omitempty" validate:"omitempty,url"`

	ExportExtension   string `yaml:"export_extension" validate:"required,startswith=."`
	ExportContentType string `yaml:"export_content_type" validate:"required"`
}

// Default returns the built-in configuration rooted at dir.
func Default(dir string) *Config {
	return &Config{
		Environment:        "development",
		DataDir:            filepath.Join(dir, "data"),
		LogLevel:           "info",
		LogFormat:          "console",
		MaxConflictRetries: 10,
		RetryInitialDelay:  10 * time.Millisecond,
		RetryMaxDelay:      500 * time.Millisecond,
		PollInterval:       250 * time.Millisecond,
		ExportExtension:    ".fieldstore.json",
		ExportContentType:  "application/json",
	}
}

// Dir returns the configuration directory: $FIELDSTORE_HOME or ~/.fieldstore.
func Dir() (string, error) {
	if dir := os.Getenv(envPrefix + "HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".fieldstore"), nil
}

// Load resolves the configuration in layers: defaults, config.yaml in Dir(),
// a .env file in the working directory, then FIELDSTORE_* variables.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	cfg, err := LoadConfig(dir)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default(dir)
	} else if err != nil {
		return nil, err
	}

	dotenv, err := godotenv.Read(".env")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	if err := cfg.ApplyEnv(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads config.yaml from dir on top of the defaults.
// Returns an error wrapping fs.ErrNotExist when there is no config file.
func LoadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, configFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default(dir)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes config.yaml to dir.
func SaveConfig(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(dir, configFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from FIELDSTORE_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"ENV":                 &c.Environment,
		"DATA_DIR":            &c.DataDir,
		"LOG_LEVEL":           &c.LogLevel,
		"LOG_FORMAT":          &c.LogFormat,
		"ACTOR":               &c.Actor,
		"REDIS_URL":           &c.RedisURL,
		"EXPORT_EXTENSION":    &c.ExportExtension,
		"EXPORT_CONTENT_TYPE": &c.ExportContentType,
	}
	for key, field := range str {
		if v, ok := lookup(envPrefix + key); ok {
			*field = v
		}
	}

	if v, ok := lookup(envPrefix + "MAX_CONFLICT_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_CONFLICT_RETRIES %q: %w", envPrefix, v, err)
		}
		c.MaxConflictRetries = n
	}

	durations := map[string]*time.Duration{
		"RETRY_INITIAL_DELAY": &c.RetryInitialDelay,
		"RETRY_MAX_DELAY":     &c.RetryMaxDelay,
		"POLL_INTERVAL":       &c.PollInterval,
	}
	for key, field := range durations {
		v, ok := lookup(envPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s %q: %w", envPrefix, key, v, err)
		}
		*field = d
	}
	return nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DBPath returns the database file of the configured environment.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, c.Environment+".db")
}
