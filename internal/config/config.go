// Package config loads chess server settings from an optional YAML file and
// the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// ValidBackends lists the supported storage backends
var ValidBackends = []string{BackendMemory, BackendSQLite, BackendRedis}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Admin   AdminConfig   `yaml:"admin"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Dev         bool   `yaml:"dev"`          // Relaxed rate limits, fixed token secret
	RateLimit   int    `yaml:"rate_limit"`   // Requests per second per IP
	CORSOrigins string `yaml:"cors_origins"` // Comma separated
}

type StorageConfig struct {
	// Backend is one of ValidBackends. Empty selects one from the other
	// settings: redis when URL is set, sqlite when Path is set, else memory.
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`   // SQLite file
	URL     string `yaml:"url"`    // redis:// or rediss:// URL
	Token   string `yaml:"token"`  // Key-value store access token
	Key     string `yaml:"key"`    // Key holding the game record
	Prefix  string `yaml:"prefix"` // Prefix for session keys

	WriteAttempts int           `yaml:"write_attempts"`
	WriteBackoff  time.Duration `yaml:"write_backoff"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
}

type AdminConfig struct {
	Password        string        `yaml:"password"`
	TokenSecret     string        `yaml:"token_secret"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// DefaultConfig returns the settings used when no file is given
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "localhost",
			Port:        8080,
			RateLimit:   10,
			CORSOrigins: "*",
		},
		Storage: StorageConfig{
			Key:           "chess:game",
			Prefix:        "chess:",
			WriteAttempts: 3,
			WriteBackoff:  100 * time.Millisecond,
			ReadTimeout:   2 * time.Second,
		},
		Admin: AdminConfig{
			TokenTTL:        24 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Redacted returns a copy with the password, token secret and store token
// cleared, for writing configuration that may be shared
func (c *Config) Redacted() *Config {
	r := *c
	r.Admin.Password = ""
	r.Admin.TokenSecret = ""
	r.Storage.Token = ""
	return &r
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ADMIN_CHESS_PASSWORD"); v != "" {
		c.Admin.Password = v
	}
	if v := os.Getenv("ADMIN_TOKEN_SECRET"); v != "" {
		c.Admin.TokenSecret = v
	}

	if v := os.Getenv("KV_URL"); v != "" {
		c.Storage.URL = v
	}
	if v := os.Getenv("KV_TOKEN"); v != "" {
		c.Storage.Token = v
	}
	if v := os.Getenv("CHESS_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("CHESS_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = strings.ToLower(v)
	}

	if v := os.Getenv("CHESS_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

// StorageBackend resolves the backend, inferring it when not set
func (c *Config) StorageBackend() string {
	switch {
	case c.Storage.Backend != "":
		return c.Storage.Backend
	case c.Storage.URL != "":
		return BackendRedis
	case c.Storage.Path != "":
		return BackendSQLite
	default:
		return BackendMemory
	}
}

// Validate rejects inconsistent settings
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d", c.Server.RateLimit)
	}

	backend := c.StorageBackend()
	valid := false
	for _, b := range ValidBackends {
		if backend == b {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid storage backend: %s (valid: %v)", backend, ValidBackends)
	}
	if backend == BackendSQLite && c.Storage.Path == "" {
		return fmt.Errorf("sqlite backend requires a storage path (set CHESS_STORAGE_PATH)")
	}
	if backend == BackendRedis && c.Storage.URL == "" {
		return fmt.Errorf("redis backend requires a URL (set KV_URL)")
	}
	if c.Storage.Key == "" {
		return fmt.Errorf("storage key must not be empty")
	}
	if c.Storage.WriteAttempts < 1 {
		return fmt.Errorf("write attempts must be at least 1, got %d", c.Storage.WriteAttempts)
	}
	if c.Storage.WriteBackoff < 0 {
		return fmt.Errorf("write backoff must not be negative")
	}

	if c.Admin.TokenTTL <= 0 {
		return fmt.Errorf("admin token TTL must be positive")
	}
	if c.Admin.CleanupInterval <= 0 {
		return fmt.Errorf("admin cleanup interval must be positive")
	}
	if c.Admin.TokenSecret != "" && len(c.Admin.TokenSecret) < 32 {
		return fmt.Errorf("admin token secret must be at least 32 characters")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	return nil
}

// Addr returns the API listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
