// Package config provides configuration management for Agentry.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for Agentry.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Push    PushConfig    `mapstructure:"push"`
	Logging LoggingConfig `mapstructure:"logging"`
	Card    CardConfig    `mapstructure:"card"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	BasePath     string `mapstructure:"basePath"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds; 0 disables it so SSE streams stay open
}

// StorageConfig selects and configures the task, event and push-config stores.
type StorageConfig struct {
	// Backend is one of "memory", "file" or "sqlite".
	Backend string `mapstructure:"backend"`
	// Dir is the data directory for the file backend.
	Dir string `mapstructure:"dir"`
	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `mapstructure:"sqlitePath"`
}

// NATSConfig holds NATS messaging configuration. An empty URL selects the
// in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// PushConfig holds webhook push notification delivery configuration.
type PushConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	TimeoutSeconds int  `mapstructure:"timeoutSeconds"`
	MaxRetries     int  `mapstructure:"maxRetries"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// CardConfig holds the agent card served at /.well-known/agent.json.
type CardConfig struct {
	Name        string            `mapstructure:"name"`
	Description string            `mapstructure:"description"`
	Version     string            `mapstructure:"version"`
	URL         string            `mapstructure:"url"`
	Skills      []CardSkillConfig `mapstructure:"skills"`
}

// CardSkillConfig describes one advertised skill.
type CardSkillConfig struct {
	ID          string   `mapstructure:"id"`
	Name        string   `mapstructure:"name"`
	Description string   `mapstructure:"description"`
	Tags        []string `mapstructure:"tags"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// TimeoutDuration returns the per-delivery timeout as a time.Duration.
func (p *PushConfig) TimeoutDuration() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// detectDefaultLogFormat returns "json" in production environments and
// "text" for terminal use.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AGENTRY_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.basePath", "/a2a")
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 0)

	// Storage defaults
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.dir", "./data")
	v.SetDefault("storage.sqlitePath", "./data/agentry.db")

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "agentry")
	v.SetDefault("nats.maxReconnects", 10)

	// Push defaults
	v.SetDefault("push.enabled", true)
	v.SetDefault("push.timeoutSeconds", 10)
	v.SetDefault("push.maxRetries", 3)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	// Card defaults
	v.SetDefault("card.name", "Agentry")
	v.SetDefault("card.description", "A2A task server")
	v.SetDefault("card.version", "0.1.0")
	v.SetDefault("card.url", "http://localhost:8080/a2a")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix AGENTRY_ with underscore naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/agentry/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings where env var naming differs from the camelCase
	// config key (AutomaticEnv does not convert camelCase).
	_ = v.BindEnv("storage.sqlitePath", "AGENTRY_STORAGE_SQLITE_PATH")
	_ = v.BindEnv("server.basePath", "AGENTRY_SERVER_BASE_PATH")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentry/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.BasePath, "/") {
		errs = append(errs, "server.basePath must start with /")
	}

	switch cfg.Storage.Backend {
	case "memory", "file", "sqlite":
	default:
		errs = append(errs, "storage.backend must be one of: memory, file, sqlite")
	}
	if cfg.Storage.Backend == "file" && cfg.Storage.Dir == "" {
		errs = append(errs, "storage.dir is required for the file backend")
	}
	if cfg.Storage.Backend == "sqlite" && cfg.Storage.SQLitePath == "" {
		errs = append(errs, "storage.sqlitePath is required for the sqlite backend")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if cfg.Push.TimeoutSeconds <= 0 {
		errs = append(errs, "push.timeoutSeconds must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
