package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Languages LanguagesConfig `mapstructure:"languages"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// SandboxConfig holds execution backend configuration
type SandboxConfig struct {
	Backend               string `mapstructure:"backend"`
	Engine                string `mapstructure:"engine"`
	InterpretedTimeoutSec int    `mapstructure:"interpreted_timeout_sec"`
	CompiledTimeoutSec    int    `mapstructure:"compiled_timeout_sec"`
	MaxTimeoutSec         int    `mapstructure:"max_timeout_sec"`
	MemoryMB              int    `mapstructure:"memory_mb"`
	MaxMemoryMB           int    `mapstructure:"max_memory_mb"`
	MaxOutputKB           int    `mapstructure:"max_output_kb"`
	WorkspaceRoot         string `mapstructure:"workspace_root"`
}

// QueueConfig holds job queue and worker pool configuration
type QueueConfig struct {
	Name           string `mapstructure:"name"`
	Workers        int    `mapstructure:"workers"`
	Capacity       int    `mapstructure:"capacity"`
	RetentionSec   int    `mapstructure:"retention_sec"`
	PollIntervalMs int    `mapstructure:"poll_interval_ms"`
}

// LanguagesConfig holds per-language image overrides and the optional overlay file
type LanguagesConfig struct {
	File   string            `mapstructure:"file"`
	Images map[string]string `mapstructure:"images"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("runbox")
	// Nested keys map to RUNBOX_SANDBOX_BACKEND style variables.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("server.transport", "stdio")
	viper.SetDefault("server.http_port", 8080)

	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")

	viper.SetDefault("sandbox.backend", "host")
	viper.SetDefault("sandbox.engine", "docker")
	viper.SetDefault("sandbox.interpreted_timeout_sec", 10)
	viper.SetDefault("sandbox.compiled_timeout_sec", 20)
	viper.SetDefault("sandbox.max_timeout_sec", 60)
	viper.SetDefault("sandbox.memory_mb", 256)
	viper.SetDefault("sandbox.max_memory_mb", 1024)
	viper.SetDefault("sandbox.max_output_kb", 64)
	viper.SetDefault("sandbox.workspace_root", "")

	viper.SetDefault("queue.name", "exec")
	viper.SetDefault("queue.workers", 4)
	viper.SetDefault("queue.capacity", 256)
	viper.SetDefault("queue.retention_sec", 600)
	viper.SetDefault("queue.poll_interval_ms", 50)

	viper.SetDefault("languages.file", "")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Sandbox.Backend != "host" && c.Sandbox.Backend != "container" {
		return fmt.Errorf("unsupported sandbox.backend: %s, must be 'host' or 'container'", c.Sandbox.Backend)
	}

	if c.Sandbox.Engine != "docker" && c.Sandbox.Engine != "podman" {
		return fmt.Errorf("unsupported sandbox.engine: %s, must be 'docker' or 'podman'", c.Sandbox.Engine)
	}

	if c.Sandbox.InterpretedTimeoutSec <= 0 {
		return fmt.Errorf("sandbox.interpreted_timeout_sec must be positive, got: %d", c.Sandbox.InterpretedTimeoutSec)
	}

	if c.Sandbox.CompiledTimeoutSec <= 0 {
		return fmt.Errorf("sandbox.compiled_timeout_sec must be positive, got: %d", c.Sandbox.CompiledTimeoutSec)
	}

	if c.Sandbox.MaxTimeoutSec < c.Sandbox.InterpretedTimeoutSec || c.Sandbox.MaxTimeoutSec < c.Sandbox.CompiledTimeoutSec {
		return fmt.Errorf("sandbox.max_timeout_sec must not be below the per-class defaults, got: %d", c.Sandbox.MaxTimeoutSec)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.MaxMemoryMB < c.Sandbox.MemoryMB {
		return fmt.Errorf("sandbox.max_memory_mb must not be below sandbox.memory_mb, got: %d", c.Sandbox.MaxMemoryMB)
	}

	if c.Sandbox.MaxOutputKB <= 0 {
		return fmt.Errorf("sandbox.max_output_kb must be positive, got: %d", c.Sandbox.MaxOutputKB)
	}

	if c.Queue.Workers <= 0 {
		return fmt.Errorf("queue.workers must be positive, got: %d", c.Queue.Workers)
	}

	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be positive, got: %d", c.Queue.Capacity)
	}

	if c.Queue.RetentionSec <= 0 {
		return fmt.Errorf("queue.retention_sec must be positive, got: %d", c.Queue.RetentionSec)
	}

	if c.Queue.PollIntervalMs <= 0 {
		return fmt.Errorf("queue.poll_interval_ms must be positive, got: %d", c.Queue.PollIntervalMs)
	}

	return nil
}

// Retention returns the result retention window as a duration
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Queue.RetentionSec) * time.Second
}

// PollInterval returns the status poll interval as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Queue.PollIntervalMs) * time.Millisecond
}
