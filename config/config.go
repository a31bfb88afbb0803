// Package config provides configuration loading and management for Taskhub.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/taskhub/model"
)

// Config represents the complete Taskhub configuration
type Config struct {
	Server   ServerConfig          `yaml:"server"`
	Auth     AuthConfig            `yaml:"auth"`
	Database DatabaseConfig        `yaml:"database"`
	Uploads  UploadsConfig         `yaml:"uploads"`
	NATS     NATSConfig            `yaml:"nats"`
	Workflow WorkflowConfig        `yaml:"workflow"`
	AI       AIConfig              `yaml:"ai"`
	Log      LogConfig             `yaml:"log"`
	Models   *model.RegistryConfig `yaml:"models,omitempty"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`

	// ClientOrigins are the origins allowed by CORS.
	ClientOrigins []string `yaml:"client_origins"`

	// RateLimitWindow and RateLimitMax bound requests per client IP on /api.
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
	RateLimitMax    int           `yaml:"rate_limit_max"`

	// MaxConnections caps concurrent connections (0 = unlimited).
	MaxConnections  int           `yaml:"max_connections"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig configures tokens and password hashing
type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	JWTExpire  time.Duration `yaml:"jwt_expire"`
	BcryptCost int           `yaml:"bcrypt_cost"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// UploadsConfig configures local file storage
type UploadsConfig struct {
	Dir       string `yaml:"dir"`
	URLPrefix string `yaml:"url_prefix"`
}

// NATSConfig configures domain events and the LLM call log
type NATSConfig struct {
	// URL is the NATS server URL (empty = events disabled)
	URL string `yaml:"url"`
	// CallBucket is the JetStream KV bucket for LLM call records (empty = disabled)
	CallBucket string        `yaml:"call_bucket"`
	CallTTL    time.Duration `yaml:"call_ttl"`
}

// WorkflowConfig tunes status changes
type WorkflowConfig struct {
	// EnforceTransitions rejects status changes not listed in the current
	// state's allowedTransitions.
	EnforceTransitions bool `yaml:"enforce_transitions"`
}

// AIConfig configures the assistant
type AIConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			Environment:     "development",
			ClientOrigins:   []string{"http://localhost:3001"},
			RateLimitWindow: 15 * time.Minute,
			RateLimitMax:    100,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			JWTExpire:  7 * 24 * time.Hour,
			BcryptCost: 12,
		},
		Database: DatabaseConfig{
			Path: "taskhub.db",
		},
		Uploads: UploadsConfig{
			Dir:       "uploads",
			URLPrefix: "/uploads",
		},
		NATS: NATSConfig{
			CallBucket: "TASKHUB_LLM_CALLS",
			CallTTL:    7 * 24 * time.Hour,
		},
		AI: AIConfig{
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535"))
	}
	if c.Server.RateLimitMax < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit_max must not be negative"))
	}
	if c.Server.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("server.max_connections must not be negative"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("auth.jwt_secret is required"))
	}
	if c.Auth.JWTExpire <= 0 {
		errs = append(errs, fmt.Errorf("auth.jwt_expire must be positive"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost must be between 4 and 31"))
	}
	if c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may hold the JWT secret.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one. Non-zero values in other take
// precedence; booleans can only be switched on.
func (c *Config) Merge(other *Config) error {
	if other == nil {
		return nil
	}
	if err := mergo.Merge(c, other, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge config: %w", err)
	}
	return nil
}
