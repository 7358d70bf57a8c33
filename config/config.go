// Package config provides service configuration.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Command-line flags in cmd/server override both.
//
// Example usage:
//
//	cfg := config.LoadOrEnv("config.yaml")
//	dbPath := cfg.Storage.DatabasePath
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the entire service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Matching MatchingConfig `yaml:"matching"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// MatchingConfig holds engine settings
type MatchingConfig struct {
	// RulesFile seeds the matching configuration when the database has none.
	RulesFile string `yaml:"rules_file"`
	// AutoMatchInterval is how often stored invoices are retried, e.g. "5m".
	// Empty or "0" disables the scheduler.
	AutoMatchInterval string `yaml:"auto_match_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Interval parses AutoMatchInterval. Zero disables the scheduler.
func (m MatchingConfig) Interval() (time.Duration, error) {
	if m.AutoMatchInterval == "" || m.AutoMatchInterval == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(m.AutoMatchInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid auto_match_interval %q: %w", m.AutoMatchInterval, err)
	}
	return d, nil
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Storage:  StorageConfig{DatabasePath: "threeway.db"},
		Matching: MatchingConfig{AutoMatchInterval: "5m"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads and parses the config file. Unset keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${THREEWAY_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	def := Default()
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("THREEWAY_PORT", def.Server.Port),
			AllowedOrigins: def.Server.AllowedOrigins,
		},
		Storage: StorageConfig{
			DatabasePath: getEnv("THREEWAY_DB_PATH", def.Storage.DatabasePath),
		},
		Matching: MatchingConfig{
			RulesFile:         os.Getenv("THREEWAY_RULES_FILE"),
			AutoMatchInterval: getEnv("THREEWAY_AUTO_MATCH_INTERVAL", def.Matching.AutoMatchInterval),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", def.Logging.Level),
			Format: getEnv("LOG_FORMAT", def.Logging.Format),
		},
	}
	if origins := os.Getenv("THREEWAY_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	return cfg
}

// LoadOrEnv tries to load from path, falls back to environment variables
func LoadOrEnv(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}
