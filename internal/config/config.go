// Package config loads runtime configuration from an optional YAML file and
// PASSPORTPRO_* environment variables, with sensible defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "passportpro"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "PASSPORTPRO"
)

// Config holds all tunable settings for the pipeline and front-ends.
type Config struct {
	// Port is the listen port for the web front-end.
	Port int `mapstructure:"port"`

	// Model is the Gemini image model used for compliance transformation.
	Model string `mapstructure:"model"`

	// AspectHint is the aspect-ratio hint passed to the backend for initial
	// generation. 3:4 approximates the 35:45 passport frame.
	AspectHint string `mapstructure:"aspect_hint"`

	// MaxUploadBytes caps the size of an accepted source image.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`

	// SessionTTLMinutes is how long an idle web session is kept in memory.
	SessionTTLMinutes int `mapstructure:"session_ttl_minutes"`
}

// Load reads configuration from file, environment, and defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.passportpro")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 8080)
	v.SetDefault("model", "gemini-2.5-flash-image")
	v.SetDefault("aspect_hint", "3:4")
	v.SetDefault("max_upload_bytes", 15*1024*1024)
	v.SetDefault("session_ttl_minutes", 60)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, continue with defaults and env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in (0, 65535], got %d", c.Port)
	}
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if c.SessionTTLMinutes <= 0 {
		return fmt.Errorf("session_ttl_minutes must be positive, got %d", c.SessionTTLMinutes)
	}
	return nil
}
