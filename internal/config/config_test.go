package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "gemini-2.5-flash-image", cfg.Model)
	assert.Equal(t, "3:4", cfg.AspectHint)
	assert.Equal(t, int64(15*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, 60, cfg.SessionTTLMinutes)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PASSPORTPRO_PORT", "9090")
	t.Setenv("PASSPORTPRO_MODEL", "gemini-3-pro-image-preview")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "gemini-3-pro-image-preview", cfg.Model)
}

func TestValidate(t *testing.T) {
	valid := Config{Port: 8080, Model: "m", AspectHint: "3:4", MaxUploadBytes: 1, SessionTTLMinutes: 1}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"empty model", func(c *Config) { c.Model = "" }},
		{"zero upload cap", func(c *Config) { c.MaxUploadBytes = 0 }},
		{"zero ttl", func(c *Config) { c.SessionTTLMinutes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
