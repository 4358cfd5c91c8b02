package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.InDelta(t, DefaultTemperature, cfg.Temperature, 0.0001)
	assert.Equal(t, DefaultMaxTokens, cfg.MaxTokens)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv(EnvBaseURL, "http://example.test/ai")
	t.Setenv(EnvModel, "gpt-4o")
	t.Setenv(EnvTemperature, "0.2")
	t.Setenv(EnvMaxTokens, "4000")
	t.Setenv(EnvDebug, "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "http://example.test/ai", cfg.BaseURL)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.InDelta(t, 0.2, cfg.Temperature, 0.0001)
	assert.Equal(t, 4000, cfg.MaxTokens)
	assert.True(t, cfg.Debug)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(EnvModel+"=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv(EnvModel) })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Model)
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv(EnvMaxTokens, "lots")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"missing model", func(c *Config) { c.Model = "" }, true},
		{"bad url", func(c *Config) { c.BaseURL = "not a url" }, true},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, true},
		{"zero max tokens", func(c *Config) { c.MaxTokens = 0 }, true},
		{"preview disabled", func(c *Config) { c.PreviewAddr = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
