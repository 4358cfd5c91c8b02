package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultBaseURL     = "http://localhost:8080/ai"
	DefaultModel       = "gpt-3.5-turbo"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
	DefaultLogDir      = "logs"
	DefaultDBPath      = "templates.db"
	DefaultPreviewAddr = ":8090"
)

// Environment variable names read by Load
const (
	EnvBaseURL      = "TEMPLATESTUDIO_API_URL"
	EnvModel        = "TEMPLATESTUDIO_MODEL"
	EnvTemperature  = "TEMPLATESTUDIO_TEMPERATURE"
	EnvMaxTokens    = "TEMPLATESTUDIO_MAX_TOKENS"
	EnvSystemPrompt = "TEMPLATESTUDIO_SYSTEM_PROMPT"
	EnvDebug        = "TEMPLATESTUDIO_DEBUG"
	EnvLogDir       = "TEMPLATESTUDIO_LOG_DIR"
	EnvDBPath       = "TEMPLATESTUDIO_DB"
	EnvPreviewAddr  = "TEMPLATESTUDIO_PREVIEW_ADDR"
)

// Config holds application configuration
type Config struct {
	BaseURL      string  `validate:"required,url"`
	Model        string  `validate:"required"`
	Temperature  float32 `validate:"gte=0,lte=2"`
	MaxTokens    int     `validate:"gt=0"`
	SystemPrompt string
	Debug        bool

	LogDir         string `validate:"required"`
	DBPath         string `validate:"required"`
	PreviewAddr    string // Empty disables the live preview server
	RequestTimeout time.Duration
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		LogDir:      DefaultLogDir,
		DBPath:      DefaultDBPath,
		PreviewAddr: DefaultPreviewAddr,
	}
}

// Load builds a Config from defaults, an optional .env file and the environment.
// A missing .env file is not an error.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := Default()
	cfg.BaseURL = getEnvOrDefault(EnvBaseURL, cfg.BaseURL)
	cfg.Model = getEnvOrDefault(EnvModel, cfg.Model)
	cfg.SystemPrompt = getEnvOrDefault(EnvSystemPrompt, cfg.SystemPrompt)
	cfg.LogDir = getEnvOrDefault(EnvLogDir, cfg.LogDir)
	cfg.DBPath = getEnvOrDefault(EnvDBPath, cfg.DBPath)
	cfg.PreviewAddr = getEnvOrDefault(EnvPreviewAddr, cfg.PreviewAddr)

	if v := os.Getenv(EnvTemperature); v != "" {
		t, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", EnvTemperature, err)
		}
		cfg.Temperature = float32(t)
	}
	if v := os.Getenv(EnvMaxTokens); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", EnvMaxTokens, err)
		}
		cfg.MaxTokens = n
	}
	if v := os.Getenv(EnvDebug); v != "" {
		d, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", EnvDebug, err)
		}
		cfg.Debug = d
	}

	return cfg, nil
}

// Validate checks the configuration against its constraints
func (c Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
