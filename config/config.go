package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the chat backend.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Index     IndexConfig     `mapstructure:"index"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Listen   string `mapstructure:"listen"`
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ProviderConfig configures the external embedding + generation service.
type ProviderConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"` // per remote call
}

func (p ProviderConfig) Validate() error {
	if p.CompletionModel == "" || p.EmbeddingModel == "" {
		return fmt.Errorf("provider.completion_model and provider.embedding_model are required")
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("provider.timeout must be positive")
	}
	return nil
}

// IndexConfig locates the index artifact and the authored documents.
type IndexConfig struct {
	Path          string `mapstructure:"path"`
	DocumentsPath string `mapstructure:"documents_path"`
}

// PolicyConfig locates the policy file.
type PolicyConfig struct {
	Path string `mapstructure:"path"`
}

// StreamConfig tunes the NDJSON answer stream.
type StreamConfig struct {
	WordDelay time.Duration `mapstructure:"word_delay"`
}

// TelemetryConfig toggles the /metrics endpoint.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig loads config from file with CHATD_* env overrides. A missing
// file is fine (defaults + env cover a full setup); a broken one is not.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.listen", ":8787")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("provider.completion_model", "gpt-4o-mini")
	viper.SetDefault("provider.embedding_model", "text-embedding-3-small")
	viper.SetDefault("provider.temperature", 0.2)
	viper.SetDefault("provider.max_tokens", 1024)
	viper.SetDefault("provider.timeout", "15s")
	viper.SetDefault("index.path", "data/index.json")
	viper.SetDefault("index.documents_path", "data/documents.json")
	viper.SetDefault("policy.path", "config/policy.json")
	viper.SetDefault("stream.word_delay", "20ms")
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("CHATD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	if config.Provider.APIKey == "" {
		config.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := config.Provider.Validate(); err != nil {
		panic(err)
	}
	return &config
}
