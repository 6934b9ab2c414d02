// Package config loads the application configuration from layered
// sources: built-in defaults, an optional YAML file, then environment
// variables. Precedence is ENV > file > defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where a config file is searched, first hit wins.
var DefaultConfigPaths = []string{
	"cinechat.yaml",
	"cinechat.yml",
	"/etc/cinechat/config.yaml",
}

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "CINECHAT_CONFIG"

// envPrefix namespaces our environment variables.
const envPrefix = "CINECHAT_"

// Config is the root configuration.
type Config struct {
	LLM     LLMConfig     `koanf:"llm"`
	Remote  RemoteConfig  `koanf:"remote"`
	Library LibraryConfig `koanf:"library"`
	Agents  AgentsConfig  `koanf:"agents"`
	Logging LoggingConfig `koanf:"logging"`
}

// LLMConfig configures the chat-completion provider.
type LLMConfig struct {
	APIKey         string        `koanf:"api_key" validate:"required"`
	BaseURL        string        `koanf:"base_url" validate:"required,url"`
	Model          string        `koanf:"model" validate:"required"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	MaxTokens      int           `koanf:"max_tokens" validate:"gte=0"`
	MaxRetries     int           `koanf:"max_retries" validate:"gte=0,lte=10"`
	RateLimitDelay time.Duration `koanf:"rate_limit_delay"`
	Temperature    float64       `koanf:"temperature" validate:"gte=0,lte=2"`
}

// RemoteConfig configures the remote movie catalog.
type RemoteConfig struct {
	APIKey           string        `koanf:"api_key" validate:"required"`
	BaseURL          string        `koanf:"base_url" validate:"required,url"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"gte=1"`
	CooldownPeriod   time.Duration `koanf:"cooldown_period"`
}

// LibraryConfig configures the local movie library.
type LibraryConfig struct {
	DatabasePath string `koanf:"database_path" validate:"required"`
}

// AgentsConfig tunes the conversational core. Instruction overrides
// replace the built-in agent system prompts when non-empty.
type AgentsConfig struct {
	// HistoryWindow is how many trailing history messages each agent sees.
	HistoryWindow int `koanf:"history_window" validate:"gte=0"`
	// MaxToolRounds bounds the tool loop of one agent invocation.
	MaxToolRounds int `koanf:"max_tool_rounds" validate:"gte=1"`
	// MaxSteps bounds how many intent steps one turn executes.
	MaxSteps int `koanf:"max_steps" validate:"gte=1"`
	// PageSize is the result page size used when merging sources.
	PageSize int `koanf:"page_size" validate:"gte=1,lte=50"`

	DiscoveryInstructions string `koanf:"discovery_instructions"`
	PersonInstructions    string `koanf:"person_instructions"`
	SimilarInstructions   string `koanf:"similar_instructions"`
	IntentInstructions    string `koanf:"intent_instructions"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	Debug bool   `koanf:"debug"`
}

func defaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			RequestTimeout: 2 * time.Minute,
			MaxTokens:      4096,
			MaxRetries:     3,
			RateLimitDelay: 100 * time.Millisecond,
			Temperature:    0.3,
		},
		Remote: RemoteConfig{
			BaseURL:          "https://api.themoviedb.org/3",
			Timeout:          10 * time.Second,
			FailureThreshold: 5,
			CooldownPeriod:   30 * time.Second,
		},
		Library: LibraryConfig{
			DatabasePath: "data/library.db",
		},
		Agents: AgentsConfig{
			HistoryWindow: 6,
			MaxToolRounds: 4,
			MaxSteps:      2,
			PageSize:      20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// CINECHAT_* environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// CINECHAT_LLM_API_KEY -> llm.api_key. Only the first underscore is a
	// section separator; the rest stay part of the key.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.Replace(s, "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
