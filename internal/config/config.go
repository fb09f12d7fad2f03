// Package config loads and manages mcpchat configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (LLM_API_KEY, LLM_BASE_URL, LLM_MODEL, ANTHROPIC_API_KEY, etc.)
// 2. Config file path specified via --config flag
// 3. ~/.config/mcpchat/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// StorageConfig holds conversation memory persistence settings.
type StorageConfig struct {
	// Backend: "sqlite" (default) | "json"
	Backend string `yaml:"backend"`

	// Path is the snapshot file location. Empty uses
	// ~/.local/share/mcpchat/memory.db (or memory.json).
	Path string `yaml:"path"`

	// MaxSessions caps retained sessions; least-recently-active sessions
	// are evicted past the cap. 0 uses the default of 50.
	MaxSessions int `yaml:"max_sessions"`
}

// ChatConfig holds turn-loop settings.
type ChatConfig struct {
	// HistoryLimit is how many stored messages are replayed as model
	// context each turn. 0 = all.
	HistoryLimit int `yaml:"history_limit"`

	// MaxRounds caps model/tool rounds within one turn. 0 = unlimited.
	MaxRounds int `yaml:"max_rounds"`

	// MaxTokens caps completion length per model call.
	MaxTokens int `yaml:"max_tokens"`

	// SystemPrompt is prepended to every turn's context when set.
	SystemPrompt string `yaml:"system_prompt"`
}

// Config is the complete configuration structure for mcpchat.
type Config struct {
	// Provider is the active provider name (e.g. "openai", "anthropic", "deepseek")
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// Providers holds per-provider configuration.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	// MCPConfig points at an explicit mcp.json, bypassing the default
	// global + project merge.
	MCPConfig string `yaml:"mcp_config"`

	// Storage holds conversation memory persistence settings.
	Storage StorageConfig `yaml:"storage"`

	// Chat holds turn-loop settings.
	Chat ChatConfig `yaml:"chat"`
}

// KnownProviderBaseURLs maps well-known OpenAI-compatible provider names to
// their base URLs. The "openai" and "anthropic" providers use their SDKs'
// built-in endpoints.
var KnownProviderBaseURLs = map[string]string{
	"deepseek": "https://api.deepseek.com/v1",
	"groq":     "https://api.groq.com/openai/v1",
	"kimi":     "https://api.moonshot.cn/v1",
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:  "openai",
		Providers: make(map[string]*ProviderConfig),
		Storage: StorageConfig{
			Backend:     "sqlite",
			MaxSessions: 50,
		},
		Chat: ChatConfig{
			HistoryLimit: 10,
			MaxRounds:    25,
			MaxTokens:    2024,
		},
	}
}

// Load reads the config file and merges environment variable overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Determine config file path
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(home, ".config", "mcpchat", "config.yaml")
		}
	}

	// Read config file (use defaults if not found)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.MaxSessions <= 0 {
		cfg.Storage.MaxSessions = 50
	}

	return cfg, nil
}

// GetProviderConfig returns the config for the named provider, or an empty
// config if not found.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok {
		return pc
	}
	return &ProviderConfig{}
}

// StoragePath resolves the snapshot location, defaulting into the user data
// directory with an extension matching the backend.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	name := "memory.db"
	if c.Storage.Backend == "json" {
		name = "memory.json"
	}
	return filepath.Join(home, ".local", "share", "mcpchat", name), nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	setKey := func(provider, key string) {
		if cfg.Providers == nil {
			cfg.Providers = make(map[string]*ProviderConfig)
		}
		if cfg.Providers[provider] == nil {
			cfg.Providers[provider] = &ProviderConfig{}
		}
		cfg.Providers[provider].APIKey = key
	}

	// Generic overrides apply to the active provider.
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		setKey(cfg.Provider, v)
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		if cfg.Providers[cfg.Provider] == nil {
			cfg.Providers[cfg.Provider] = &ProviderConfig{}
		}
		cfg.Providers[cfg.Provider].BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}

	// Provider-specific keys
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Providers["openai"] == nil || cfg.Providers["openai"].APIKey == "" {
			setKey("openai", v)
		}
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		if cfg.Providers["anthropic"] == nil || cfg.Providers["anthropic"].APIKey == "" {
			setKey("anthropic", v)
		}
	}

	// Provider selection
	if v := os.Getenv("MCPCHAT_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("MCPCHAT_MODEL"); v != "" {
		cfg.Model = v
	}
}
