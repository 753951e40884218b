package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	DataDir   string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`

	// Catalog search constraints for refreshing the model list.
	Catalog CatalogConfig `json:"catalog" yaml:"catalog" toml:"catalog"`

	// Conversation context tunables.
	Chat ChatConfig `json:"chat" yaml:"chat" toml:"chat"`

	// CORS for browser/mobile front-ends (opt-in).
	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
}

// CatalogConfig bounds the remote model index query.
type CatalogConfig struct {
	BaseURL      string `json:"base_url" yaml:"base_url" toml:"base_url"`
	MaxSizeBytes int64  `json:"max_size_bytes" yaml:"max_size_bytes" toml:"max_size_bytes"`
	MinDownloads int64  `json:"min_downloads" yaml:"min_downloads" toml:"min_downloads"`
	Limit        int    `json:"limit" yaml:"limit" toml:"limit"`
}

// ChatConfig sets the context-window policy and decoding parameters that
// are configurable; the decoding sampler values themselves are fixed in
// the chat package.
type ChatConfig struct {
	// MaxHistory is the number of non-system messages kept in the window.
	MaxHistory int `json:"max_history" yaml:"max_history" toml:"max_history"`
	// ResetInterval is the non-system message count that triggers a full
	// context reset before the next generation. <=0 selects the default.
	ResetInterval int `json:"reset_interval" yaml:"reset_interval" toml:"reset_interval"`
	// MaxTokens caps new tokens per generation.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	// ContextSize passed to the engine at load time.
	ContextSize int `json:"context_size" yaml:"context_size" toml:"context_size"`
	// GPULayers to offload; the engine falls back to CPU when unavailable.
	GPULayers int `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	// Threads for CPU inference, 0 lets the engine decide.
	Threads int `json:"threads" yaml:"threads" toml:"threads"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Defaults applied by ApplyDefaults for unset fields.
const (
	DefaultAddr          = ":8080"
	DefaultModelsDir     = "~/.pocketllm/models"
	DefaultDataDir       = "~/.pocketllm/data"
	DefaultMaxSizeBytes  = 2_500_000_000
	DefaultMinDownloads  = 1000
	DefaultCatalogLimit  = 20
	DefaultMaxHistory    = 6
	DefaultResetInterval = 10
	DefaultMaxTokens     = 256
	DefaultContextSize   = 2048
	DefaultGPULayers     = 99
)

// ApplyDefaults fills unset fields in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = DefaultModelsDir
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.Catalog.MaxSizeBytes <= 0 {
		cfg.Catalog.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if cfg.Catalog.MinDownloads <= 0 {
		cfg.Catalog.MinDownloads = DefaultMinDownloads
	}
	if cfg.Catalog.Limit <= 0 {
		cfg.Catalog.Limit = DefaultCatalogLimit
	}
	if cfg.Chat.MaxHistory <= 0 {
		cfg.Chat.MaxHistory = DefaultMaxHistory
	}
	if cfg.Chat.ResetInterval <= 0 {
		cfg.Chat.ResetInterval = DefaultResetInterval
	}
	if cfg.Chat.MaxTokens <= 0 {
		cfg.Chat.MaxTokens = DefaultMaxTokens
	}
	if cfg.Chat.ContextSize <= 0 {
		cfg.Chat.ContextSize = DefaultContextSize
	}
	if cfg.Chat.GPULayers <= 0 {
		cfg.Chat.GPULayers = DefaultGPULayers
	}
}
