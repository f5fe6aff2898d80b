package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and decodes the TOML configuration document at path, applies
// documented defaults for every optional section, and ensures the sandbox
// directory exists (creating it if necessary). A missing file, a parse
// error, or a sandbox directory that cannot be created are all fatal
// configuration errors.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if cfg.Sandbox.AllowedDirectory == "" {
		return nil, fmt.Errorf("sandbox.allowed_directory is required")
	}
	if err := os.MkdirAll(cfg.Sandbox.AllowedDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox directory %s: %w", cfg.Sandbox.AllowedDirectory, err)
	}

	return &cfg, nil
}

// applyDefaults fills in every optional section left at its zero value,
// mirroring the Rust original's serde `#[serde(default = "...")]` fields.
func applyDefaults(cfg *Config) {
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = DefaultMaxTokens
	}
	if cfg.LLM.SystemPrompt == "" {
		cfg.LLM.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Memory.DatabasePath == "" {
		cfg.Memory.DatabasePath = DefaultDatabasePath
	}
	if cfg.Skills.Directory == "" {
		cfg.Skills.Directory = DefaultSkillsDir
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = DefaultMaxIterations
	}
	if cfg.Embedding != nil {
		if cfg.Embedding.BaseURL == "" {
			cfg.Embedding.BaseURL = DefaultEmbeddingBase
		}
		if cfg.Embedding.Model == "" {
			cfg.Embedding.Model = DefaultEmbeddingModel
		}
		if cfg.Embedding.Dimensions == 0 {
			cfg.Embedding.Dimensions = DefaultEmbeddingDims
		}
	}
}
