// Package config loads and validates the picobot runtime configuration.
package config

// Config is the root of the single TOML configuration document.
type Config struct {
	Transport TransportConfig   `toml:"transport"`
	LLM       LLMConfig         `toml:"llm"`
	Sandbox   SandboxConfig     `toml:"sandbox"`
	Memory    MemoryConfig      `toml:"memory"`
	Skills    SkillsConfig      `toml:"skills"`
	General   GeneralConfig     `toml:"general"`
	Agent     AgentConfig       `toml:"agent"`
	Embedding *EmbeddingConfig  `toml:"embedding"`
	Tools     []ExternalToolCfg `toml:"tool"`
}

// TransportConfig carries the chat transport's own credentials (bot token,
// allowlist). The transport adapter itself is a separate concern; this
// struct only exists so the config document has somewhere to put the values
// a transport adapter would need.
type TransportConfig struct {
	BotToken      string  `toml:"bot_token"`
	AllowedUserIDs []int64 `toml:"allowed_user_ids"`
	Ntfy          NtfyConfig `toml:"ntfy"`
}

// NtfyConfig configures the optional ntfy.sh-backed outbound channel.
type NtfyConfig struct {
	Enabled bool   `toml:"enabled"`
	Server  string `toml:"server"`
	Token   string `toml:"token"`
	Topic   string `toml:"topic"`
}

type LLMConfig struct {
	APIKey       string `toml:"api_key"`
	BaseURL      string `toml:"base_url"`
	Model        string `toml:"model"`
	MaxTokens    int    `toml:"max_tokens"`
	SystemPrompt string `toml:"system_prompt"`
}

type SandboxConfig struct {
	AllowedDirectory string `toml:"allowed_directory"`
}

type MemoryConfig struct {
	DatabasePath string `toml:"database_path"`
}

type SkillsConfig struct {
	Directory string `toml:"directory"`
}

type GeneralConfig struct {
	Location string `toml:"location"`
}

type AgentConfig struct {
	MaxIterations int `toml:"max_iterations"`
}

type EmbeddingConfig struct {
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
}

// ExternalToolCfg describes one child-process tool server, repeated with
// `[[tool]]` TOML tables.
type ExternalToolCfg struct {
	Name    string            `toml:"name"`
	Command string            `toml:"command"`
	Args    []string          `toml:"args"`
	Env     map[string]string `toml:"env"`
}

const (
	DefaultMaxTokens     = 4096
	DefaultSystemPrompt  = "You are a helpful AI assistant with access to tools. " +
		"Use the available tools to help the user with their tasks. " +
		"When using file or terminal tools, operate only within the allowed sandbox directory."
	DefaultDatabasePath  = "picobot.db"
	DefaultSkillsDir     = "skills"
	DefaultMaxIterations = 25
	DefaultEmbeddingBase = "https://openrouter.ai/api/v1"
	DefaultEmbeddingModel = "qwen/qwen3-embedding-8b"
	DefaultEmbeddingDims  = 1536
)

// UserLocation returns the optional location string injected into the
// system prompt, or "" if unset.
func (c *Config) UserLocation() string {
	return c.General.Location
}

// MaxIterations returns the configured agent-loop iteration budget,
// defaulting to DefaultMaxIterations.
func (c *Config) MaxIterations() int {
	if c.Agent.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return c.Agent.MaxIterations
}
