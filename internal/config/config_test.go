package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "picobot.toml")
	sandboxDir := filepath.Join(dir, "sandbox")

	doc := `
[transport]
bot_token = "t"
allowed_user_ids = [1, 2]

[llm]
api_key = "k"
model = "gpt-test"
base_url = "https://example.test/v1"

[sandbox]
allowed_directory = "` + sandboxDir + `"
`
	if err := os.WriteFile(cfgPath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LLM.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want default %d", cfg.LLM.MaxTokens, DefaultMaxTokens)
	}
	if cfg.Memory.DatabasePath != DefaultDatabasePath {
		t.Errorf("DatabasePath = %q, want default %q", cfg.Memory.DatabasePath, DefaultDatabasePath)
	}
	if cfg.MaxIterations() != DefaultMaxIterations {
		t.Errorf("MaxIterations() = %d, want %d", cfg.MaxIterations(), DefaultMaxIterations)
	}
	if _, err := os.Stat(sandboxDir); err != nil {
		t.Errorf("sandbox directory not created: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/picobot.toml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestMaxIterationsExplicit(t *testing.T) {
	cfg := &Config{Agent: AgentConfig{MaxIterations: 10}}
	if got := cfg.MaxIterations(); got != 10 {
		t.Errorf("MaxIterations() = %d, want 10", got)
	}
}
