package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/local/picobot/internal/llm"
	"github.com/local/picobot/internal/skills"
)

type writeSkillFileTool struct {
	skillsDir string
	registry  *skills.Registry
}

func (t writeSkillFileTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Type: "function", Function: llm.FunctionDefinition{
		Name:        "write_skill_file",
		Description: "Write a file into a skill's directory, creating the skill if it doesn't exist yet. Call reload_skills afterward to pick up changes.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"skill_name":    map[string]any{"type": "string", "description": "1-64 chars of [a-z0-9-]"},
				"relative_path": map[string]any{"type": "string", "description": "Path within the skill directory, e.g. 'SKILL.md'"},
				"content":       map[string]any{"type": "string", "description": "File content"},
			},
			"required": []string{"skill_name", "relative_path", "content"},
		},
	}}
}

func (t writeSkillFileTool) Execute(_ context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		SkillName    string `json:"skill_name"`
		RelativePath string `json:"relative_path"`
		Content      string `json:"content"`
	}
	_ = json.Unmarshal(raw, &args)

	full, err := skills.WriteSkillFile(t.skillsDir, args.SkillName, args.RelativePath, args.Content)
	if err != nil {
		return fmt.Sprintf("Failed to write skill file: %v", err), nil
	}
	return fmt.Sprintf("Wrote skill file: %s", full), nil
}

type reloadSkillsTool struct{ registry *skills.Registry }

func (t reloadSkillsTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Type: "function", Function: llm.FunctionDefinition{
		Name:        "reload_skills",
		Description: "Re-scan the skills directory and replace the active skill registry. Call this after writing or editing skill files.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}}
}

func (t reloadSkillsTool) Execute(_ context.Context, _ json.RawMessage) (string, error) {
	if err := t.registry.Reload(); err != nil {
		return fmt.Sprintf("Failed to reload skills: %v", err), nil
	}
	return fmt.Sprintf("Reloaded %d skill(s)", len(t.registry.All())), nil
}
