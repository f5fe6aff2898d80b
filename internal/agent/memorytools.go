package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/local/picobot/internal/llm"
	"github.com/local/picobot/internal/memory"
)

// rememberTool implements the "remember" tool from
// original_source/src/agent.rs::memory_tool_definitions, including its
// exact "Remembered: ..."/"Failed to remember: ..." result phrasing.
type rememberTool struct{ store *memory.Store }

func (t rememberTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Type: "function", Function: llm.FunctionDefinition{
		Name:        "remember",
		Description: "Store a piece of knowledge for long-term memory. Use this to remember user preferences, facts, or anything useful.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{"type": "string", "description": "Category (e.g., 'user_preference', 'fact', 'project')"},
				"key":      map[string]any{"type": "string", "description": "Short identifier for this knowledge"},
				"value":    map[string]any{"type": "string", "description": "The knowledge to remember"},
			},
			"required": []string{"category", "key", "value"},
		},
	}}
}

func (t rememberTool) Execute(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Category string `json:"category"`
		Key      string `json:"key"`
		Value    string `json:"value"`
	}
	_ = json.Unmarshal(raw, &args)
	if args.Category == "" {
		args.Category = "general"
	}

	if err := t.store.Remember(ctx, args.Category, args.Key, args.Value, ""); err != nil {
		return fmt.Sprintf("Failed to remember: %v", err), nil
	}
	return fmt.Sprintf("Remembered: [%s] %s = %s", args.Category, args.Key, args.Value), nil
}

// recallTool implements "recall".
type recallTool struct{ store *memory.Store }

func (t recallTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Type: "function", Function: llm.FunctionDefinition{
		Name:        "recall",
		Description: "Retrieve a specific piece of remembered knowledge.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{"type": "string", "description": "Category to search in"},
				"key":      map[string]any{"type": "string", "description": "The key to look up"},
			},
			"required": []string{"category", "key"},
		},
	}}
}

func (t recallTool) Execute(_ context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Category string `json:"category"`
		Key      string `json:"key"`
	}
	_ = json.Unmarshal(raw, &args)
	if args.Category == "" {
		args.Category = "general"
	}

	value, found, err := t.store.Recall(args.Category, args.Key)
	if err != nil {
		return fmt.Sprintf("Failed to recall: %v", err), nil
	}
	if !found {
		return fmt.Sprintf("No knowledge found for [%s] %s", args.Category, args.Key), nil
	}
	return value, nil
}

// searchMemoryTool implements "search_memory": hybrid search over both
// messages and knowledge, results concatenated.
type searchMemoryTool struct{ store *memory.Store }

func (t searchMemoryTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Type: "function", Function: llm.FunctionDefinition{
		Name:        "search_memory",
		Description: "Search through past conversations and knowledge using hybrid vector + full-text search. Finds semantically similar content even with different wording.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Search query (natural language)"},
				"limit": map[string]any{"type": "integer", "description": "Max results (default 5)"},
			},
			"required": []string{"query"},
		},
	}}
}

func (t searchMemoryTool) Execute(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	_ = json.Unmarshal(raw, &args)
	if args.Limit <= 0 {
		args.Limit = 5
	}

	var results []string
	if msgs, err := t.store.SearchMessages(ctx, args.Query, args.Limit); err == nil {
		for _, m := range msgs {
			if m.Content != "" {
				results = append(results, fmt.Sprintf("[%s]: %s", m.Role, m.Content))
			}
		}
	}
	if entries, err := t.store.SearchKnowledge(ctx, args.Query, args.Limit); err == nil {
		for _, e := range entries {
			results = append(results, fmt.Sprintf("[knowledge:%s] %s = %s", e.Category, e.Key, e.Value))
		}
	}

	if len(results) == 0 {
		return "No results found.", nil
	}
	return strings.Join(results, "\n\n"), nil
}

// listKnowledgeTool is not present in original_source/src/agent.rs; it's
// built on memory.Store.ListKnowledge to round out the knowledge-tool set.
type listKnowledgeTool struct{ store *memory.Store }

func (t listKnowledgeTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Type: "function", Function: llm.FunctionDefinition{
		Name:        "list_knowledge",
		Description: "List every remembered knowledge entry in a category.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{"type": "string", "description": "Category to list"},
			},
			"required": []string{"category"},
		},
	}}
}

func (t listKnowledgeTool) Execute(_ context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Category string `json:"category"`
	}
	_ = json.Unmarshal(raw, &args)
	if args.Category == "" {
		args.Category = "general"
	}

	entries, err := t.store.ListKnowledge(args.Category)
	if err != nil {
		return fmt.Sprintf("Failed to list knowledge: %v", err), nil
	}
	if len(entries) == 0 {
		return fmt.Sprintf("No knowledge found in category [%s]", args.Category), nil
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s = %s", e.Key, e.Value))
	}
	return strings.Join(lines, "\n"), nil
}

// forgetKnowledgeTool rounds out the knowledge-tool set, built on
// memory.Store.Forget.
type forgetKnowledgeTool struct{ store *memory.Store }

func (t forgetKnowledgeTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Type: "function", Function: llm.FunctionDefinition{
		Name:        "forget_knowledge",
		Description: "Permanently delete a remembered knowledge entry.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{"type": "string", "description": "Category of the entry"},
				"key":      map[string]any{"type": "string", "description": "Key of the entry"},
			},
			"required": []string{"category", "key"},
		},
	}}
}

func (t forgetKnowledgeTool) Execute(_ context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Category string `json:"category"`
		Key      string `json:"key"`
	}
	_ = json.Unmarshal(raw, &args)
	if args.Category == "" {
		args.Category = "general"
	}

	removed, err := t.store.Forget(args.Category, args.Key)
	if err != nil {
		return fmt.Sprintf("Failed to forget: %v", err), nil
	}
	if !removed {
		return fmt.Sprintf("No knowledge found for [%s] %s", args.Category, args.Key), nil
	}
	return fmt.Sprintf("Forgot: [%s] %s", args.Category, args.Key), nil
}
