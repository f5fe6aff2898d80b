// Package tools implements the C5 (built-in sandboxed) and C6 (external
// subprocess) tool planes.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/local/picobot/internal/llm"
)

// Tool is one callable entry in the catalog.
type Tool interface {
	Definition() llm.ToolDefinition
	Execute(ctx context.Context, arguments json.RawMessage) (string, error)
}

// Registry holds every tool available to the agent loop for one turn.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool under name.
func (r *Registry) Register(name string, t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = t
}

// Unregister removes a tool, typically on subprocess teardown.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Definitions returns every registered tool's definition, sorted by name for
// deterministic prompt construction.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute dispatches a tool call by name. Arguments that fail to parse as
// JSON are the tool's own responsibility; this method simply
// forwards whatever bytes it was given.
func (r *Registry) Execute(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	return t.Execute(ctx, arguments)
}
