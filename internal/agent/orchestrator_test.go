package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/local/picobot/internal/chat"
	"github.com/local/picobot/internal/config"
	"github.com/local/picobot/internal/llm"
	"github.com/local/picobot/internal/memory"
	"github.com/local/picobot/internal/scheduler"
	"github.com/local/picobot/internal/skills"
	"github.com/local/picobot/internal/tools"
)

// scriptedLLMServer replays a fixed sequence of assistant messages, one per
// call, regardless of request content — enough to drive the agentic loop
// through a tool call and then a final response.
func scriptedLLMServer(t *testing.T, responses []llm.Message) *httptest.Server {
	t.Helper()
	call := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if call >= len(responses) {
			t.Fatalf("unexpected extra LLM call %d", call)
		}
		resp := responses[call]
		call++

		body, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"message": resp}},
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
}

func newTestAgent(t *testing.T, responses []llm.Message) *Agent {
	t.Helper()
	srv := scriptedLLMServer(t, responses)
	t.Cleanup(srv.Close)

	store, err := memory.OpenInMemory(8, nil)
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		LLM: config.LLMConfig{SystemPrompt: "You are a test assistant.", Model: "test-model", MaxTokens: 100},
	}

	llmClient := llm.NewClient(srv.URL, "test-key")
	reg := tools.NewRegistry()
	skillReg := skills.NewRegistry(t.TempDir())
	if err := skillReg.Reload(); err != nil {
		t.Fatalf("skills Reload: %v", err)
	}

	engine := scheduler.NewEngine()
	engine.Start()
	t.Cleanup(engine.Stop)
	mgr := scheduler.NewManager(engine, store.ScheduledTaskStore(), func(ctx context.Context, incoming chat.Inbound) (string, error) {
		return "", nil
	})

	return New(cfg, llmClient, store, reg, skillReg, mgr)
}

func strp(s string) *string { return &s }

func TestProcessReturnsFinalContentWithoutToolCalls(t *testing.T) {
	a := newTestAgent(t, []llm.Message{
		{Role: "assistant", Content: strp("Hello there!")},
	})

	got, err := a.Process(context.Background(), chat.Inbound{Channel: "test", SenderID: "u1", ChatID: "c1", Content: "hi"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != "Hello there!" {
		t.Errorf("Process = %q, want %q", got, "Hello there!")
	}
}

func TestProcessExecutesToolCallThenReturnsFinalContent(t *testing.T) {
	toolCallMsg := llm.Message{
		Role:    "assistant",
		Content: strp(""),
		ToolCalls: []llm.ToolCall{
			{ID: "call1", Type: "function", Function: llm.FunctionCall{
				Name:      "remember",
				Arguments: `{"category":"fact","key":"favorite_color","value":"blue"}`,
			}},
		},
	}
	a := newTestAgent(t, []llm.Message{
		toolCallMsg,
		{Role: "assistant", Content: strp("Got it, I'll remember that.")},
	})

	got, err := a.Process(context.Background(), chat.Inbound{Channel: "test", SenderID: "u1", ChatID: "c1", Content: "remember my favorite color is blue"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != "Got it, I'll remember that." {
		t.Errorf("Process = %q", got)
	}

	value, found, err := a.store.Recall("fact", "favorite_color")
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if !found || value != "blue" {
		t.Errorf("Recall = (%q, %v), want (blue, true)", value, found)
	}
}

func TestProcessReturnsFallbackOnIterationBudgetExhaustion(t *testing.T) {
	srv := scriptedLLMServer(t, nil)
	defer srv.Close()

	store, err := memory.OpenInMemory(8, nil)
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer store.Close()

	cfg := &config.Config{
		LLM:   config.LLMConfig{SystemPrompt: "sys", Model: "test-model", MaxTokens: 100},
		Agent: config.AgentConfig{MaxIterations: 2},
	}

	// Always-tool-call server: the loop never reaches a final response, so
	// the budget must be exhausted and the fixed fallback returned.
	toolServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := llm.Message{
			Role:    "assistant",
			Content: strp(""),
			ToolCalls: []llm.ToolCall{
				{ID: "callX", Type: "function", Function: llm.FunctionCall{Name: "recall", Arguments: `{"category":"x","key":"y"}`}},
			},
		}
		body, _ := json.Marshal(map[string]any{"choices": []map[string]any{{"message": resp}}})
		w.Write(body)
	}))
	defer toolServer.Close()

	llmClient := llm.NewClient(toolServer.URL, "test-key")
	reg := tools.NewRegistry()
	skillReg := skills.NewRegistry(t.TempDir())
	_ = skillReg.Reload()

	engine := scheduler.NewEngine()
	engine.Start()
	defer engine.Stop()
	mgr := scheduler.NewManager(engine, store.ScheduledTaskStore(), func(ctx context.Context, incoming chat.Inbound) (string, error) {
		return "", nil
	})

	a := New(cfg, llmClient, store, reg, skillReg, mgr)

	got, err := a.Process(context.Background(), chat.Inbound{Channel: "test", SenderID: "u1", ChatID: "c1", Content: "loop forever"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != maxIterationsFallback {
		t.Errorf("Process = %q, want fallback message", got)
	}
}
