package agent

import (
	"testing"

	"github.com/local/picobot/internal/llm"
)

func TestTrimForContextKeepsSystemMessage(t *testing.T) {
	messages := []llm.Message{{Role: "system", Content: strp("base")}}
	for i := 0; i < maxContextMessages*2; i++ {
		messages = append(messages, llm.Message{Role: "user", Content: strp("msg")})
	}

	trimmed := trimForContext(messages)
	if trimmed[0].Role != "system" {
		t.Fatalf("expected leading system message, got role %q", trimmed[0].Role)
	}
	if len(trimmed) > maxContextMessages {
		t.Fatalf("expected at most %d messages, got %d", maxContextMessages, len(trimmed))
	}
}

// TestTrimForContextKeepsToolCallGroupIntact builds a history where the
// naive last-N cut would land inside an assistant(tool_calls)/tool group,
// and checks the cut is pushed back to the group's start instead.
func TestTrimForContextKeepsToolCallGroupIntact(t *testing.T) {
	messages := []llm.Message{{Role: "system", Content: strp("base")}}

	assistantWithCall := llm.Message{Role: "assistant", Content: strp(""), ToolCalls: []llm.ToolCall{{ID: "call_1", Function: llm.FunctionCall{Name: "recall"}}}}
	toolResult := llm.Message{Role: "tool", Content: strp("result"), ToolCallID: "call_1"}
	finalAssistant := llm.Message{Role: "assistant", Content: strp("done")}

	// Follow the tool group with just enough turns that the tail cut would,
	// without group-awareness, start on toolResult and drop assistantWithCall.
	messages = append(messages, assistantWithCall, toolResult)
	for i := 0; i < maxContextMessages-3; i++ {
		messages = append(messages, llm.Message{Role: "user", Content: strp("pad")})
	}
	messages = append(messages, finalAssistant)

	trimmed := trimForContext(messages)

	for i, m := range trimmed {
		if m.Role == "system" {
			continue
		}
		if m.Role == "tool" {
			t.Fatalf("tool message at trimmed[%d] must not be the first non-system message with no preceding assistant(tool_calls)", i)
		}
		break
	}

	foundCall := false
	foundResult := false
	for _, m := range trimmed {
		if m.Role == "assistant" && len(m.ToolCalls) > 0 {
			foundCall = true
		}
		if m.Role == "tool" && m.ToolCallID == "call_1" {
			foundResult = true
		}
	}
	if !foundCall || !foundResult {
		t.Fatalf("expected the tool-call group to survive trimming intact, got call=%v result=%v", foundCall, foundResult)
	}
}
