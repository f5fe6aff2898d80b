// Package agent implements the agentic loop: wiring together the LLM
// client, memory store, tool plane, scheduler and skill registry into one
// process_message operation.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/local/picobot/internal/chat"
	"github.com/local/picobot/internal/config"
	"github.com/local/picobot/internal/llm"
	"github.com/local/picobot/internal/memory"
	"github.com/local/picobot/internal/scheduler"
	"github.com/local/picobot/internal/skills"
	"github.com/local/picobot/internal/tools"
)

// maxIterationsFallback is returned verbatim when the loop's iteration
// budget is exhausted; it is never persisted.
const maxIterationsFallback = "I've reached the maximum number of tool call iterations. Please try rephrasing your request."

// Agent wires the LLM client, memory store, tool registry, skill registry
// and scheduler into the process_message operation.
type Agent struct {
	cfg       *config.Config
	llmClient *llm.Client
	store     *memory.Store
	tools     *tools.Registry
	skills    *skills.Registry
}

// New builds an Agent and registers every tool in its catalog: memory,
// scheduling, and skill-authoring tools alongside whatever
// built-in/external tools the caller has already registered into reg
// (NewBuiltinTools, RegisterExternalTools — C5/C6, done by the caller before
// constructing the Agent).
func New(cfg *config.Config, llmClient *llm.Client, store *memory.Store, reg *tools.Registry, skillRegistry *skills.Registry, schedMgr *scheduler.Manager) *Agent {
	reg.Register("remember", rememberTool{store: store})
	reg.Register("recall", recallTool{store: store})
	reg.Register("search_memory", searchMemoryTool{store: store})
	reg.Register("list_knowledge", listKnowledgeTool{store: store})
	reg.Register("forget_knowledge", forgetKnowledgeTool{store: store})

	reg.Register("schedule_task", scheduleTaskTool{mgr: schedMgr})
	reg.Register("list_scheduled_tasks", listScheduledTasksTool{tasks: store.ScheduledTaskStore()})
	reg.Register("cancel_scheduled_task", cancelScheduledTaskTool{mgr: schedMgr})

	reg.Register("write_skill_file", writeSkillFileTool{skillsDir: cfg.Skills.Directory, registry: skillRegistry})
	reg.Register("reload_skills", reloadSkillsTool{registry: skillRegistry})

	return &Agent{cfg: cfg, llmClient: llmClient, store: store, tools: reg, skills: skillRegistry}
}

// Process implements process_message(incoming) -> text. It has the
// scheduler.ProcessFunc signature; cmd/picobot instead hands NewManager a
// closure over ProcessWithReplyChannel.
func (a *Agent) Process(ctx context.Context, incoming chat.Inbound) (string, error) {
	return a.processMessage(withTurnContext(ctx, incoming, nil), incoming)
}

// ProcessWithReplyChannel is identical to Process but additionally makes out
// available to the schedule_task tool for the duration of the turn, so a
// task scheduled mid-conversation can reply on the same transport once it
// fires. Transport adapters call this instead of Process. The sender/chat
// and reply channel travel on ctx (see turnContextKey), so concurrent calls
// for different users never share mutable state.
func (a *Agent) ProcessWithReplyChannel(ctx context.Context, incoming chat.Inbound, out chan<- chat.Outbound) (string, error) {
	return a.processMessage(withTurnContext(ctx, incoming, out), incoming)
}

func (a *Agent) processMessage(ctx context.Context, incoming chat.Inbound) (string, error) {
	conversationID, err := a.store.GetOrCreateConversation(incoming.Channel, incoming.SenderID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve conversation: %w", err)
	}

	loaded, err := a.store.LoadMessages(conversationID)
	if err != nil {
		return "", fmt.Errorf("failed to load conversation history: %w", err)
	}

	systemPrompt := buildSystemPrompt(a.cfg.LLM.SystemPrompt, a.skills, a.cfg.UserLocation(), time.Now())

	var messages []llm.Message
	systemFound := false
	for _, m := range loaded {
		if m.Role == "system" && !systemFound {
			// Overwrite the in-memory copy without persisting, so freshly
			// reloaded skills take effect this turn without rewriting
			// conversation history.
			messages = append(messages, llm.Message{Role: "system", Content: strPtr(systemPrompt)})
			systemFound = true
			continue
		}
		messages = append(messages, toLLMMessage(m))
	}
	if len(loaded) == 0 {
		if _, err := a.store.SaveMessage(conversationID, "system", systemPrompt, "", ""); err != nil {
			return "", fmt.Errorf("failed to persist system prompt: %w", err)
		}
		messages = append(messages, llm.Message{Role: "system", Content: strPtr(systemPrompt)})
	}

	if _, err := a.store.SaveMessage(conversationID, "user", incoming.Content, "", ""); err != nil {
		return "", fmt.Errorf("failed to persist user message: %w", err)
	}
	messages = append(messages, llm.Message{Role: "user", Content: strPtr(incoming.Content)})

	toolDefs := a.tools.Definitions()
	maxIterations := a.cfg.MaxIterations()

	for iteration := 0; iteration < maxIterations; iteration++ {
		resp, err := a.llmClient.Chat(ctx, trimForContext(messages), toolDefs, a.cfg.LLM.Model, a.cfg.LLM.MaxTokens)
		if err != nil {
			return "", fmt.Errorf("LLM call failed: %w", err)
		}

		if resp.HasToolCalls() {
			toolCallsJSON, _ := json.Marshal(resp.ToolCalls)
			content := ""
			if resp.Content != nil {
				content = *resp.Content
			}
			if _, err := a.store.SaveMessage(conversationID, "assistant", content, string(toolCallsJSON), ""); err != nil {
				return "", fmt.Errorf("failed to persist assistant message: %w", err)
			}
			messages = append(messages, resp)

			for _, tc := range resp.ToolCalls {
				var arguments json.RawMessage
				if json.Valid([]byte(tc.Function.Arguments)) {
					arguments = json.RawMessage(tc.Function.Arguments)
				} else {
					arguments = json.RawMessage("{}")
				}

				result, err := a.tools.Execute(ctx, tc.Function.Name, arguments)
				if err != nil {
					result = fmt.Sprintf("Tool error: %v", err)
				}

				if _, err := a.store.SaveMessage(conversationID, "tool", result, "", tc.ID); err != nil {
					return "", fmt.Errorf("failed to persist tool result: %w", err)
				}
				messages = append(messages, llm.Message{Role: "tool", Content: strPtr(result), ToolCallID: tc.ID})
			}
			continue
		}

		content := ""
		if resp.Content != nil {
			content = *resp.Content
		}
		if _, err := a.store.SaveMessage(conversationID, "assistant", content, "", ""); err != nil {
			return "", fmt.Errorf("failed to persist assistant message: %w", err)
		}
		return content, nil
	}

	log.Printf("agent: conversation %d exhausted iteration budget (%d)", conversationID, maxIterations)
	return maxIterationsFallback, nil
}

// ClearConversation deletes a user's conversation history.
func (a *Agent) ClearConversation(platform, userID string) error {
	return a.store.ClearConversation(platform, userID)
}

func toLLMMessage(m memory.Message) llm.Message {
	out := llm.Message{Role: m.Role, Content: strPtr(m.Content), ToolCallID: m.ToolCallID}
	if m.ToolCalls != "" {
		_ = json.Unmarshal([]byte(m.ToolCalls), &out.ToolCalls)
	}
	return out
}

func strPtr(s string) *string { return &s }
