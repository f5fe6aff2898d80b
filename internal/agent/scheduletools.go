package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/local/picobot/internal/chat"
	"github.com/local/picobot/internal/llm"
	"github.com/local/picobot/internal/memory"
	"github.com/local/picobot/internal/scheduler"
)

// turnContextKey is the context.Context key under which the current turn's
// sender and reply channel travel. Concurrent turns for different users
// each carry their own context.Context, so — unlike a field on the shared
// Agent — this never lets one turn observe another's sender or chat.
type turnContextKey struct{}

type turnContext struct {
	incoming chat.Inbound
	out      chan<- chat.Outbound
}

// withTurnContext attaches the current turn's sender/chat and reply channel
// to ctx, for the scheduling tools to read back out via turnContextFrom.
func withTurnContext(ctx context.Context, incoming chat.Inbound, out chan<- chat.Outbound) context.Context {
	return context.WithValue(ctx, turnContextKey{}, turnContext{incoming: incoming, out: out})
}

func turnContextFrom(ctx context.Context) (chat.Inbound, chan<- chat.Outbound) {
	tc, _ := ctx.Value(turnContextKey{}).(turnContext)
	return tc.incoming, tc.out
}

type scheduleTaskTool struct {
	mgr *scheduler.Manager
}

func (t scheduleTaskTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Type: "function", Function: llm.FunctionDefinition{
		Name:        "schedule_task",
		Description: "Schedule a prompt to be run later, either once at a specific time or repeatedly on a cron schedule.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"trigger_type":  map[string]any{"type": "string", "description": "'one_shot' or 'recurring'"},
				"trigger_value": map[string]any{"type": "string", "description": "For one_shot: an RFC3339 timestamp. For recurring: a 6-field cron expression (seconds minutes hours day-of-month month day-of-week)."},
				"prompt":        map[string]any{"type": "string", "description": "The prompt to run through the agent when this task fires"},
				"description":   map[string]any{"type": "string", "description": "Human-readable description of the task"},
			},
			"required": []string{"trigger_type", "trigger_value", "prompt"},
		},
	}}
}

func (t scheduleTaskTool) Execute(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		TriggerType  string `json:"trigger_type"`
		TriggerValue string `json:"trigger_value"`
		Prompt       string `json:"prompt"`
		Description  string `json:"description"`
	}
	_ = json.Unmarshal(raw, &args)

	incoming, out := turnContextFrom(ctx)
	row, err := t.mgr.ScheduleTask(incoming, out, args.TriggerType, args.TriggerValue, args.Prompt, args.Description)
	if err != nil {
		return fmt.Sprintf("Failed to schedule task: %v", err), nil
	}
	return fmt.Sprintf("Scheduled task %s (%s)", row.ID, row.Status), nil
}

type listScheduledTasksTool struct {
	tasks *memory.ScheduledTaskStore
}

func (t listScheduledTasksTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Type: "function", Function: llm.FunctionDefinition{
		Name:        "list_scheduled_tasks",
		Description: "List the current user's active scheduled tasks.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}}
}

func (t listScheduledTasksTool) Execute(ctx context.Context, _ json.RawMessage) (string, error) {
	incoming, _ := turnContextFrom(ctx)
	rows, err := t.tasks.ListActiveForUser(incoming.SenderID)
	if err != nil {
		return fmt.Sprintf("Failed to list scheduled tasks: %v", err), nil
	}
	if len(rows) == 0 {
		return "No active scheduled tasks.", nil
	}

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		desc := r.Description
		if desc == "" {
			desc = r.Prompt
		}
		lines = append(lines, fmt.Sprintf("%s: [%s %s] %s", r.ID, r.TriggerType, r.TriggerValue, desc))
	}
	return strings.Join(lines, "\n"), nil
}

type cancelScheduledTaskTool struct{ mgr *scheduler.Manager }

func (t cancelScheduledTaskTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Type: "function", Function: llm.FunctionDefinition{
		Name:        "cancel_scheduled_task",
		Description: "Cancel a previously scheduled task by id.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": map[string]any{"type": "string", "description": "The scheduled task id"},
			},
			"required": []string{"task_id"},
		},
	}}
}

func (t cancelScheduledTaskTool) Execute(_ context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		TaskID string `json:"task_id"`
	}
	_ = json.Unmarshal(raw, &args)

	if err := t.mgr.Cancel(args.TaskID); err != nil {
		return fmt.Sprintf("Failed to cancel task: %v", err), nil
	}
	return fmt.Sprintf("Cancelled task %s", args.TaskID), nil
}
