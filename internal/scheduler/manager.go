package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/local/picobot/internal/chat"
	"github.com/local/picobot/internal/memory"
)

// FireRequest is what a fire closure sends across the bridge instead of
// invoking the agent directly: it carries
// everything the background consumer needs to run the exact same
// process_message path a user turn would take, without the closure itself
// holding a strong reference to the agent.
type FireRequest struct {
	Incoming    chat.Inbound
	Out         chan<- chat.Outbound
	TaskID      string
	IsRecurring bool
}

// ProcessFunc is the agent's process_message entrypoint, supplied by the
// caller so this package never imports the agent package (would cycle:
// agent holds the Manager to register scheduling tools).
type ProcessFunc func(ctx context.Context, incoming chat.Inbound) (string, error)

// Manager wires the in-memory Engine to the durable ScheduledTaskStore and
// runs the fire-bridge consumer.
type Manager struct {
	engine  *Engine
	tasks   *memory.ScheduledTaskStore
	fireCh  chan FireRequest
	process ProcessFunc
}

const fireChannelBuffer = 256 // calls this channel unbounded; a large buffer approximates that without an actual unbounded queue

func NewManager(engine *Engine, tasks *memory.ScheduledTaskStore, process ProcessFunc) *Manager {
	return &Manager{
		engine:  engine,
		tasks:   tasks,
		fireCh:  make(chan FireRequest, fireChannelBuffer),
		process: process,
	}
}

// RunFireConsumer drains the fire-bridge channel, invoking process_message
// for every request, until ctx is cancelled. Call it in its own goroutine.
func (m *Manager) RunFireConsumer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-m.fireCh:
			m.handleFire(ctx, req)
		}
	}
}

// handleFire implements the one-shot-completed-before-firing ordering rule:
// for a one-shot task, status is marked completed before the agent call, and
// overwritten to failed if that call errors. Recurring tasks stay active
// across fires regardless of outcome.
func (m *Manager) handleFire(ctx context.Context, req FireRequest) {
	if !req.IsRecurring {
		if err := m.tasks.SetStatus(req.TaskID, "completed"); err != nil {
			log.Printf("scheduler: failed to mark task %s completed before firing: %v", req.TaskID, err)
		}
	}

	text, err := m.process(ctx, req.Incoming)
	if err != nil {
		log.Printf("scheduler: task %s fire failed: %v", req.TaskID, err)
		if !req.IsRecurring {
			if setErr := m.tasks.SetStatus(req.TaskID, "failed"); setErr != nil {
				log.Printf("scheduler: failed to mark task %s failed: %v", req.TaskID, setErr)
			}
		}
		return
	}

	if req.Out != nil {
		select {
		case req.Out <- chat.Outbound{Channel: req.Incoming.Channel, ChatID: req.Incoming.ChatID, Content: text}:
		default:
			log.Printf("scheduler: outbound channel full, dropping scheduled reply for task %s", req.TaskID)
		}
	}
}

// ScheduleTask persists a new task row, registers it with the engine, and
// records the returned handle. On engine registration failure the task is
// marked failed, matching the state machine's
// "create -> engine.add fails -> failed" transition.
func (m *Manager) ScheduleTask(incoming chat.Inbound, out chan<- chat.Outbound, triggerType, triggerValue, prompt, description string) (memory.ScheduledTaskRow, error) {
	row := memory.ScheduledTaskRow{
		ID:          uuid.NewString(),
		UserID:      incoming.SenderID,
		ChatID:      incoming.ChatID,
		Platform:    incoming.Channel,
		TriggerType: triggerType,
		TriggerValue: triggerValue,
		Prompt:      prompt,
		Description: description,
		Status:      "active",
	}

	if err := m.tasks.Create(row); err != nil {
		return row, fmt.Errorf("failed to persist scheduled task: %w", err)
	}

	jobID, err := m.register(incoming, out, row.ID, triggerType, triggerValue, prompt)
	if err != nil {
		if setErr := m.tasks.SetStatus(row.ID, "failed"); setErr != nil {
			log.Printf("scheduler: failed to mark task %s failed: %v", row.ID, setErr)
		}
		row.Status = "failed"
		return row, err
	}

	if err := m.tasks.UpdateSchedulerJobID(row.ID, jobID); err != nil {
		log.Printf("scheduler: failed to persist scheduler_job_id for task %s: %v", row.ID, err)
	}
	row.SchedulerJobID = jobID
	return row, nil
}

func (m *Manager) register(incoming chat.Inbound, out chan<- chat.Outbound, taskID, triggerType, triggerValue, prompt string) (string, error) {
	fireIncoming := incoming
	fireIncoming.Content = prompt

	switch triggerType {
	case "recurring":
		return m.engine.AddCronJob(triggerValue, taskID, func(context.Context) {
			m.fireCh <- FireRequest{Incoming: fireIncoming, Out: out, TaskID: taskID, IsRecurring: true}
		})
	case "one_shot":
		at, err := time.Parse(time.RFC3339, triggerValue)
		if err != nil {
			return "", fmt.Errorf("invalid one-shot trigger_value %q: %w", triggerValue, err)
		}
		delay := time.Until(at)
		if delay < 0 {
			delay = 0
		}
		return m.engine.AddOneShotJob(delay, taskID, func(context.Context) {
			m.fireCh <- FireRequest{Incoming: fireIncoming, Out: out, TaskID: taskID, IsRecurring: false}
		})
	default:
		return "", fmt.Errorf("unknown trigger_type %q", triggerType)
	}
}

// Cancel marks a task cancelled and removes its engine handle if it still
// has one.
func (m *Manager) Cancel(taskID string) error {
	row, err := m.tasks.GetByID(taskID)
	if err != nil {
		return fmt.Errorf("failed to look up task %s: %w", taskID, err)
	}
	if row == nil {
		return fmt.Errorf("no such scheduled task: %s", taskID)
	}
	if row.SchedulerJobID != "" {
		m.engine.RemoveJob(row.SchedulerJobID)
	}
	return m.tasks.SetStatus(taskID, "cancelled")
}

// Restore re-registers every row with status active after the engine has
// started, so recurring and still-pending one-shot tasks survive a
// restart. out is the transport handle captured for all restored fires
// (the process that started them is gone, so there is no original sender
// to route replies to beyond the task's own chat_id).
func (m *Manager) Restore(ctx context.Context, out chan<- chat.Outbound) error {
	rows, err := m.tasks.ListAllActive()
	if err != nil {
		return fmt.Errorf("failed to list active scheduled tasks: %w", err)
	}

	for _, row := range rows {
		incoming := chat.Inbound{Channel: row.Platform, SenderID: row.UserID, ChatID: row.ChatID, Content: row.Prompt}

		switch row.TriggerType {
		case "one_shot":
			at, parseErr := time.Parse(time.RFC3339, row.TriggerValue)
			if parseErr != nil || time.Until(at) < 0 {
				if setErr := m.tasks.SetStatus(row.ID, "completed"); setErr != nil {
					log.Printf("scheduler: failed to mark stale one-shot task %s completed: %v", row.ID, setErr)
				}
				continue
			}
			delay := time.Until(at)
			jobID, addErr := m.engine.AddOneShotJob(delay, row.ID, func(context.Context) {
				m.fireCh <- FireRequest{Incoming: incoming, Out: out, TaskID: row.ID, IsRecurring: false}
			})
			if addErr != nil {
				log.Printf("scheduler: failed to restore one-shot task %s: %v", row.ID, addErr)
				continue
			}
			if setErr := m.tasks.UpdateSchedulerJobID(row.ID, jobID); setErr != nil {
				log.Printf("scheduler: failed to persist restored scheduler_job_id for task %s: %v", row.ID, setErr)
			}

		case "recurring":
			jobID, addErr := m.engine.AddCronJob(row.TriggerValue, row.ID, func(context.Context) {
				m.fireCh <- FireRequest{Incoming: incoming, Out: out, TaskID: row.ID, IsRecurring: true}
			})
			if addErr != nil {
				log.Printf("scheduler: failed to restore recurring task %s: %v", row.ID, addErr)
				continue
			}
			if setErr := m.tasks.UpdateSchedulerJobID(row.ID, jobID); setErr != nil {
				log.Printf("scheduler: failed to persist restored scheduler_job_id for task %s: %v", row.ID, setErr)
			}
		}
	}
	return nil
}

// RegisterHeartbeat installs a built-in hourly heartbeat job, grounded on
// original_source/src/scheduler/tasks.rs::register_builtin_tasks. It is
// purely informational and carries no task-store row of its own.
func (m *Manager) RegisterHeartbeat(fire func(context.Context)) (string, error) {
	return m.engine.AddCronJob("0 0 * * * *", "heartbeat", fire)
}
