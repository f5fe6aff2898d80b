package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/local/picobot/internal/chat"
	"github.com/local/picobot/internal/memory"
)

func newTestManager(t *testing.T, process ProcessFunc) (*Manager, *memory.Store) {
	t.Helper()
	store, err := memory.OpenInMemory(8, nil)
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	engine := NewEngine()
	engine.Start()
	t.Cleanup(engine.Stop)

	mgr := NewManager(engine, store.ScheduledTaskStore(), process)
	return mgr, store
}

func TestScheduleOneShotTaskFiresAndMarksCompleted(t *testing.T) {
	fired := make(chan string, 1)
	mgr, store := newTestManager(t, func(_ context.Context, incoming chat.Inbound) (string, error) {
		fired <- incoming.Content
		return "done", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.RunFireConsumer(ctx)

	out := make(chan chat.Outbound, 1)
	incoming := chat.Inbound{Channel: "telegram", SenderID: "u1", ChatID: "c1"}
	triggerAt := time.Now().Add(20 * time.Millisecond).Format(time.RFC3339)

	row, err := mgr.ScheduleTask(incoming, out, "one_shot", triggerAt, "remind me", "a reminder")
	if err != nil {
		t.Fatalf("ScheduleTask: %v", err)
	}
	if row.SchedulerJobID == "" {
		t.Fatal("expected non-empty scheduler_job_id")
	}

	select {
	case content := <-fired:
		if content != "remind me" {
			t.Errorf("fired with content %q, want %q", content, "remind me")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fire")
	}

	// give handleFire's post-process status update a moment to land
	time.Sleep(50 * time.Millisecond)

	got, err := store.ScheduledTaskStore().GetByID(row.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != "completed" {
		t.Errorf("status = %q, want completed", got.Status)
	}
}

func TestScheduleOneShotTaskMarksFailedOnProcessError(t *testing.T) {
	mgr, store := newTestManager(t, func(_ context.Context, incoming chat.Inbound) (string, error) {
		return "", errBoom
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.RunFireConsumer(ctx)

	incoming := chat.Inbound{Channel: "telegram", SenderID: "u1", ChatID: "c1"}
	triggerAt := time.Now().Add(20 * time.Millisecond).Format(time.RFC3339)

	row, err := mgr.ScheduleTask(incoming, nil, "one_shot", triggerAt, "remind me", "a reminder")
	if err != nil {
		t.Fatalf("ScheduleTask: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	got, err := store.ScheduledTaskStore().GetByID(row.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != "failed" {
		t.Errorf("status = %q, want failed", got.Status)
	}
}

func TestCancelRemovesEngineHandleAndMarksCancelled(t *testing.T) {
	mgr, store := newTestManager(t, func(context.Context, chat.Inbound) (string, error) {
		return "", nil
	})

	incoming := chat.Inbound{Channel: "telegram", SenderID: "u1", ChatID: "c1"}
	triggerAt := time.Now().Add(time.Hour).Format(time.RFC3339)

	row, err := mgr.ScheduleTask(incoming, nil, "one_shot", triggerAt, "later", "")
	if err != nil {
		t.Fatalf("ScheduleTask: %v", err)
	}

	if err := mgr.Cancel(row.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got, err := store.ScheduledTaskStore().GetByID(row.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != "cancelled" {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
}

func TestScheduleTaskMarksFailedOnInvalidTrigger(t *testing.T) {
	mgr, store := newTestManager(t, func(context.Context, chat.Inbound) (string, error) {
		return "", nil
	})

	incoming := chat.Inbound{Channel: "telegram", SenderID: "u1", ChatID: "c1"}
	row, err := mgr.ScheduleTask(incoming, nil, "one_shot", "not-a-timestamp", "later", "")
	if err == nil {
		t.Fatal("expected error for invalid trigger_value")
	}

	got, getErr := store.ScheduledTaskStore().GetByID(row.ID)
	if getErr != nil {
		t.Fatalf("GetByID: %v", getErr)
	}
	if got.Status != "failed" {
		t.Errorf("status = %q, want failed", got.Status)
	}
}

func TestRestoreSkipsPastOneShotAndMarksCompleted(t *testing.T) {
	mgr, store := newTestManager(t, func(context.Context, chat.Inbound) (string, error) {
		return "", nil
	})

	past := time.Now().Add(-time.Hour).Format(time.RFC3339)
	row := memory.ScheduledTaskRow{
		ID: "stale-task", UserID: "u1", ChatID: "c1", Platform: "telegram",
		TriggerType: "one_shot", TriggerValue: past, Prompt: "stale", Status: "active",
	}
	if err := store.ScheduledTaskStore().Create(row); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := mgr.Restore(context.Background(), nil); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got, err := store.ScheduledTaskStore().GetByID("stale-task")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != "completed" {
		t.Errorf("status = %q, want completed for stale restored one-shot", got.Status)
	}
}

type boomError struct{}

func (boomError) Error() string { return "boom" }

var errBoom = boomError{}
