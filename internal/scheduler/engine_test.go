package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestValidateCronRequiresSixFields(t *testing.T) {
	if err := ValidateCron("0 0 * * *"); err == nil {
		t.Error("expected error for 5-field expression")
	}
	if err := ValidateCron("0 0 0 * * *"); err != nil {
		t.Errorf("expected valid 6-field expression, got %v", err)
	}
	if err := ValidateCron("not a cron"); err == nil {
		t.Error("expected error for garbage expression")
	}
}

func TestAddOneShotJobFiresOnce(t *testing.T) {
	e := NewEngine()
	e.Start()
	defer e.Stop()

	var fires atomic.Int32
	id, err := e.AddOneShotJob(10*time.Millisecond, "test", func(context.Context) {
		fires.Add(1)
	})
	if err != nil {
		t.Fatalf("AddOneShotJob: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty job id")
	}

	time.Sleep(100 * time.Millisecond)
	if got := fires.Load(); got != 1 {
		t.Errorf("fires = %d, want 1", got)
	}
}

func TestRemoveJobCancelsPendingOneShot(t *testing.T) {
	e := NewEngine()
	e.Start()
	defer e.Stop()

	var fires atomic.Int32
	id, err := e.AddOneShotJob(50*time.Millisecond, "test", func(context.Context) {
		fires.Add(1)
	})
	if err != nil {
		t.Fatalf("AddOneShotJob: %v", err)
	}
	e.RemoveJob(id)

	time.Sleep(100 * time.Millisecond)
	if got := fires.Load(); got != 0 {
		t.Errorf("fires = %d, want 0 after removal", got)
	}
}

func TestAddCronJobRejectsInvalidExpression(t *testing.T) {
	e := NewEngine()
	if _, err := e.AddCronJob("bogus", "test", func(context.Context) {}); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}
