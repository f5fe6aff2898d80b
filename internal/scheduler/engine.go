// Package scheduler implements an in-memory cron/one-shot job engine plus
// the durable ScheduledTaskStore-backed lifecycle on top of it.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// FireFunc is invoked when a job fires. It must be safe to call from the
// cron engine's own goroutine and must not retain a strong reference back
// to the agent — callers achieve this by capturing only send-safe values
// (channel endpoints, ids, clones).
type FireFunc func(ctx context.Context)

// sixFieldParser accepts the 6-field cron syntax:
// seconds minutes hours day-of-month month day-of-week.
var sixFieldParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ValidateCron reports whether expr is a valid 6-field cron expression.
// Any expression whose whitespace-split does not yield exactly 6 tokens is
// rejected; a 6-token expression must also parse as cron syntax.
func ValidateCron(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != 6 {
		return fmt.Errorf("cron expression must have exactly 6 fields, got %d: %q", len(fields), expr)
	}
	if _, err := sixFieldParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Engine wraps a robfig/cron runner with one-shot job support and UUID
// handles.
type Engine struct {
	mu        sync.Mutex
	cron      *cron.Cron
	entries   map[string]cron.EntryID // uuid -> cron entry, for cron jobs
	oneShots  map[string]*time.Timer  // uuid -> pending timer, for one-shot jobs
}

func NewEngine() *Engine {
	return &Engine{
		cron:     cron.New(cron.WithParser(sixFieldParser)),
		entries:  make(map[string]cron.EntryID),
		oneShots: make(map[string]*time.Timer),
	}
}

func (e *Engine) Start() {
	e.cron.Start()
}

func (e *Engine) Stop() {
	e.cron.Stop()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.oneShots {
		t.Stop()
	}
}

// AddCronJob registers a recurring job under a 6-field cron expression,
// returning a UUID handle. label is informational only (used in logs).
func (e *Engine) AddCronJob(expr, label string, fire FireFunc) (string, error) {
	if err := ValidateCron(expr); err != nil {
		return "", err
	}

	id := uuid.NewString()
	entryID, err := e.cron.AddFunc(expr, func() {
		fire(context.Background())
	})
	if err != nil {
		return "", fmt.Errorf("failed to schedule cron job %q (%s): %w", label, expr, err)
	}

	e.mu.Lock()
	e.entries[id] = entryID
	e.mu.Unlock()
	return id, nil
}

// AddOneShotJob registers a job that fires exactly once after delay.
func (e *Engine) AddOneShotJob(delay time.Duration, label string, fire FireFunc) (string, error) {
	if delay < 0 {
		delay = 0
	}
	id := uuid.NewString()

	timer := time.AfterFunc(delay, func() {
		e.mu.Lock()
		delete(e.oneShots, id)
		e.mu.Unlock()
		fire(context.Background())
	})

	e.mu.Lock()
	e.oneShots[id] = timer
	e.mu.Unlock()
	return id, nil
}

// RemoveJob cancels a cron or one-shot job by its UUID handle. Removing an
// already-fired one-shot or an unknown id is a no-op.
func (e *Engine) RemoveJob(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entryID, ok := e.entries[id]; ok {
		e.cron.Remove(entryID)
		delete(e.entries, id)
		return
	}
	if timer, ok := e.oneShots[id]; ok {
		timer.Stop()
		delete(e.oneShots, id)
	}
}
