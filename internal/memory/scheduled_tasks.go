package memory

import (
	"fmt"
)

// ScheduledTaskRow is one row of the scheduled_tasks table.
type ScheduledTaskRow struct {
	ID             string
	SchedulerJobID string
	UserID         string
	ChatID         string
	Platform       string
	TriggerType    string // one_shot | recurring
	TriggerValue   string
	Prompt         string
	Description    string
	Status         string // active | completed | failed | cancelled
	CreatedAt      string
	NextRunAt      string
}

// ScheduledTaskStore is a thin façade over the memory Store's shared
// connection — the scheduler and agent orchestrator share this handle
// rather than each opening their own, ported from
// original_source/src/scheduler/reminders.rs.
type ScheduledTaskStore struct {
	store *Store
}

// ScheduledTaskStore returns a façade sharing this Store's connection.
func (s *Store) ScheduledTaskStore() *ScheduledTaskStore {
	return &ScheduledTaskStore{store: s}
}

func (t *ScheduledTaskStore) Create(task ScheduledTaskRow) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	_, err := t.store.db.Exec(`
		INSERT INTO scheduled_tasks
			(id, scheduler_job_id, user_id, chat_id, platform, trigger_type,
			 trigger_value, prompt, description, status, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, nullIfEmpty(task.SchedulerJobID), task.UserID, task.ChatID, task.Platform,
		task.TriggerType, task.TriggerValue, task.Prompt, task.Description, task.Status,
		nullIfEmpty(task.NextRunAt))
	if err != nil {
		return fmt.Errorf("failed to insert scheduled task: %w", err)
	}
	return nil
}

func (t *ScheduledTaskStore) ListActiveForUser(userID string) ([]ScheduledTaskRow, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.queryTasks(`WHERE user_id = ? AND status = 'active' ORDER BY created_at ASC`, userID)
}

func (t *ScheduledTaskStore) ListAllActive() ([]ScheduledTaskRow, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.queryTasks(`WHERE status = 'active' ORDER BY created_at ASC`)
}

func (t *ScheduledTaskStore) SetStatus(id, status string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	_, err := t.store.db.Exec(`UPDATE scheduled_tasks SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return nil
}

func (t *ScheduledTaskStore) UpdateSchedulerJobID(id, jobID string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	_, err := t.store.db.Exec(`UPDATE scheduled_tasks SET scheduler_job_id = ? WHERE id = ?`, jobID, id)
	if err != nil {
		return fmt.Errorf("failed to update scheduler_job_id: %w", err)
	}
	return nil
}

func (t *ScheduledTaskStore) UpdateNextRunAt(id, nextRunAt string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	_, err := t.store.db.Exec(`UPDATE scheduled_tasks SET next_run_at = ? WHERE id = ?`, nextRunAt, id)
	if err != nil {
		return fmt.Errorf("failed to update next_run_at: %w", err)
	}
	return nil
}

func (t *ScheduledTaskStore) GetByID(id string) (*ScheduledTaskRow, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	rows, err := t.queryTasksLocked(`WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// queryTasks acquires nothing itself — callers hold the lock already; kept
// as a thin wrapper for readability at call sites above.
func (t *ScheduledTaskStore) queryTasks(whereClause string, args ...any) ([]ScheduledTaskRow, error) {
	return t.queryTasksLocked(whereClause, args...)
}

func (t *ScheduledTaskStore) queryTasksLocked(whereClause string, args ...any) ([]ScheduledTaskRow, error) {
	query := `
		SELECT id, coalesce(scheduler_job_id,''), user_id, chat_id, platform, trigger_type,
			trigger_value, prompt, description, status, created_at, coalesce(next_run_at,'')
		FROM scheduled_tasks ` + whereClause
	rows, err := t.store.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled tasks: %w", err)
	}
	defer rows.Close()

	var out []ScheduledTaskRow
	for rows.Next() {
		var r ScheduledTaskRow
		if err := rows.Scan(&r.ID, &r.SchedulerJobID, &r.UserID, &r.ChatID, &r.Platform, &r.TriggerType,
			&r.TriggerValue, &r.Prompt, &r.Description, &r.Status, &r.CreatedAt, &r.NextRunAt); err != nil {
			return nil, fmt.Errorf("failed to scan scheduled task row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
