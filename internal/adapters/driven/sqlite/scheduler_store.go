package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// schedulerStore implements driven.SchedulerStore.
type schedulerStore struct {
	db *sql.DB
}

var _ driven.SchedulerStore = (*schedulerStore)(nil)

const scheduleColumns = `id, name, type, mode, interval_ns, enabled, last_run, next_run, last_error`

func (s *schedulerStore) GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM scheduled_tasks WHERE id = ?`, id)
	task, err := scanSchedule(row)
	if err != nil {
		return nil, notFound(err, "scheduled task "+id)
	}
	return task, nil
}

func (s *schedulerStore) ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	return s.list(ctx, `SELECT `+scheduleColumns+` FROM scheduled_tasks ORDER BY id`)
}

func (s *schedulerStore) GetDueScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	return s.list(ctx, `SELECT `+scheduleColumns+` FROM scheduled_tasks WHERE enabled = 1 AND next_run <= ? ORDER BY next_run`,
		time.Now().UnixNano())
}

func (s *schedulerStore) list(ctx context.Context, query string, args ...any) ([]*domain.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying scheduled tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.ScheduledTask
	for rows.Next() {
		task, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scheduled tasks: %w", err)
	}
	return tasks, nil
}

func (s *schedulerStore) SaveScheduledTask(ctx context.Context, task *domain.ScheduledTask) error {
	var lastRun sql.NullInt64
	if task.LastRun != nil {
		lastRun = sql.NullInt64{Int64: task.LastRun.UnixNano(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			mode = excluded.mode,
			interval_ns = excluded.interval_ns,
			enabled = excluded.enabled,
			last_run = excluded.last_run,
			next_run = excluded.next_run,
			last_error = excluded.last_error
	`, task.ID, task.Name, string(task.Type), string(task.Mode), int64(task.Interval), task.Enabled,
		lastRun, toUnix(task.NextRun), task.LastError)
	if err != nil {
		return fmt.Errorf("saving scheduled task: %w", err)
	}
	return nil
}

func (s *schedulerStore) DeleteScheduledTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting scheduled task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: scheduled task %s", domain.ErrNotFound, id)
	}
	return nil
}

// UpdateLastRun stamps the run and sets next_run one interval later.
func (s *schedulerStore) UpdateLastRun(ctx context.Context, id string, lastError string) error {
	now := time.Now().UnixNano()
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET last_run = ?1, next_run = ?1 + interval_ns, last_error = ?2
		WHERE id = ?3
	`, now, lastError, id)
	if err != nil {
		return fmt.Errorf("updating scheduled task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: scheduled task %s", domain.ErrNotFound, id)
	}
	return nil
}

func scanSchedule(row scanner) (*domain.ScheduledTask, error) {
	var task domain.ScheduledTask
	var intervalNs, nextRun int64
	var lastRun sql.NullInt64
	err := row.Scan(&task.ID, &task.Name, &task.Type, &task.Mode, &intervalNs, &task.Enabled,
		&lastRun, &nextRun, &task.LastError)
	if err != nil {
		return nil, err
	}
	task.Interval = time.Duration(intervalNs)
	task.NextRun = fromUnix(nextRun)
	if lastRun.Valid {
		t := fromUnix(lastRun.Int64)
		task.LastRun = &t
	}
	return &task, nil
}
