// Package postgres is the task queue used when Redis is not configured. It
// shares the tasks table created by the postgres store's schema.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

var _ driven.TaskQueue = (*Queue)(nil)

const taskColumns = `id, type, session_id, payload, status, priority, attempts, max_attempts,
	error, created_at, updated_at, started_at, completed_at, scheduled_for`

// claimQuery takes the oldest runnable task in one statement. A task left in
// processing longer than the visibility timeout belongs to a dead worker
// and is claimed again.
const claimQuery = `
	UPDATE tasks SET status = 'processing', started_at = NOW(), updated_at = NOW(),
		attempts = attempts + 1
	WHERE id = (
		SELECT id FROM tasks
		WHERE (status = 'pending' AND scheduled_for <= NOW())
		   OR (status = 'processing' AND started_at < NOW() - make_interval(secs => $1))
		ORDER BY priority DESC, created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING ` + taskColumns

// nackQuery retries with exponential backoff capped at five minutes, or
// fails the task once its attempts are spent.
const nackQuery = `
	UPDATE tasks SET
		status = CASE WHEN attempts < max_attempts THEN 'pending' ELSE 'failed' END,
		scheduled_for = CASE WHEN attempts < max_attempts
			THEN NOW() + make_interval(secs => LEAST(power(2, attempts), 300))
			ELSE scheduled_for END,
		error = $2, updated_at = NOW()
	WHERE id = $1`

// Queue claims tasks with FOR UPDATE SKIP LOCKED so several workers can
// poll the same table.
type Queue struct {
	db           *sql.DB
	pollInterval time.Duration
	visibility   time.Duration
}

func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db, pollInterval: 500 * time.Millisecond, visibility: 30 * time.Minute}
}

func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO tasks (id, type, session_id, payload, status, priority, attempts,
			max_attempts, error, created_at, updated_at, scheduled_for)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		task.ID, task.Type, task.SessionID, payload, task.Status, task.Priority, task.Attempts,
		task.MaxAttempts, task.Error, task.CreatedAt, task.UpdatedAt, task.ScheduledFor,
	)
	return wrap("enqueue", err)
}

// DequeueWithTimeout polls until a task is claimed or timeout seconds pass.
// It returns nil, nil on timeout.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	deadline := time.Now().Add(time.Duration(timeout) * time.Second)
	for {
		task, err := scanTask(q.db.QueryRowContext(ctx, claimQuery, q.visibility.Seconds()))
		if err == nil {
			return task, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, wrap("claim task", err)
		}

		wait := min(q.pollInterval, time.Until(deadline))
		if wait <= 0 {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (q *Queue) Ack(ctx context.Context, taskID string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'completed', completed_at = NOW(), updated_at = NOW(), error = ''
		WHERE id = $1`, taskID)
	return expectRow("ack", res, err)
}

func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	res, err := q.db.ExecContext(ctx, nackQuery, taskID, reason)
	return expectRow("nack", res, err)
}

func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := scanTask(q.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get task", err)
	}
	return task, nil
}

func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, wrap("queue stats", err)
	}
	defer rows.Close()

	stats := &driven.QueueStats{}
	counters := map[domain.TaskStatus]*int64{
		domain.TaskStatusPending:    &stats.PendingCount,
		domain.TaskStatusProcessing: &stats.ProcessingCount,
		domain.TaskStatusCompleted:  &stats.CompletedCount,
		domain.TaskStatusFailed:     &stats.FailedCount,
	}
	for rows.Next() {
		var status domain.TaskStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, wrap("queue stats", err)
		}
		if c, ok := counters[status]; ok {
			*c = n
		}
	}
	return stats, wrap("queue stats", rows.Err())
}

func (q *Queue) Ping(ctx context.Context) error {
	return wrap("ping", q.db.PingContext(ctx))
}

// Close leaves the pool open; it belongs to postgres.DB.
func (q *Queue) Close() error {
	return nil
}

func scanTask(row *sql.Row) (*domain.Task, error) {
	var (
		task                   domain.Task
		payload                []byte
		startedAt, completedAt sql.Null[time.Time]
		taskError              sql.NullString
	)
	err := row.Scan(&task.ID, &task.Type, &task.SessionID, &payload, &task.Status, &task.Priority,
		&task.Attempts, &task.MaxAttempts, &taskError, &task.CreatedAt, &task.UpdatedAt,
		&startedAt, &completedAt, &task.ScheduledFor)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &task.Payload); err != nil {
			return nil, fmt.Errorf("task %s payload: %w", task.ID, err)
		}
	}
	task.Error = taskError.String
	if startedAt.Valid {
		task.StartedAt = &startedAt.V
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.V
	}
	return &task, nil
}

func expectRow(op string, res sql.Result, err error) error {
	if err != nil {
		return wrap(op, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return wrap(op, err)
	} else if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// wrap reports queue failures as domain.ErrIndexUnavailable. Cancellation
// passes through.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrIndexUnavailable, op, err)
}
