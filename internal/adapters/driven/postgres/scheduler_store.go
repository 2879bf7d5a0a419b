package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

var _ driven.SchedulerStore = (*SchedulerStore)(nil)

const scheduleColumns = `id, name, type, mode, interval_ns, enabled, next_run, last_run, last_error`

// SchedulerStore keeps the sweep schedules in the scheduled_tasks table so
// every worker sharing the database sees the same next_run.
type SchedulerStore struct {
	db *DB
}

func NewSchedulerStore(db *DB) *SchedulerStore {
	return &SchedulerStore{db: db}
}

func (s *SchedulerStore) GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM scheduled_tasks WHERE id = $1`, id)
	task, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return task, unavailable(err)
}

func (s *SchedulerStore) ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	return s.list(ctx, `SELECT `+scheduleColumns+` FROM scheduled_tasks ORDER BY next_run`)
}

// GetDueScheduledTasks compares against the database clock so workers with
// skewed clocks agree on what is due.
func (s *SchedulerStore) GetDueScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	return s.list(ctx, `SELECT `+scheduleColumns+` FROM scheduled_tasks
		WHERE enabled AND next_run <= NOW() ORDER BY next_run`)
}

func (s *SchedulerStore) SaveScheduledTask(ctx context.Context, task *domain.ScheduledTask) error {
	var lastRun sql.Null[time.Time]
	if task.LastRun != nil {
		lastRun = sql.Null[time.Time]{V: *task.LastRun, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (`+scheduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, type = EXCLUDED.type, mode = EXCLUDED.mode,
			interval_ns = EXCLUDED.interval_ns, enabled = EXCLUDED.enabled,
			next_run = EXCLUDED.next_run, last_run = EXCLUDED.last_run,
			last_error = EXCLUDED.last_error`,
		task.ID, task.Name, string(task.Type), string(task.Mode), task.Interval.Nanoseconds(),
		task.Enabled, task.NextRun, lastRun, task.LastError,
	)
	return unavailable(err)
}

func (s *SchedulerStore) DeleteScheduledTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = $1`, id)
	return touchedOne(res, err)
}

// UpdateLastRun stamps the run and moves next_run one interval past it in
// a single statement.
func (s *SchedulerStore) UpdateLastRun(ctx context.Context, id string, lastError string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET last_run = NOW(),
			next_run = NOW() + make_interval(secs => interval_ns / 1e9),
			last_error = $2
		WHERE id = $1`, id, lastError)
	return touchedOne(res, err)
}

func (s *SchedulerStore) list(ctx context.Context, query string) ([]*domain.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable(err)
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
	return tasks, unavailable(rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*domain.ScheduledTask, error) {
	var (
		task      domain.ScheduledTask
		interval  int64
		lastRun   sql.Null[time.Time]
		lastError sql.NullString
	)
	if err := row.Scan(&task.ID, &task.Name, &task.Type, &task.Mode, &interval,
		&task.Enabled, &task.NextRun, &lastRun, &lastError); err != nil {
		return nil, err
	}
	task.Interval = time.Duration(interval)
	task.LastError = lastError.String
	if lastRun.Valid {
		task.LastRun = &lastRun.V
	}
	return &task, nil
}

// touchedOne maps an exec that matched no row to domain.ErrNotFound
func touchedOne(res sql.Result, err error) error {
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
