package domain

import (
	"time"

	"github.com/google/uuid"
)

// GenerateID returns a random UUID string.
func GenerateID() string {
	return uuid.NewString()
}

// TaskType names the work a queued task performs.
type TaskType string

const (
	// TaskTypeIndexSession reindexes one session
	TaskTypeIndexSession TaskType = "index_session"
	// TaskTypeIndexAll reindexes every session directory under the data dir
	TaskTypeIndexAll TaskType = "index_all"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

const (
	defaultMaxAttempts = 3
	maxRetryBackoff    = 5 * time.Minute
)

// Task is a reindex request handed from the API or the scheduler to a
// worker. Payload carries the index mode under "mode".
type Task struct {
	ID        string            `json:"id"`
	Type      TaskType          `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Payload   map[string]string `json:"payload"`
	Status    TaskStatus        `json:"status"`

	// Priority orders pending tasks, higher first
	Priority    int    `json:"priority"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	Error       string `json:"error,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ScheduledFor time.Time  `json:"scheduled_for"`
}

func NewTask(taskType TaskType, sessionID string, payload map[string]string) *Task {
	now := time.Now()
	return &Task{
		ID:           GenerateID(),
		Type:         taskType,
		SessionID:    sessionID,
		Payload:      payload,
		Status:       TaskStatusPending,
		MaxAttempts:  defaultMaxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

func NewIndexSessionTask(sessionID string, mode IndexMode) *Task {
	return NewTask(TaskTypeIndexSession, sessionID, map[string]string{"mode": string(mode)})
}

func NewIndexAllTask(mode IndexMode) *Task {
	return NewTask(TaskTypeIndexAll, "", map[string]string{"mode": string(mode)})
}

// Mode reads the index mode from the payload. Tasks without one, or with
// an unknown one, run incrementally.
func (t *Task) Mode() IndexMode {
	switch mode := IndexMode(t.Payload["mode"]); mode {
	case IndexModeFull, IndexModeIncremental:
		return mode
	}
	return IndexModeIncremental
}

// Begin moves the task to processing and counts the attempt.
func (t *Task) Begin() {
	now := time.Now()
	t.Status = TaskStatusProcessing
	t.Attempts++
	t.StartedAt = &now
	t.UpdatedAt = now
}

// Complete marks a successful run.
func (t *Task) Complete() {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.Error = ""
	t.CompletedAt = &now
	t.UpdatedAt = now
}

// Fail records a failed run. While attempts remain the task goes back to
// pending, delayed by RetryBackoff, and Fail returns true.
func (t *Task) Fail(reason string) (retry bool) {
	now := time.Now()
	t.Error = reason
	t.UpdatedAt = now
	if t.Attempts >= t.MaxAttempts {
		t.Status = TaskStatusFailed
		return false
	}
	t.Status = TaskStatusPending
	t.ScheduledFor = now.Add(RetryBackoff(t.Attempts))
	return true
}

// RetryBackoff doubles from one second per attempt, capped at five minutes.
func RetryBackoff(attempts int) time.Duration {
	if attempts >= 9 {
		return maxRetryBackoff
	}
	return min(time.Duration(1<<max(attempts, 0))*time.Second, maxRetryBackoff)
}

// ScheduledTask is a recurring index_all run, such as the incremental sweep.
type ScheduledTask struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Type      TaskType      `json:"type"`
	Mode      IndexMode     `json:"mode"`
	Interval  time.Duration `json:"interval"`
	Enabled   bool          `json:"enabled"`
	LastRun   *time.Time    `json:"last_run,omitempty"`
	NextRun   time.Time     `json:"next_run"`
	LastError string        `json:"last_error,omitempty"`
}

// NewScheduledTask creates a schedule whose first run is one interval out.
// A zero interval yields a disabled schedule.
func NewScheduledTask(id, name string, taskType TaskType, mode IndexMode, interval time.Duration) *ScheduledTask {
	return &ScheduledTask{
		ID:       id,
		Name:     name,
		Type:     taskType,
		Mode:     mode,
		Interval: interval,
		Enabled:  interval > 0,
		NextRun:  time.Now().Add(interval),
	}
}

func (s *ScheduledTask) IsDue() bool {
	return s.Enabled && !time.Now().Before(s.NextRun)
}

// RecordRun stamps a run at now and moves NextRun one interval past it.
func (s *ScheduledTask) RecordRun(now time.Time, lastError string) {
	s.LastRun = &now
	s.NextRun = now.Add(s.Interval)
	s.LastError = lastError
}

// Task builds the queue task for one run of the schedule.
func (s *ScheduledTask) Task() *Task {
	if s.Type == TaskTypeIndexAll || s.Type == "" {
		return NewIndexAllTask(s.Mode)
	}
	return NewTask(s.Type, "", map[string]string{"mode": string(s.Mode)})
}

// DefaultSweepSchedule is the incremental sweep that picks up uploads the
// watcher missed.
func DefaultSweepSchedule(interval time.Duration) *ScheduledTask {
	return NewScheduledTask("index-sweep", "Incremental index sweep", TaskTypeIndexAll, IndexModeIncremental, interval)
}
