package domain

import (
	"testing"
	"time"
)

func TestNewIndexTasks(t *testing.T) {
	session := NewIndexSessionTask("s1", IndexModeFull)
	all := NewIndexAllTask(IndexModeIncremental)

	if session.ID == "" || session.ID == all.ID {
		t.Fatalf("expected distinct ids, got %q and %q", session.ID, all.ID)
	}
	if len(session.ID) != 36 {
		t.Errorf("expected a UUID, got %q", session.ID)
	}
	if session.Type != TaskTypeIndexSession || session.SessionID != "s1" {
		t.Errorf("unexpected session task %+v", session)
	}
	if all.Type != TaskTypeIndexAll || all.SessionID != "" {
		t.Errorf("unexpected index_all task %+v", all)
	}
	for _, task := range []*Task{session, all} {
		if task.Status != TaskStatusPending || task.Attempts != 0 || task.MaxAttempts != 3 {
			t.Errorf("unexpected initial state %+v", task)
		}
		if task.ScheduledFor.IsZero() || task.CreatedAt.IsZero() {
			t.Error("expected timestamps to be set")
		}
	}
}

func TestTask_Mode(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]string
		want    IndexMode
	}{
		{"full", map[string]string{"mode": "full"}, IndexModeFull},
		{"incremental", map[string]string{"mode": "incremental"}, IndexModeIncremental},
		{"missing", map[string]string{}, IndexModeIncremental},
		{"nil payload", nil, IndexModeIncremental},
		{"unknown", map[string]string{"mode": "rebuild"}, IndexModeIncremental},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &Task{Payload: tt.payload}
			if got := task.Mode(); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTask_Lifecycle(t *testing.T) {
	task := NewIndexSessionTask("s1", IndexModeFull)

	task.Begin()
	if task.Status != TaskStatusProcessing || task.Attempts != 1 || task.StartedAt == nil {
		t.Fatalf("unexpected state after Begin: %+v", task)
	}

	task.Error = "stale"
	task.Complete()
	if task.Status != TaskStatusCompleted || task.CompletedAt == nil || task.Error != "" {
		t.Errorf("unexpected state after Complete: %+v", task)
	}
}

func TestTask_FailRetriesUntilAttemptsSpent(t *testing.T) {
	task := NewIndexSessionTask("s1", IndexModeFull)

	for attempt := 1; attempt <= task.MaxAttempts; attempt++ {
		task.Begin()
		before := time.Now()
		retry := task.Fail("index unavailable")

		if task.Error != "index unavailable" {
			t.Errorf("attempt %d: error not recorded", attempt)
		}
		if attempt < task.MaxAttempts {
			if !retry || task.Status != TaskStatusPending {
				t.Fatalf("attempt %d: expected retry, got status %s", attempt, task.Status)
			}
			if task.ScheduledFor.Before(before.Add(RetryBackoff(attempt) - time.Millisecond)) {
				t.Errorf("attempt %d: retry scheduled too early", attempt)
			}
			continue
		}
		if retry || task.Status != TaskStatusFailed {
			t.Errorf("final attempt: expected failure, got retry=%v status=%s", retry, task.Status)
		}
	}
}

func TestRetryBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{8, 256 * time.Second},
		{9, 5 * time.Minute},
		{40, 5 * time.Minute},
		{-1, time.Second},
	}
	for _, tt := range tests {
		if got := RetryBackoff(tt.attempts); got != tt.want {
			t.Errorf("RetryBackoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestScheduledTask(t *testing.T) {
	sweep := DefaultSweepSchedule(time.Hour)
	if !sweep.Enabled || sweep.Mode != IndexModeIncremental || sweep.Type != TaskTypeIndexAll {
		t.Fatalf("unexpected sweep %+v", sweep)
	}
	if sweep.IsDue() {
		t.Error("a fresh schedule should not be due")
	}

	sweep.NextRun = time.Now().Add(-time.Second)
	if !sweep.IsDue() {
		t.Error("expected schedule to be due")
	}

	now := time.Now()
	sweep.RecordRun(now, "boom")
	if !sweep.NextRun.Equal(now.Add(time.Hour)) || sweep.LastRun == nil || sweep.LastError != "boom" {
		t.Errorf("unexpected state after RecordRun: %+v", sweep)
	}

	task := sweep.Task()
	if task.Type != TaskTypeIndexAll || task.Mode() != IndexModeIncremental {
		t.Errorf("unexpected queued task %+v", task)
	}

	off := NewScheduledTask("off", "Off", TaskTypeIndexAll, IndexModeFull, 0)
	off.NextRun = time.Now().Add(-time.Minute)
	if off.Enabled || off.IsDue() {
		t.Error("zero interval schedule should be disabled")
	}
}
