package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// schedulerLock is the lock name held while one instance enqueues due sweeps
const schedulerLock = "scheduler"

// Scheduler enqueues index tasks for due schedules, normally the periodic
// incremental sweep that picks up files written straight into the data dir.
// Only worker processes run it. With several workers the lock keeps one
// instance enqueuing per tick.
type Scheduler struct {
	store     driven.SchedulerStore
	taskQueue driven.TaskQueue
	lock      driven.DistributedLock
	logger    *slog.Logger

	interval     time.Duration
	lockTTL      time.Duration
	lockRequired bool

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Store        driven.SchedulerStore
	TaskQueue    driven.TaskQueue
	Lock         driven.DistributedLock // Optional
	Logger       *slog.Logger
	PollInterval time.Duration // default: 30s
	LockTTL      time.Duration // default: 60s
	// LockRequired skips a tick when the lock backend errors. A lock held
	// by another instance always skips the tick.
	LockRequired bool
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 2 * interval
	}

	return &Scheduler{
		store:        cfg.Store,
		taskQueue:    cfg.TaskQueue,
		lock:         cfg.Lock,
		logger:       logger.With("component", "scheduler"),
		interval:     interval,
		lockTTL:      lockTTL,
		lockRequired: cfg.LockRequired,
	}
}

// Start runs the poll loop in the background until Stop or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	s.logger.Info("scheduler starting", "poll_interval", s.interval)
	go s.run(ctx, s.stopCh, s.doneCh)
	return nil
}

// Stop waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	done := s.doneCh
	s.running = false
	s.mu.Unlock()

	<-done
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick enqueues a task for every enabled schedule that is due.
func (s *Scheduler) tick(ctx context.Context) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, schedulerLock, s.lockTTL)
		switch {
		case err != nil && s.lockRequired:
			s.logger.Warn("scheduler lock unavailable, skipping tick", "error", err)
			return
		case err != nil:
			s.logger.Warn("scheduler lock unavailable, continuing without it", "error", err)
		case !acquired:
			s.logger.Debug("scheduler lock held elsewhere")
			return
		default:
			defer func() {
				if err := s.lock.Release(context.Background(), schedulerLock); err != nil {
					s.logger.Warn("failed to release scheduler lock", "error", err)
				}
			}()
		}
	}

	due, err := s.store.GetDueScheduledTasks(ctx)
	if err != nil {
		s.logger.Error("failed to load due schedules", "error", err)
		return
	}

	for _, scheduled := range due {
		if !scheduled.Enabled || !scheduled.IsDue() {
			continue
		}
		task := scheduled.Task()

		var lastErr string
		if err := s.taskQueue.Enqueue(ctx, task); err != nil {
			s.logger.Error("failed to enqueue scheduled task", "schedule", scheduled.ID, "error", err)
			lastErr = err.Error()
		} else {
			s.logger.Info("enqueued scheduled task",
				"schedule", scheduled.ID,
				"task_id", task.ID,
				"mode", task.Mode(),
			)
		}
		if err := s.store.UpdateLastRun(ctx, scheduled.ID, lastErr); err != nil {
			s.logger.Warn("failed to record schedule run", "schedule", scheduled.ID, "error", err)
		}
	}
}

// EnsureScheduledTask stores scheduled unless it already exists. An
// existing schedule keeps its next run and takes the new interval, mode
// and enabled flag.
func (s *Scheduler) EnsureScheduledTask(ctx context.Context, scheduled *domain.ScheduledTask) error {
	existing, err := s.store.GetScheduledTask(ctx, scheduled.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.store.SaveScheduledTask(ctx, scheduled)
	}
	if err != nil {
		return err
	}
	if existing.Interval == scheduled.Interval && existing.Mode == scheduled.Mode && existing.Enabled == scheduled.Enabled {
		return nil
	}
	existing.Interval = scheduled.Interval
	existing.Mode = scheduled.Mode
	existing.Enabled = scheduled.Enabled
	return s.store.SaveScheduledTask(ctx, existing)
}
