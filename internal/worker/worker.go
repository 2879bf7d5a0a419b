// Package worker consumes index tasks from the queue and runs them through
// the indexing coordinator.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
)

// dequeueBackoff is the pause after a failed dequeue
const dequeueBackoff = time.Second

// Worker runs index_session and index_all tasks with a fixed number of
// goroutines. Stop cancels in-flight runs; the indexer marks them
// interrupted and the task is nacked for retry.
type Worker struct {
	taskQueue driven.TaskQueue
	indexer   driving.IndexService
	scheduler *services.Scheduler
	logger    *slog.Logger

	concurrency    int
	dequeueTimeout int // seconds

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue      driven.TaskQueue
	Indexer        driving.IndexService
	Scheduler      *services.Scheduler // Optional: periodic incremental sweep
	Logger         *slog.Logger
	Concurrency    int // default: 1
	DequeueTimeout int // seconds, default: 5
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	return &Worker{
		taskQueue:      cfg.TaskQueue,
		indexer:        cfg.Indexer,
		scheduler:      cfg.Scheduler,
		logger:         logger,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
		doneCh:         make(chan struct{}),
	}
}

// Start launches the processing goroutines and the scheduler.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.doneCh = make(chan struct{})

	w.logger.Info("worker starting", "concurrency", w.concurrency, "dequeue_timeout", w.dequeueTimeout)

	if w.scheduler != nil {
		if err := w.scheduler.Start(runCtx); err != nil {
			w.logger.Error("failed to start scheduler", "error", err)
		}
	}

	var wg sync.WaitGroup
	for i := range w.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(runCtx, i)
		}()
	}
	go func(done chan struct{}) {
		wg.Wait()
		close(done)
	}(w.doneCh)

	return nil
}

// Stop cancels in-flight work and waits for the goroutines to exit.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, done := w.cancel, w.doneCh
	w.mu.Unlock()

	if w.scheduler != nil {
		w.scheduler.Stop()
	}
	cancel()
	<-done

	w.logger.Info("worker stopped")
}

// Wait blocks until the processing goroutines exit.
func (w *Worker) Wait() {
	w.mu.RLock()
	done := w.doneCh
	w.mu.RUnlock()
	<-done
}

func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)

	for ctx.Err() == nil {
		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to dequeue task", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(dequeueBackoff):
			}
			continue
		}
		if task == nil {
			continue
		}
		w.processTask(ctx, task, logger)
	}
}

// processTask runs one task and acks it, or nacks it for retry.
// A partial run is a success; only a run where every file failed is retried.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "session_id", task.SessionID)
	logger.Info("processing task", "attempt", task.Attempts, "mode", task.Mode())

	start := time.Now()
	err := services.RunIndexTask(ctx, w.indexer, task)
	took := time.Since(start)

	// Ack and nack must land even when the run was cancelled
	settle := context.WithoutCancel(ctx)

	if err != nil {
		switch {
		case errors.Is(err, domain.ErrIndexInProgress):
			logger.Info("session busy, task requeued", "duration", took)
		default:
			logger.Error("task failed", "duration", took, "error", err)
		}
		if nackErr := w.taskQueue.Nack(settle, task.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
		return
	}

	logger.Info("task completed", "duration", took)
	if ackErr := w.taskQueue.Ack(settle, task.ID); ackErr != nil {
		logger.Error("failed to ack task", "ack_error", ackErr)
	}
}

// Health describes the worker for readiness probes.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health reports whether the worker runs and its queue answers.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	health := Health{Running: w.running}
	w.mu.RUnlock()

	if err := w.taskQueue.Ping(ctx); err != nil {
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}
	return health
}

// Ping fails when the worker is stopped or its queue is unreachable.
func (w *Worker) Ping(ctx context.Context) error {
	h := w.Health(ctx)
	switch {
	case !h.Running:
		return errors.New("worker not running")
	case !h.QueueHealth:
		return fmt.Errorf("%w: task queue: %s", domain.ErrIndexUnavailable, h.Error)
	}
	return nil
}
