package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Ensure taskService implements TaskService
var _ driving.TaskService = (*taskService)(nil)

// taskService hands indexing tasks to the queue, or runs them inline when
// no queue is configured
type taskService struct {
	queue   driven.TaskQueue
	indexer driving.IndexService
	logger  *slog.Logger

	mu     sync.RWMutex
	inline map[string]*domain.Task
}

// TaskServiceConfig holds dependencies for the task service.
type TaskServiceConfig struct {
	Queue   driven.TaskQueue // Optional: tasks run inline when nil
	Indexer driving.IndexService
	Logger  *slog.Logger
}

// NewTaskService creates a new TaskService
func NewTaskService(cfg TaskServiceConfig) driving.TaskService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &taskService{
		queue:   cfg.Queue,
		indexer: cfg.Indexer,
		logger:  logger,
		inline:  make(map[string]*domain.Task),
	}
}

func (s *taskService) Submit(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, task); err != nil {
			return nil, fmt.Errorf("failed to enqueue task: %w", err)
		}
		s.logger.Info("task enqueued", "task_id", task.ID, "task_type", task.Type, "session_id", task.SessionID)
		return task, nil
	}

	// inline runs get a single attempt
	task.MaxAttempts = 1
	task.Begin()
	if err := RunIndexTask(ctx, s.indexer, task); err != nil {
		task.Fail(err.Error())
	} else {
		task.Complete()
	}

	s.mu.Lock()
	s.inline[task.ID] = task
	s.mu.Unlock()
	return task, nil
}

func (s *taskService) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	if s.queue != nil {
		task, err := s.queue.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task == nil {
			return nil, domain.ErrNotFound
		}
		return task, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.inline[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return task, nil
}

// RunIndexTask executes an index_session or index_all task.
// A run that indexed nothing because every file failed is an error, so the
// queue retries it.
func RunIndexTask(ctx context.Context, indexer driving.IndexService, task *domain.Task) error {
	switch task.Type {
	case domain.TaskTypeIndexSession:
		if task.SessionID == "" {
			return fmt.Errorf("%w: session_id not set on task", domain.ErrInvalidInput)
		}
		result, err := indexer.Reindex(ctx, task.SessionID, task.Mode())
		if err != nil {
			return err
		}
		if result.Status == domain.IndexStatusFailed {
			return fmt.Errorf("indexing failed for all %d files", len(result.Failures))
		}
		return nil
	case domain.TaskTypeIndexAll:
		_, err := indexer.ReindexAll(ctx, task.Mode())
		return err
	default:
		return fmt.Errorf("unknown task type: %s", task.Type)
	}
}
