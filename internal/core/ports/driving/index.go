package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// IndexService runs indexing synchronously
type IndexService interface {
	// Reindex rebuilds (full) or catches up (incremental) one session.
	// An empty session covers every session.
	Reindex(ctx context.Context, sessionID string, mode domain.IndexMode) (*domain.IndexResult, error)

	// ReindexAll runs Reindex for every session directory
	ReindexAll(ctx context.Context, mode domain.IndexMode) ([]*domain.IndexResult, error)
}

// TaskService submits indexing work to the background queue
type TaskService interface {
	// Submit enqueues a task. Without a queue the task runs inline and is
	// returned completed or failed.
	Submit(ctx context.Context, task *domain.Task) (*domain.Task, error)

	// Get returns a task by id, or domain.ErrNotFound
	Get(ctx context.Context, taskID string) (*domain.Task, error)
}
