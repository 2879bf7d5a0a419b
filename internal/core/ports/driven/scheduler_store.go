package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// SchedulerStore persists recurring task schedules so next-run times
// survive restarts
type SchedulerStore interface {
	// GetScheduledTask returns a schedule or domain.ErrNotFound
	GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error)

	// ListScheduledTasks returns every schedule
	ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error)

	// SaveScheduledTask creates or updates a schedule
	SaveScheduledTask(ctx context.Context, task *domain.ScheduledTask) error

	// DeleteScheduledTask removes a schedule
	DeleteScheduledTask(ctx context.Context, id string) error

	// GetDueScheduledTasks returns enabled schedules whose next run has passed
	GetDueScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error)

	// UpdateLastRun records a run and advances the next run time
	UpdateLastRun(ctx context.Context, id string, lastError string) error
}
