package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// VectorIndex stores (id, vector, text, metadata) records for one logical
// collection partitioned by session.
//
// Implementations return domain.ErrIndexUnavailable when the backend cannot
// be reached. Empty collections and unknown sessions yield empty results,
// never errors. Mutations are serialized per collection; reads may run in
// parallel.
type VectorIndex interface {
	// Upsert inserts or overwrites records by id. Idempotent.
	Upsert(ctx context.Context, records []domain.EmbeddingRecord) error

	// Query returns the k records closest to vector that match filter,
	// ordered by ascending metric score (closest first)
	Query(ctx context.Context, vector domain.Vector, k int, filter domain.Filter) ([]domain.ScoredRecord, error)

	// Get fetches records by id. Missing ids are skipped.
	Get(ctx context.Context, ids []string, include domain.Include) ([]domain.EmbeddingRecord, error)

	// List returns every record matching filter, ordered by path, page and chunk
	List(ctx context.Context, filter domain.Filter, include domain.Include) ([]domain.EmbeddingRecord, error)

	// Delete removes records by id, by filter, or everything when both are
	// empty. Returns the number of records removed. Atomic per call.
	Delete(ctx context.Context, ids []string, filter domain.Filter) (int, error)

	// Stats counts documents and chunks matching filter
	Stats(ctx context.Context, filter domain.Filter) (*domain.Stats, error)

	// Metric returns the similarity metric fixed for this collection
	Metric() domain.Metric

	// Dimensions returns the vector dimension fixed for this collection
	Dimensions() int

	// HealthCheck verifies the backend is reachable
	HealthCheck(ctx context.Context) error

	// Close releases resources
	Close() error
}
