package driven

import (
	"context"
)

// EmbeddingService turns text into fixed-length vectors. Chunks and
// queries must use the same instance so they share one vector space;
// Dimensions is checked against the vector index at startup.
type EmbeddingService interface {
	// Embed returns one vector per text, in input order
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	Dimensions() int

	// Model names the backing model, recorded with the collection
	Model() string

	HealthCheck(ctx context.Context) error
	Close() error
}
