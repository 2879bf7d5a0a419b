package driven

import "context"

// Reranker scores (query, passage) pairs with a cross-encoder style model.
// Higher scores are more relevant.
type Reranker interface {
	// Score returns one score per passage, in passage order.
	// Implementations score the whole batch in one call.
	Score(ctx context.Context, query string, passages []string) ([]float64, error)

	// Model returns the model name being used
	Model() string

	// Close releases resources held by the reranker
	Close() error
}
