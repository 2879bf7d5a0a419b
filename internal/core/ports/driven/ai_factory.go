package driven

import (
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// AIServiceFactory builds the embedder and optional reranker from
// configuration.
type AIServiceFactory interface {
	CreateEmbeddingService(settings *domain.EmbeddingSettings) (EmbeddingService, error)

	// CreateReranker returns nil, nil when no reranker is configured
	CreateReranker(settings *domain.RerankerSettings) (Reranker, error)
}
