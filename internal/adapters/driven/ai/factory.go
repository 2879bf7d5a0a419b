package ai

import (
	"fmt"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Factory implements AIServiceFactory
var _ driven.AIServiceFactory = (*Factory)(nil)

// Factory creates AI services based on configuration
type Factory struct{}

// NewFactory creates a new AI service factory
func NewFactory() *Factory {
	return &Factory{}
}

// CreateEmbeddingService creates an embedding service from settings.
// The embedder is mandatory, so nil settings fall back to the local default.
func (f *Factory) CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil {
		defaults := domain.DefaultEmbeddingSettings()
		settings = &defaults
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	switch settings.Provider {
	case domain.AIProviderHashing:
		dims := settings.Dimensions
		if dims == 0 {
			dims = domain.DefaultEmbeddingDimensions
		}
		return NewHashingEmbedding(dims)
	case domain.AIProviderOpenAI:
		return NewOpenAIEmbedding(OpenAIConfig{
			APIKey:            settings.APIKey,
			Model:             settings.Model,
			BaseURL:           settings.BaseURL,
			Dimensions:        settings.Dimensions,
			RequestsPerSecond: settings.RequestsPerSecond,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrConfiguration, settings.Provider)
	}
}

// CreateReranker creates a reranker from settings.
// Returns nil, nil when reranking is not configured.
func (f *Factory) CreateReranker(settings *domain.RerankerSettings) (driven.Reranker, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	switch settings.Provider {
	case domain.AIProviderLexical:
		return NewLexicalReranker(), nil
	case domain.AIProviderHTTP:
		return NewHTTPReranker(HTTPRerankerConfig{
			BaseURL:           settings.BaseURL,
			APIKey:            settings.APIKey,
			Model:             settings.Model,
			RequestsPerSecond: settings.RequestsPerSecond,
		})
	default:
		return nil, fmt.Errorf("%w: unknown reranker provider %q", domain.ErrConfiguration, settings.Provider)
	}
}
