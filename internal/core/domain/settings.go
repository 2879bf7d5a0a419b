package domain

import "fmt"

// AIProvider identifies an embedding or reranking provider
type AIProvider string

const (
	// AIProviderHashing is the local deterministic feature-hashing embedder
	AIProviderHashing AIProvider = "hashing"
	// AIProviderOpenAI is any OpenAI-compatible /embeddings API
	AIProviderOpenAI AIProvider = "openai"
	// AIProviderLexical is the local lexical reranker
	AIProviderLexical AIProvider = "lexical"
	// AIProviderHTTP is a Cohere/Jina-compatible /rerank API
	AIProviderHTTP AIProvider = "http"
	// AIProviderNone disables an optional service
	AIProviderNone AIProvider = "none"
)

// DefaultEmbeddingDimensions is the dimension of the local embedder
const DefaultEmbeddingDimensions = 384

// EmbeddingSettings configures the embedding service
type EmbeddingSettings struct {
	Provider          AIProvider `json:"provider" toml:"provider"`
	Model             string     `json:"model" toml:"model"`
	APIKey            string     `json:"-" toml:"api_key"` // Never serialize to JSON
	BaseURL           string     `json:"base_url,omitempty" toml:"base_url"`
	Dimensions        int        `json:"dimensions" toml:"dimensions"`
	BatchSize         int        `json:"batch_size" toml:"batch_size"`
	RequestsPerSecond float64    `json:"requests_per_second" toml:"requests_per_second"`
}

// DefaultEmbeddingSettings returns the local embedder configuration
func DefaultEmbeddingSettings() EmbeddingSettings {
	return EmbeddingSettings{
		Provider:          AIProviderHashing,
		Dimensions:        DefaultEmbeddingDimensions,
		BatchSize:         32,
		RequestsPerSecond: 5,
	}
}

// Validate checks the embedding settings
func (e *EmbeddingSettings) Validate() error {
	switch e.Provider {
	case AIProviderHashing:
	case AIProviderOpenAI:
		if e.APIKey == "" && e.BaseURL == "" {
			return fmt.Errorf("%w: openai embedding needs an api key or a base url", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrConfiguration, e.Provider)
	}
	if e.Dimensions < 0 {
		return fmt.Errorf("%w: embedding dimensions must be positive", ErrConfiguration)
	}
	if e.BatchSize < 0 {
		return fmt.Errorf("%w: embedding batch size must be positive", ErrConfiguration)
	}
	return nil
}

// RerankerSettings configures the optional re-ranking stage
type RerankerSettings struct {
	Provider          AIProvider `json:"provider" toml:"provider"`
	Model             string     `json:"model" toml:"model"`
	APIKey            string     `json:"-" toml:"api_key"`
	BaseURL           string     `json:"base_url,omitempty" toml:"base_url"`
	RequestsPerSecond float64    `json:"requests_per_second" toml:"requests_per_second"`
	// Enabled makes searches rerank unless a request opts out
	Enabled bool `json:"enabled" toml:"enabled"`
}

// IsConfigured returns true if a reranker should be created
func (r *RerankerSettings) IsConfigured() bool {
	return r.Provider != "" && r.Provider != AIProviderNone
}

// Validate checks the reranker settings
func (r *RerankerSettings) Validate() error {
	switch r.Provider {
	case "", AIProviderNone, AIProviderLexical:
		return nil
	case AIProviderHTTP:
		if r.BaseURL == "" {
			return fmt.Errorf("%w: http reranker needs a base url", ErrConfiguration)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown reranker provider %q", ErrConfiguration, r.Provider)
	}
}
