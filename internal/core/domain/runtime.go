package domain

import "sync"

// RuntimeConfig tracks which services are available at runtime.
// Backends are fixed at startup; capability flags change when optional
// collaborators (reranker, query log) come and go.
// Thread-safe for concurrent access.
type RuntimeConfig struct {
	mu sync.RWMutex

	// Static (set at startup, read-only)
	VectorBackend      string // "memory", "postgres" or "vespa"
	BookkeepingBackend string // "memory", "sqlite" or "postgres"

	// Dynamic capability flags
	embeddingAvailable bool
	rerankerAvailable  bool
	queryLogAvailable  bool
	rerankByDefault    bool
}

// NewRuntimeConfig creates a new RuntimeConfig with initial values
func NewRuntimeConfig(vectorBackend, bookkeepingBackend string) *RuntimeConfig {
	return &RuntimeConfig{
		VectorBackend:      vectorBackend,
		BookkeepingBackend: bookkeepingBackend,
		rerankByDefault:    true,
	}
}

// EmbeddingAvailable returns whether the embedding service is available
func (c *RuntimeConfig) EmbeddingAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.embeddingAvailable
}

// RerankerAvailable returns whether a reranker is configured
func (c *RuntimeConfig) RerankerAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rerankerAvailable
}

// QueryLogAvailable returns whether the query log store is reachable
func (c *RuntimeConfig) QueryLogAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queryLogAvailable
}

// SetEmbeddingAvailable updates the embedding availability flag
func (c *RuntimeConfig) SetEmbeddingAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.embeddingAvailable = available
}

// SetRerankerAvailable updates the reranker availability flag
func (c *RuntimeConfig) SetRerankerAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rerankerAvailable = available
}

// SetQueryLogAvailable updates the query log availability flag
func (c *RuntimeConfig) SetQueryLogAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queryLogAvailable = available
}

// SetRerankByDefault controls whether searches rerank when the request
// does not say
func (c *RuntimeConfig) SetRerankByDefault(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rerankByDefault = enabled
}

// ShouldRerank resolves a per-request override against the defaults
func (c *RuntimeConfig) ShouldRerank(requested *bool) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.rerankerAvailable {
		return false
	}
	if requested != nil {
		return *requested
	}
	return c.rerankByDefault
}
