package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Services holds the shared embedding service and the optional reranker.
// Documents and queries are embedded by the same instance, so once an
// embedder is installed only one with the same model and dimensions may
// replace it. Thread-safe for concurrent access.
type Services struct {
	mu sync.RWMutex

	// Config tracks capability flags
	config *domain.RuntimeConfig

	embeddingService driven.EmbeddingService
	reranker         driven.Reranker
}

func NewServices(config *domain.RuntimeConfig) *Services {
	return &Services{
		config: config,
	}
}

func (s *Services) Config() *domain.RuntimeConfig {
	return s.config
}

// EmbeddingService returns the current embedding service (may be nil)
func (s *Services) EmbeddingService() driven.EmbeddingService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embeddingService
}

// Reranker returns the current reranker (may be nil)
func (s *Services) Reranker() driven.Reranker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reranker
}

// SetEmbeddingService installs the embedding service.
// Replacing an installed service with one of a different model or dimension
// fails with ErrConfiguration; the old vectors would become incomparable.
func (s *Services) SetEmbeddingService(svc driven.EmbeddingService) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.embeddingService != nil && svc != nil {
		old := s.embeddingService
		if old.Model() != svc.Model() || old.Dimensions() != svc.Dimensions() {
			return fmt.Errorf("%w: embedder %s/%d cannot replace %s/%d",
				domain.ErrConfiguration, svc.Model(), svc.Dimensions(), old.Model(), old.Dimensions())
		}
	}

	if s.embeddingService != nil && s.embeddingService != svc {
		_ = s.embeddingService.Close()
	}

	s.embeddingService = svc
	s.config.SetEmbeddingAvailable(svc != nil)
	return nil
}

// SetReranker swaps the reranker, closing the previous one. nil disables
// reranking.
func (s *Services) SetReranker(r driven.Reranker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reranker != nil && s.reranker != r {
		_ = s.reranker.Close()
	}

	s.reranker = r
	s.config.SetRerankerAvailable(r != nil)
}

// Close releases the embedder and reranker and clears the capability flags.
func (s *Services) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.embeddingService != nil {
		errs = append(errs, s.embeddingService.Close())
		s.embeddingService = nil
	}
	if s.reranker != nil {
		errs = append(errs, s.reranker.Close())
		s.reranker = nil
	}
	s.config.SetEmbeddingAvailable(false)
	s.config.SetRerankerAvailable(false)
	return errors.Join(errs...)
}

// ValidateAndSetEmbedding validates connectivity before setting embedding service
func (s *Services) ValidateAndSetEmbedding(ctx context.Context, svc driven.EmbeddingService) error {
	if svc == nil {
		return s.SetEmbeddingService(nil)
	}

	if err := svc.HealthCheck(ctx); err != nil {
		_ = svc.Close()
		return fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}

	if err := s.SetEmbeddingService(svc); err != nil {
		_ = svc.Close()
		return err
	}
	return nil
}
