package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/runtime"
)

// DefaultEmbedBatchSize is the number of texts sent per backend call
const DefaultEmbedBatchSize = 32

// Embedder is the only path from text to vectors. Documents and queries both
// go through the embedding service held by runtime.Services, so they share
// one vector space.
type Embedder struct {
	services  *runtime.Services
	batchSize int
	logger    *slog.Logger
}

// EmbedderConfig holds dependencies for Embedder.
type EmbedderConfig struct {
	Services  *runtime.Services
	BatchSize int // Texts per backend call (default: 32)
	Logger    *slog.Logger
}

// NewEmbedder creates a new embedder.
func NewEmbedder(cfg EmbedderConfig) *Embedder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatchSize
	}
	return &Embedder{
		services:  cfg.Services,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Embed returns one vector per text, in input order.
// Blank texts and backend failures fail the whole call with ErrEmbedding;
// a vector of the wrong length fails with ErrConfiguration.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([]domain.Vector, error) {
	if len(texts) == 0 {
		return []domain.Vector{}, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: text %d is blank", domain.ErrEmbedding, i)
		}
	}

	svc := e.services.EmbeddingService()
	if svc == nil {
		return nil, fmt.Errorf("%w: no embedding service configured", domain.ErrEmbedding)
	}
	dims := svc.Dimensions()

	out := make([]domain.Vector, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, err := svc.Embed(ctx, batch)
		if err != nil {
			return nil, wrapEmbeddingError(err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: backend returned %d vectors for %d texts", domain.ErrEmbedding, len(vectors), len(batch))
		}
		for _, v := range vectors {
			vec := domain.Vector(v)
			if err := vec.Validate(dims); err != nil {
				return nil, err
			}
			out = append(out, vec)
		}
	}

	e.logger.Debug("embedded texts", "count", len(texts), "model", svc.Model())
	return out, nil
}

// EmbedQuery embeds a single search query.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) (domain.Vector, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is blank", domain.ErrEmbedding)
	}
	svc := e.services.EmbeddingService()
	if svc == nil {
		return nil, fmt.Errorf("%w: no embedding service configured", domain.ErrEmbedding)
	}

	v, err := svc.EmbedQuery(ctx, query)
	if err != nil {
		return nil, wrapEmbeddingError(err)
	}
	vec := domain.Vector(v)
	if err := vec.Validate(svc.Dimensions()); err != nil {
		return nil, err
	}
	return vec, nil
}

// Dimensions returns the dimension of the installed embedder, or 0.
func (e *Embedder) Dimensions() int {
	if svc := e.services.EmbeddingService(); svc != nil {
		return svc.Dimensions()
	}
	return 0
}

// Model returns the model name of the installed embedder.
func (e *Embedder) Model() string {
	if svc := e.services.EmbeddingService(); svc != nil {
		return svc.Model()
	}
	return ""
}

// HealthCheck verifies an embedder is installed and reachable.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	svc := e.services.EmbeddingService()
	if svc == nil {
		return fmt.Errorf("%w: no embedding service configured", domain.ErrEmbedding)
	}
	if err := svc.HealthCheck(ctx); err != nil {
		return wrapEmbeddingError(err)
	}
	return nil
}

func wrapEmbeddingError(err error) error {
	if errors.Is(err, domain.ErrEmbedding) || errors.Is(err, domain.ErrConfiguration) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
}
