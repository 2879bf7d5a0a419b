package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure HashingEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*HashingEmbedding)(nil)

// HashingEmbedding is a local, deterministic embedder.
// Word tokens are hashed (FNV-1a) into a fixed number of buckets, weighted
// with sublinear term frequency and L2 normalised. All components are
// non-negative, so cosine distance stays in [0, 1].
type HashingEmbedding struct {
	dimensions int
	model      string
}

// NewHashingEmbedding creates a hashing embedder with the given dimension.
func NewHashingEmbedding(dimensions int) (*HashingEmbedding, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: hashing embedder needs positive dimensions, got %d", domain.ErrConfiguration, dimensions)
	}
	return &HashingEmbedding{
		dimensions: dimensions,
		model:      fmt.Sprintf("hashing-v1-%d", dimensions),
	}, nil
}

// Embed generates embeddings for multiple texts. Blank texts fail with domain.ErrEmbedding.
func (e *HashingEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
		}
		vec, err := e.embed(text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// EmbedQuery generates an embedding for a search query
func (e *HashingEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	out, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *HashingEmbedding) embed(text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: blank text", domain.ErrEmbedding)
	}

	tokens := tokenize(trimmed)
	if len(tokens) == 0 {
		tokens = []string{trimmed}
	}

	counts := make(map[int]float64, len(tokens))
	for _, tok := range tokens {
		h := fnv.New32a()
		h.Write([]byte(tok))
		counts[int(h.Sum32()%uint32(e.dimensions))]++
	}

	vec := make([]float32, e.dimensions)
	var norm float64
	for bucket, tf := range counts {
		w := 1 + math.Log(tf)
		vec[bucket] = float32(w)
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// Dimensions returns the embedding dimension size
func (e *HashingEmbedding) Dimensions() int {
	return e.dimensions
}

// Model returns the pinned model identifier
func (e *HashingEmbedding) Model() string {
	return e.model
}

// HealthCheck always succeeds; the embedder has no backend
func (e *HashingEmbedding) HealthCheck(ctx context.Context) error {
	return nil
}

func (e *HashingEmbedding) Close() error {
	return nil
}
