package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/runtime"
)

// Retriever runs two-stage retrieval: a session-filtered vector query for
// candidate_k candidates, then an optional batched re-rank truncated to top_k.
type Retriever struct {
	index    driven.VectorIndex
	embedder *Embedder
	services *runtime.Services
	logger   *slog.Logger
}

// RetrieverConfig holds dependencies for Retriever.
type RetrieverConfig struct {
	Index    driven.VectorIndex
	Embedder *Embedder
	Services *runtime.Services // Source of the optional reranker
	Logger   *slog.Logger
}

// NewRetriever creates a new retriever.
func NewRetriever(cfg RetrieverConfig) *Retriever {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		index:    cfg.Index,
		embedder: cfg.Embedder,
		services: cfg.Services,
		logger:   logger,
	}
}

// Retrieve embeds the query once and returns ranked candidates.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts domain.SearchOptions) (*domain.Retrieval, error) {
	opts = opts.Normalize()

	qv, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := r.index.Query(ctx, qv, opts.CandidateK, domain.SessionFilter(opts.SessionID))
	if err != nil {
		return nil, err
	}

	retrieval := &domain.Retrieval{
		QueryVector: qv,
		Candidates:  make([]domain.Candidate, len(hits)),
	}
	for i, h := range hits {
		retrieval.Candidates[i] = domain.Candidate{
			Record:   h.Record,
			Distance: h.Score,
			Rank:     i,
		}
	}
	if len(hits) == 0 {
		return retrieval, nil
	}

	if r.services.Config().ShouldRerank(opts.Rerank) {
		if reranker := r.services.Reranker(); reranker != nil {
			if err := r.rerank(ctx, reranker, query, retrieval.Candidates); err != nil {
				r.logger.Warn("rerank failed, keeping vector order",
					"session_id", opts.SessionID,
					"model", reranker.Model(),
					"error", err,
				)
				for i := range retrieval.Candidates {
					retrieval.Candidates[i].RerankScore = nil
				}
			} else {
				retrieval.Reranked = true
			}
		}
	}

	if len(retrieval.Candidates) > opts.TopK {
		retrieval.Candidates = retrieval.Candidates[:opts.TopK]
	}
	return retrieval, nil
}

func (r *Retriever) rerank(ctx context.Context, reranker driven.Reranker, query string, cands []domain.Candidate) error {
	passages := make([]string, len(cands))
	for i, c := range cands {
		passages[i] = c.Record.Text
	}
	scores, err := reranker.Score(ctx, query, passages)
	if err != nil {
		return err
	}
	return ApplyRerankScores(cands, scores)
}

// ApplyRerankScores attaches one score per candidate and sorts by
// descending score. Equal scores are ordered by stage-1 Rank, so the result
// depends only on the scores and ranks, never on the slice order.
func ApplyRerankScores(cands []domain.Candidate, scores []float64) error {
	if len(scores) != len(cands) {
		return fmt.Errorf("reranker returned %d scores for %d passages", len(scores), len(cands))
	}
	for i := range cands {
		s := scores[i]
		cands[i].RerankScore = &s
	}
	sort.Slice(cands, func(i, j int) bool {
		a, b := *cands[i].RerankScore, *cands[j].RerankScore
		if a != b {
			return a > b
		}
		return cands[i].Rank < cands[j].Rank
	})
	return nil
}
