package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/projection"
)

// Ensure searchService implements SearchService
var _ driving.SearchService = (*searchService)(nil)

// searchService implements the SearchService interface
type searchService struct {
	retriever  *Retriever
	queryLog   driven.QueryLogStore
	linker     FileLinker
	topK       int
	candidateK int
	logger     *slog.Logger
}

// SearchServiceConfig holds dependencies for the search service.
type SearchServiceConfig struct {
	Retriever  *Retriever
	QueryLog   driven.QueryLogStore // Optional
	Linker     FileLinker
	TopK       int // Default when the request leaves it unset
	CandidateK int // Default when the request leaves it unset
	Logger     *slog.Logger
}

// NewSearchService creates a new SearchService
func NewSearchService(cfg SearchServiceConfig) driving.SearchService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &searchService{
		retriever:  cfg.Retriever,
		queryLog:   cfg.QueryLog,
		linker:     cfg.Linker,
		topK:       cfg.TopK,
		candidateK: cfg.CandidateK,
		logger:     logger,
	}
}

// Search performs a search within a session (all sessions when unscoped)
func (s *searchService) Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResult, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}
	if opts.TopK <= 0 {
		opts.TopK = s.topK
	}
	if opts.CandidateK <= 0 {
		opts.CandidateK = s.candidateK
	}
	opts = opts.Normalize()

	retrieval, err := s.retriever.Retrieve(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	docs := make([]domain.Vector, len(retrieval.Candidates))
	for i, c := range retrieval.Candidates {
		docs[i] = c.Record.Vector
	}
	queryPoint, points, err := projection.Project(docs, retrieval.QueryVector, projection.SearchOptions())
	if err != nil {
		return nil, err
	}

	hits := make([]domain.SearchHit, len(retrieval.Candidates))
	for i, c := range retrieval.Candidates {
		hits[i] = newHit(c, points[i], s.linker)
	}

	s.logQuery(ctx, opts, query, len(hits))

	return &domain.SearchResult{
		Query:         query,
		QueryVector3D: queryPoint,
		Results:       hits,
		Reranked:      retrieval.Reranked,
		Took:          time.Since(start),
	}, nil
}

// newHit builds the response entry for a ranked candidate
func newHit(c domain.Candidate, point domain.Point3D, linker FileLinker) domain.SearchHit {
	meta := c.Record.Metadata
	return domain.SearchHit{
		ID:          c.Record.ID,
		Filename:    meta.Title,
		Ext:         meta.Ext,
		Page:        meta.Page,
		Score:       c.Distance,
		RerankScore: c.RerankScore,
		Vector3D:    point,
		Preview:     domain.Preview(c.Record.Text),
		URL:         linker.URL(meta.SessionID, filepath.Base(meta.Path)),
		SessionID:   meta.SessionID,
	}
}

// logQuery appends to the search log. Failures never fail the search.
func (s *searchService) logQuery(ctx context.Context, opts domain.SearchOptions, query string, results int) {
	if s.queryLog == nil {
		return
	}
	err := s.queryLog.Append(ctx, domain.QueryLogEntry{
		SessionID:    opts.SessionID,
		Query:        query,
		TopK:         opts.TopK,
		ResultsCount: results,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		s.logger.Warn("failed to append search log", "session_id", opts.SessionID, "error", err)
	}
}
