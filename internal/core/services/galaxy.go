package services

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/projection"
)

// Ensure galaxyService implements GalaxyService
var _ driving.GalaxyService = (*galaxyService)(nil)

// DefaultHistoryLimit is how many past queries the galaxy view shows
const DefaultHistoryLimit = 20

// galaxyService projects a whole session, the current query and past
// queries into one 3-D space
type galaxyService struct {
	index        driven.VectorIndex
	embedder     *Embedder
	queryLog     driven.QueryLogStore
	historyLimit int
	logger       *slog.Logger
}

// GalaxyServiceConfig holds dependencies for the galaxy service.
type GalaxyServiceConfig struct {
	Index        driven.VectorIndex
	Embedder     *Embedder
	QueryLog     driven.QueryLogStore // Optional
	HistoryLimit int                  // default: 20
	Logger       *slog.Logger
}

// NewGalaxyService creates a new GalaxyService
func NewGalaxyService(cfg GalaxyServiceConfig) driving.GalaxyService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &galaxyService{
		index:        cfg.Index,
		embedder:     cfg.Embedder,
		queryLog:     cfg.QueryLog,
		historyLimit: limit,
		logger:       logger,
	}
}

// Galaxy builds the view. When the search log cannot be read the view
// degrades to documents and the current query.
func (s *galaxyService) Galaxy(ctx context.Context, sessionID, query string) (*domain.GalaxyView, error) {
	session := domain.NormalizeSession(sessionID)
	query = strings.TrimSpace(query)

	records, err := s.index.List(ctx, domain.SessionFilter(session), domain.Include{Vectors: true})
	if err != nil {
		return nil, err
	}

	points := make([]domain.GalaxyPoint, 0, len(records)+1)
	vectors := make([]domain.Vector, 0, len(records)+1)
	for _, r := range records {
		points = append(points, domain.GalaxyPoint{
			ID:    r.ID,
			Label: r.Metadata.Title,
			Kind:  domain.PointKindDocument,
			Ext:   r.Metadata.Ext,
			Page:  r.Metadata.Page,
		})
		vectors = append(vectors, r.Vector)
	}

	if query != "" {
		qv, err := s.embedder.EmbedQuery(ctx, query)
		if err != nil {
			return nil, err
		}
		points = append(points, domain.GalaxyPoint{ID: "query", Label: query, Kind: domain.PointKindQuery})
		vectors = append(vectors, qv)
	}

	history, ok := s.history(ctx, session, query)
	for i, h := range history.queries {
		points = append(points, domain.GalaxyPoint{ID: "history-" + strconv.Itoa(i), Label: h, Kind: domain.PointKindHistory})
		vectors = append(vectors, history.vectors[i])
	}

	coords, err := projection.ProjectAll(vectors, projection.GalaxyOptions())
	if err != nil {
		return nil, err
	}
	for i := range points {
		points[i].Position = coords[i]
	}

	return &domain.GalaxyView{
		SessionID:       session,
		Query:           query,
		Points:          points,
		HistoryIncluded: ok,
	}, nil
}

type pastQueries struct {
	queries []string
	vectors []domain.Vector
}

// history fetches past queries, skipping the current one, and embeds them
// the way the current query is embedded.
// The bool is false when the log is missing or failing.
func (s *galaxyService) history(ctx context.Context, session, current string) (pastQueries, bool) {
	if s.queryLog == nil {
		return pastQueries{}, false
	}
	fetched, err := s.queryLog.FetchQueries(ctx, session, s.historyLimit)
	if err != nil {
		s.logger.Warn("search log unavailable, galaxy without history", "session_id", session, "error", err)
		return pastQueries{}, false
	}

	var queries []string
	for _, q := range fetched {
		if q = strings.TrimSpace(q); q != "" && q != current {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		return pastQueries{}, true
	}

	vectors := make([]domain.Vector, len(queries))
	for i, q := range queries {
		v, err := s.embedder.EmbedQuery(ctx, q)
		if err != nil {
			s.logger.Warn("failed to embed past queries", "session_id", session, "error", err)
			return pastQueries{}, false
		}
		vectors[i] = v
	}
	return pastQueries{queries: queries, vectors: vectors}, true
}
