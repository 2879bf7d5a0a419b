package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// SearchService handles semantic search over a session
type SearchService interface {
	// Search embeds the query once, retrieves candidates from the session
	// partition, optionally re-ranks them and projects the hits to 3-D
	Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResult, error)
}

// GalaxyService builds the 3-D view of a whole session
type GalaxyService interface {
	// Galaxy projects every record of the session together with the query
	// and past queries. An empty query shows documents and history only.
	Galaxy(ctx context.Context, sessionID, query string) (*domain.GalaxyView, error)
}

// ChatService answers questions from retrieved passages
type ChatService interface {
	// Ask searches and summarizes the top passages into an extractive answer
	Ask(ctx context.Context, query string, opts domain.SearchOptions) (*domain.Answer, error)
}
