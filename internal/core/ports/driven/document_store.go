package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// IndexedDocumentStore is the relational bookkeeping of which files have
// been indexed, keyed by (session, path) and carrying the content hash used
// by incremental indexing.
type IndexedDocumentStore interface {
	// Get retrieves the bookkeeping row for a file.
	// Returns domain.ErrNotFound when the file was never indexed.
	Get(ctx context.Context, sessionID, path string) (*domain.IndexedDocument, error)

	// Save creates or updates the row for a file
	Save(ctx context.Context, doc *domain.IndexedDocument) error

	// List returns rows for a session (all sessions when empty), newest first
	List(ctx context.Context, sessionID string, limit int) ([]*domain.IndexedDocument, error)

	// Delete removes the row for a file
	Delete(ctx context.Context, sessionID, path string) error

	// DeleteSession removes all rows of a session (all rows when empty)
	// and returns how many were removed
	DeleteSession(ctx context.Context, sessionID string) (int, error)
}
