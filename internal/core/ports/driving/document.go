package driving

import (
	"context"
	"io"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// DocumentService manages uploaded files and their index footprint
type DocumentService interface {
	// Upload stores a file for a session and schedules incremental indexing
	Upload(ctx context.Context, sessionID, filename string, r io.Reader) (*domain.UploadResult, error)

	// Open returns a stored file for download
	Open(ctx context.Context, sessionID, filename string) (io.ReadCloser, *domain.SourceFile, error)

	// List returns indexed documents of a session (all when empty), newest first
	List(ctx context.Context, sessionID string, limit int) ([]*domain.IndexedDocument, error)

	// Stats counts documents and chunks. An empty or default session is global.
	Stats(ctx context.Context, sessionID string) (*domain.Stats, error)

	// DeleteSession removes every record, bookkeeping row, log entry and
	// file of the session
	DeleteSession(ctx context.Context, sessionID string) (*domain.DeleteResult, error)
}
