package driven

import (
	"context"
	"io"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// FileStore holds uploaded files, one directory per session
type FileStore interface {
	// Save writes an uploaded file into the session directory
	Save(ctx context.Context, sessionID, filename string, r io.Reader) (*domain.SourceFile, error)

	// Open opens a stored file for reading.
	// Returns domain.ErrNotFound when the file does not exist.
	Open(ctx context.Context, sessionID, filename string) (io.ReadCloser, *domain.SourceFile, error)

	// OpenPath opens a file returned by Scan, including files nested below
	// the session directory. Paths outside the data dir are rejected.
	// Returns domain.ErrNotFound when the file does not exist.
	OpenPath(ctx context.Context, path string) (io.ReadCloser, error)

	// Scan lists supported files of a session (all sessions when empty),
	// sorted by path
	Scan(ctx context.Context, sessionID string) ([]domain.SourceFile, error)

	// Sessions lists session directories
	Sessions(ctx context.Context) ([]string, error)

	// DeleteSession removes the session directory and returns how many
	// files it held. A missing session is a no-op.
	DeleteSession(ctx context.Context, sessionID string) (int, error)

	// Root returns the data directory
	Root() string
}
