package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// QueryLogStore is the append-only search log. It is optional: callers
// must degrade gracefully when it is nil or failing.
type QueryLogStore interface {
	// Append records a search
	Append(ctx context.Context, entry domain.QueryLogEntry) error

	// FetchQueries returns up to limit distinct past queries for a session,
	// most recent first. An empty session returns queries across sessions.
	FetchQueries(ctx context.Context, sessionID string, limit int) ([]string, error)

	// DeleteSession removes the log entries of a session
	DeleteSession(ctx context.Context, sessionID string) error
}
