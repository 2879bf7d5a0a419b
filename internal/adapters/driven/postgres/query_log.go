package postgres

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.QueryLogStore = (*QueryLogStore)(nil)

// QueryLogStore implements driven.QueryLogStore on the search_logs table
type QueryLogStore struct {
	db *DB
}

// NewQueryLogStore creates a new QueryLogStore
func NewQueryLogStore(db *DB) *QueryLogStore {
	return &QueryLogStore{db: db}
}

// Append records a search
func (s *QueryLogStore) Append(ctx context.Context, entry domain.QueryLogEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query := `
		INSERT INTO search_logs (session_id, query, top_k, results_count, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.SessionID,
		entry.Query,
		entry.TopK,
		entry.ResultsCount,
		createdAt,
	)
	return unavailable(err)
}

// FetchQueries returns distinct past queries, most recently used first
func (s *QueryLogStore) FetchQueries(ctx context.Context, sessionID string, limit int) ([]string, error) {
	query := `
		SELECT query
		FROM search_logs
		WHERE ($1::text = '' OR session_id = $1::text)
		GROUP BY query
		ORDER BY MAX(created_at) DESC, MAX(id) DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limitArg(limit))
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return queries, nil
}

// DeleteSession removes the log entries of a session
func (s *QueryLogStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM search_logs WHERE session_id = $1`, sessionID)
	return unavailable(err)
}
