package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// queryLog implements driven.QueryLogStore.
type queryLog struct {
	db *sql.DB
}

var _ driven.QueryLogStore = (*queryLog)(nil)

func (l *queryLog) Append(ctx context.Context, entry domain.QueryLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO search_logs (session_id, query, top_k, results_count, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.SessionID, entry.Query, entry.TopK, entry.ResultsCount, toUnix(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("appending search log: %w", err)
	}
	return nil
}

// FetchQueries returns distinct queries ordered by their latest use.
func (l *queryLog) FetchQueries(ctx context.Context, sessionID string, limit int) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT query
		FROM search_logs
		WHERE ?1 = '' OR session_id = ?1
		GROUP BY query
		ORDER BY MAX(created_at) DESC, MAX(id) DESC
		LIMIT ?2
	`, sessionID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("fetching search log: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (l *queryLog) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM search_logs WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("deleting search log: %w", err)
	}
	return nil
}
