package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.IndexedDocumentStore = (*DocumentStore)(nil)

// DocumentStore implements driven.IndexedDocumentStore using PostgreSQL
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new DocumentStore
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Get retrieves the bookkeeping row for a file
func (s *DocumentStore) Get(ctx context.Context, sessionID, path string) (*domain.IndexedDocument, error) {
	query := `
		SELECT session_id, path, title, ext, content_hash, chunk_count, indexed_at
		FROM indexed_documents
		WHERE session_id = $1 AND path = $2
	`

	var doc domain.IndexedDocument
	err := s.db.QueryRowContext(ctx, query, sessionID, path).Scan(
		&doc.SessionID,
		&doc.Path,
		&doc.Title,
		&doc.Ext,
		&doc.ContentHash,
		&doc.ChunkCount,
		&doc.IndexedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &doc, nil
}

// Save creates or updates the row for a file
func (s *DocumentStore) Save(ctx context.Context, doc *domain.IndexedDocument) error {
	query := `
		INSERT INTO indexed_documents (session_id, path, title, ext, content_hash, chunk_count, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, path) DO UPDATE SET
			title = EXCLUDED.title,
			ext = EXCLUDED.ext,
			content_hash = EXCLUDED.content_hash,
			chunk_count = EXCLUDED.chunk_count,
			indexed_at = EXCLUDED.indexed_at
	`

	_, err := s.db.ExecContext(ctx, query,
		doc.SessionID,
		doc.Path,
		doc.Title,
		doc.Ext,
		doc.ContentHash,
		doc.ChunkCount,
		doc.IndexedAt,
	)
	return unavailable(err)
}

// List returns rows for a session (all sessions when empty), newest first
func (s *DocumentStore) List(ctx context.Context, sessionID string, limit int) ([]*domain.IndexedDocument, error) {
	query := `
		SELECT session_id, path, title, ext, content_hash, chunk_count, indexed_at
		FROM indexed_documents
		WHERE ($1::text = '' OR session_id = $1::text)
		ORDER BY indexed_at DESC, path ASC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limitArg(limit))
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var docs []*domain.IndexedDocument
	for rows.Next() {
		var doc domain.IndexedDocument
		err := rows.Scan(
			&doc.SessionID,
			&doc.Path,
			&doc.Title,
			&doc.Ext,
			&doc.ContentHash,
			&doc.ChunkCount,
			&doc.IndexedAt,
		)
		if err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}

	return docs, nil
}

// Delete removes the row for a file. A missing row is not an error.
func (s *DocumentStore) Delete(ctx context.Context, sessionID, path string) error {
	query := `DELETE FROM indexed_documents WHERE session_id = $1 AND path = $2`
	_, err := s.db.ExecContext(ctx, query, sessionID, path)
	return unavailable(err)
}

// DeleteSession removes all rows of a session (all rows when empty)
func (s *DocumentStore) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	query := `DELETE FROM indexed_documents WHERE ($1::text = '' OR session_id = $1::text)`
	result, err := s.db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return 0, unavailable(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rowsAffected), nil
}

// limitArg maps a non-positive limit to NULL, which Postgres treats as LIMIT ALL
func limitArg(limit int) sql.NullInt64 {
	if limit <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(limit), Valid: true}
}
