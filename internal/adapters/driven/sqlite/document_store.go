package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// documentStore implements driven.IndexedDocumentStore.
type documentStore struct {
	db *sql.DB
}

var _ driven.IndexedDocumentStore = (*documentStore)(nil)

const documentColumns = `session_id, path, title, ext, content_hash, chunk_count, indexed_at`

func (s *documentStore) Get(ctx context.Context, sessionID, path string) (*domain.IndexedDocument, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM indexed_documents WHERE session_id = ? AND path = ?
	`, sessionID, path)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, notFound(err, path)
	}
	return doc, nil
}

func (s *documentStore) Save(ctx context.Context, doc *domain.IndexedDocument) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexed_documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, path) DO UPDATE SET
			title = excluded.title,
			ext = excluded.ext,
			content_hash = excluded.content_hash,
			chunk_count = excluded.chunk_count,
			indexed_at = excluded.indexed_at
	`, doc.SessionID, doc.Path, doc.Title, doc.Ext, doc.ContentHash, doc.ChunkCount, toUnix(doc.IndexedAt))
	if err != nil {
		return fmt.Errorf("saving indexed document: %w", err)
	}
	return nil
}

func (s *documentStore) List(ctx context.Context, sessionID string, limit int) ([]*domain.IndexedDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM indexed_documents
		WHERE ?1 = '' OR session_id = ?1
		ORDER BY indexed_at DESC, session_id, path
		LIMIT ?2
	`, sessionID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("listing indexed documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*domain.IndexedDocument, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating indexed documents: %w", err)
	}
	return docs, nil
}

func (s *documentStore) Delete(ctx context.Context, sessionID, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM indexed_documents WHERE session_id = ? AND path = ?`, sessionID, path)
	if err != nil {
		return fmt.Errorf("deleting indexed document: %w", err)
	}
	return nil
}

func (s *documentStore) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM indexed_documents WHERE ?1 = '' OR session_id = ?1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("deleting session documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.IndexedDocument, error) {
	var doc domain.IndexedDocument
	var indexedAt int64
	err := row.Scan(&doc.SessionID, &doc.Path, &doc.Title, &doc.Ext, &doc.ContentHash, &doc.ChunkCount, &indexedAt)
	if err != nil {
		return nil, err
	}
	doc.IndexedAt = fromUnix(indexedAt)
	return &doc, nil
}
