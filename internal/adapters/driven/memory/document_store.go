package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.IndexedDocumentStore = (*DocumentStore)(nil)

type docKey struct {
	session, path string
}

// DocumentStore keeps indexing bookkeeping in memory.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[docKey]domain.IndexedDocument
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[docKey]domain.IndexedDocument)}
}

func (s *DocumentStore) Get(ctx context.Context, sessionID, path string) (*domain.IndexedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docKey{sessionID, path}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

func (s *DocumentStore) Save(ctx context.Context, doc *domain.IndexedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[docKey{doc.SessionID, doc.Path}] = *doc
	return nil
}

// List returns the most recently indexed documents first.
func (s *DocumentStore) List(ctx context.Context, sessionID string, limit int) ([]*domain.IndexedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.IndexedDocument, 0, len(s.docs))
	for k, doc := range s.docs {
		if sessionID != "" && k.session != sessionID {
			continue
		}
		d := doc
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IndexedAt.Equal(out[j].IndexedAt) {
			return out[i].IndexedAt.After(out[j].IndexedAt)
		}
		return out[i].Path < out[j].Path
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *DocumentStore) Delete(ctx context.Context, sessionID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, docKey{sessionID, path})
	return nil
}

func (s *DocumentStore) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.docs {
		if sessionID == "" || k.session == sessionID {
			delete(s.docs, k)
			n++
		}
	}
	return n, nil
}
