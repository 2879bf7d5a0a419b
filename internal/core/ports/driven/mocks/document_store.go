package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

var _ driven.IndexedDocumentStore = (*MockIndexedDocumentStore)(nil)

// MockIndexedDocumentStore is an in-memory bookkeeping store
type MockIndexedDocumentStore struct {
	mu       sync.RWMutex
	docs     map[string]*domain.IndexedDocument
	FailWith error
}

func NewMockIndexedDocumentStore() *MockIndexedDocumentStore {
	return &MockIndexedDocumentStore{docs: make(map[string]*domain.IndexedDocument)}
}

func docKey(sessionID, path string) string {
	return sessionID + "\x00" + path
}

func (m *MockIndexedDocumentStore) Get(ctx context.Context, sessionID, path string) (*domain.IndexedDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	doc, ok := m.docs[docKey(sessionID, path)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (m *MockIndexedDocumentStore) Save(ctx context.Context, doc *domain.IndexedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	copied := *doc
	m.docs[docKey(doc.SessionID, doc.Path)] = &copied
	return nil
}

func (m *MockIndexedDocumentStore) List(ctx context.Context, sessionID string, limit int) ([]*domain.IndexedDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	var out []*domain.IndexedDocument
	for _, doc := range m.docs {
		if sessionID == "" || doc.SessionID == sessionID {
			copied := *doc
			out = append(out, &copied)
		}
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

func (m *MockIndexedDocumentStore) Delete(ctx context.Context, sessionID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	delete(m.docs, docKey(sessionID, path))
	return nil
}

func (m *MockIndexedDocumentStore) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return 0, m.FailWith
	}
	n := 0
	for k, doc := range m.docs {
		if sessionID == "" || doc.SessionID == sessionID {
			delete(m.docs, k)
			n++
		}
	}
	return n, nil
}

// Count returns the number of rows (for test assertions)
func (m *MockIndexedDocumentStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}
