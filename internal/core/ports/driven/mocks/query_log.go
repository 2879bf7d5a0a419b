package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

var _ driven.QueryLogStore = (*MockQueryLogStore)(nil)

// MockQueryLogStore keeps the search log in memory
type MockQueryLogStore struct {
	mu       sync.Mutex
	entries  []domain.QueryLogEntry
	FailWith error
}

func NewMockQueryLogStore() *MockQueryLogStore {
	return &MockQueryLogStore{}
}

func (m *MockQueryLogStore) Append(ctx context.Context, entry domain.QueryLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockQueryLogStore) FetchQueries(ctx context.Context, sessionID string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	seen := make(map[string]bool)
	var out []string
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if sessionID != "" && e.SessionID != sessionID {
			continue
		}
		if seen[e.Query] {
			continue
		}
		seen[e.Query] = true
		out = append(out, e.Query)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockQueryLogStore) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.SessionID != sessionID {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return nil
}

// Entries returns a copy of the logged searches
func (m *MockQueryLogStore) Entries() []domain.QueryLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.QueryLogEntry(nil), m.entries...)
}
