package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

var _ driven.Reranker = (*MockReranker)(nil)

// MockReranker scores passages with ScoreFn, or by passage length when unset
type MockReranker struct {
	mu      sync.Mutex
	ScoreFn func(query string, passages []string) ([]float64, error)
	calls   int
}

func NewMockReranker() *MockReranker {
	return &MockReranker{}
}

func (m *MockReranker) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	m.mu.Lock()
	m.calls++
	fn := m.ScoreFn
	m.mu.Unlock()

	if fn != nil {
		return fn(query, passages)
	}
	scores := make([]float64, len(passages))
	for i, p := range passages {
		scores[i] = float64(len(p))
	}
	return scores, nil
}

func (m *MockReranker) Model() string {
	return "mock-reranker"
}

func (m *MockReranker) Close() error {
	return nil
}

// CallCount returns how many times Score was called
func (m *MockReranker) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
