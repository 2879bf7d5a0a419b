package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

var _ driven.VectorIndex = (*MockVectorIndex)(nil)

// MockVectorIndex wraps a real index and injects failures per operation.
// Calls are counted by operation name ("upsert", "query", "delete", ...).
type MockVectorIndex struct {
	inner driven.VectorIndex

	mu        sync.Mutex
	calls     map[string]int
	UpsertErr error
	QueryErr  error
	DeleteErr error
	ReadErr   error // Get, List and Stats
	HealthErr error
}

// NewMockVectorIndex wraps inner
func NewMockVectorIndex(inner driven.VectorIndex) *MockVectorIndex {
	return &MockVectorIndex{inner: inner, calls: make(map[string]int)}
}

// SetUnavailable makes every operation fail with domain.ErrIndexUnavailable
func (m *MockVectorIndex) SetUnavailable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertErr = domain.ErrIndexUnavailable
	m.QueryErr = domain.ErrIndexUnavailable
	m.DeleteErr = domain.ErrIndexUnavailable
	m.ReadErr = domain.ErrIndexUnavailable
	m.HealthErr = domain.ErrIndexUnavailable
}

func (m *MockVectorIndex) record(op string) {
	m.mu.Lock()
	m.calls[op]++
	m.mu.Unlock()
}

func (m *MockVectorIndex) failure(err *error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *err
}

// Calls returns how many times op was invoked
func (m *MockVectorIndex) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockVectorIndex) Upsert(ctx context.Context, records []domain.EmbeddingRecord) error {
	m.record("upsert")
	if err := m.failure(&m.UpsertErr); err != nil {
		return err
	}
	return m.inner.Upsert(ctx, records)
}

func (m *MockVectorIndex) Query(ctx context.Context, vector domain.Vector, k int, filter domain.Filter) ([]domain.ScoredRecord, error) {
	m.record("query")
	if err := m.failure(&m.QueryErr); err != nil {
		return nil, err
	}
	return m.inner.Query(ctx, vector, k, filter)
}

func (m *MockVectorIndex) Get(ctx context.Context, ids []string, include domain.Include) ([]domain.EmbeddingRecord, error) {
	m.record("get")
	if err := m.failure(&m.ReadErr); err != nil {
		return nil, err
	}
	return m.inner.Get(ctx, ids, include)
}

func (m *MockVectorIndex) List(ctx context.Context, filter domain.Filter, include domain.Include) ([]domain.EmbeddingRecord, error) {
	m.record("list")
	if err := m.failure(&m.ReadErr); err != nil {
		return nil, err
	}
	return m.inner.List(ctx, filter, include)
}

func (m *MockVectorIndex) Delete(ctx context.Context, ids []string, filter domain.Filter) (int, error) {
	m.record("delete")
	if err := m.failure(&m.DeleteErr); err != nil {
		return 0, err
	}
	return m.inner.Delete(ctx, ids, filter)
}

func (m *MockVectorIndex) Stats(ctx context.Context, filter domain.Filter) (*domain.Stats, error) {
	m.record("stats")
	if err := m.failure(&m.ReadErr); err != nil {
		return nil, err
	}
	return m.inner.Stats(ctx, filter)
}

func (m *MockVectorIndex) Metric() domain.Metric {
	return m.inner.Metric()
}

func (m *MockVectorIndex) Dimensions() int {
	return m.inner.Dimensions()
}

func (m *MockVectorIndex) HealthCheck(ctx context.Context) error {
	if err := m.failure(&m.HealthErr); err != nil {
		return err
	}
	return m.inner.HealthCheck(ctx)
}

func (m *MockVectorIndex) Close() error {
	return m.inner.Close()
}
