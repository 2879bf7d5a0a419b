package mcp

import (
	"context"
	"io"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	result   *domain.SearchResult
	err      error
	gotQuery string
	gotOpts  domain.SearchOptions
}

func (m *mockSearchService) Search(_ context.Context, query string, opts domain.SearchOptions) (*domain.SearchResult, error) {
	m.gotQuery, m.gotOpts = query, opts
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &domain.SearchResult{Query: query}, nil
	}
	return m.result, nil
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	stats      *domain.Stats
	documents  []*domain.IndexedDocument
	err        error
	gotSession string
	gotLimit   int
}

func (m *mockDocumentService) Upload(_ context.Context, _, _ string, _ io.Reader) (*domain.UploadResult, error) {
	return nil, m.err
}

func (m *mockDocumentService) Open(_ context.Context, _, _ string) (io.ReadCloser, *domain.SourceFile, error) {
	return nil, nil, domain.ErrNotFound
}

func (m *mockDocumentService) List(_ context.Context, sessionID string, limit int) ([]*domain.IndexedDocument, error) {
	m.gotSession, m.gotLimit = sessionID, limit
	return m.documents, m.err
}

func (m *mockDocumentService) Stats(_ context.Context, sessionID string) (*domain.Stats, error) {
	m.gotSession = sessionID
	return m.stats, m.err
}

func (m *mockDocumentService) DeleteSession(_ context.Context, sessionID string) (*domain.DeleteResult, error) {
	return &domain.DeleteResult{SessionID: sessionID}, m.err
}
