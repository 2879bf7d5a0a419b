package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func TestServer_handleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns search results", func(t *testing.T) {
		rerank := 0.87
		mockSearch := &mockSearchService{
			result: &domain.SearchResult{
				Query:    "quick fox",
				Reranked: true,
				Results: []domain.SearchHit{
					{
						ID:          "rec-1",
						SessionID:   "s1",
						Filename:    "intro.txt",
						Page:        1,
						Score:       0.21,
						RerankScore: &rerank,
						Preview:     "The quick brown fox",
						URL:         "http://localhost:8080/files/s1/intro.txt",
					},
				},
			},
		}

		server, err := NewServer(&Ports{Search: mockSearch})
		require.NoError(t, err)

		keep := false
		_, output, err := server.handleSearch(ctx, nil, SearchInput{
			Query:     "quick fox",
			SessionID: "s1",
			TopK:      3,
			Rerank:    &keep,
		})

		require.NoError(t, err)
		assert.Equal(t, "quick fox", mockSearch.gotQuery)
		assert.Equal(t, "s1", mockSearch.gotOpts.SessionID)
		assert.Equal(t, 3, mockSearch.gotOpts.TopK)
		require.NotNil(t, mockSearch.gotOpts.Rerank)
		assert.False(t, *mockSearch.gotOpts.Rerank)

		assert.True(t, output.Reranked)
		assert.Equal(t, 1, output.Count)
		require.Len(t, output.Results, 1)
		hit := output.Results[0]
		assert.Equal(t, "rec-1", hit.ID)
		assert.Equal(t, "intro.txt", hit.Filename)
		assert.Equal(t, 0.21, hit.Score)
		require.NotNil(t, hit.RerankScore)
		assert.Equal(t, 0.87, *hit.RerankScore)
		assert.Equal(t, "The quick brown fox", hit.Preview)
	})

	t.Run("empty result", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{}})
		require.NoError(t, err)

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "nothing"})
		require.NoError(t, err)
		assert.Equal(t, 0, output.Count)
		assert.Empty(t, output.Results)
	})

	t.Run("blank query is rejected", func(t *testing.T) {
		mockSearch := &mockSearchService{}
		server, err := NewServer(&Ports{Search: mockSearch})
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "   "})
		assert.ErrorIs(t, err, ErrEmptyQuery)
		assert.Empty(t, mockSearch.gotQuery)
	})

	t.Run("returns error on search failure", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{err: domain.ErrIndexUnavailable}})
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "fox"})
		assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	})
}

func TestServer_handleStats(t *testing.T) {
	ctx := context.Background()

	t.Run("returns counts", func(t *testing.T) {
		docs := &mockDocumentService{stats: &domain.Stats{
			TotalDocs:   2,
			TotalChunks: 9,
			ByExtension: map[string]int{"pdf": 1, "txt": 1},
		}}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Documents: docs})
		require.NoError(t, err)

		_, output, err := server.handleStats(ctx, nil, StatsInput{SessionID: "s2"})
		require.NoError(t, err)
		assert.Equal(t, "s2", docs.gotSession)
		assert.Equal(t, 2, output.TotalDocs)
		assert.Equal(t, 9, output.TotalChunks)
		assert.Equal(t, map[string]int{"pdf": 1, "txt": 1}, output.ByExtension)
	})

	t.Run("nil extension map becomes empty", func(t *testing.T) {
		docs := &mockDocumentService{stats: &domain.Stats{}}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Documents: docs})
		require.NoError(t, err)

		_, output, err := server.handleStats(ctx, nil, StatsInput{})
		require.NoError(t, err)
		assert.NotNil(t, output.ByExtension)
	})

	t.Run("returns error on failure", func(t *testing.T) {
		docs := &mockDocumentService{err: errors.New("index down")}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Documents: docs})
		require.NoError(t, err)

		_, _, err = server.handleStats(ctx, nil, StatsInput{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "index down")
	})
}
