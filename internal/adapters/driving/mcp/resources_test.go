package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func TestExtractSessionID(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		expected string
	}{
		{
			name:     "valid session documents URI",
			uri:      "sercha://sessions/s1/documents",
			expected: "s1",
		},
		{
			name:     "invalid prefix",
			uri:      "file://sessions/s1/documents",
			expected: "",
		},
		{
			name:     "missing documents suffix",
			uri:      "sercha://sessions/s1",
			expected: "",
		},
		{
			name:     "empty session",
			uri:      "sercha://sessions//documents",
			expected: "",
		},
		{
			name:     "nested path",
			uri:      "sercha://sessions/a/b/documents",
			expected: "",
		},
		{
			name:     "empty URI",
			uri:      "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractSessionID(tt.uri))
		})
	}
}

func readRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestServer_handleDocumentsResource(t *testing.T) {
	ctx := context.Background()
	indexedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("lists session documents", func(t *testing.T) {
		docs := &mockDocumentService{documents: []*domain.IndexedDocument{
			{SessionID: "s1", Path: "s1/intro.txt", Title: "intro", Ext: "txt", ChunkCount: 3, IndexedAt: indexedAt},
		}}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Documents: docs})
		require.NoError(t, err)

		uri := "sercha://sessions/s1/documents"
		result, err := server.handleDocumentsResource(ctx, readRequest(uri))
		require.NoError(t, err)
		assert.Equal(t, "s1", docs.gotSession)
		assert.Equal(t, documentListLimit, docs.gotLimit)

		require.Len(t, result.Contents, 1)
		assert.Equal(t, uri, result.Contents[0].URI)
		assert.Equal(t, "application/json", result.Contents[0].MIMEType)

		var listed []map[string]any
		require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &listed))
		require.Len(t, listed, 1)
		assert.Equal(t, "intro", listed[0]["title"])
		assert.Equal(t, "2026-03-01T12:00:00Z", listed[0]["indexed_at"])
	})

	t.Run("bad URI is not found", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Documents: &mockDocumentService{}})
		require.NoError(t, err)

		_, err = server.handleDocumentsResource(ctx, readRequest("sercha://sessions/s1"))
		require.Error(t, err)
	})

	t.Run("list failure is returned", func(t *testing.T) {
		docs := &mockDocumentService{err: errors.New("db down")}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Documents: docs})
		require.NoError(t, err)

		_, err = server.handleDocumentsResource(ctx, readRequest("sercha://sessions/s1/documents"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "listing documents")
	})
}
