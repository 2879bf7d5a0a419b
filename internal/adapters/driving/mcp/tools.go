package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query     string `json:"query" jsonschema:"the question or keywords to search for"`
	SessionID string `json:"session_id,omitempty" jsonschema:"session to search; empty or default searches every session"`
	TopK      int    `json:"top_k,omitempty" jsonschema:"number of results to return (default 5)"`
	Rerank    *bool  `json:"rerank,omitempty" jsonschema:"override the configured re-ranking default"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Query    string               `json:"query"`
	Reranked bool                 `json:"reranked"`
	Count    int                  `json:"count"`
	Results  []SearchResultOutput `json:"results"`
}

// SearchResultOutput represents a single search hit.
type SearchResultOutput struct {
	ID          string   `json:"id"`
	SessionID   string   `json:"session_id"`
	Filename    string   `json:"filename"`
	Page        int      `json:"page"`
	Score       float64  `json:"score"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
	Preview     string   `json:"preview"`
	URL         string   `json:"url,omitempty"`
}

// StatsInput is the input schema for the stats tool.
type StatsInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"session to count; empty or default counts every session"`
}

// StatsOutput is the output schema for the stats tool.
type StatsOutput struct {
	TotalDocs   int            `json:"total_docs"`
	TotalChunks int            `json:"total_chunks"`
	ByExtension map[string]int `json:"by_extension"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search over uploaded documents, optionally scoped to one session",
	}, s.handleSearch)

	if s.ports.Documents != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "stats",
			Description: "Count indexed documents and chunks, overall or for one session",
		}, s.handleStats)
	}
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, ErrEmptyQuery
	}

	opts := domain.SearchOptions{
		SessionID: input.SessionID,
		TopK:      input.TopK,
		Rerank:    input.Rerank,
	}
	result, err := s.ports.Search.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Query:    result.Query,
		Reranked: result.Reranked,
		Count:    len(result.Results),
		Results:  make([]SearchResultOutput, len(result.Results)),
	}
	for i, hit := range result.Results {
		output.Results[i] = SearchResultOutput{
			ID:          hit.ID,
			SessionID:   hit.SessionID,
			Filename:    hit.Filename,
			Page:        hit.Page,
			Score:       hit.Score,
			RerankScore: hit.RerankScore,
			Preview:     hit.Preview,
			URL:         hit.URL,
		}
	}

	return nil, output, nil
}

// handleStats handles the stats tool invocation.
func (s *Server) handleStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input StatsInput,
) (*mcp.CallToolResult, StatsOutput, error) {
	stats, err := s.ports.Documents.Stats(ctx, input.SessionID)
	if err != nil {
		return nil, StatsOutput{}, err
	}

	byExt := stats.ByExtension
	if byExt == nil {
		byExt = map[string]int{}
	}
	return nil, StatsOutput{
		TotalDocs:   stats.TotalDocs,
		TotalChunks: stats.TotalChunks,
		ByExtension: byExt,
	}, nil
}
