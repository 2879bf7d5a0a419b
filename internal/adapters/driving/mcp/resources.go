package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	uriScheme = "sercha://"

	// documentListLimit bounds the session documents resource
	documentListLimit = 500
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	if s.ports.Documents == nil {
		return
	}

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "sessions/{session}/documents",
		Name:        "session-documents",
		Description: "Documents indexed for a session, newest first",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)
}

// handleDocumentsResource lists the indexed documents of one session.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	sessionID := extractSessionID(req.Params.URI)
	if sessionID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	docs, err := s.ports.Documents.List(ctx, sessionID, documentListLimit)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	type docInfo struct {
		Path       string `json:"path"`
		Title      string `json:"title"`
		Ext        string `json:"ext"`
		ChunkCount int    `json:"chunk_count"`
		IndexedAt  string `json:"indexed_at"`
	}

	infos := make([]docInfo, len(docs))
	for i, doc := range docs {
		infos[i] = docInfo{
			Path:       doc.Path,
			Title:      doc.Title,
			Ext:        doc.Ext,
			ChunkCount: doc.ChunkCount,
			IndexedAt:  doc.IndexedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling documents: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractSessionID extracts the session from sercha://sessions/{session}/documents
func extractSessionID(uri string) string {
	rest, ok := strings.CutPrefix(uri, uriScheme+"sessions/")
	if !ok {
		return ""
	}
	session, ok := strings.CutSuffix(rest, "/documents")
	if !ok || session == "" || strings.Contains(session, "/") {
		return ""
	}
	return session
}
