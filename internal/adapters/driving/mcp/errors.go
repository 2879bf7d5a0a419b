// Package mcp provides an MCP (Model Context Protocol) server adapter for
// sercha-rag. It lets AI assistants search session documents and read
// index statistics.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")

// ErrEmptyQuery is returned by the search tool for a blank query.
var ErrEmptyQuery = errors.New("mcp: query is required")
