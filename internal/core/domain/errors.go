package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration indicates invalid chunking parameters, a mismatched
	// embedding dimension or a metric that differs from the collection's.
	// Fatal at startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrEmbedding indicates the embedding model is unavailable or the input
	// batch is malformed
	ErrEmbedding = errors.New("embedding error")

	// ErrIndexUnavailable indicates the vector index backend is unreachable.
	// Callers decide whether to retry.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrIndexInProgress indicates an indexing run already holds the session
	ErrIndexInProgress = errors.New("indexing already in progress")

	// ErrUnsupportedFormat indicates no extractor handles the file extension
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrUnauthorized indicates a missing file link token
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExpired indicates the file link token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the file link token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")

	// ErrServiceUnavailable indicates an optional collaborator could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)
