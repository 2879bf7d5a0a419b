package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// Extractor turns a file into page-tagged text.
// Extract never fails: unreadable or corrupt input yields an empty slice.
type Extractor interface {
	// Extract returns the pages of the file in order
	Extract(ctx context.Context, path string) []domain.Page

	// Extensions returns the lower-cased extensions (without dot) handled
	Extensions() []string

	// Priority returns the extractor priority (higher = more specific)
	Priority() int
}

// ExtractorRegistry selects an extractor by file extension
type ExtractorRegistry interface {
	// Get returns the highest priority extractor for ext, or nil
	Get(ext string) Extractor

	// Register registers an extractor
	Register(extractor Extractor)

	// Extensions returns every supported extension, sorted
	Extensions() []string
}

// Normaliser cleans extracted text for indexing.
type Normaliser interface {
	// Normalise transforms raw content into normalized text.
	// The mimeType helps determine the appropriate processing.
	Normalise(content string, mimeType string) string

	// SupportedTypes returns MIME types this normaliser handles.
	// Can include wildcards like "text/*" or specific types like "text/markdown".
	SupportedTypes() []string

	// Priority returns the normaliser priority (higher = more specific).
	// Priority ranges:
	//   50-89:  Format-specific (Markdown, HTML)
	//   1-9:    Fallback (raw text)
	Priority() int
}

// NormaliserRegistry manages content normalisers.
// When multiple normalisers match a MIME type, the highest priority one is used.
type NormaliserRegistry interface {
	// Get retrieves the best-matching normaliser for a MIME type.
	// Returns nil if no normaliser is registered for the type.
	Get(mimeType string) Normaliser

	// GetAll retrieves all normalisers that match a MIME type, sorted by priority (highest first).
	GetAll(mimeType string) []Normaliser

	// Register registers a normaliser.
	Register(normaliser Normaliser)

	// List returns all registered MIME types.
	List() []string
}

// PostProcessor applies post-processing to page chunks.
// Processors form a pipeline: Chunker -> WhitespaceNormalizer -> Deduplicator.
type PostProcessor interface {
	// Process applies post-processing to content chunks.
	// The first processor (Chunker) receives a single chunk with the full page.
	// Subsequent processors receive the chunks from the previous stage.
	Process(chunks []Chunk) []Chunk

	// Name returns the processor name for logging/debugging.
	Name() string

	// Order returns the processor order in the pipeline (lower = earlier).
	Order() int
}

// Chunk is a piece of page text moving through the pipeline.
type Chunk struct {
	// Content is the text content of the chunk
	Content string

	// Position is the chunk index within the page (0-based)
	Position int

	// StartOffset is the rune offset from page start
	StartOffset int

	// EndOffset is the rune offset for chunk end
	EndOffset int
}

// PostProcessorPipeline chains multiple post-processors in order.
type PostProcessorPipeline interface {
	// Process applies all processors in order to one page of text.
	Process(content string) []Chunk

	// Add adds a processor to the pipeline.
	Add(processor PostProcessor)

	// List returns processor names in order.
	List() []string
}
