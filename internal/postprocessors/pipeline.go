package postprocessors

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline implements PostProcessorPipeline.
// It chains multiple post-processors in order, starting with a Chunker.
type Pipeline struct {
	mu         sync.RWMutex
	processors []driven.PostProcessor
	sorted     bool
}

// NewPipeline creates a new post-processor pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		processors: make([]driven.PostProcessor, 0),
	}
}

// Add adds a processor to the pipeline.
// Processors are sorted by Order() before processing.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processors = append(p.processors, processor)
	p.sorted = false
}

// Process runs one page of text through every processor in order.
func (p *Pipeline) Process(content string) []driven.Chunk {
	p.mu.Lock()
	if !p.sorted {
		sort.SliceStable(p.processors, func(i, j int) bool {
			return p.processors[i].Order() < p.processors[j].Order()
		})
		p.sorted = true
	}
	processors := make([]driven.PostProcessor, len(p.processors))
	copy(processors, p.processors)
	p.mu.Unlock()

	chunks := []driven.Chunk{{
		Content:   content,
		EndOffset: utf8.RuneCountInString(content),
	}}
	for _, proc := range processors {
		chunks = proc.Process(chunks)
	}
	return chunks
}

// List returns processor names in order.
func (p *Pipeline) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, len(p.processors))
	for i, proc := range p.processors {
		names[i] = proc.Name()
	}
	return names
}

// NewDefaultPipeline builds chunker -> whitespace -> dedup for the config.
func NewDefaultPipeline(config ChunkConfig) (*Pipeline, error) {
	chunker, err := NewChunker(config)
	if err != nil {
		return nil, err
	}
	p := NewPipeline()
	p.Add(chunker)
	p.Add(NewWhitespaceNormalizer())
	p.Add(NewDeduplicator(DefaultDeduplicatorConfig()))
	return p, nil
}

// ChunkConfig configures the chunker behavior. Sizes are in characters (runes).
type ChunkConfig struct {
	MaxChars int `toml:"max_chars"`
	Overlap  int `toml:"overlap"`
}

// DefaultChunkConfig returns 1000 character windows with 200 characters of overlap.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars: 1000,
		Overlap:  200,
	}
}

// Validate checks overlap is in [0, MaxChars).
func (c ChunkConfig) Validate() error {
	if c.MaxChars <= 0 {
		return fmt.Errorf("%w: chunk max_chars must be positive, got %d", domain.ErrConfiguration, c.MaxChars)
	}
	if c.Overlap < 0 || c.Overlap >= c.MaxChars {
		return fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", domain.ErrConfiguration, c.MaxChars, c.Overlap)
	}
	return nil
}

// window is a rune range of a page
type window struct {
	start, end int
}

func windows(runes int, maxChars, overlap int) []window {
	if runes <= maxChars {
		return []window{{0, runes}}
	}
	step := maxChars - overlap
	var out []window
	for start := 0; ; start += step {
		end := start + maxChars
		if end >= runes {
			out = append(out, window{start, runes})
			return out
		}
		out = append(out, window{start, end})
	}
}

// Chunk splits page text into overlapping character windows.
// Text shorter than domain.MinChunkLength (after trimming) yields nothing.
// Windows slide by maxChars-overlap and the last one may be shorter.
func Chunk(text string, maxChars, overlap int) ([]string, error) {
	if err := (ChunkConfig{MaxChars: maxChars, Overlap: overlap}).Validate(); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < domain.MinChunkLength {
		return nil, nil
	}

	runes := []rune(text)
	ws := windows(len(runes), maxChars, overlap)
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = string(runes[w.start:w.end])
	}
	return out, nil
}

// Chunker splits content into overlapping chunks.
// This is the first processor in the pipeline (Order = 0).
type Chunker struct {
	config ChunkConfig
}

// Verify interface compliance
var _ driven.PostProcessor = (*Chunker)(nil)

// NewChunker creates a chunker, failing with domain.ErrConfiguration on bad sizes.
func NewChunker(config ChunkConfig) (*Chunker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{config: config}, nil
}

// Config returns the chunk sizes in use.
func (c *Chunker) Config() ChunkConfig {
	return c.config
}

// Split is Chunk with the configured sizes.
func (c *Chunker) Split(text string) []string {
	out, _ := Chunk(text, c.config.MaxChars, c.config.Overlap)
	return out
}

// Process splits content into chunks. Inputs below the minimum length are dropped.
func (c *Chunker) Process(chunks []driven.Chunk) []driven.Chunk {
	var result []driven.Chunk
	position := 0

	for _, chunk := range chunks {
		if utf8.RuneCountInString(strings.TrimSpace(chunk.Content)) < domain.MinChunkLength {
			continue
		}
		runes := []rune(chunk.Content)
		for _, w := range windows(len(runes), c.config.MaxChars, c.config.Overlap) {
			result = append(result, driven.Chunk{
				Content:     string(runes[w.start:w.end]),
				Position:    position,
				StartOffset: chunk.StartOffset + w.start,
				EndOffset:   chunk.StartOffset + w.end,
			})
			position++
		}
	}

	return result
}

// Name returns the processor name.
func (c *Chunker) Name() string {
	return "chunker"
}

// Order returns 0 - chunker should be first.
func (c *Chunker) Order() int {
	return 0
}

// DeduplicatorConfig configures the deduplicator.
type DeduplicatorConfig struct {
	// MinDuplicateLength is the minimum chunk length to check for duplicates
	MinDuplicateLength int
}

// DefaultDeduplicatorConfig returns sensible defaults.
func DefaultDeduplicatorConfig() DeduplicatorConfig {
	return DeduplicatorConfig{
		MinDuplicateLength: domain.MinChunkLength,
	}
}

// Deduplicator removes repeated chunks within a page (running headers, boilerplate).
// Positions are renumbered so chunk indexes stay dense.
type Deduplicator struct {
	config DeduplicatorConfig
}

// Verify interface compliance
var _ driven.PostProcessor = (*Deduplicator)(nil)

// NewDeduplicator creates a new deduplicator with the given config.
func NewDeduplicator(config DeduplicatorConfig) *Deduplicator {
	return &Deduplicator{config: config}
}

// Process removes duplicate chunks.
func (d *Deduplicator) Process(chunks []driven.Chunk) []driven.Chunk {
	if len(chunks) <= 1 {
		return chunks
	}

	seen := make(map[string]bool)
	result := make([]driven.Chunk, 0, len(chunks))

	for _, chunk := range chunks {
		if utf8.RuneCountInString(chunk.Content) >= d.config.MinDuplicateLength {
			normalized := strings.TrimSpace(strings.ToLower(chunk.Content))
			if seen[normalized] {
				continue
			}
			seen[normalized] = true
		}
		chunk.Position = len(result)
		result = append(result, chunk)
	}

	return result
}

// Name returns the processor name.
func (d *Deduplicator) Name() string {
	return "deduplicator"
}

// Order returns 10 - deduplicator runs after chunker.
func (d *Deduplicator) Order() int {
	return 10
}

// WhitespaceNormalizer collapses runs of spaces and blank lines in chunks.
type WhitespaceNormalizer struct{}

// Verify interface compliance
var _ driven.PostProcessor = (*WhitespaceNormalizer)(nil)

// NewWhitespaceNormalizer creates a new whitespace normalizer.
func NewWhitespaceNormalizer() *WhitespaceNormalizer {
	return &WhitespaceNormalizer{}
}

// Process normalizes whitespace and drops chunks left empty.
func (w *WhitespaceNormalizer) Process(chunks []driven.Chunk) []driven.Chunk {
	result := make([]driven.Chunk, 0, len(chunks))

	for _, chunk := range chunks {
		content := NormalizeWhitespace(chunk.Content)
		if content == "" {
			continue
		}
		chunk.Content = content
		chunk.Position = len(result)
		result = append(result, chunk)
	}

	return result
}

// NormalizeWhitespace unifies line endings, collapses spaces within lines
// and squeezes runs of blank lines to one.
func NormalizeWhitespace(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	content = strings.Join(lines, "\n")

	for strings.Contains(content, "\n\n\n") {
		content = strings.ReplaceAll(content, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(content)
}

// Name returns the processor name.
func (w *WhitespaceNormalizer) Name() string {
	return "whitespace-normalizer"
}

// Order returns 5 - runs between chunker and deduplicator.
func (w *WhitespaceNormalizer) Order() int {
	return 5
}
