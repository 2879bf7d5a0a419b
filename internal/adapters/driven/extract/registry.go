// Package extract turns uploaded files into page-tagged text.
//
// Extractors never fail: unreadable input is logged and yields no pages,
// so one bad upload cannot abort an indexing run.
package extract

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/normalisers"
)

// Verify interface compliance
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry selects an extractor by file extension.
// When several extractors claim an extension the highest priority wins.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string][]driven.Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string][]driven.Extractor)}
}

// Register adds an extractor for each of its extensions.
func (r *Registry) Register(extractor driven.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ext := range extractor.Extensions() {
		ext = strings.ToLower(strings.TrimPrefix(ext, "."))
		list := append(r.extractors[ext], extractor)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority() > list[j].Priority()
		})
		r.extractors[ext] = list
	}
}

// Get returns the extractor for ext, or nil when unsupported.
func (r *Registry) Get(ext string) driven.Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.extractors[strings.ToLower(strings.TrimPrefix(ext, "."))]
	if len(list) == 0 {
		return nil
	}
	return list[0]
}

// Extensions returns every supported extension, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.extractors))
	for ext := range r.extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supports reports whether a file name has a registered extension.
func (r *Registry) Supports(filename string) bool {
	return r.Get(domain.ExtFromFilename(filename)) != nil
}

// Extract runs the extractor registered for path's extension.
// Unsupported files yield no pages.
func (r *Registry) Extract(ctx context.Context, path string) []domain.Page {
	e := r.Get(domain.ExtFromFilename(path))
	if e == nil {
		return nil
	}
	return e.Extract(ctx, path)
}

// Config configures the default extractor set.
type Config struct {
	// Runner executes pdftotext and tesseract. Defaults to ExecRunner.
	Runner CommandRunner
	// OCRLanguage is passed to tesseract with -l (e.g. "eng+kor")
	OCRLanguage string
	Logger      *slog.Logger
}

// DefaultRegistry registers text, office, pdf and image extractors.
func DefaultRegistry(cfg Config) *Registry {
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	norm := normalisers.DefaultRegistry()

	r := NewRegistry()
	r.Register(NewTextExtractor(norm, cfg.Logger))
	r.Register(NewDocxExtractor(norm, cfg.Logger))
	r.Register(NewPptxExtractor(norm, cfg.Logger))
	r.Register(NewPDFExtractor(cfg.Runner, norm, cfg.Logger))
	r.Register(NewImageExtractor(cfg.Runner, cfg.OCRLanguage, norm, cfg.Logger))
	return r
}
