package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

var _ driven.Extractor = (*MockExtractor)(nil)

// MockExtractor returns canned pages per path
type MockExtractor struct {
	mu    sync.Mutex
	pages map[string][]domain.Page
	exts  []string
	calls map[string]int
}

// NewMockExtractor creates an extractor for the given extensions
func NewMockExtractor(exts ...string) *MockExtractor {
	if len(exts) == 0 {
		exts = []string{"txt"}
	}
	return &MockExtractor{
		pages: make(map[string][]domain.Page),
		exts:  exts,
		calls: make(map[string]int),
	}
}

// SetPages sets the pages returned for path
func (m *MockExtractor) SetPages(path string, pages ...domain.Page) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[path] = pages
}

// SetText sets a single page of text for path
func (m *MockExtractor) SetText(path, text string) {
	m.SetPages(path, domain.Page{Number: 1, Text: text})
}

func (m *MockExtractor) Extract(ctx context.Context, path string) []domain.Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[path]++
	return append([]domain.Page(nil), m.pages[path]...)
}

func (m *MockExtractor) Extensions() []string {
	return m.exts
}

func (m *MockExtractor) Priority() int {
	return 50
}

// Calls returns how many times path was extracted
func (m *MockExtractor) Calls(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[path]
}

var _ driven.ExtractorRegistry = (*MockExtractorRegistry)(nil)

// MockExtractorRegistry maps extensions to extractors, last registration wins
type MockExtractorRegistry struct {
	mu         sync.RWMutex
	extractors map[string]driven.Extractor
}

// NewMockExtractorRegistry registers the given extractors
func NewMockExtractorRegistry(extractors ...driven.Extractor) *MockExtractorRegistry {
	r := &MockExtractorRegistry{extractors: make(map[string]driven.Extractor)}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

func (r *MockExtractorRegistry) Get(ext string) driven.Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.extractors[ext]
}

func (r *MockExtractorRegistry) Register(extractor driven.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range extractor.Extensions() {
		r.extractors[ext] = extractor
	}
}

func (r *MockExtractorRegistry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.extractors))
	for ext := range r.extractors {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
