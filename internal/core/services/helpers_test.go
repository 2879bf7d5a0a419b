package services

import (
	"context"
	"strings"
	"testing"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/memory"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors"
	"github.com/custodia-labs/sercha-rag/internal/runtime"
)

// createTestServices creates runtime services for testing
func createTestServices(embeddingService *mocks.MockEmbeddingService) *runtime.Services {
	config := domain.NewRuntimeConfig("memory", "memory")
	services := runtime.NewServices(config)
	if embeddingService != nil {
		_ = services.SetEmbeddingService(embeddingService)
	}
	return services
}

// testEnv wires the indexing and retrieval pipeline over in-memory doubles
type testEnv struct {
	files     *mocks.MockFileStore
	extractor *mocks.MockExtractor
	embedding *mocks.MockEmbeddingService
	index     *mocks.MockVectorIndex
	documents *mocks.MockIndexedDocumentStore
	queryLog  *mocks.MockQueryLogStore
	lock      *mocks.MockDistributedLock
	services  *runtime.Services
	embedder  *Embedder
	indexer   *Indexer
	retriever *Retriever
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	embedding := mocks.NewMockEmbeddingService()
	inner, err := memory.NewVectorIndex(embedding.Dimensions())
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	pipeline, err := postprocessors.NewDefaultPipeline(postprocessors.DefaultChunkConfig())
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}

	env := &testEnv{
		files:     mocks.NewMockFileStore(),
		extractor: mocks.NewMockExtractor("txt", "md", "pdf"),
		embedding: embedding,
		index:     mocks.NewMockVectorIndex(inner),
		documents: mocks.NewMockIndexedDocumentStore(),
		queryLog:  mocks.NewMockQueryLogStore(),
		lock:      mocks.NewMockDistributedLock(),
		services:  createTestServices(embedding),
	}
	env.embedder = NewEmbedder(EmbedderConfig{Services: env.services, BatchSize: 4})
	env.indexer = NewIndexer(IndexerConfig{
		Files:      env.files,
		Extractors: mocks.NewMockExtractorRegistry(env.extractor),
		Pipeline:   pipeline,
		Embedder:   env.embedder,
		Index:      env.index,
		Documents:  env.documents,
		Lock:       env.lock,
	})
	env.retriever = NewRetriever(RetrieverConfig{
		Index:    env.index,
		Embedder: env.embedder,
		Services: env.services,
	})
	return env
}

// addFile stores a file and makes the extractor return text as one page
func (e *testEnv) addFile(session, name, text string) string {
	path := e.files.Put(session, name, text)
	e.extractor.SetText(path, text)
	return path
}

func (e *testEnv) reindex(t *testing.T, session string, mode domain.IndexMode) *domain.IndexResult {
	t.Helper()
	result, err := e.indexer.Reindex(context.Background(), session, mode)
	if err != nil {
		t.Fatalf("reindex %s failed: %v", session, err)
	}
	return result
}

// longText repeats a sentence until it is past the minimum chunk length
func longText(sentence string) string {
	return strings.Repeat(sentence+" ", 3)
}
