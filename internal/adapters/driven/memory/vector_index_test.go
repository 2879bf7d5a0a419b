package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func record(session, path string, page int, text string, vec ...float32) domain.EmbeddingRecord {
	return domain.EmbeddingRecord{
		ID:     domain.RecordID(path, page, 0),
		Vector: vec,
		Text:   text,
		Metadata: domain.RecordMetadata{
			Title:     domain.TitleFromFilename(path),
			Ext:       domain.ExtFromFilename(path),
			Page:      page,
			SessionID: session,
			Path:      path,
		},
	}
}

func newIndex(t *testing.T) *VectorIndex {
	t.Helper()
	idx, err := NewVectorIndex(3)
	require.NoError(t, err)
	return idx
}

func TestNewVectorIndex_InvalidDimensions(t *testing.T) {
	_, err := NewVectorIndex(0)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestVectorIndex_UpsertIsIdempotentAndOverwrites(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	r := record("s1", "/d/s1/a.txt", 1, "first", 1, 0, 0)
	require.NoError(t, idx.Upsert(ctx, []domain.EmbeddingRecord{r}))
	require.NoError(t, idx.Upsert(ctx, []domain.EmbeddingRecord{r}))

	r.Text = "second"
	r.Vector = domain.Vector{0, 1, 0}
	require.NoError(t, idx.Upsert(ctx, []domain.EmbeddingRecord{r}))

	got, err := idx.Get(ctx, []string{r.ID, "missing"}, domain.IncludeAll())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Text)
	assert.Equal(t, domain.Vector{0, 1, 0}, got[0].Vector)

	stats, _ := idx.Stats(ctx, domain.Filter{})
	assert.Equal(t, 1, stats.TotalChunks)
}

func TestVectorIndex_UpsertRejectsWrongDimension(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	good := record("s1", "/a.txt", 1, "ok", 1, 0, 0)
	bad := record("s1", "/b.txt", 1, "bad", 1, 0)
	err := idx.Upsert(ctx, []domain.EmbeddingRecord{good, bad})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	// Nothing from the failed batch is stored
	stats, _ := idx.Stats(ctx, domain.Filter{})
	assert.Equal(t, 0, stats.TotalChunks)
}

func TestVectorIndex_QueryOrdersByDistance(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []domain.EmbeddingRecord{
		record("s1", "/far.txt", 1, "far", 0, 0, 1),
		record("s1", "/near.txt", 1, "near", 1, 0.1, 0),
		record("s1", "/mid.txt", 1, "mid", 1, 1, 0),
	}))

	hits, err := idx.Query(ctx, domain.Vector{1, 0, 0}, 2, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].Record.Text)
	assert.Equal(t, "mid", hits[1].Record.Text)
	assert.Less(t, hits[0].Score, hits[1].Score)
	assert.NotEmpty(t, hits[0].Record.Vector)
}

func TestVectorIndex_SessionIsolation(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []domain.EmbeddingRecord{
		record("s1", "/d/s1/a.txt", 1, "a", 1, 0, 0),
		record("s2", "/d/s2/b.txt", 1, "b", 1, 0, 0),
	}))

	hits, err := idx.Query(ctx, domain.Vector{1, 0, 0}, 10, domain.SessionFilter("s1"))
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "s1", hits[0].Record.Metadata.SessionID)

	// default session is unscoped
	hits, _ = idx.Query(ctx, domain.Vector{1, 0, 0}, 10, domain.SessionFilter("default"))
	assert.Len(t, hits, 2)
}

func TestVectorIndex_EmptyResultsAreNotErrors(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	hits, err := idx.Query(ctx, domain.Vector{1, 0, 0}, 5, domain.SessionFilter("nobody"))
	require.NoError(t, err)
	assert.Empty(t, hits)

	list, err := idx.List(ctx, domain.SessionFilter("nobody"), domain.Include{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestVectorIndex_DeleteBySessionIsExact(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []domain.EmbeddingRecord{
		record("s1", "/s1/a.txt", 1, "a", 1, 0, 0),
		record("s1", "/s1/a.txt", 2, "a2", 1, 0, 0),
		record("s2", "/s2/b.txt", 1, "b", 0, 1, 0),
	}))

	n, err := idx.Delete(ctx, nil, domain.SessionFilter("s1"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = idx.Delete(ctx, nil, domain.SessionFilter("ghost"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	remaining, _ := idx.List(ctx, domain.Filter{}, domain.IncludeAll())
	require.Len(t, remaining, 1)
	assert.Equal(t, "s2", remaining[0].Metadata.SessionID)
}

func TestVectorIndex_DeleteByIDsAndFullClear(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	a := record("s1", "/a.txt", 1, "a", 1, 0, 0)
	b := record("s1", "/b.txt", 1, "b", 1, 0, 0)
	require.NoError(t, idx.Upsert(ctx, []domain.EmbeddingRecord{a, b}))

	n, err := idx.Delete(ctx, []string{a.ID, "missing"}, domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = idx.Delete(ctx, nil, domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVectorIndex_ListOrderAndInclude(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []domain.EmbeddingRecord{
		record("s1", "/b.txt", 1, "b1", 1, 0, 0),
		record("s1", "/a.txt", 2, "a2", 1, 0, 0),
		record("s1", "/a.txt", 1, "a1", 1, 0, 0),
	}))

	list, err := idx.List(ctx, domain.Filter{}, domain.Include{Text: true})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a1", "a2", "b1"}, []string{list[0].Text, list[1].Text, list[2].Text})
	assert.Nil(t, list[0].Vector)
}

func TestVectorIndex_Stats(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []domain.EmbeddingRecord{
		record("s1", "/s1/a.pdf", 1, "p1", 1, 0, 0),
		record("s1", "/s1/a.pdf", 2, "p2", 1, 0, 0),
		record("s1", "/s1/b.txt", 1, "t", 1, 0, 0),
		record("s2", "/s2/c.txt", 1, "t", 1, 0, 0),
	}))

	stats, err := idx.Stats(ctx, domain.SessionFilter("s1"))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocs)
	assert.Equal(t, 3, stats.TotalChunks)
	assert.Equal(t, map[string]int{"pdf": 1, "txt": 1}, stats.ByExtension)

	all, _ := idx.Stats(ctx, domain.Filter{})
	assert.Equal(t, 3, all.TotalDocs)
}

func TestVectorIndex_ClosedIsUnavailable(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Close())

	_, err := idx.Query(ctx, domain.Vector{1, 0, 0}, 1, domain.Filter{})
	assert.True(t, errors.Is(err, domain.ErrIndexUnavailable))
	assert.ErrorIs(t, idx.HealthCheck(ctx), domain.ErrIndexUnavailable)
	assert.ErrorIs(t, idx.Upsert(ctx, nil), domain.ErrIndexUnavailable)
}

func TestVectorIndex_ConcurrentAccess(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r := record("s1", "/f.txt", i+1, "x", 1, float32(i), 0)
			_ = idx.Upsert(ctx, []domain.EmbeddingRecord{r})
		}(i)
		go func() {
			defer wg.Done()
			_, _ = idx.Query(ctx, domain.Vector{1, 0, 0}, 5, domain.SessionFilter("s1"))
		}()
	}
	wg.Wait()

	stats, _ := idx.Stats(ctx, domain.Filter{})
	assert.Equal(t, 20, stats.TotalChunks)
}
