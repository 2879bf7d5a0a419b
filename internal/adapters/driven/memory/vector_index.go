// Package memory holds in-process implementations of the storage ports,
// used for tests and single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is a brute-force cosine index guarded by a RWMutex.
// Mutations take the write lock, so each call is atomic.
type VectorIndex struct {
	mu         sync.RWMutex
	dimensions int
	records    map[string]domain.EmbeddingRecord
	closed     bool
}

// NewVectorIndex creates an empty index for vectors of the given dimension.
func NewVectorIndex(dimensions int) (*VectorIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: index dimensions must be positive", domain.ErrConfiguration)
	}
	return &VectorIndex{
		dimensions: dimensions,
		records:    make(map[string]domain.EmbeddingRecord),
	}, nil
}

func (v *VectorIndex) Upsert(ctx context.Context, records []domain.EmbeddingRecord) error {
	for _, r := range records {
		if err := r.Validate(v.dimensions); err != nil {
			return err
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return domain.ErrIndexUnavailable
	}
	for _, r := range records {
		r.Vector = append(domain.Vector(nil), r.Vector...)
		v.records[r.ID] = r
	}
	return nil
}

func (v *VectorIndex) Query(ctx context.Context, vector domain.Vector, k int, filter domain.Filter) ([]domain.ScoredRecord, error) {
	if err := vector.Validate(v.dimensions); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, domain.ErrIndexUnavailable
	}
	if k <= 0 {
		return []domain.ScoredRecord{}, nil
	}

	hits := make([]domain.ScoredRecord, 0, len(v.records))
	for _, r := range v.records {
		if !filter.Matches(r.Metadata) {
			continue
		}
		hits = append(hits, domain.ScoredRecord{
			Record: copyRecord(r, domain.IncludeAll()),
			Score:  domain.CosineDistance(vector, r.Vector),
		})
	}
	domain.SortScored(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (v *VectorIndex) Get(ctx context.Context, ids []string, include domain.Include) ([]domain.EmbeddingRecord, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, domain.ErrIndexUnavailable
	}

	out := make([]domain.EmbeddingRecord, 0, len(ids))
	for _, id := range ids {
		if r, ok := v.records[id]; ok {
			out = append(out, copyRecord(r, include))
		}
	}
	return out, nil
}

func (v *VectorIndex) List(ctx context.Context, filter domain.Filter, include domain.Include) ([]domain.EmbeddingRecord, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, domain.ErrIndexUnavailable
	}

	out := make([]domain.EmbeddingRecord, 0)
	for _, r := range v.records {
		if filter.Matches(r.Metadata) {
			out = append(out, copyRecord(r, include))
		}
	}
	domain.SortRecords(out)
	return out, nil
}

func (v *VectorIndex) Delete(ctx context.Context, ids []string, filter domain.Filter) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, domain.ErrIndexUnavailable
	}

	deleted := 0
	if len(ids) > 0 {
		for _, id := range ids {
			if r, ok := v.records[id]; ok && filter.Matches(r.Metadata) {
				delete(v.records, id)
				deleted++
			}
		}
		return deleted, nil
	}

	for id, r := range v.records {
		if filter.Matches(r.Metadata) {
			delete(v.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (v *VectorIndex) Stats(ctx context.Context, filter domain.Filter) (*domain.Stats, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, domain.ErrIndexUnavailable
	}

	metas := make([]domain.RecordMetadata, 0, len(v.records))
	for _, r := range v.records {
		if filter.Matches(r.Metadata) {
			metas = append(metas, r.Metadata)
		}
	}
	return domain.StatsFromMetadata(metas), nil
}

func (v *VectorIndex) Metric() domain.Metric {
	return domain.MetricCosine
}

func (v *VectorIndex) Dimensions() int {
	return v.dimensions
}

func (v *VectorIndex) HealthCheck(ctx context.Context) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return domain.ErrIndexUnavailable
	}
	return nil
}

// Close drops all records; further calls fail with ErrIndexUnavailable.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.records = nil
	return nil
}

func copyRecord(r domain.EmbeddingRecord, include domain.Include) domain.EmbeddingRecord {
	out := domain.EmbeddingRecord{ID: r.ID, Metadata: r.Metadata}
	if include.Vectors {
		out.Vector = append(domain.Vector(nil), r.Vector...)
	}
	if include.Text {
		out.Text = r.Text
	}
	return out
}
