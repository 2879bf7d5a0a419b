package vespa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorIndex = (*VectorIndex)(nil)

// visitBatch is how many documents one visit page asks for
const visitBatch = 500

// VectorIndex implements driven.VectorIndex on Vespa. Scores are computed
// client side from the returned embeddings so they are cosine distances
// like every other backend.
type VectorIndex struct {
	baseURL    string
	dims       int
	httpClient *http.Client

	// serializes mutations from this process
	mu sync.Mutex
}

// NewVectorIndex fails with domain.ErrConfiguration on a bad config.
func NewVectorIndex(cfg Config) (*VectorIndex, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: vespa url is required", domain.ErrConfiguration)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: collection dimension must be positive", domain.ErrConfiguration)
	}
	return &VectorIndex{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		dims:       cfg.Dimensions,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type fields struct {
	SessionID  string          `json:"session_id"`
	Path       string          `json:"path"`
	Title      string          `json:"title"`
	Ext        string          `json:"ext"`
	Page       int             `json:"page"`
	ChunkIndex int             `json:"chunk_index"`
	Content    string          `json:"content,omitempty"`
	Embedding  json.RawMessage `json:"embedding,omitempty"`
	RecordID   string          `json:"record_id"`
}

type document struct {
	ID     string `json:"id,omitempty"`
	Fields fields `json:"fields"`
}

func (v *VectorIndex) docURL(id string) string {
	return fmt.Sprintf("%s/document/v1/%s/%s/docid/%s", v.baseURL, namespace, docType, url.PathEscape(id))
}

func toFields(r domain.EmbeddingRecord) (fields, error) {
	emb, err := json.Marshal(map[string][]float32{"values": r.Vector})
	if err != nil {
		return fields{}, err
	}
	m := r.Metadata
	return fields{
		SessionID:  m.SessionID,
		Path:       m.Path,
		Title:      m.Title,
		Ext:        m.Ext,
		Page:       m.Page,
		ChunkIndex: m.ChunkIndex,
		Content:    r.Text,
		Embedding:  emb,
		RecordID:   r.ID,
	}, nil
}

// decodeTensor accepts both the short form (a bare array) and the long
// form ({"values": [...]}) of a dense tensor.
func decodeTensor(raw json.RawMessage) (domain.Vector, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var short []float32
	if err := json.Unmarshal(raw, &short); err == nil {
		return short, nil
	}
	var long struct {
		Values []float32 `json:"values"`
	}
	if err := json.Unmarshal(raw, &long); err != nil {
		return nil, fmt.Errorf("decoding embedding tensor: %w", err)
	}
	return long.Values, nil
}

func (f fields) record(include domain.Include) (domain.EmbeddingRecord, error) {
	r := domain.EmbeddingRecord{
		ID: f.RecordID,
		Metadata: domain.RecordMetadata{
			Title:      f.Title,
			Ext:        f.Ext,
			Page:       f.Page,
			SessionID:  f.SessionID,
			Path:       f.Path,
			ChunkIndex: f.ChunkIndex,
		},
	}
	if include.Text {
		r.Text = f.Content
	}
	if include.Vectors {
		vec, err := decodeTensor(f.Embedding)
		if err != nil {
			return r, err
		}
		r.Vector = vec
	}
	return r, nil
}

// Upsert validates every record, then PUTs them one by one. Vespa PUT
// replaces the whole document, so re-indexing overwrites.
func (v *VectorIndex) Upsert(ctx context.Context, records []domain.EmbeddingRecord) error {
	for _, r := range records {
		if err := r.Validate(v.dims); err != nil {
			return err
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for _, r := range records {
		f, err := toFields(r)
		if err != nil {
			return err
		}
		if err := v.do(ctx, http.MethodPost, v.docURL(r.ID), document{Fields: f}, nil); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", r.ID, err)
		}
	}
	return nil
}

type searchResponse struct {
	Root struct {
		Children []struct {
			Fields fields `json:"fields"`
		} `json:"children"`
	} `json:"root"`
}

// Query runs an approximate nearest neighbour search restricted to the
// filter, then rescores hits by cosine distance.
func (v *VectorIndex) Query(ctx context.Context, vector domain.Vector, k int, filter domain.Filter) ([]domain.ScoredRecord, error) {
	if err := vector.Validate(v.dims); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []domain.ScoredRecord{}, nil
	}

	req := map[string]any{
		"yql":                         queryYQL(k, filter),
		"hits":                        k,
		"ranking.profile":             "closeness",
		"input.query(q)":              vector,
		"presentation.format.tensors": "short-value",
	}
	var resp searchResponse
	if err := v.do(ctx, http.MethodPost, v.baseURL+"/search/", req, &resp); err != nil {
		return nil, err
	}

	hits := make([]domain.ScoredRecord, 0, len(resp.Root.Children))
	for _, child := range resp.Root.Children {
		r, err := child.Fields.record(domain.IncludeAll())
		if err != nil {
			return nil, err
		}
		if !filter.Matches(r.Metadata) || len(r.Vector) != v.dims {
			continue
		}
		hits = append(hits, domain.ScoredRecord{Record: r, Score: domain.CosineDistance(vector, r.Vector)})
	}
	domain.SortScored(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func queryYQL(k int, filter domain.Filter) string {
	conds := []string{fmt.Sprintf("({targetHits:%d}nearestNeighbor(embedding, q))", k)}
	if filter.SessionID != "" {
		conds = append(conds, "session_id contains "+quote(filter.SessionID))
	}
	if filter.Path != "" {
		conds = append(conds, "path contains "+quote(filter.Path))
	}
	return fmt.Sprintf("select * from %s where %s", docType, strings.Join(conds, " and "))
}

// Get fetches documents one by one; missing ids are skipped.
func (v *VectorIndex) Get(ctx context.Context, ids []string, include domain.Include) ([]domain.EmbeddingRecord, error) {
	out := make([]domain.EmbeddingRecord, 0, len(ids))
	for _, id := range ids {
		var doc document
		err := v.do(ctx, http.MethodGet, v.docURL(id)+"?format.tensors=short-value", nil, &doc)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if doc.Fields.RecordID == "" {
			doc.Fields.RecordID = id
		}
		r, err := doc.Fields.record(include)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

type visitResponse struct {
	Documents    []document `json:"documents"`
	Continuation string     `json:"continuation"`
}

// List visits every document matching the filter.
func (v *VectorIndex) List(ctx context.Context, filter domain.Filter, include domain.Include) ([]domain.EmbeddingRecord, error) {
	out := make([]domain.EmbeddingRecord, 0)
	continuation := ""
	for {
		q := url.Values{}
		q.Set("wantedDocumentCount", strconv.Itoa(visitBatch))
		q.Set("format.tensors", "short-value")
		if sel := selection(filter); sel != "" {
			q.Set("selection", sel)
		}
		if continuation != "" {
			q.Set("continuation", continuation)
		}

		var resp visitResponse
		u := fmt.Sprintf("%s/document/v1/%s/%s/docid?%s", v.baseURL, namespace, docType, q.Encode())
		if err := v.do(ctx, http.MethodGet, u, nil, &resp); err != nil {
			return nil, err
		}
		for _, doc := range resp.Documents {
			r, err := doc.Fields.record(include)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		if resp.Continuation == "" {
			break
		}
		continuation = resp.Continuation
	}
	domain.SortRecords(out)
	return out, nil
}

func selection(filter domain.Filter) string {
	var conds []string
	if filter.SessionID != "" {
		conds = append(conds, fmt.Sprintf("%s.session_id==%s", docType, quote(filter.SessionID)))
	}
	if filter.Path != "" {
		conds = append(conds, fmt.Sprintf("%s.path==%s", docType, quote(filter.Path)))
	}
	return strings.Join(conds, " and ")
}

// Delete resolves the affected ids first so it can report a count, then
// removes them. Ids and filter combine as in the other backends.
func (v *VectorIndex) Delete(ctx context.Context, ids []string, filter domain.Filter) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var targets []string
	if len(ids) > 0 {
		found, err := v.Get(ctx, ids, domain.Include{})
		if err != nil {
			return 0, err
		}
		for _, r := range found {
			if filter.Matches(r.Metadata) {
				targets = append(targets, r.ID)
			}
		}
	} else {
		found, err := v.List(ctx, filter, domain.Include{})
		if err != nil {
			return 0, err
		}
		for _, r := range found {
			targets = append(targets, r.ID)
		}
	}

	for i, id := range targets {
		if err := v.do(ctx, http.MethodDelete, v.docURL(id), nil, nil); err != nil && !isNotFound(err) {
			return i, fmt.Errorf("failed to delete record %s: %w", id, err)
		}
	}
	return len(targets), nil
}

func (v *VectorIndex) Stats(ctx context.Context, filter domain.Filter) (*domain.Stats, error) {
	records, err := v.List(ctx, filter, domain.Include{})
	if err != nil {
		return nil, err
	}
	metas := make([]domain.RecordMetadata, len(records))
	for i, r := range records {
		metas[i] = r.Metadata
	}
	return domain.StatsFromMetadata(metas), nil
}

func (v *VectorIndex) Metric() domain.Metric {
	return domain.MetricCosine
}

func (v *VectorIndex) Dimensions() int {
	return v.dims
}

// HealthCheck verifies the container is up
func (v *VectorIndex) HealthCheck(ctx context.Context) error {
	return v.do(ctx, http.MethodGet, v.baseURL+"/state/v1/health", nil, nil)
}

func (v *VectorIndex) Close() error {
	v.httpClient.CloseIdleConnections()
	return nil
}
