package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// recordNamespace scopes the name-based UUIDs used as record ids
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("sercha-rag/embedding-record"))

// RecordID derives a stable record id from (source path, page, chunk index).
// Re-indexing the same chunk produces the same id, so upserts overwrite.
func RecordID(path string, page, chunkIndex int) string {
	name := path + "#" + strconv.Itoa(page) + "#" + strconv.Itoa(chunkIndex)
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}

// Vector is a fixed-length embedding. Its wire format is a JSON array of floats.
type Vector []float32

// Validate checks the vector has the expected dimension and finite values
func (v Vector) Validate(dim int) error {
	if len(v) != dim {
		return fmt.Errorf("%w: vector has %d dimensions, expected %d", ErrConfiguration, len(v), dim)
	}
	for i, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fmt.Errorf("%w: vector component %d is not finite", ErrInvalidInput, i)
		}
	}
	return nil
}

// Norm returns the euclidean length of v
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Float64 copies v into a float64 slice
func (v Vector) Float64() []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// CosineDistance returns 1 - cos(a, b). Zero-length vectors are treated as
// orthogonal to everything (distance 1). The result is clamped to [0, 2].
func CosineDistance(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	// rounding can push identical vectors just outside [0, 2]
	return math.Min(2, math.Max(0, d))
}

// Metric identifies the similarity metric of a collection
type Metric string

const (
	// MetricCosine is cosine distance in [0, 2]; lower is closer
	MetricCosine Metric = "cosine"
)

// RecordMetadata is the fixed-shape metadata stored with every record
type RecordMetadata struct {
	Title      string `json:"title"`
	Ext        string `json:"ext"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
	SessionID  string `json:"session_id"`
	Path       string `json:"path"`
}

// EmbeddingRecord is a stored (id, vector, text, metadata) tuple
type EmbeddingRecord struct {
	ID       string         `json:"id"`
	Vector   Vector         `json:"vector,omitempty"`
	Text     string         `json:"text,omitempty"`
	Metadata RecordMetadata `json:"metadata"`
}

// NewEmbeddingRecord builds a record for a chunk of the given source file
func NewEmbeddingRecord(file SourceFile, chunk Chunk, vector Vector) EmbeddingRecord {
	return EmbeddingRecord{
		ID:     chunk.RecordID(),
		Vector: vector,
		Text:   chunk.Text,
		Metadata: RecordMetadata{
			Title:      file.Title,
			Ext:        chunk.Extension,
			Page:       chunk.PageNumber,
			ChunkIndex: chunk.ChunkIndex,
			SessionID:  chunk.SessionID,
			Path:       chunk.SourcePath,
		},
	}
}

// Validate checks a record is well-formed before it reaches the index
func (r EmbeddingRecord) Validate(dim int) error {
	if r.ID == "" {
		return fmt.Errorf("%w: record id is required", ErrInvalidInput)
	}
	if r.Metadata.Path == "" {
		return fmt.Errorf("%w: record %s has no path", ErrInvalidInput, r.ID)
	}
	return r.Vector.Validate(dim)
}

// ScoredRecord is a query hit. Score is the collection metric value.
type ScoredRecord struct {
	Record EmbeddingRecord `json:"record"`
	Score  float64         `json:"score"`
}

// Filter restricts index operations to a session.
// An empty SessionID means unscoped.
type Filter struct {
	SessionID string `json:"session_id,omitempty"`
	Path      string `json:"path,omitempty"`
}

// SessionFilter returns a filter for the session, treating the default
// session as unscoped
func SessionFilter(sessionID string) Filter {
	return Filter{SessionID: NormalizeSession(sessionID)}
}

// IsEmpty reports whether the filter matches every record
func (f Filter) IsEmpty() bool {
	return f.SessionID == "" && f.Path == ""
}

// Matches reports whether the metadata satisfies the filter
func (f Filter) Matches(m RecordMetadata) bool {
	if f.SessionID != "" && m.SessionID != f.SessionID {
		return false
	}
	if f.Path != "" && m.Path != f.Path {
		return false
	}
	return true
}

// Include selects which record fields Get returns
type Include struct {
	Vectors bool
	Text    bool
}

// IncludeAll returns every field
func IncludeAll() Include {
	return Include{Vectors: true, Text: true}
}

// SortRecords orders records by session, path, page and chunk index.
func SortRecords(records []EmbeddingRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Metadata, records[j].Metadata
		if a.SessionID != b.SessionID {
			return a.SessionID < b.SessionID
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		return a.ChunkIndex < b.ChunkIndex
	})
}

// SortScored orders hits closest first. Ties break by id.
func SortScored(hits []ScoredRecord) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score < hits[j].Score
		}
		return hits[i].Record.ID < hits[j].Record.ID
	})
}
