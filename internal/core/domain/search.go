package domain

import (
	"strings"
	"time"
)

const (
	// DefaultTopK is the number of results returned after re-ranking
	DefaultTopK = 5
	// DefaultCandidateK is the stage-1 candidate pool size
	DefaultCandidateK = 15
	// MaxCandidateK bounds the stage-1 pool and therefore rerank cost
	MaxCandidateK = 100
	// PreviewLength is the number of characters kept in a result preview
	PreviewLength = 200
)

// SearchOptions configures a search request
type SearchOptions struct {
	SessionID  string `json:"session_id"`
	TopK       int    `json:"top_k"`
	CandidateK int    `json:"candidate_k"`
	// Rerank overrides the configured default when non-nil
	Rerank *bool `json:"rerank,omitempty"`
}

// DefaultSearchOptions returns sensible defaults
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		TopK:       DefaultTopK,
		CandidateK: DefaultCandidateK,
	}
}

// Normalize applies defaults and bounds. CandidateK never drops below TopK.
func (o SearchOptions) Normalize() SearchOptions {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.CandidateK <= 0 {
		o.CandidateK = DefaultCandidateK
	}
	if o.TopK > MaxCandidateK {
		o.TopK = MaxCandidateK
	}
	if o.CandidateK > MaxCandidateK {
		o.CandidateK = MaxCandidateK
	}
	if o.TopK > o.CandidateK {
		o.CandidateK = o.TopK
	}
	o.SessionID = NormalizeSession(o.SessionID)
	return o
}

// Point3D is a coordinate in the visualization space
type Point3D [3]float64

// Candidate is a stage-1 hit carried through re-ranking
type Candidate struct {
	Record      EmbeddingRecord
	Distance    float64
	RerankScore *float64
	// Rank is the stage-1 position; it orders candidates with equal rerank scores
	Rank int
}

// Retrieval is the ordered output of the two-stage retriever
type Retrieval struct {
	QueryVector Vector
	Candidates  []Candidate
	Reranked    bool
}

// SearchHit is one ranked result of a search
type SearchHit struct {
	ID          string   `json:"id"`
	Filename    string   `json:"filename"`
	Ext         string   `json:"ext"`
	Page        int      `json:"page"`
	Score       float64  `json:"score"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
	Vector3D    Point3D  `json:"vector_3d"`
	Preview     string   `json:"preview"`
	URL         string   `json:"url"`
	SessionID   string   `json:"session_id"`
}

// SearchResult represents the result of a search query.
// It is rebuilt on every request and never persisted.
type SearchResult struct {
	Query         string        `json:"query"`
	QueryVector3D Point3D       `json:"query_vector_3d"`
	Results       []SearchHit   `json:"results"`
	Reranked      bool          `json:"reranked"`
	Took          time.Duration `json:"took" swaggertype:"integer" example:"1500000"`
}

// Preview returns the first PreviewLength runes of text with line breaks
// replaced by spaces
func Preview(text string) string {
	text = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
	runes := []rune(text)
	if len(runes) > PreviewLength {
		runes = runes[:PreviewLength]
	}
	return string(runes)
}
