package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure HTTPReranker implements Reranker
var _ driven.Reranker = (*HTTPReranker)(nil)

// HTTPRerankerConfig configures a Cohere/Jina/TEI compatible /rerank client.
type HTTPRerankerConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// HTTPReranker scores passages with a remote cross-encoder.
type HTTPReranker struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	limiter *RateLimiter
}

// NewHTTPReranker creates a remote reranker client.
func NewHTTPReranker(cfg HTTPRerankerConfig) (*HTTPReranker, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: reranker base url is required", domain.ErrConfiguration)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPReranker{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  client,
		limiter: NewRateLimiter(cfg.RequestsPerSecond, 1),
	}, nil
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Score sends every passage in one request and maps results back by index.
func (r *HTTPReranker) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	scores := make([]float64, len(passages))
	if len(passages) == 0 {
		return scores, nil
	}

	body, err := json.Marshal(rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: passages,
		TopN:      len(passages),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		r.limiter.RecordRateLimited(resp)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse rerank response: %w", err)
	}
	if len(out.Results) != len(passages) {
		return nil, fmt.Errorf("rerank API returned %d scores for %d passages", len(out.Results), len(passages))
	}
	seen := make([]bool, len(passages))
	for _, res := range out.Results {
		if res.Index < 0 || res.Index >= len(passages) || seen[res.Index] {
			return nil, fmt.Errorf("rerank API returned invalid index %d", res.Index)
		}
		seen[res.Index] = true
		scores[res.Index] = res.RelevanceScore
	}
	return scores, nil
}

func (r *HTTPReranker) Model() string {
	return r.model
}

func (r *HTTPReranker) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
