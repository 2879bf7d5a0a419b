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

// Ensure OpenAIEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*OpenAIEmbedding)(nil)

// Model dimensions for OpenAI embedding models
var openAIModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// maxRateLimitRetries bounds retries after 429 responses
const maxRateLimitRetries = 3

// OpenAIConfig configures an OpenAI-compatible embedding client.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	// Dimensions requests shortened vectors from text-embedding-3 models.
	// Zero uses the model's native size.
	Dimensions        int
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// OpenAIEmbedding implements EmbeddingService using an OpenAI-compatible
// /embeddings API (OpenAI, Azure proxies, Ollama, vLLM, LM Studio).
type OpenAIEmbedding struct {
	apiKey         string
	model          string
	baseURL        string
	dimensions     int
	sendDimensions bool
	client         *http.Client
	limiter        *RateLimiter
}

// NewOpenAIEmbedding creates a new OpenAI embedding service.
// An API key is required for the public endpoint only.
func NewOpenAIEmbedding(cfg OpenAIConfig) (*OpenAIEmbedding, error) {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BaseURL == "" {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: OpenAI API key is required", domain.ErrConfiguration)
		}
		cfg.BaseURL = "https://api.openai.com/v1"
	}

	dimensions, known := openAIModelDimensions[cfg.Model]
	sendDimensions := false
	switch {
	case cfg.Dimensions > 0 && known && strings.HasPrefix(cfg.Model, "text-embedding-3"):
		dimensions = cfg.Dimensions
		sendDimensions = true
	case cfg.Dimensions > 0:
		dimensions = cfg.Dimensions
	case !known:
		return nil, fmt.Errorf("%w: dimensions must be set for model %q", domain.ErrConfiguration, cfg.Model)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	return &OpenAIEmbedding{
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		dimensions:     dimensions,
		sendDimensions: sendDimensions,
		client:         client,
		limiter:        NewRateLimiter(cfg.RequestsPerSecond, 1),
	}, nil
}

// embeddingRequest is the request body for OpenAI embedding API
type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
	Dimensions     int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the response from OpenAI embedding API
type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Embed generates embeddings for multiple texts.
// Every failure wraps domain.ErrEmbedding.
func (e *OpenAIEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: text %d is blank", domain.ErrEmbedding, i)
		}
	}

	reqBody := embeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: "float",
	}
	if e.sendDimensions {
		reqBody.Dimensions = e.dimensions
	}

	resp, err := e.doRequest(ctx, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}

	// Sort by index to ensure order matches input
	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}
	for i, emb := range embeddings {
		if emb == nil {
			return nil, fmt.Errorf("%w: no embedding returned for text %d", domain.ErrEmbedding, i)
		}
	}
	return embeddings, nil
}

// EmbedQuery generates an embedding for a search query
func (e *OpenAIEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned for query", domain.ErrEmbedding)
	}
	return embeddings[0], nil
}

// Dimensions returns the embedding dimension size
func (e *OpenAIEmbedding) Dimensions() int {
	return e.dimensions
}

// Model returns the model name being used
func (e *OpenAIEmbedding) Model() string {
	return e.model
}

// HealthCheck verifies the embedding service is available
func (e *OpenAIEmbedding) HealthCheck(ctx context.Context) error {
	_, err := e.EmbedQuery(ctx, "health check")
	return err
}

// Close releases resources held by the embedding service
func (e *OpenAIEmbedding) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// doRequest posts to /embeddings, retrying after 429 responses
func (e *OpenAIEmbedding) doRequest(ctx context.Context, reqBody embeddingRequest) (*embeddingResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if e.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.apiKey)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRateLimitRetries {
			e.limiter.RecordRateLimited(resp)
			continue
		}

		var embResp embeddingResponse
		if err := json.Unmarshal(respBody, &embResp); err != nil {
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("embedding API returned status %d", resp.StatusCode)
			}
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if embResp.Error != nil {
			return nil, fmt.Errorf("embedding API error: %s (type: %s, code: %s)",
				embResp.Error.Message, embResp.Error.Type, embResp.Error.Code)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("embedding API returned status %d", resp.StatusCode)
		}
		return &embResp, nil
	}
}
