package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func embeddingServer(t *testing.T, vectors [][]float32, check func(r *http.Request, req embeddingRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if check != nil {
			check(r, req)
		}

		data := make([]map[string]any, 0, len(vectors))
		// Reverse order to prove results are placed by index
		for i := len(vectors) - 1; i >= 0; i-- {
			data = append(data, map[string]any{"index": i, "embedding": vectors[i]})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "model": req.Model})
	}))
}

func TestNewOpenAIEmbedding_RequiresAPIKeyForPublicEndpoint(t *testing.T) {
	_, err := NewOpenAIEmbedding(OpenAIConfig{Model: "text-embedding-3-small"})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}

	// Self-hosted endpoints do not need a key
	if _, err := NewOpenAIEmbedding(OpenAIConfig{BaseURL: "http://localhost:11434/v1", Model: "nomic-embed-text", Dimensions: 768}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewOpenAIEmbedding_Defaults(t *testing.T) {
	svc, err := NewOpenAIEmbedding(OpenAIConfig{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.Model() != "text-embedding-3-small" {
		t.Errorf("expected default model, got %s", svc.Model())
	}
	if svc.baseURL != "https://api.openai.com/v1" {
		t.Errorf("expected default base URL, got %s", svc.baseURL)
	}
	if svc.Dimensions() != 1536 {
		t.Errorf("expected 1536 dimensions, got %d", svc.Dimensions())
	}
}

func TestNewOpenAIEmbedding_Dimensions(t *testing.T) {
	tests := []struct {
		name       string
		cfg        OpenAIConfig
		dimensions int
		send       bool
		wantErr    bool
	}{
		{"native large", OpenAIConfig{APIKey: "k", Model: "text-embedding-3-large"}, 3072, false, false},
		{"shortened v3", OpenAIConfig{APIKey: "k", Model: "text-embedding-3-small", Dimensions: 384}, 384, true, false},
		{"ada fixed", OpenAIConfig{APIKey: "k", Model: "text-embedding-ada-002"}, 1536, false, false},
		{"unknown needs dimensions", OpenAIConfig{APIKey: "k", Model: "custom"}, 0, false, true},
		{"unknown with dimensions", OpenAIConfig{APIKey: "k", Model: "custom", Dimensions: 1024}, 1024, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewOpenAIEmbedding(tt.cfg)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrConfiguration) {
					t.Errorf("expected ErrConfiguration, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if svc.Dimensions() != tt.dimensions || svc.sendDimensions != tt.send {
				t.Errorf("got dims %d send %v", svc.Dimensions(), svc.sendDimensions)
			}
		})
	}
}

func TestOpenAIEmbedding_Embed_EmptyInput(t *testing.T) {
	svc, _ := NewOpenAIEmbedding(OpenAIConfig{APIKey: "sk-test"})
	result, err := svc.Embed(context.Background(), nil)
	if err != nil || result != nil {
		t.Errorf("expected nil, nil for empty input; got %v, %v", result, err)
	}
}

func TestOpenAIEmbedding_Embed_BlankText(t *testing.T) {
	svc, _ := NewOpenAIEmbedding(OpenAIConfig{APIKey: "sk-test"})
	_, err := svc.Embed(context.Background(), []string{"ok", "  "})
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Errorf("expected ErrEmbedding, got %v", err)
	}
}

func TestOpenAIEmbedding_Embed_Success(t *testing.T) {
	server := embeddingServer(t, [][]float32{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}}, func(r *http.Request, req embeddingRequest) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("expected /embeddings, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Error("expected Authorization header")
		}
		if req.Dimensions != 3 {
			t.Errorf("expected dimensions 3 in request, got %d", req.Dimensions)
		}
	})
	defer server.Close()

	svc, err := NewOpenAIEmbedding(OpenAIConfig{APIKey: "sk-test", Model: "text-embedding-3-small", BaseURL: server.URL + "/", Dimensions: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := svc.Embed(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 2 || result[0][0] != 0.1 || result[1][0] != 0.4 {
		t.Errorf("unexpected embeddings %v", result)
	}
}

func TestOpenAIEmbedding_Embed_MissingIndex(t *testing.T) {
	server := embeddingServer(t, [][]float32{{0.1}}, nil)
	defer server.Close()

	svc, _ := NewOpenAIEmbedding(OpenAIConfig{BaseURL: server.URL, Model: "m", Dimensions: 1})
	_, err := svc.Embed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Errorf("expected ErrEmbedding for missing vector, got %v", err)
	}
}

func TestOpenAIEmbedding_Embed_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid API key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	svc, _ := NewOpenAIEmbedding(OpenAIConfig{APIKey: "bad", BaseURL: server.URL})
	_, err := svc.Embed(context.Background(), []string{"test"})
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Errorf("expected ErrEmbedding, got %v", err)
	}
}

func TestOpenAIEmbedding_Embed_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	svc, _ := NewOpenAIEmbedding(OpenAIConfig{APIKey: "sk", BaseURL: server.URL})
	_, err := svc.Embed(context.Background(), []string{"test"})
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Errorf("expected ErrEmbedding, got %v", err)
	}
}

func TestOpenAIEmbedding_Embed_NetworkError(t *testing.T) {
	svc, _ := NewOpenAIEmbedding(OpenAIConfig{APIKey: "sk", BaseURL: "http://localhost:99999"})
	_, err := svc.Embed(context.Background(), []string{"test"})
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Errorf("expected ErrEmbedding, got %v", err)
	}
}

func TestOpenAIEmbedding_RetriesAfterRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
	}))
	defer server.Close()

	svc, _ := NewOpenAIEmbedding(OpenAIConfig{BaseURL: server.URL, Model: "m", Dimensions: 2})
	vec, err := svc.EmbedQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 || atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected one retry, got %d calls", calls)
	}
}

func TestOpenAIEmbedding_HealthCheck(t *testing.T) {
	server := embeddingServer(t, [][]float32{{0.1, 0.2}}, nil)
	defer server.Close()

	svc, _ := NewOpenAIEmbedding(OpenAIConfig{BaseURL: server.URL, Model: "m", Dimensions: 2})
	if err := svc.HealthCheck(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}
