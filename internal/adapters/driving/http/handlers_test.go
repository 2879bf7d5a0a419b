package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/custodia-labs/sercha-rag/docs"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// Mock services for testing

type mockSearchService struct {
	searchFn func(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResult, error)
}

func (m *mockSearchService) Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, opts)
	}
	return &domain.SearchResult{Query: query, Results: []domain.SearchHit{}}, nil
}

type mockGalaxyService struct {
	galaxyFn func(ctx context.Context, sessionID, query string) (*domain.GalaxyView, error)
}

func (m *mockGalaxyService) Galaxy(ctx context.Context, sessionID, query string) (*domain.GalaxyView, error) {
	if m.galaxyFn != nil {
		return m.galaxyFn(ctx, sessionID, query)
	}
	return &domain.GalaxyView{SessionID: sessionID, Query: query}, nil
}

type mockChatService struct {
	askFn func(ctx context.Context, query string, opts domain.SearchOptions) (*domain.Answer, error)
}

func (m *mockChatService) Ask(ctx context.Context, query string, opts domain.SearchOptions) (*domain.Answer, error) {
	if m.askFn != nil {
		return m.askFn(ctx, query, opts)
	}
	return &domain.Answer{Query: query, Answer: "No relevant documents found."}, nil
}

type mockDocumentService struct {
	uploadFn func(ctx context.Context, sessionID, filename string, r io.Reader) (*domain.UploadResult, error)
	openFn   func(ctx context.Context, sessionID, filename string) (io.ReadCloser, *domain.SourceFile, error)
	listFn   func(ctx context.Context, sessionID string, limit int) ([]*domain.IndexedDocument, error)
	statsFn  func(ctx context.Context, sessionID string) (*domain.Stats, error)
	deleteFn func(ctx context.Context, sessionID string) (*domain.DeleteResult, error)
}

func (m *mockDocumentService) Upload(ctx context.Context, sessionID, filename string, r io.Reader) (*domain.UploadResult, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, sessionID, filename, r)
	}
	return nil, errors.New("not implemented")
}

func (m *mockDocumentService) Open(ctx context.Context, sessionID, filename string) (io.ReadCloser, *domain.SourceFile, error) {
	if m.openFn != nil {
		return m.openFn(ctx, sessionID, filename)
	}
	return nil, nil, domain.ErrNotFound
}

func (m *mockDocumentService) List(ctx context.Context, sessionID string, limit int) ([]*domain.IndexedDocument, error) {
	if m.listFn != nil {
		return m.listFn(ctx, sessionID, limit)
	}
	return nil, nil
}

func (m *mockDocumentService) Stats(ctx context.Context, sessionID string) (*domain.Stats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, sessionID)
	}
	return &domain.Stats{ByExtension: map[string]int{}}, nil
}

func (m *mockDocumentService) DeleteSession(ctx context.Context, sessionID string) (*domain.DeleteResult, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, sessionID)
	}
	return &domain.DeleteResult{SessionID: sessionID, Status: "deleted"}, nil
}

type mockIndexService struct {
	reindexFn func(ctx context.Context, sessionID string, mode domain.IndexMode) (*domain.IndexResult, error)
}

func (m *mockIndexService) Reindex(ctx context.Context, sessionID string, mode domain.IndexMode) (*domain.IndexResult, error) {
	if m.reindexFn != nil {
		return m.reindexFn(ctx, sessionID, mode)
	}
	return &domain.IndexResult{SessionID: sessionID, Mode: mode, Status: domain.IndexStatusSuccess}, nil
}

func (m *mockIndexService) ReindexAll(ctx context.Context, mode domain.IndexMode) ([]*domain.IndexResult, error) {
	return nil, nil
}

type mockTaskService struct {
	submitted []*domain.Task
	tasks     map[string]*domain.Task
}

func (m *mockTaskService) Submit(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	m.submitted = append(m.submitted, task)
	return task, nil
}

func (m *mockTaskService) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	if t, ok := m.tasks[taskID]; ok {
		return t, nil
	}
	return nil, domain.ErrNotFound
}

// fakeFile is a seekable download body
type fakeFile struct {
	*strings.Reader
}

func (fakeFile) Close() error { return nil }

func newTestServer(svc Services) *Server {
	if svc.Search == nil {
		svc.Search = &mockSearchService{}
	}
	if svc.Galaxy == nil {
		svc.Galaxy = &mockGalaxyService{}
	}
	if svc.Chat == nil {
		svc.Chat = &mockChatService{}
	}
	if svc.Documents == nil {
		svc.Documents = &mockDocumentService{}
	}
	if svc.Tasks == nil {
		svc.Tasks = &mockTaskService{}
	}
	return NewServer(Config{
		Version:     "test",
		CORSOrigins: []string{"*"},
		DefaultTopK: 5,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, svc)
}

func do(s *Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return resp.Error
}

// Health

func TestHandleHealth(t *testing.T) {
	rr := do(newTestServer(Services{}), "GET", "/health", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("unexpected body %s", rr.Body.String())
	}
}

func TestHandleVersion(t *testing.T) {
	rr := do(newTestServer(Services{}), "GET", "/version", nil)
	var resp VersionResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Version != "test" {
		t.Errorf("expected version test, got %s", resp.Version)
	}
}

func TestHandleReady(t *testing.T) {
	s := newTestServer(Services{Checks: map[string]Pinger{
		"index":    PingFunc(func(ctx context.Context) error { return nil }),
		"embedder": PingFunc(func(ctx context.Context) error { return nil }),
	}})
	rr := do(s, "GET", "/ready", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp ReadyResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ready" || resp.Checks["index"] != "ok" {
		t.Errorf("unexpected readiness %+v", resp)
	}
}

func TestHandleReady_Degraded(t *testing.T) {
	s := newTestServer(Services{Checks: map[string]Pinger{
		"index": PingFunc(func(ctx context.Context) error { return domain.ErrIndexUnavailable }),
		"queue": PingFunc(func(ctx context.Context) error { return nil }),
	}})
	rr := do(s, "GET", "/ready", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}

	var resp ReadyResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("expected degraded, got %s", resp.Status)
	}
	if resp.Checks["index"] != domain.ErrIndexUnavailable.Error() || resp.Checks["queue"] != "ok" {
		t.Errorf("unexpected checks %v", resp.Checks)
	}
}

func TestHandleSwagger(t *testing.T) {
	rr := do(newTestServer(Services{}), "GET", "/swagger/doc.json", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var doc struct {
		Swagger  string                     `json:"swagger"`
		BasePath string                     `json:"basePath"`
		Paths    map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("swagger document is not valid JSON: %v", err)
	}
	if doc.Swagger != "2.0" || doc.BasePath != "/api/v1" {
		t.Errorf("unexpected swagger header %+v", doc)
	}
	for _, path := range []string{"/search", "/galaxy", "/sessions/{session}/reindex", "/stats"} {
		if _, ok := doc.Paths[path]; !ok {
			t.Errorf("expected path %s in swagger document", path)
		}
	}
}

// Search

func TestHandleSearch(t *testing.T) {
	var gotQuery string
	var gotOpts domain.SearchOptions
	search := &mockSearchService{
		searchFn: func(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResult, error) {
			gotQuery, gotOpts = query, opts
			return &domain.SearchResult{
				Query:   query,
				Results: []domain.SearchHit{{ID: "s1:a.txt:1:0", Filename: "a.txt", Score: 0.12}},
			}, nil
		},
	}
	s := newTestServer(Services{Search: search})

	rr := do(s, "GET", "/api/v1/search?q=quick+fox&session_id=s1&top_k=3&candidate_k=9&rerank=false", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotQuery != "quick fox" {
		t.Errorf("expected query 'quick fox', got %q", gotQuery)
	}
	if gotOpts.SessionID != "s1" || gotOpts.TopK != 3 || gotOpts.CandidateK != 9 {
		t.Errorf("unexpected options %+v", gotOpts)
	}
	if gotOpts.Rerank == nil || *gotOpts.Rerank {
		t.Errorf("expected rerank override false, got %v", gotOpts.Rerank)
	}

	var result domain.SearchResult
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Results) != 1 || result.Results[0].Filename != "a.txt" {
		t.Errorf("unexpected results %+v", result.Results)
	}
}

func TestHandleSearch_Defaults(t *testing.T) {
	var gotOpts domain.SearchOptions
	search := &mockSearchService{
		searchFn: func(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResult, error) {
			gotOpts = opts
			return &domain.SearchResult{Query: query}, nil
		},
	}
	s := newTestServer(Services{Search: search})

	rr := do(s, "GET", "/api/v1/search?query=fox", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotOpts.TopK != 5 || gotOpts.CandidateK != 0 || gotOpts.Rerank != nil {
		t.Errorf("unexpected default options %+v", gotOpts)
	}
}

func TestHandleSearch_BadRequest(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		message string
	}{
		{"missing query", "/api/v1/search", "query is required"},
		{"blank query", "/api/v1/search?q=%20%20", "query is required"},
		{"bad top_k", "/api/v1/search?q=fox&top_k=many", "top_k must be an integer"},
		{"bad candidate_k", "/api/v1/search?q=fox&candidate_k=1.5", "candidate_k must be an integer"},
		{"bad rerank", "/api/v1/search?q=fox&rerank=maybe", "rerank must be a boolean"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(newTestServer(Services{}), "GET", tt.target, nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rr.Code)
			}
			if msg := decodeError(t, rr); msg != tt.message {
				t.Errorf("expected %q, got %q", tt.message, msg)
			}
		})
	}
}

func TestHandleSearch_ServiceErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"embedding", fmt.Errorf("embed query: %w", domain.ErrEmbedding), http.StatusBadGateway},
		{"index unavailable", fmt.Errorf("search: %w", domain.ErrIndexUnavailable), http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			search := &mockSearchService{
				searchFn: func(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResult, error) {
					return nil, tt.err
				},
			}
			rr := do(newTestServer(Services{Search: search}), "GET", "/api/v1/search?q=fox", nil)
			if rr.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rr.Code)
			}
		})
	}
}

func TestHandleSearch_InternalErrorHidden(t *testing.T) {
	search := &mockSearchService{
		searchFn: func(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResult, error) {
			return nil, errors.New("pq: password authentication failed")
		},
	}
	rr := do(newTestServer(Services{Search: search}), "GET", "/api/v1/search?q=fox", nil)
	if msg := decodeError(t, rr); msg != "internal server error" {
		t.Errorf("expected generic message, got %q", msg)
	}
}

func TestHandleGalaxy(t *testing.T) {
	var gotSession, gotQuery string
	galaxy := &mockGalaxyService{
		galaxyFn: func(ctx context.Context, sessionID, query string) (*domain.GalaxyView, error) {
			gotSession, gotQuery = sessionID, query
			return &domain.GalaxyView{SessionID: sessionID, Points: []domain.GalaxyPoint{{ID: "q", Kind: domain.PointKindQuery}}}, nil
		},
	}
	rr := do(newTestServer(Services{Galaxy: galaxy}), "GET", "/api/v1/galaxy?session_id=s1&query=+fox+", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotSession != "s1" || gotQuery != "fox" {
		t.Errorf("expected s1/fox, got %s/%q", gotSession, gotQuery)
	}
}

func TestHandleChat(t *testing.T) {
	var gotOpts domain.SearchOptions
	chat := &mockChatService{
		askFn: func(ctx context.Context, query string, opts domain.SearchOptions) (*domain.Answer, error) {
			gotOpts = opts
			return &domain.Answer{Query: query, Answer: "The fox jumps."}, nil
		},
	}
	s := newTestServer(Services{Chat: chat})

	body, _ := json.Marshal(ChatRequest{Query: "what does the fox do", SessionID: "s1"})
	rr := do(s, "POST", "/api/v1/chat", bytes.NewReader(body))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotOpts.SessionID != "s1" || gotOpts.TopK != 5 {
		t.Errorf("unexpected options %+v", gotOpts)
	}

	var answer domain.Answer
	if err := json.NewDecoder(rr.Body).Decode(&answer); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if answer.Answer != "The fox jumps." {
		t.Errorf("unexpected answer %q", answer.Answer)
	}
}

func TestHandleChat_BadRequest(t *testing.T) {
	s := newTestServer(Services{})

	rr := do(s, "POST", "/api/v1/chat", strings.NewReader("{not json"))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for invalid body, got %d", rr.Code)
	}

	rr = do(s, "POST", "/api/v1/chat", strings.NewReader(`{"query":"  "}`))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for blank query, got %d", rr.Code)
	}
}

// Sessions

func TestHandleReindex_Sync(t *testing.T) {
	var gotSession string
	var gotMode domain.IndexMode
	indexer := &mockIndexService{
		reindexFn: func(ctx context.Context, sessionID string, mode domain.IndexMode) (*domain.IndexResult, error) {
			gotSession, gotMode = sessionID, mode
			return &domain.IndexResult{SessionID: sessionID, Mode: mode, Status: domain.IndexStatusSuccess, IndexedCount: 2}, nil
		},
	}
	s := newTestServer(Services{Indexer: indexer})

	rr := do(s, "POST", "/api/v1/sessions/s1/reindex?mode=incremental", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotSession != "s1" || gotMode != domain.IndexModeIncremental {
		t.Errorf("expected s1/incremental, got %s/%s", gotSession, gotMode)
	}

	var result domain.IndexResult
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.IndexedCount != 2 {
		t.Errorf("expected 2 indexed, got %d", result.IndexedCount)
	}
}

func TestHandleReindex_Async(t *testing.T) {
	tasks := &mockTaskService{}
	s := newTestServer(Services{Indexer: &mockIndexService{}, Tasks: tasks})

	rr := do(s, "POST", "/api/v1/sessions/s1/reindex?async=true", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}
	if len(tasks.submitted) != 1 {
		t.Fatalf("expected 1 submitted task, got %d", len(tasks.submitted))
	}
	task := tasks.submitted[0]
	if task.Type != domain.TaskTypeIndexSession || task.SessionID != "s1" || task.Mode() != domain.IndexModeFull {
		t.Errorf("unexpected task %+v", task)
	}
}

func TestHandleReindex_NoIndexerQueues(t *testing.T) {
	tasks := &mockTaskService{}
	s := newTestServer(Services{Tasks: tasks})

	rr := do(s, "POST", "/api/v1/sessions/s1/reindex", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}
	if len(tasks.submitted) != 1 {
		t.Errorf("expected the run to be queued, got %d tasks", len(tasks.submitted))
	}
}

func TestHandleReindex_Errors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		err      error
		wantCode int
	}{
		{"bad mode", "/api/v1/sessions/s1/reindex?mode=partial", nil, http.StatusBadRequest},
		{"bad async", "/api/v1/sessions/s1/reindex?async=soon", nil, http.StatusBadRequest},
		{"in progress", "/api/v1/sessions/s1/reindex", domain.ErrIndexInProgress, http.StatusConflict},
		{"invalid session", "/api/v1/sessions/s1/reindex", fmt.Errorf("%w: bad session", domain.ErrInvalidInput), http.StatusBadRequest},
		{"index down", "/api/v1/sessions/s1/reindex", domain.ErrIndexUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			indexer := &mockIndexService{
				reindexFn: func(ctx context.Context, sessionID string, mode domain.IndexMode) (*domain.IndexResult, error) {
					return nil, tt.err
				},
			}
			rr := do(newTestServer(Services{Indexer: indexer}), "POST", tt.target, nil)
			if rr.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rr.Code)
			}
		})
	}
}

func TestHandleReindex_AsyncInvalidSession(t *testing.T) {
	tasks := &mockTaskService{}
	s := newTestServer(Services{Tasks: tasks})

	rr := do(s, "POST", "/api/v1/sessions/"+strings.Repeat("x", 129)+"/reindex?async=true", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
	if len(tasks.submitted) != 0 {
		t.Error("expected no task for an invalid session")
	}
}

func multipartBody(t *testing.T, files map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("note", "ignored")
	for name, content := range files {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = io.WriteString(fw, content)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHandleUpload(t *testing.T) {
	stored := map[string]string{}
	docs := &mockDocumentService{
		uploadFn: func(ctx context.Context, sessionID, filename string, r io.Reader) (*domain.UploadResult, error) {
			data, err := io.ReadAll(r)
			if err != nil {
				return nil, err
			}
			stored[sessionID+"/"+filename] = string(data)
			return &domain.UploadResult{File: domain.NewSourceFile(sessionID, filename), TaskID: "t1"}, nil
		},
	}
	s := newTestServer(Services{Documents: docs})

	body, contentType := multipartBody(t, map[string]string{"intro.txt": "hello world"})
	req := httptest.NewRequest("POST", "/api/v1/sessions/s1/files", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if stored["s1/intro.txt"] != "hello world" {
		t.Errorf("unexpected stored content %v", stored)
	}

	var resp UploadResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != "s1" || len(resp.Files) != 1 || resp.Files[0].TaskID != "t1" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHandleUpload_NotMultipart(t *testing.T) {
	rr := do(newTestServer(Services{}), "POST", "/api/v1/sessions/s1/files", strings.NewReader("raw"))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestHandleUpload_NoFilePart(t *testing.T) {
	body, contentType := multipartBody(t, nil)
	req := httptest.NewRequest("POST", "/api/v1/sessions/s1/files", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	newTestServer(Services{}).Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestHandleUpload_UnsupportedFormat(t *testing.T) {
	docs := &mockDocumentService{
		uploadFn: func(ctx context.Context, sessionID, filename string, r io.Reader) (*domain.UploadResult, error) {
			return nil, fmt.Errorf("%w: .exe", domain.ErrUnsupportedFormat)
		},
	}
	body, contentType := multipartBody(t, map[string]string{"tool.exe": "MZ"})
	req := httptest.NewRequest("POST", "/api/v1/sessions/s1/files", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	newTestServer(Services{Documents: docs}).Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestHandleUpload_TooLarge(t *testing.T) {
	docs := &mockDocumentService{
		uploadFn: func(ctx context.Context, sessionID, filename string, r io.Reader) (*domain.UploadResult, error) {
			if _, err := io.Copy(io.Discard, r); err != nil {
				return nil, fmt.Errorf("failed to save upload: %w", err)
			}
			return &domain.UploadResult{}, nil
		},
	}
	s := NewServer(Config{
		MaxUploadSize: 512,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, Services{Documents: docs, Tasks: &mockTaskService{}})

	body, contentType := multipartBody(t, map[string]string{"big.txt": strings.Repeat("x", 4096)})
	req := httptest.NewRequest("POST", "/api/v1/sessions/s1/files", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected status 413, got %d", rr.Code)
	}
}

func TestHandleDeleteSession(t *testing.T) {
	var deleted string
	docs := &mockDocumentService{
		deleteFn: func(ctx context.Context, sessionID string) (*domain.DeleteResult, error) {
			deleted = sessionID
			return &domain.DeleteResult{SessionID: sessionID, Status: "deleted", DeletedRecords: 4}, nil
		},
	}
	rr := do(newTestServer(Services{Documents: docs}), "DELETE", "/api/v1/sessions/s1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if deleted != "s1" {
		t.Errorf("expected s1 to be deleted, got %q", deleted)
	}

	var result domain.DeleteResult
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.DeletedRecords != 4 {
		t.Errorf("expected 4 deleted records, got %d", result.DeletedRecords)
	}
}

func TestHandleDeleteSession_IndexUnavailable(t *testing.T) {
	docs := &mockDocumentService{
		deleteFn: func(ctx context.Context, sessionID string) (*domain.DeleteResult, error) {
			return nil, domain.ErrIndexUnavailable
		},
	}
	rr := do(newTestServer(Services{Documents: docs}), "DELETE", "/api/v1/sessions/s1", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}
}

// Index

func TestHandleStats(t *testing.T) {
	var gotSession string
	docs := &mockDocumentService{
		statsFn: func(ctx context.Context, sessionID string) (*domain.Stats, error) {
			gotSession = sessionID
			return &domain.Stats{TotalDocs: 2, TotalChunks: 7, ByExtension: map[string]int{"pdf": 1, "txt": 1}}, nil
		},
	}
	rr := do(newTestServer(Services{Documents: docs}), "GET", "/api/v1/stats?session_id=s2", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotSession != "s2" {
		t.Errorf("expected session s2, got %q", gotSession)
	}

	var stats domain.Stats
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalDocs != 2 || stats.TotalChunks != 7 || stats.ByExtension["pdf"] != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestHandleListDocuments(t *testing.T) {
	var gotLimit int
	docs := &mockDocumentService{
		listFn: func(ctx context.Context, sessionID string, limit int) ([]*domain.IndexedDocument, error) {
			gotLimit = limit
			return nil, nil
		},
	}
	s := newTestServer(Services{Documents: docs})

	rr := do(s, "GET", "/api/v1/documents?session_id=s1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotLimit != 100 {
		t.Errorf("expected default limit 100, got %d", gotLimit)
	}
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("expected empty JSON array, got %s", rr.Body.String())
	}

	rr = do(s, "GET", "/api/v1/documents?limit=-1", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for negative limit, got %d", rr.Code)
	}
}

func TestHandleGetTask(t *testing.T) {
	task := domain.NewIndexSessionTask("s1", domain.IndexModeIncremental)
	tasks := &mockTaskService{tasks: map[string]*domain.Task{task.ID: task}}
	s := newTestServer(Services{Tasks: tasks})

	rr := do(s, "GET", "/api/v1/tasks/"+task.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	rr = do(s, "GET", "/api/v1/tasks/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}

// Downloads

func downloadDocs() *mockDocumentService {
	return &mockDocumentService{
		openFn: func(ctx context.Context, sessionID, filename string) (io.ReadCloser, *domain.SourceFile, error) {
			if sessionID != "s1" || filename != "a.txt" {
				return nil, nil, domain.ErrNotFound
			}
			file := domain.NewSourceFile(sessionID, "s1/a.txt")
			file.ModTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			return fakeFile{strings.NewReader("alpha beta")}, &file, nil
		},
	}
}

func TestHandleDownload(t *testing.T) {
	rr := do(newTestServer(Services{Documents: downloadDocs()}), "GET", "/files/s1/a.txt", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Body.String() != "alpha beta" {
		t.Errorf("unexpected body %q", rr.Body.String())
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("unexpected content type %q", rr.Header().Get("Content-Type"))
	}
	if rr.Header().Get("Content-Disposition") != "inline; filename=a.txt" {
		t.Errorf("unexpected disposition %q", rr.Header().Get("Content-Disposition"))
	}
}

func TestHandleDownload_NotFound(t *testing.T) {
	rr := do(newTestServer(Services{Documents: downloadDocs()}), "GET", "/files/s1/b.txt", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}

func TestHandleDownload_Signed(t *testing.T) {
	s := newTestServer(Services{Documents: downloadDocs(), LinkSigner: &stubSigner{token: "good"}})

	rr := do(s, "GET", "/files/s1/a.txt", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 without token, got %d", rr.Code)
	}

	rr = do(s, "GET", "/files/s1/a.txt?token=good", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200 with token, got %d", rr.Code)
	}
}

// Helpers

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrUnsupportedFormat, http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrTokenInvalid, http.StatusUnauthorized},
		{domain.ErrTokenExpired, http.StatusUnauthorized},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrIndexInProgress, http.StatusConflict},
		{domain.ErrEmbedding, http.StatusBadGateway},
		{domain.ErrIndexUnavailable, http.StatusServiceUnavailable},
		{domain.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{domain.ErrConfiguration, http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			wrapped := fmt.Errorf("layer: %w", tt.err)
			if got := statusFor(wrapped); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestIntParam(t *testing.T) {
	if v, err := intParam("", 7); err != nil || v != 7 {
		t.Errorf("expected default 7, got %d (%v)", v, err)
	}
	if v, err := intParam("12", 7); err != nil || v != 12 {
		t.Errorf("expected 12, got %d (%v)", v, err)
	}
	if _, err := intParam("x", 7); err == nil {
		t.Error("expected error for non-integer")
	}
}

func TestNewServer_Defaults(t *testing.T) {
	s := NewServer(Config{Host: "127.0.0.1", Port: 9999}, Services{})
	if s.Addr() != "127.0.0.1:9999" {
		t.Errorf("unexpected addr %s", s.Addr())
	}
	if s.maxUploadSize != DefaultConfig().MaxUploadSize {
		t.Errorf("expected default upload size, got %d", s.maxUploadSize)
	}
}

func TestServer_StartStopsOnCancel(t *testing.T) {
	s := NewServer(Config{Host: "127.0.0.1", Port: 0, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}, Services{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
