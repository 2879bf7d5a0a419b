package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/swaggo/swag"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// ReadyResponse reports each dependency checked by /ready
// @Description Readiness report
type ReadyResponse struct {
	Status string            `json:"status" example:"ready"`
	Checks map[string]string `json:"checks"`
}

// ChatRequest is the body of POST /chat
// @Description Chat request
type ChatRequest struct {
	Query     string `json:"query" example:"what does the fox do"`
	SessionID string `json:"session_id" example:"s1"`
	TopK      int    `json:"top_k" example:"5"`
}

// UploadResponse lists the files stored by one upload request
// @Description Upload result
type UploadResponse struct {
	SessionID string                `json:"session_id"`
	Files     []domain.UploadResult `json:"files"`
}

// readyTimeout bounds each readiness check
const readyTimeout = 5 * time.Second

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the liveness status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings the vector index, queue and embedder
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Status: "ready", Checks: make(map[string]string, len(s.checks))}
	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		err := check.Ping(ctx)
		cancel()
		if err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// handleSwagger serves the registered swagger document
func (s *Server) handleSwagger(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusNotFound, "swagger document not registered")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, doc)
}

// Retrieval endpoints

// handleSearch godoc
// @Summary      Semantic search
// @Description  Embeds the query, retrieves candidates from the session, re-ranks them and projects hits to 3-D
// @Tags         Search
// @Produce      json
// @Param        q            query     string   true   "Query text"
// @Param        session_id   query     string   false  "Session; empty or default searches every session"
// @Param        top_k        query     int      false  "Results to return"  default(5)
// @Param        candidate_k  query     int      false  "Stage-1 pool size"  default(15)
// @Param        rerank       query     bool     false  "Override the configured rerank default"
// @Success      200  {object}  domain.SearchResult
// @Failure      400  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse  "Embedding failed"
// @Failure      503  {object}  ErrorResponse  "Index unavailable"
// @Router       /search [get]
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		query = strings.TrimSpace(q.Get("query"))
	}
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	opts, err := s.searchOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.searchService.Search(r.Context(), query, opts)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// searchOptions reads session_id, top_k, candidate_k and rerank
func (s *Server) searchOptions(r *http.Request) (domain.SearchOptions, error) {
	q := r.URL.Query()
	opts := domain.SearchOptions{
		SessionID: q.Get("session_id"),
		TopK:      s.defaultTopK,
	}

	var err error
	if opts.TopK, err = intParam(q.Get("top_k"), opts.TopK); err != nil {
		return opts, errors.New("top_k must be an integer")
	}
	if opts.CandidateK, err = intParam(q.Get("candidate_k"), 0); err != nil {
		return opts, errors.New("candidate_k must be an integer")
	}
	if raw := q.Get("rerank"); raw != "" {
		rerank, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, errors.New("rerank must be a boolean")
		}
		opts.Rerank = &rerank
	}
	return opts, nil
}

// handleGalaxy godoc
// @Summary      Galaxy view
// @Description  Projects every record of the session together with the query and past queries, scaled to radius 15
// @Tags         Search
// @Produce      json
// @Param        session_id  query     string  false  "Session"
// @Param        query       query     string  false  "Query to place among the documents"
// @Success      200  {object}  domain.GalaxyView
// @Failure      502  {object}  ErrorResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /galaxy [get]
func (s *Server) handleGalaxy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("query")
	if query == "" {
		query = q.Get("q")
	}

	view, err := s.galaxyService.Galaxy(r.Context(), q.Get("session_id"), strings.TrimSpace(query))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleChat godoc
// @Summary      Extractive answer
// @Description  Searches the session and summarizes the top passages. No text is generated.
// @Tags         Search
// @Accept       json
// @Produce      json
// @Param        request  body      ChatRequest  true  "Question"
// @Success      200      {object}  domain.Answer
// @Failure      400      {object}  ErrorResponse
// @Router       /chat [post]
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.TopK == 0 {
		req.TopK = s.defaultTopK
	}

	answer, err := s.chatService.Ask(r.Context(), req.Query, domain.SearchOptions{
		SessionID: req.SessionID,
		TopK:      req.TopK,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// Session endpoints

// handleReindex godoc
// @Summary      Reindex a session
// @Description  Full rebuild or incremental catch-up. With async=true the run is queued and a task is returned.
// @Tags         Sessions
// @Produce      json
// @Param        session  path      string  true   "Session"
// @Param        mode     query     string  false  "full or incremental"  default(full)
// @Param        async    query     bool    false  "Queue the run"
// @Success      200      {object}  domain.IndexResult
// @Success      202      {object}  domain.Task
// @Failure      400      {object}  ErrorResponse
// @Failure      409      {object}  ErrorResponse  "Session is already being indexed"
// @Failure      503      {object}  ErrorResponse
// @Router       /sessions/{session}/reindex [post]
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	mode, err := domain.ParseIndexMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "mode must be full or incremental")
		return
	}
	async := false
	if raw := r.URL.Query().Get("async"); raw != "" {
		if async, err = strconv.ParseBool(raw); err != nil {
			writeError(w, http.StatusBadRequest, "async must be a boolean")
			return
		}
	}

	if async || s.indexService == nil {
		if err := domain.ValidateSessionID(sessionID); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		task, err := s.taskService.Submit(r.Context(), domain.NewIndexSessionTask(sessionID, mode))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, task)
		return
	}

	result, err := s.indexService.Reindex(r.Context(), sessionID, mode)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleUpload godoc
// @Summary      Upload files
// @Description  Stores multipart "file" parts under the session and schedules incremental indexing
// @Tags         Sessions
// @Accept       multipart/form-data
// @Produce      json
// @Param        session  path      string  true  "Session"
// @Param        file     formData  file    true  "File to upload (repeatable)"
// @Success      201      {object}  UploadResponse
// @Failure      400      {object}  ErrorResponse
// @Failure      413      {object}  ErrorResponse
// @Router       /sessions/{session}/files [post]
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart/form-data")
		return
	}

	resp := UploadResponse{SessionID: sessionID, Files: []domain.UploadResult{}}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.writeUploadError(w, r, err)
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		result, err := s.docService.Upload(r.Context(), sessionID, part.FileName(), part)
		_ = part.Close()
		if err != nil {
			s.writeUploadError(w, r, err)
			return
		}
		resp.Files = append(resp.Files, *result)
	}

	if len(resp.Files) == 0 {
		writeError(w, http.StatusBadRequest, "no file part in request")
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	s.writeServiceError(w, r, err)
}

// handleDeleteSession godoc
// @Summary      Delete a session
// @Description  Removes every record whose session_id matches, plus bookkeeping, search log and files
// @Tags         Sessions
// @Produce      json
// @Param        session  path      string  true  "Session"
// @Success      200      {object}  domain.DeleteResult
// @Failure      400      {object}  ErrorResponse
// @Failure      503      {object}  ErrorResponse
// @Router       /sessions/{session} [delete]
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	result, err := s.docService.DeleteSession(r.Context(), r.PathValue("session"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Index endpoints

// handleStats godoc
// @Summary      Index statistics
// @Description  Counts distinct documents, chunks and documents per extension
// @Tags         Index
// @Produce      json
// @Param        session_id  query     string  false  "Session; empty or default is global"
// @Success      200  {object}  domain.Stats
// @Failure      503  {object}  ErrorResponse
// @Router       /stats [get]
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.docService.Stats(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleListDocuments godoc
// @Summary      List indexed documents
// @Description  Newest first
// @Tags         Index
// @Produce      json
// @Param        session_id  query     string  false  "Session"
// @Param        limit       query     int     false  "Maximum rows"  default(100)
// @Success      200  {array}   domain.IndexedDocument
// @Failure      400  {object}  ErrorResponse
// @Router       /documents [get]
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), 100)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	docs, err := s.docService.List(r.Context(), r.URL.Query().Get("session_id"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if docs == nil {
		docs = []*domain.IndexedDocument{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// handleGetTask godoc
// @Summary      Task status
// @Tags         Index
// @Produce      json
// @Param        id   path      string  true  "Task ID"
// @Success      200  {object}  domain.Task
// @Failure      404  {object}  ErrorResponse
// @Router       /tasks/{id} [get]
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.taskService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// File download

// handleDownload streams a stored upload
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rc, file, err := s.docService.Open(r.Context(), r.PathValue("session"), r.PathValue("name"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer rc.Close()

	if ct := mime.TypeByExtension(filepath.Ext(file.Filename)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": file.Filename}))

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, file.Filename, file.ModTime, rs)
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("download interrupted", "session_id", file.SessionID, "path", file.Path, "error", err)
	}
}

// Helpers

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// statusFor maps domain errors to HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrTokenInvalid), errors.Is(err, domain.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIndexInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmbedding):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrIndexUnavailable), errors.Is(err, domain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	writeError(w, status, message)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
