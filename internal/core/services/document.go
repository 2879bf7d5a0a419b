package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Ensure documentService implements DocumentService
var _ driving.DocumentService = (*documentService)(nil)

// documentService implements the DocumentService interface
type documentService struct {
	files      driven.FileStore
	extractors driven.ExtractorRegistry
	index      driven.VectorIndex
	documents  driven.IndexedDocumentStore
	queryLog   driven.QueryLogStore
	tasks      driving.TaskService
	logger     *slog.Logger
}

// DocumentServiceConfig holds dependencies for the document service.
type DocumentServiceConfig struct {
	Files      driven.FileStore
	Extractors driven.ExtractorRegistry
	Index      driven.VectorIndex
	Documents  driven.IndexedDocumentStore
	QueryLog   driven.QueryLogStore // Optional
	Tasks      driving.TaskService  // Schedules indexing after upload
	Logger     *slog.Logger
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(cfg DocumentServiceConfig) driving.DocumentService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &documentService{
		files:      cfg.Files,
		extractors: cfg.Extractors,
		index:      cfg.Index,
		documents:  cfg.Documents,
		queryLog:   cfg.QueryLog,
		tasks:      cfg.Tasks,
		logger:     logger,
	}
}

// Upload stores the file and schedules incremental indexing of its session
func (s *documentService) Upload(ctx context.Context, sessionID, filename string, r io.Reader) (*domain.UploadResult, error) {
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	filename, err := cleanFilename(filename)
	if err != nil {
		return nil, err
	}
	ext := domain.ExtFromFilename(filename)
	if s.extractors.Get(ext) == nil {
		return nil, fmt.Errorf("%w: .%s", domain.ErrUnsupportedFormat, ext)
	}

	file, err := s.files.Save(ctx, sessionID, filename, r)
	if err != nil {
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}
	s.logger.Info("file uploaded", "session_id", sessionID, "path", file.Path, "size", file.Size)

	result := &domain.UploadResult{File: *file}
	if s.tasks == nil {
		return result, nil
	}

	task, err := s.tasks.Submit(ctx, domain.NewIndexSessionTask(sessionID, domain.IndexModeIncremental))
	if err != nil {
		// The file is stored; the sweep or a manual reindex picks it up
		s.logger.Warn("failed to schedule indexing", "session_id", sessionID, "error", err)
		return result, nil
	}
	result.TaskID = task.ID
	result.TaskStatus = task.Status
	return result, nil
}

// Open returns a stored file
func (s *documentService) Open(ctx context.Context, sessionID, filename string) (io.ReadCloser, *domain.SourceFile, error) {
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return nil, nil, err
	}
	filename, err := cleanFilename(filename)
	if err != nil {
		return nil, nil, err
	}
	return s.files.Open(ctx, sessionID, filename)
}

// List returns indexed documents, newest first
func (s *documentService) List(ctx context.Context, sessionID string, limit int) ([]*domain.IndexedDocument, error) {
	if limit < 0 {
		limit = 0
	}
	return s.documents.List(ctx, domain.NormalizeSession(sessionID), limit)
}

// Stats counts documents and chunks in the index
func (s *documentService) Stats(ctx context.Context, sessionID string) (*domain.Stats, error) {
	return s.index.Stats(ctx, domain.SessionFilter(sessionID))
}

// DeleteSession removes the records whose session_id is exactly sessionID,
// then the bookkeeping, search log and uploaded files of the session
func (s *documentService) DeleteSession(ctx context.Context, sessionID string) (*domain.DeleteResult, error) {
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	logger := s.logger.With("session_id", sessionID)

	removed, err := s.index.Delete(ctx, nil, domain.Filter{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	if _, err := s.documents.DeleteSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to delete bookkeeping: %w", err)
	}
	if s.queryLog != nil {
		if err := s.queryLog.DeleteSession(ctx, sessionID); err != nil {
			logger.Warn("failed to delete search log", "error", err)
		}
	}
	files, err := s.files.DeleteSession(ctx, sessionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to delete files: %w", err)
	}

	logger.Info("session deleted", "records", removed, "files", files)
	return &domain.DeleteResult{
		SessionID:      sessionID,
		Status:         "deleted",
		DeletedRecords: removed,
		DeletedFiles:   files,
	}, nil
}

// cleanFilename rejects names that would escape the session directory
func cleanFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: invalid file name %q", domain.ErrInvalidInput, name)
	}
	if filepath.Base(name) != name {
		return "", fmt.Errorf("%w: invalid file name %q", domain.ErrInvalidInput, name)
	}
	return name, nil
}
