package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Ensure Indexer implements IndexService
var _ driving.IndexService = (*Indexer)(nil)

// DefaultIndexLockTTL bounds how long a crashed run can block a session
const DefaultIndexLockTTL = 30 * time.Minute

// IndexProgress is reported after each file of a run
type IndexProgress struct {
	SessionID string
	Path      string
	State     domain.FileState
	Done      int
	Total     int
}

// Indexer coordinates the indexing pipeline.
// For each file it moves through:
//  1. Extract pages
//  2. Chunk each page through the post-processor pipeline
//  3. Embed all chunks of the file
//  4. Delete the file's stale records, then upsert the new ones
//  5. Save bookkeeping (content hash, chunk count)
//
// Files are independent: a failure is recorded and the run moves on, except
// for an unreachable index which aborts.
type Indexer struct {
	files      driven.FileStore
	extractors driven.ExtractorRegistry
	pipeline   driven.PostProcessorPipeline
	embedder   *Embedder
	index      driven.VectorIndex
	documents  driven.IndexedDocumentStore
	lock       driven.DistributedLock
	lockTTL    time.Duration
	progress   func(IndexProgress)
	logger     *slog.Logger

	mu      sync.Mutex
	running map[string]bool
}

// IndexerConfig holds dependencies for Indexer.
type IndexerConfig struct {
	Files      driven.FileStore
	Extractors driven.ExtractorRegistry
	Pipeline   driven.PostProcessorPipeline
	Embedder   *Embedder
	Index      driven.VectorIndex
	Documents  driven.IndexedDocumentStore
	Lock       driven.DistributedLock // Optional: cross-instance session lock
	LockTTL    time.Duration          // default: 30m
	Progress   func(IndexProgress)    // Optional
	Logger     *slog.Logger
}

// NewIndexer creates a new indexing coordinator.
func NewIndexer(cfg IndexerConfig) *Indexer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = DefaultIndexLockTTL
	}
	return &Indexer{
		files:      cfg.Files,
		extractors: cfg.Extractors,
		pipeline:   cfg.Pipeline,
		embedder:   cfg.Embedder,
		index:      cfg.Index,
		documents:  cfg.Documents,
		lock:       cfg.Lock,
		lockTTL:    lockTTL,
		progress:   cfg.Progress,
		logger:     logger,
		running:    make(map[string]bool),
	}
}

// Reindex runs a full or incremental pass over a session.
// Concurrent runs for the same session fail with ErrIndexInProgress.
func (ix *Indexer) Reindex(ctx context.Context, sessionID string, mode domain.IndexMode) (*domain.IndexResult, error) {
	sessionID = domain.NormalizeSession(sessionID)
	if sessionID != "" {
		if err := domain.ValidateSessionID(sessionID); err != nil {
			return nil, err
		}
	}
	if mode == "" {
		mode = domain.IndexModeFull
	}

	release, err := ix.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	// An unscoped run also holds every session lock and only touches the
	// sessions it locked, so it never interleaves with a session run.
	var scope map[string]bool
	if sessionID == "" {
		var releaseSessions func()
		scope, releaseSessions, err = ix.lockSessions(ctx)
		if err != nil {
			return nil, err
		}
		defer releaseSessions()
	}

	start := time.Now()
	logger := ix.logger.With("session_id", sessionID, "mode", mode)
	logger.Info("starting index run")

	result := &domain.IndexResult{SessionID: sessionID, Mode: mode}
	var discovered int
	switch mode {
	case domain.IndexModeFull:
		discovered, err = ix.rebuild(ctx, sessionID, scope, result)
	case domain.IndexModeIncremental:
		discovered, err = ix.indexNew(ctx, sessionID, scope, result)
	default:
		return nil, fmt.Errorf("%w: unknown index mode %q", domain.ErrInvalidInput, mode)
	}
	result.Finish(start, discovered)

	if err != nil {
		logger.Error("index run aborted", "error", err, "indexed", result.IndexedCount)
		return result, err
	}

	logger.Info("index run complete",
		"status", result.Status,
		"indexed", result.IndexedCount,
		"skipped", result.SkippedCount,
		"chunks", result.ChunkCount,
		"failures", len(result.Failures),
		"duration", time.Since(start),
	)
	return result, nil
}

// ReindexAll runs Reindex for each session directory in turn.
// A session already being indexed elsewhere is reported, not fatal.
func (ix *Indexer) ReindexAll(ctx context.Context, mode domain.IndexMode) ([]*domain.IndexResult, error) {
	sessions, err := ix.files.Sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	results := make([]*domain.IndexResult, 0, len(sessions))
	for _, session := range sessions {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := ix.Reindex(ctx, session, mode)
		if errors.Is(err, domain.ErrIndexInProgress) {
			ix.logger.Info("session busy, skipping", "session_id", session)
			continue
		}
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// lockSessions takes the lock of every session found on disk or in
// bookkeeping. It fails with ErrIndexInProgress, holding nothing, when any
// of them is busy.
func (ix *Indexer) lockSessions(ctx context.Context) (map[string]bool, func(), error) {
	names, err := ix.files.Sessions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	docs, err := ix.documents.List(ctx, "", 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list bookkeeping: %w", err)
	}
	for _, doc := range docs {
		names = append(names, doc.SessionID)
	}
	slices.Sort(names)
	names = slices.Compact(names)

	scope := make(map[string]bool, len(names))
	var releases []func()
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		release, err := ix.acquire(ctx, name)
		if err != nil {
			releaseAll()
			return nil, nil, err
		}
		releases = append(releases, release)
		scope[name] = true
	}
	return scope, releaseAll, nil
}

// scan lists the files of a run, limited to scope when it is set.
func (ix *Indexer) scan(ctx context.Context, sessionID string, scope map[string]bool) ([]domain.SourceFile, error) {
	files, err := ix.files.Scan(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to scan files: %w", err)
	}
	if scope == nil {
		return files, nil
	}
	kept := files[:0]
	for _, f := range files {
		if scope[f.SessionID] {
			kept = append(kept, f)
		}
	}
	return kept, nil
}

// acquire takes the in-process guard and, when configured, the distributed lock.
func (ix *Indexer) acquire(ctx context.Context, sessionID string) (func(), error) {
	key := lockName(sessionID)

	ix.mu.Lock()
	if ix.running[key] {
		ix.mu.Unlock()
		return nil, fmt.Errorf("%w: session %q", domain.ErrIndexInProgress, sessionID)
	}
	ix.running[key] = true
	ix.mu.Unlock()

	local := func() {
		ix.mu.Lock()
		delete(ix.running, key)
		ix.mu.Unlock()
	}

	if ix.lock == nil {
		return local, nil
	}

	acquired, err := ix.lock.Acquire(ctx, key, ix.lockTTL)
	if err != nil {
		local()
		return nil, fmt.Errorf("failed to acquire index lock: %w", err)
	}
	if !acquired {
		local()
		return nil, fmt.Errorf("%w: session %q", domain.ErrIndexInProgress, sessionID)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go ix.keepLock(key, stop, done)

	return func() {
		close(stop)
		<-done
		// Release with a fresh context; the run's context may be cancelled
		if err := ix.lock.Release(context.Background(), key); err != nil {
			ix.logger.Warn("failed to release index lock", "lock", key, "error", err)
		}
		local()
	}, nil
}

// keepLock extends the lock at half its TTL until stop is closed, so runs
// longer than the TTL keep their session exclusive.
func (ix *Indexer) keepLock(key string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(ix.lockTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := ix.lock.Extend(context.Background(), key, ix.lockTTL); err != nil {
				ix.logger.Warn("failed to extend index lock", "lock", key, "error", err)
			}
		}
	}
}

func lockName(sessionID string) string {
	if sessionID == "" {
		return "index:*"
	}
	return "index:" + sessionID
}

// rebuild clears the partition and bookkeeping, then indexes every file.
// With a scope it clears and indexes only the scoped sessions.
func (ix *Indexer) rebuild(ctx context.Context, sessionID string, scope map[string]bool, result *domain.IndexResult) (int, error) {
	targets := []string{sessionID}
	if scope != nil {
		targets = targets[:0]
		for name := range scope {
			targets = append(targets, name)
		}
	}
	for _, name := range targets {
		removed, err := ix.index.Delete(ctx, nil, domain.SessionFilter(name))
		if err != nil {
			return 0, err
		}
		result.RemovedCount += removed
		if _, err := ix.documents.DeleteSession(ctx, name); err != nil {
			return 0, fmt.Errorf("failed to clear bookkeeping: %w", err)
		}
	}

	files, err := ix.scan(ctx, sessionID, scope)
	if err != nil {
		return 0, err
	}

	for i, file := range files {
		if ctx.Err() != nil {
			result.Interrupted = true
			return len(files), ctx.Err()
		}
		hash, err := ix.hash(ctx, file)
		if err != nil {
			ix.fail(result, file, domain.FileStateUnseen, err)
			ix.report(file, domain.FileStateFailed, i+1, len(files))
			continue
		}
		state, err := ix.indexFile(ctx, file, hash, result)
		if err != nil {
			return len(files), err
		}
		ix.report(file, state, i+1, len(files))
	}
	return len(files), nil
}

// indexNew indexes new and changed files and drops records of files that
// are gone from disk. Unchanged files are skipped by content hash.
func (ix *Indexer) indexNew(ctx context.Context, sessionID string, scope map[string]bool, result *domain.IndexResult) (int, error) {
	files, err := ix.scan(ctx, sessionID, scope)
	if err != nil {
		return 0, err
	}

	onDisk := make(map[string]bool, len(files))
	for i, file := range files {
		onDisk[file.SessionID+"\x00"+file.Path] = true
		if ctx.Err() != nil {
			result.Interrupted = true
			return len(files), ctx.Err()
		}

		hash, err := ix.hash(ctx, file)
		if err != nil {
			ix.fail(result, file, domain.FileStateUnseen, err)
			ix.report(file, domain.FileStateFailed, i+1, len(files))
			continue
		}

		known, err := ix.documents.Get(ctx, file.SessionID, file.Path)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return len(files), fmt.Errorf("failed to read bookkeeping: %w", err)
		}
		if known != nil && known.ContentHash == hash {
			result.SkippedCount++
			ix.report(file, domain.FileStateSkipped, i+1, len(files))
			continue
		}

		state, err := ix.indexFile(ctx, file, hash, result)
		if err != nil {
			return len(files), err
		}
		ix.report(file, state, i+1, len(files))
	}

	if err := ix.dropVanished(ctx, sessionID, scope, onDisk, result); err != nil {
		return len(files), err
	}
	return len(files), nil
}

func (ix *Indexer) dropVanished(ctx context.Context, sessionID string, scope map[string]bool, onDisk map[string]bool, result *domain.IndexResult) error {
	docs, err := ix.documents.List(ctx, sessionID, 0)
	if err != nil {
		return fmt.Errorf("failed to list bookkeeping: %w", err)
	}
	for _, doc := range docs {
		if onDisk[doc.SessionID+"\x00"+doc.Path] || (scope != nil && !scope[doc.SessionID]) {
			continue
		}
		removed, err := ix.dropFile(ctx, doc.SessionID, doc.Path, result)
		if err != nil {
			return err
		}
		ix.logger.Info("removed vanished file", "session_id", doc.SessionID, "path", doc.Path, "records", removed)
	}
	return nil
}

// dropFile deletes a file's records and bookkeeping.
func (ix *Indexer) dropFile(ctx context.Context, sessionID, path string, result *domain.IndexResult) (int, error) {
	removed, err := ix.index.Delete(ctx, nil, domain.Filter{SessionID: sessionID, Path: path})
	if err != nil {
		return 0, err
	}
	result.RemovedCount += removed
	if err := ix.documents.Delete(ctx, sessionID, path); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return removed, fmt.Errorf("failed to delete bookkeeping: %w", err)
	}
	return removed, nil
}

// indexFile runs one file through the pipeline. The returned error is only
// set when the run must abort.
func (ix *Indexer) indexFile(ctx context.Context, file domain.SourceFile, hash string, result *domain.IndexResult) (domain.FileState, error) {
	state := domain.FileStateUnseen

	extractor := ix.extractors.Get(file.Ext)
	if extractor == nil {
		ix.fail(result, file, state, fmt.Errorf("%w: .%s", domain.ErrUnsupportedFormat, file.Ext))
		return domain.FileStateFailed, nil
	}
	pages := extractor.Extract(ctx, file.Path)
	state = domain.FileStateExtracted

	chunks := ix.chunk(file, pages)
	if len(chunks) == 0 {
		// the file changed and no longer has text; its old records are stale
		if _, err := ix.dropFile(ctx, file.SessionID, file.Path, result); err != nil {
			return state, err
		}
		ix.fail(result, file, state, errors.New("no text extracted"))
		return domain.FileStateFailed, nil
	}
	state = domain.FileStateChunked

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			return state, err
		}
		ix.fail(result, file, state, err)
		return domain.FileStateFailed, nil
	}
	state = domain.FileStateEmbedded

	records := make([]domain.EmbeddingRecord, len(chunks))
	for i, c := range chunks {
		records[i] = domain.NewEmbeddingRecord(file, c, vectors[i])
	}

	removed, err := ix.index.Delete(ctx, nil, domain.Filter{SessionID: file.SessionID, Path: file.Path})
	if err != nil {
		return state, err
	}
	result.RemovedCount += removed
	if err := ix.index.Upsert(ctx, records); err != nil {
		if errors.Is(err, domain.ErrIndexUnavailable) || errors.Is(err, domain.ErrConfiguration) {
			return state, err
		}
		ix.fail(result, file, state, err)
		return domain.FileStateFailed, nil
	}

	doc := &domain.IndexedDocument{
		SessionID:   file.SessionID,
		Path:        file.Path,
		Title:       file.Title,
		Ext:         file.Ext,
		ContentHash: hash,
		ChunkCount:  len(records),
		IndexedAt:   time.Now(),
	}
	if err := ix.documents.Save(ctx, doc); err != nil {
		ix.logger.Warn("failed to save bookkeeping", "session_id", file.SessionID, "path", file.Path, "error", err)
	}

	result.IndexedCount++
	result.ChunkCount += len(records)
	ix.logger.Debug("indexed file", "session_id", file.SessionID, "path", file.Path, "chunks", len(records))
	return domain.FileStateIndexed, nil
}

// chunk splits every page through the pipeline. When every page is below
// the minimum chunk length but the document has text, the whole text
// becomes a single chunk so small uploads stay searchable.
func (ix *Indexer) chunk(file domain.SourceFile, pages []domain.Page) []domain.Chunk {
	var chunks []domain.Chunk
	for _, page := range pages {
		for _, piece := range ix.pipeline.Process(page.Text) {
			chunks = append(chunks, domain.Chunk{
				SourcePath: file.Path,
				SessionID:  file.SessionID,
				PageNumber: page.Number,
				ChunkIndex: piece.Position,
				Text:       piece.Content,
				Extension:  file.Ext,
			})
		}
	}
	if len(chunks) > 0 {
		return chunks
	}

	var parts []string
	firstPage := 0
	for _, page := range pages {
		text := strings.Join(strings.Fields(page.Text), " ")
		if text == "" {
			continue
		}
		if firstPage == 0 {
			firstPage = page.Number
		}
		parts = append(parts, text)
	}
	if len(parts) == 0 {
		return nil
	}
	return []domain.Chunk{{
		SourcePath: file.Path,
		SessionID:  file.SessionID,
		PageNumber: firstPage,
		ChunkIndex: 0,
		Text:       strings.Join(parts, "\n"),
		Extension:  file.Ext,
	}}
}

// hash returns the hex BLAKE2b-256 of the file content.
func (ix *Indexer) hash(ctx context.Context, file domain.SourceFile) (string, error) {
	rc, err := ix.files.OpenPath(ctx, file.Path)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, rc); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (ix *Indexer) fail(result *domain.IndexResult, file domain.SourceFile, state domain.FileState, err error) {
	ix.logger.Warn("failed to index file",
		"session_id", file.SessionID,
		"path", file.Path,
		"state", state,
		"error", err,
	)
	result.Failures = append(result.Failures, domain.FileFailure{
		Path:  file.Path,
		State: state,
		Error: err.Error(),
	})
}

func (ix *Indexer) report(file domain.SourceFile, state domain.FileState, done, total int) {
	if ix.progress == nil {
		return
	}
	ix.progress(IndexProgress{
		SessionID: file.SessionID,
		Path:      file.Path,
		State:     state,
		Done:      done,
		Total:     total,
	})
}
