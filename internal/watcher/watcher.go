// Package watcher turns file uploads under the data directory into
// incremental index tasks.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// DefaultDebounce groups the events of a multi-file upload into one task
const DefaultDebounce = 2 * time.Second

// Config holds dependencies for the watcher.
type Config struct {
	Root     string // data dir; each child directory is a session
	Tasks    driving.TaskService
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher watches the data dir and its session directories.
// Changes are debounced per session, then submitted as incremental
// index_session tasks.
type Watcher struct {
	root     string
	tasks    driving.TaskService
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher. The root must exist.
func New(cfg Config) (*Watcher, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("%w: watcher root is required", domain.ErrConfiguration)
	}
	if cfg.Tasks == nil {
		return nil, fmt.Errorf("%w: watcher needs a task service", domain.ErrConfiguration)
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     root,
		tasks:    cfg.Tasks,
		debounce: debounce,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Run watches until ctx is cancelled. Pending debounced tasks are dropped
// on return; the sweep scheduler picks them up later.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", w.root, err)
	}
	for _, e := range entries {
		if e.IsDir() && !hidden(e.Name()) {
			w.addSession(fsw, filepath.Join(w.root, e.Name()))
		}
	}

	w.logger.Info("upload watcher started", "root", w.root, "debounce", w.debounce)
	defer w.stopPending()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("upload watcher stopped")
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if session, isDir := w.handleEvent(event); session != "" {
				if isDir {
					w.addSession(fsw, event.Name)
				}
				w.schedule(ctx, session)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("watcher event overflow, relying on sweep")
				continue
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) addSession(fsw *fsnotify.Watcher, dir string) {
	if err := fsw.Add(dir); err != nil {
		w.logger.Warn("failed to watch session directory", "path", dir, "error", err)
	}
}

// handleEvent maps an fsnotify event to the session it touches.
// isDir reports a newly created session directory that needs a watch.
// Chmod-only events and hidden or partial files are ignored.
func (w *Watcher) handleEvent(event fsnotify.Event) (session string, isDir bool) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return "", false
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, p := range parts {
		if hidden(p) {
			return "", false
		}
	}

	switch len(parts) {
	case 1:
		// Only new session directories matter at the top level
		if !event.Op.Has(fsnotify.Create) {
			return "", false
		}
		info, err := os.Stat(event.Name)
		if err != nil || !info.IsDir() {
			return "", false
		}
		return parts[0], true
	default:
		if strings.HasSuffix(parts[len(parts)-1], ".part") {
			return "", false
		}
		return parts[0], false
	}
}

// schedule (re)starts the session's debounce timer.
func (w *Watcher) schedule(ctx context.Context, session string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[session]; ok {
		t.Stop()
	}
	w.pending[session] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, session)
		w.mu.Unlock()
		w.submit(ctx, session)
	})
}

func (w *Watcher) submit(ctx context.Context, session string) {
	if ctx.Err() != nil {
		return
	}
	task, err := w.tasks.Submit(ctx, domain.NewIndexSessionTask(session, domain.IndexModeIncremental))
	if err != nil {
		w.logger.Error("failed to submit index task", "session_id", session, "error", err)
		return
	}
	w.logger.Info("upload detected, index task submitted",
		"session_id", session,
		"task_id", task.ID,
		"task_status", task.Status,
	)
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for session, t := range w.pending {
		t.Stop()
		delete(w.pending, session)
	}
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
