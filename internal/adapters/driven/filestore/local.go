// Package filestore keeps uploaded files on local disk, one directory per
// session under the data dir.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.FileStore = (*LocalStore)(nil)

// partSuffix marks uploads still being written
const partSuffix = ".part"

// excluded are skipped by Scan regardless of extension
var excluded = []string{
	"**/.*",
	"**/.*/**",
	"**/*" + partSuffix,
}

// Config configures the local file store.
type Config struct {
	// Root is the data dir. It is created when missing.
	Root string
	// Extensions lists the supported extensions without dots. Scan only
	// returns files with one of them.
	Extensions []string
}

// LocalStore implements driven.FileStore on the local filesystem.
type LocalStore struct {
	root    string
	include string
}

// New creates the data dir and returns a store rooted at it.
func New(cfg Config) (*LocalStore, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("%w: data dir is required", domain.ErrConfiguration)
	}
	if len(cfg.Extensions) == 0 {
		return nil, fmt.Errorf("%w: no supported extensions", domain.ErrConfiguration)
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: data dir: %v", domain.ErrConfiguration, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	exts := make([]string, len(cfg.Extensions))
	for i, ext := range cfg.Extensions {
		exts[i] = strings.ToLower(strings.TrimPrefix(ext, "."))
	}
	return &LocalStore{
		root: root,
		// <session>/**/<name>.<ext>, matched against the lower-cased path
		include: "*/**/*.{" + strings.Join(exts, ",") + "}",
	}, nil
}

func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) filePath(sessionID, filename string) (string, error) {
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return "", err
	}
	if filename == "" || filename == "." || filename == ".." || filepath.Base(filename) != filename || strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("%w: invalid file name %q", domain.ErrInvalidInput, filename)
	}
	return filepath.Join(s.root, sessionID, filename), nil
}

func (s *LocalStore) sourceFile(sessionID, path string, info fs.FileInfo) domain.SourceFile {
	sf := domain.NewSourceFile(sessionID, path)
	sf.Size = info.Size()
	sf.ModTime = info.ModTime()
	return sf
}

// Save writes to a temporary file in the session dir and renames it into
// place, so a scan never sees a half-written upload.
func (s *LocalStore) Save(ctx context.Context, sessionID, filename string, r io.Reader) (*domain.SourceFile, error) {
	dst, err := s.filePath(sessionID, filename)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("creating session dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filename+".*"+partSuffix)
	if err != nil {
		return nil, fmt.Errorf("creating upload file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("writing upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("writing upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return nil, err
	}
	sf := s.sourceFile(sessionID, dst, info)
	return &sf, nil
}

func (s *LocalStore) Open(ctx context.Context, sessionID, filename string) (io.ReadCloser, *domain.SourceFile, error) {
	p, err := s.filePath(sessionID, filename)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, sessionID, filename)
	}
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, sessionID, filename)
	}
	sf := s.sourceFile(sessionID, p, info)
	return f, &sf, nil
}

// OpenPath opens a scanned file by its absolute path. The path must lie
// inside a session dir of the data root.
func (s *LocalStore) OpenPath(ctx context.Context, path string) (io.ReadCloser, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || !strings.Contains(filepath.ToSlash(rel), "/") {
		return nil, fmt.Errorf("%w: %s is not inside a session dir", domain.ErrInvalidInput, path)
	}
	f, err := os.Open(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, rel)
	}
	if err != nil {
		return nil, err
	}
	if info, err := f.Stat(); err != nil || info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, rel)
	}
	return f, nil
}

// Scan walks the session dir (the whole data dir when sessionID is empty)
// and returns supported files sorted by path. Files nested in
// subdirectories belong to the session of their top-level dir.
func (s *LocalStore) Scan(ctx context.Context, sessionID string) ([]domain.SourceFile, error) {
	base := s.root
	if sessionID != "" {
		if err := domain.ValidateSessionID(sessionID); err != nil {
			return nil, err
		}
		base = filepath.Join(s.root, sessionID)
	}

	var out []domain.SourceFile
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !s.matches(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		session := strings.SplitN(rel, "/", 2)[0]
		out = append(out, s.sourceFile(session, p, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", base, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *LocalStore) matches(rel string) bool {
	for _, pattern := range excluded {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return false
		}
	}
	ok, _ := doublestar.Match(s.include, strings.ToLower(rel))
	return ok
}

// Sessions lists non-hidden directories of the data dir.
func (s *LocalStore) Sessions(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading data dir: %w", err)
	}
	sessions := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			sessions = append(sessions, e.Name())
		}
	}
	return sessions, nil
}

// DeleteSession removes the session dir and returns how many regular files
// it held.
func (s *LocalStore) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return 0, err
	}
	dir := filepath.Join(s.root, sessionID)

	count := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			count++
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counting session files: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("removing session dir: %w", err)
	}
	return count, nil
}
