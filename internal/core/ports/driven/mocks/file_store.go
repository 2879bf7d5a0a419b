package mocks

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

var _ driven.FileStore = (*MockFileStore)(nil)

// MockFileStore keeps uploaded files in memory keyed by session and name.
// Paths have the form "<root>/<session>/<filename>".
type MockFileStore struct {
	mu    sync.RWMutex
	root  string
	files map[string]map[string][]byte
	mtime map[string]time.Time
}

func NewMockFileStore() *MockFileStore {
	return &MockFileStore{
		root:  "/data",
		files: make(map[string]map[string][]byte),
		mtime: make(map[string]time.Time),
	}
}

// Put stores content directly (test setup)
func (m *MockFileStore) Put(sessionID, filename, content string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files[sessionID] == nil {
		m.files[sessionID] = make(map[string][]byte)
	}
	m.files[sessionID][filename] = []byte(content)
	p := m.path(sessionID, filename)
	m.mtime[p] = time.Now()
	return p
}

// Remove deletes one file (test setup)
func (m *MockFileStore) Remove(sessionID, filename string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files[sessionID], filename)
	delete(m.mtime, m.path(sessionID, filename))
}

func (m *MockFileStore) path(sessionID, filename string) string {
	return path.Join(m.root, sessionID, filename)
}

func (m *MockFileStore) sourceFile(sessionID, filename string) domain.SourceFile {
	p := m.path(sessionID, filename)
	sf := domain.NewSourceFile(sessionID, p)
	sf.Size = int64(len(m.files[sessionID][filename]))
	sf.ModTime = m.mtime[p]
	return sf
}

func (m *MockFileStore) Save(ctx context.Context, sessionID, filename string, r io.Reader) (*domain.SourceFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m.Put(sessionID, filename, string(data))
	m.mu.RLock()
	defer m.mu.RUnlock()
	sf := m.sourceFile(sessionID, filename)
	return &sf, nil
}

func (m *MockFileStore) Open(ctx context.Context, sessionID, filename string) (io.ReadCloser, *domain.SourceFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[sessionID][filename]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	sf := m.sourceFile(sessionID, filename)
	return io.NopCloser(bytes.NewReader(data)), &sf, nil
}

func (m *MockFileStore) OpenPath(ctx context.Context, p string) (io.ReadCloser, error) {
	data, ok := m.Read(p)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

// Read returns the content stored at path, as an extractor would see it
func (m *MockFileStore) Read(p string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for session, files := range m.files {
		for name, data := range files {
			if m.path(session, name) == p {
				return string(data), true
			}
		}
	}
	return "", false
}

func (m *MockFileStore) Scan(ctx context.Context, sessionID string) ([]domain.SourceFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.SourceFile
	for session, files := range m.files {
		if sessionID != "" && session != sessionID {
			continue
		}
		for name := range files {
			out = append(out, m.sourceFile(session, name))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *MockFileStore) Sessions(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for s := range m.files {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MockFileStore) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.files[sessionID])
	for name := range m.files[sessionID] {
		delete(m.mtime, m.path(sessionID, name))
	}
	delete(m.files, sessionID)
	return n, nil
}

func (m *MockFileStore) Root() string {
	return m.root
}
