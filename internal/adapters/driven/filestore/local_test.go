package filestore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := New(Config{Root: t.TempDir(), Extensions: []string{"txt", "md", ".pdf"}})
	require.NoError(t, err)
	return s
}

func writeFile(t *testing.T, s *LocalStore, rel, content string) {
	t.Helper()
	p := filepath.Join(s.Root(), filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Extensions: []string{"txt"}})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = New(Config{Root: t.TempDir()})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	root := filepath.Join(t.TempDir(), "a", "b")
	s, err := New(Config{Root: root, Extensions: []string{"txt"}})
	require.NoError(t, err)
	assert.DirExists(t, s.Root())
}

func TestLocalStore_SaveAndOpen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sf, err := s.Save(ctx, "s1", "Intro.TXT", strings.NewReader("the quick brown fox"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "s1", "Intro.TXT"), sf.Path)
	assert.Equal(t, "Intro", sf.Title)
	assert.Equal(t, "txt", sf.Ext)
	assert.Equal(t, "s1", sf.SessionID)
	assert.EqualValues(t, 19, sf.Size)

	rc, info, err := s.Open(ctx, "s1", "Intro.TXT")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "the quick brown fox", string(data))
	assert.Equal(t, sf.Path, info.Path)

	// no temporary files left behind
	entries, err := os.ReadDir(filepath.Join(s.Root(), "s1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalStore_SaveOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "s1", "a.txt", strings.NewReader("first"))
	require.NoError(t, err)
	sf, err := s.Save(ctx, "s1", "a.txt", strings.NewReader("second version"))
	require.NoError(t, err)
	assert.EqualValues(t, 14, sf.Size)
}

func TestLocalStore_RejectsBadNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		session  string
		filename string
	}{
		{"traversal in name", "s1", "../escape.txt"},
		{"nested name", "s1", "dir/a.txt"},
		{"dot name", "s1", ".."},
		{"empty name", "s1", ""},
		{"traversal session", "..", "a.txt"},
		{"empty session", "", "a.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Save(ctx, tt.session, tt.filename, strings.NewReader("x"))
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			_, _, err = s.Open(ctx, tt.session, tt.filename)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestLocalStore_OpenMissing(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Open(context.Background(), "s1", "nope.txt")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLocalStore_Scan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	writeFile(t, s, "s1/b.md", "b")
	writeFile(t, s, "s1/a.txt", "a")
	writeFile(t, s, "s1/Report.PDF", "pdf")
	writeFile(t, s, "s1/photo.png", "png")
	writeFile(t, s, "s1/.hidden.txt", "hidden")
	writeFile(t, s, "s1/.a.txt.123.part", "partial")
	writeFile(t, s, "s1/.cache/c.txt", "cached")
	writeFile(t, s, "s1/notes/deep.txt", "nested")
	writeFile(t, s, "s2/c.txt", "c")
	writeFile(t, s, "loose.txt", "no session")

	files, err := s.Scan(ctx, "s1")
	require.NoError(t, err)
	var names []string
	for _, f := range files {
		names = append(names, f.Filename)
		assert.Equal(t, "s1", f.SessionID)
	}
	assert.Equal(t, []string{"Report.PDF", "a.txt", "b.md", "deep.txt"}, names)

	all, err := s.Scan(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, "s2", all[len(all)-1].SessionID)

	missing, err := s.Scan(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestLocalStore_SessionsAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	writeFile(t, s, "abc/a.txt", "a")
	writeFile(t, s, "abc/sub/b.txt", "b")
	writeFile(t, s, "abcd/c.txt", "c")
	writeFile(t, s, ".trash/x.txt", "x")

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "abcd"}, sessions)

	n, err := s.DeleteSession(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoDirExists(t, filepath.Join(s.Root(), "abc"))
	assert.DirExists(t, filepath.Join(s.Root(), "abcd"))

	n, err = s.DeleteSession(ctx, "abc")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.DeleteSession(ctx, "../etc")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLocalStore_OpenPathReadsNestedScannedFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	writeFile(t, s, "s1/notes/deep.txt", "nested content")

	files, err := s.Scan(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, files, 1)

	rc, err := s.OpenPath(ctx, files[0].Path)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "nested content", string(data))
}

func TestLocalStore_OpenPathRejects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	writeFile(t, s, "loose.txt", "no session")
	writeFile(t, s, "s1/notes/deep.txt", "nested")

	outside := filepath.Join(filepath.Dir(s.Root()), "elsewhere.txt")
	_, err := s.OpenPath(ctx, outside)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = s.OpenPath(ctx, filepath.Join(s.Root(), "s1", "..", "..", "etc", "passwd"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = s.OpenPath(ctx, filepath.Join(s.Root(), "loose.txt"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = s.OpenPath(ctx, filepath.Join(s.Root(), "s1", "notes"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.OpenPath(ctx, filepath.Join(s.Root(), "s1", "missing.txt"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
