package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// MinChunkLength is the minimum number of characters a chunk needs to be
// indexed. Shorter fragments (blank pages, running headers) are dropped.
const MinChunkLength = 50

// SourceFile is an uploaded file discovered on disk for a session
type SourceFile struct {
	SessionID string    `json:"session_id"`
	Path      string    `json:"path"`     // Absolute or data-dir relative path, used as record key
	Filename  string    `json:"filename"` // Base name including extension
	Title     string    `json:"title"`    // Base name without extension
	Ext       string    `json:"ext"`      // Lower-cased extension without dot
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
}

// NewSourceFile builds a SourceFile with title and extension derived from path
func NewSourceFile(sessionID, path string) SourceFile {
	name := filepath.Base(path)
	return SourceFile{
		SessionID: sessionID,
		Path:      path,
		Filename:  name,
		Title:     TitleFromFilename(name),
		Ext:       ExtFromFilename(name),
	}
}

// TitleFromFilename strips the last extension from a file name
func TitleFromFilename(name string) string {
	name = filepath.Base(name)
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}

// ExtFromFilename returns the lower-cased extension without the dot
func ExtFromFilename(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// Page is one page of extracted text. Page numbers start at 1.
type Page struct {
	Number int    `json:"page_number"`
	Text   string `json:"text"`
}

// Chunk is a unit of indexable text produced from one page of a source file.
// Chunks are immutable once embedded.
type Chunk struct {
	SourcePath string `json:"source_path"`
	SessionID  string `json:"session_id"`
	PageNumber int    `json:"page_number"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	Extension  string `json:"extension"`
}

// RecordID returns the deterministic record id for this chunk
func (c Chunk) RecordID() string {
	return RecordID(c.SourcePath, c.PageNumber, c.ChunkIndex)
}

// IndexedDocument is the bookkeeping row for a file that has been indexed
type IndexedDocument struct {
	SessionID   string    `json:"session_id"`
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	Ext         string    `json:"ext"`
	ContentHash string    `json:"content_hash"`
	ChunkCount  int       `json:"chunk_count"`
	IndexedAt   time.Time `json:"indexed_at"`
}
