package domain

import "time"

// IndexMode selects the reconciliation strategy for a reindex request
type IndexMode string

const (
	// IndexModeFull clears the session partition and re-upserts everything on disk
	IndexModeFull IndexMode = "full"
	// IndexModeIncremental indexes only files that are new or changed
	IndexModeIncremental IndexMode = "incremental"
)

// ParseIndexMode parses a mode string, defaulting to full
func ParseIndexMode(s string) (IndexMode, error) {
	switch IndexMode(s) {
	case "", IndexModeFull:
		return IndexModeFull, nil
	case IndexModeIncremental:
		return IndexModeIncremental, nil
	default:
		return "", ErrInvalidInput
	}
}

// FileState is the per-file position in the indexing state machine
type FileState string

const (
	FileStateUnseen    FileState = "unseen"
	FileStateExtracted FileState = "extracted"
	FileStateChunked   FileState = "chunked"
	FileStateEmbedded  FileState = "embedded"
	FileStateIndexed   FileState = "indexed"
	FileStateSkipped   FileState = "skipped"
	FileStateFailed    FileState = "failed"
)

// IndexStatus summarises the outcome of an indexing run
type IndexStatus string

const (
	IndexStatusSuccess IndexStatus = "success"
	IndexStatusPartial IndexStatus = "partial" // Some files failed
	IndexStatusFailed  IndexStatus = "failed"
	IndexStatusEmpty   IndexStatus = "empty" // Nothing found on disk
)

// FileFailure records a file the coordinator could not index
type FileFailure struct {
	Path  string    `json:"path"`
	State FileState `json:"state"` // Last state reached before failing
	Error string    `json:"error"`
}

// IndexResult is the summary returned by a reindex run
type IndexResult struct {
	SessionID    string        `json:"session_id"`
	Mode         IndexMode     `json:"mode"`
	Status       IndexStatus   `json:"status"`
	IndexedCount int           `json:"indexed_count"` // Files indexed in this run
	ChunkCount   int           `json:"chunk_count"`   // Records upserted in this run
	SkippedCount int           `json:"skipped_count"` // Unchanged files (incremental)
	RemovedCount int           `json:"removed_count"` // Records deleted before upsert
	Failures     []FileFailure `json:"failures,omitempty"`
	Duration     float64       `json:"duration_seconds"`
	Interrupted  bool          `json:"interrupted,omitempty"`
}

// Finish sets the status from the counters and records the duration
func (r *IndexResult) Finish(start time.Time, discovered int) {
	r.Duration = time.Since(start).Seconds()
	switch {
	case discovered == 0:
		r.Status = IndexStatusEmpty
	case len(r.Failures) == 0 && !r.Interrupted:
		r.Status = IndexStatusSuccess
	case r.IndexedCount+r.SkippedCount > 0:
		r.Status = IndexStatusPartial
	default:
		r.Status = IndexStatusFailed
	}
}

// DeleteResult is returned by delete-session
type DeleteResult struct {
	SessionID      string `json:"session_id"`
	Status         string `json:"status"`
	DeletedRecords int    `json:"deleted_records"`
	DeletedFiles   int    `json:"deleted_files"`
}

// Stats describes the documents currently in the index
type Stats struct {
	TotalDocs   int            `json:"total_docs"`
	TotalChunks int            `json:"total_chunks"`
	ByExtension map[string]int `json:"by_extension"`
}

// QueryLogEntry is one row of the append-only search log
type QueryLogEntry struct {
	SessionID    string    `json:"session_id"`
	Query        string    `json:"query"`
	TopK         int       `json:"top_k"`
	ResultsCount int       `json:"results_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// StatsFromMetadata counts distinct documents (by path) and chunks.
// ByExtension counts documents, not chunks.
func StatsFromMetadata(metas []RecordMetadata) *Stats {
	stats := &Stats{ByExtension: make(map[string]int)}
	seen := make(map[string]bool)
	for _, m := range metas {
		stats.TotalChunks++
		key := m.SessionID + "\x00" + m.Path
		if seen[key] {
			continue
		}
		seen[key] = true
		stats.TotalDocs++
		stats.ByExtension[m.Ext]++
	}
	return stats
}

// UploadResult is returned when a file is stored for a session
type UploadResult struct {
	File       SourceFile `json:"file"`
	TaskID     string     `json:"task_id,omitempty"`
	TaskStatus TaskStatus `json:"task_status,omitempty"` // completed or failed when indexing ran inline
}
