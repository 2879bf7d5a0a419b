package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.QueryLogStore = (*QueryLog)(nil)

// defaultQueryLogCapacity bounds the in-memory log
const defaultQueryLogCapacity = 10000

// QueryLog is a bounded in-memory search log. The oldest entries are
// dropped once capacity is reached.
type QueryLog struct {
	mu       sync.Mutex
	entries  []domain.QueryLogEntry
	capacity int
}

func NewQueryLog(capacity int) *QueryLog {
	if capacity <= 0 {
		capacity = defaultQueryLogCapacity
	}
	return &QueryLog{capacity: capacity}
}

func (l *QueryLog) Append(ctx context.Context, entry domain.QueryLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if over := len(l.entries) - l.capacity; over > 0 {
		l.entries = append([]domain.QueryLogEntry(nil), l.entries[over:]...)
	}
	return nil
}

// FetchQueries returns distinct queries, most recent first.
func (l *QueryLog) FetchQueries(ctx context.Context, sessionID string, limit int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]bool)
	out := make([]string, 0)
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if sessionID != "" && e.SessionID != sessionID {
			continue
		}
		if seen[e.Query] {
			continue
		}
		seen[e.Query] = true
		out = append(out, e.Query)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *QueryLog) DeleteSession(ctx context.Context, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.SessionID != sessionID {
			kept = append(kept, e)
		}
	}
	l.entries = kept
	return nil
}
