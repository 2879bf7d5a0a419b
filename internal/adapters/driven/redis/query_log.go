package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.QueryLogStore = (*QueryLog)(nil)

const (
	queryLogPrefix = keyPrefix + "querylog:"
	// queryLogAll mirrors every entry for unscoped reads
	queryLogAll = keyPrefix + "querylog"

	defaultQueryLogCapacity = 1000
)

// QueryLog keeps capped lists of JSON entries, newest first: one per session
// and one across sessions.
type QueryLog struct {
	client   *redis.Client
	capacity int64
}

// NewQueryLog creates a log keeping at most capacity entries per list.
func NewQueryLog(client *redis.Client, capacity int) *QueryLog {
	if capacity <= 0 {
		capacity = defaultQueryLogCapacity
	}
	return &QueryLog{client: client, capacity: int64(capacity)}
}

func sessionKey(sessionID string) string {
	return queryLogPrefix + sessionID
}

func (l *QueryLog) Append(ctx context.Context, entry domain.QueryLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal query log entry: %w", err)
	}

	pipe := l.client.TxPipeline()
	for _, key := range []string{sessionKey(entry.SessionID), queryLogAll} {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, l.capacity-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return Unavailable(fmt.Errorf("failed to append query log: %w", err))
	}
	return nil
}

// FetchQueries returns distinct queries, most recent first. A limit of zero
// or less returns every distinct query.
func (l *QueryLog) FetchQueries(ctx context.Context, sessionID string, limit int) ([]string, error) {
	key := queryLogAll
	if sessionID != "" {
		key = sessionKey(sessionID)
	}
	raw, err := l.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, Unavailable(fmt.Errorf("failed to read query log: %w", err))
	}

	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, item := range raw {
		var e domain.QueryLogEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
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

// DeleteSession drops the session list and removes its entries from the
// cross-session list.
func (l *QueryLog) DeleteSession(ctx context.Context, sessionID string) error {
	key := sessionKey(sessionID)
	raw, err := l.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return Unavailable(fmt.Errorf("failed to read query log: %w", err))
	}

	pipe := l.client.TxPipeline()
	for _, item := range raw {
		pipe.LRem(ctx, queryLogAll, 1, item)
	}
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Unavailable(fmt.Errorf("failed to delete query log: %w", err))
	}
	return nil
}
