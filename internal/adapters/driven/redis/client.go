// Package redis holds the Redis-backed lock and search log. The task queue
// lives in queue/redis and shares the client and error translation.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// keyPrefix namespaces every key this service writes
const keyPrefix = "sercha-rag:"

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid REDIS_URL: %v", domain.ErrConfiguration, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, Unavailable(fmt.Errorf("failed to ping redis: %w", err))
	}
	return client, nil
}

// Unavailable wraps connection-level failures in domain.ErrIndexUnavailable.
// Other errors are returned unchanged.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, domain.ErrIndexUnavailable) {
		return err
	}
	if isConnectionError(err) {
		return fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	return err
}

func isConnectionError(err error) bool {
	if errors.Is(err, redis.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
