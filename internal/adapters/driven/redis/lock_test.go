package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLock_OwnerIDsDiffer(t *testing.T) {
	_, client := setupTestRedis(t)
	assert.NotEmpty(t, NewLock(client).OwnerID())
	assert.NotEqual(t, NewLock(client).OwnerID(), NewLock(client).OwnerID())
}

func TestLock_SessionLocksAreIndependent(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	a, b := NewLock(client), NewLock(client)

	ok, err := a.Acquire(ctx, "index:s1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, "index:s1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second owner must not take a held lock")

	ok, err = a.Acquire(ctx, "index:s1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lock is not reentrant")

	ok, err = b.Acquire(ctx, "index:s2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	owner, err := mr.Get("sercha-rag:lock:index:s1")
	require.NoError(t, err)
	assert.Equal(t, a.OwnerID(), owner)
}

func TestLock_ReleaseOnlyByOwner(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	a, b := NewLock(client), NewLock(client)

	ok, err := a.Acquire(ctx, "index:s1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, b.Release(ctx, "index:s1"))
	ok, err = b.Acquire(ctx, "index:s1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "release by another owner must be ignored")

	require.NoError(t, a.Release(ctx, "index:s1"))
	ok, err = b.Acquire(ctx, "index:s1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_ReleaseUnheld(t *testing.T) {
	_, client := setupTestRedis(t)
	assert.NoError(t, NewLock(client).Release(context.Background(), "index:nobody"))
}

func TestLock_ExpiresAfterTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	a, b := NewLock(client), NewLock(client)

	ok, err := a.Acquire(ctx, "scheduler", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = b.Acquire(ctx, "scheduler", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_Extend(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	a, b := NewLock(client), NewLock(client)

	ok, err := a.Acquire(ctx, "index:s1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, a.Extend(ctx, "index:s1", 10*time.Second))
	assert.Greater(t, mr.TTL("sercha-rag:lock:index:s1"), 5*time.Second)

	assert.Error(t, b.Extend(ctx, "index:s1", 10*time.Second))
	assert.Error(t, a.Extend(ctx, "index:other", 10*time.Second))
}

func TestLock_Unavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	lock := NewLock(client)

	require.NoError(t, lock.Ping(ctx))
	mr.Close()

	_, err := lock.Acquire(ctx, "index:s1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	assert.ErrorIs(t, lock.Ping(ctx), domain.ErrIndexUnavailable)
}
