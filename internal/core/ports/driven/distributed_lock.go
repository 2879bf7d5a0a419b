package driven

import (
	"context"
	"time"
)

// DistributedLock serialises indexing of a session across processes.
// Names are "index:<session>" ("index:*" for an unscoped run) plus
// "scheduler" for the sweep.
type DistributedLock interface {
	// Acquire takes name for ttl. It returns false without error when
	// another holder owns it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release drops name. Releasing a lock that is not held is a no-op.
	Release(ctx context.Context, name string) error

	// Extend pushes the expiry of a held lock to now+ttl. Backends
	// without expiry only check that the lock is still held.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	Ping(ctx context.Context) error
}
