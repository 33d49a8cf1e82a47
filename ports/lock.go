package ports

import (
	"context"
	"time"
)

// Lock is a single-row conditional-write lock, not an in-process mutex,
// because the core may run split across a residential agent and a remote
// worker against the same store (§9). Bootstrap backs it with Redis
// (platform/redis) when a Redis host is configured and reachable, and
// otherwise with its in-process no-op lock.
type Lock interface {
	// TryAcquire attempts to take the named lock for ttl. Returns
	// (token, true, nil) on success, ("", false, nil) if already held.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error)
	// Release gives up the lock iff token still matches the holder.
	Release(ctx context.Context, name, token string) error
}
