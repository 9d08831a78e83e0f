package ports

import (
	"context"
	"time"
)

// Locker is the backend-atomic primitive distributed locking builds on.
// Both operations must be atomic on the backend: TryAcquire is a single
// set-if-absent-with-expiry, Release a single compare-and-delete.
type Locker interface {
	// TryAcquire sets key to token with the lease TTL only if the key is
	// absent. It reports whether the lock was granted. It never blocks
	// waiting for the lock.
	TryAcquire(ctx context.Context, key, token string, lease time.Duration) (bool, error)

	// Release deletes key only if it still holds token. Releasing a lock
	// whose lease already expired and was re-acquired by another owner is
	// a no-op: the new owner's lock must survive.
	Release(ctx context.Context, key, token string) error
}
