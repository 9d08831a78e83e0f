package ports

import (
	"context"
	"time"
)

// Store is the uniform key-value surface over the interchangeable backends
// (Redis, in-process map). All operations are idempotent.
//
// TTL is mandatory for session keys: callers persisting session data must
// never pass a zero ttl to Set.
type Store interface {
	// Get retrieves the value at key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value at key. A ttl > 0 expires the key after that
	// duration; ttl == 0 stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// SetAdd adds member to the set stored at key, creating it if needed.
	SetAdd(ctx context.Context, key, member string) error

	// SetRemove removes member from the set stored at key.
	SetRemove(ctx context.Context, key, member string) error

	// SetCard returns the cardinality of the set stored at key.
	SetCard(ctx context.Context, key string) (int64, error)

	// SetMembers returns all members of the set stored at key.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// Scan returns all keys starting with prefix.
	Scan(ctx context.Context, prefix string) ([]string, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
