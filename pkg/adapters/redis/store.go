package redis

import (
	"context"
	"time"

	"github.com/mediaforge/sessiond/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if it still holds the caller's
// token. This is mandatory correctness: a holder whose lease expired and was
// re-acquired by someone else must not delete the new owner's lock.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Store implements ports.Store and ports.Locker on Redis.
type Store struct {
	client *backend.Client
}

// New creates a Redis store connecting to the given address.
func New(address, password string, db int) *Store {
	return &Store{
		client: backend.NewClient(&backend.Options{
			Addr:     address,
			Password: password,
			DB:       db,
		}),
	}
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client) *Store {
	return &Store{client: client}
}

// Get retrieves the value at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == backend.Nil {
			return nil, false, nil
		}
		return nil, false, domain.NewStorageError("get", key, err)
	}
	return val, true, nil
}

// Set stores value at key with the given TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return domain.NewStorageError("set", key, err)
	}
	return nil
}

// Delete removes the key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return domain.NewStorageError("delete", key, err)
	}
	return nil
}

// SetAdd adds member to the set at key.
func (s *Store) SetAdd(ctx context.Context, key, member string) error {
	if err := s.client.SAdd(ctx, key, member).Err(); err != nil {
		return domain.NewStorageError("sadd", key, err)
	}
	return nil
}

// SetRemove removes member from the set at key.
func (s *Store) SetRemove(ctx context.Context, key, member string) error {
	if err := s.client.SRem(ctx, key, member).Err(); err != nil {
		return domain.NewStorageError("srem", key, err)
	}
	return nil
}

// SetCard returns the cardinality of the set at key.
func (s *Store) SetCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, domain.NewStorageError("scard", key, err)
	}
	return n, nil
}

// SetMembers returns all members of the set at key.
func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, domain.NewStorageError("smembers", key, err)
	}
	return members, nil
}

// Scan returns all keys starting with prefix.
func (s *Store) Scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, domain.NewStorageError("scan", prefix, err)
	}
	return keys, nil
}

// TryAcquire sets key to token only if absent, with the lease as expiry.
// SET NX PX is a single atomic primitive on the server.
func (s *Store) TryAcquire(ctx context.Context, key, token string, lease time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, token, lease).Result()
	if err != nil {
		return false, domain.NewStorageError("setnx", key, err)
	}
	return ok, nil
}

// Release deletes key only if it still holds token.
func (s *Store) Release(ctx context.Context, key, token string) error {
	if err := s.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		return domain.NewStorageError("release", key, err)
	}
	return nil
}

// Ping verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return domain.NewStorageError("ping", "", err)
	}
	return nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
