package memory

import (
	"context"
	"strings"
	"sync"
	"time"
)

// entry is one stored value with its emulated expiry.
type entry struct {
	value   []byte
	expires time.Time // zero means no expiry
	timer   *time.Timer
}

func (e *entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// Store implements ports.Store and ports.Locker in process memory.
// TTL is emulated with deferred timers plus an expiry check on read, so keys
// disappear on time even if the timer goroutine lags. Safe for concurrent
// use.
type Store struct {
	mu   sync.Mutex
	data map[string]*entry
	sets map[string]map[string]struct{}
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*entry),
		sets: make(map[string]map[string]struct{}),
	}
}

// Get retrieves the value at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(time.Now()) {
		s.drop(key, e)
		return nil, false, nil
	}

	// Copy out so the caller cannot mutate stored bytes.
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Set stores value at key with the given TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(key, value, ttl)
	return nil
}

// put installs an entry and its expiry timer. Caller holds s.mu.
func (s *Store) put(key string, value []byte, ttl time.Duration) *entry {
	if old, ok := s.data[key]; ok && old.timer != nil {
		old.timer.Stop()
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	e := &entry{value: stored}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
		e.timer = time.AfterFunc(ttl, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			// Only remove if the key was not rewritten meanwhile.
			if cur, ok := s.data[key]; ok && cur == e {
				delete(s.data, key)
			}
		})
	}
	s.data[key] = e
	return e
}

// drop removes an entry and stops its timer. Caller holds s.mu.
func (s *Store) drop(key string, e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(s.data, key)
}

// Delete removes the key.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.data[key]; ok {
		s.drop(key, e)
	}
	return nil
}

// SetAdd adds member to the set at key.
func (s *Store) SetAdd(ctx context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

// SetRemove removes member from the set at key.
func (s *Store) SetRemove(ctx context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.sets[key]; ok {
		delete(set, member)
		if len(set) == 0 {
			delete(s.sets, key)
		}
	}
	return nil
}

// SetCard returns the cardinality of the set at key.
func (s *Store) SetCard(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.sets[key])), nil
}

// SetMembers returns all members of the set at key.
func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		members = append(members, m)
	}
	return members, nil
}

// Scan returns all live keys starting with prefix, value and set keys
// alike, matching what a durable backend's keyspace scan reports.
func (s *Store) Scan(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var keys []string
	for k, e := range s.data {
		if !strings.HasPrefix(k, prefix) || e.expired(now) {
			continue
		}
		keys = append(keys, k)
	}
	for k := range s.sets {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// TryAcquire sets key to token only if absent, with the lease as expiry.
// The whole check-and-set runs under the store mutex, matching the atomicity
// the durable backend gets from SET NX PX.
func (s *Store) TryAcquire(ctx context.Context, key, token string, lease time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.data[key]; ok && !e.expired(time.Now()) {
		return false, nil
	}
	s.put(key, []byte(token), lease)
	return true, nil
}

// Release deletes key only if it still holds token.
func (s *Store) Release(ctx context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok || e.expired(time.Now()) || string(e.value) != token {
		return nil
	}
	s.drop(key, e)
	return nil
}

// Ping always succeeds: there is no network to fail.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close stops all pending expiry timers.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.data {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	s.data = make(map[string]*entry)
	s.sets = make(map[string]map[string]struct{})
	return nil
}
