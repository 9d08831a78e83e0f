package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisadapter "github.com/mediaforge/sessiond/pkg/adapters/redis"
	"github.com/mediaforge/sessiond/pkg/domain"
	"github.com/mediaforge/sessiond/pkg/lock"
	"github.com/mediaforge/sessiond/pkg/session"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// End-to-end over the durable backend: the same coordination behavior the
// in-memory tests verify must hold against Redis semantics (SET NX locks,
// key TTLs, SCAN).
func newRedisStore(t *testing.T) (*miniredis.Miniredis, *session.Store) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	kv := redisadapter.NewFromClient(backend.NewClient(&backend.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = kv.Close() })

	locks := lock.NewManager(kv, lock.Config{
		Lease:         time.Second,
		Attempts:      200,
		RetryDelay:    time.Millisecond,
		AcquireBudget: 5 * time.Second,
	})
	cfg := session.Config{
		IdleTimeout:        30 * time.Minute,
		MaxSessionsPerUser: 3,
		EndGraceDelay:      20 * time.Millisecond,
		KeyPrefix:          "mediaforge:",
	}
	return mr, session.New(kv, locks, cfg)
}

func TestRedisSession_Workflow(t *testing.T) {
	_, s := newRedisStore(t)
	ctx := context.Background()

	created, _, err := s.Create(ctx, "U123", "T1", "C1", map[string]any{"clientName": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateInitializing, created.State)

	_, err = s.UpdateState(ctx, "U123", "T1", domain.StateGeneratingAsset)
	require.NoError(t, err)

	got, err := s.Get(ctx, "U123", "T1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateGeneratingAsset, got.State)
	assert.Equal(t, "Acme", got.Context["clientName"])

	_, err = s.UpdateContext(ctx, "U123", "T1", map[string]any{
		"assets": []any{map[string]any{"id": "a1"}},
	})
	require.NoError(t, err)
	updated, err := s.UpdateContext(ctx, "U123", "T1", map[string]any{
		"assets": []any{map[string]any{"id": "a2"}},
	})
	require.NoError(t, err)

	assets, ok := updated.Context["assets"].([]any)
	require.True(t, ok)
	require.Len(t, assets, 2)
	assert.Equal(t, map[string]any{"id": "a1"}, assets[0])
	assert.Equal(t, map[string]any{"id": "a2"}, assets[1])
}

func TestRedisSession_ConcurrentAppends(t *testing.T) {
	_, s := newRedisStore(t)
	ctx := context.Background()

	_, _, err := s.Create(ctx, "U1", "T1", "C1", nil)
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.UpdateContext(ctx, "U1", "T1", map[string]any{
				"assets": []any{map[string]any{"id": i}},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, "U1", "T1")
	require.NoError(t, err)
	assets, ok := got.Context["assets"].([]any)
	require.True(t, ok)
	assert.Len(t, assets, n)
}

func TestRedisSession_SweeperWithTTLBackend(t *testing.T) {
	mr, s := newRedisStore(t)
	ctx := context.Background()

	for _, thread := range []string{"T1", "T2", "T3"} {
		_, _, err := s.Create(ctx, "U1", thread, "C1", nil)
		require.NoError(t, err)
	}

	// Redis expires the records itself once the idle timeout has elapsed,
	// leaving only the index entries behind. The sweep must reclaim those
	// too, or the user stays at the cap with zero live sessions.
	mr.FastForward(31 * time.Minute)

	removed, err := session.NewSweeper(s, time.Minute).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	_, err = s.Get(ctx, "U1", "T1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	count, err := s.UserSessionCount(ctx, "U1")
	require.NoError(t, err)
	assert.Zero(t, count)

	// The user is back under the cap (3 in this fixture).
	_, created, err := s.Create(ctx, "U1", "T4", "C1", nil)
	require.NoError(t, err)
	assert.True(t, created)
}
