package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/mediaforge/sessiond/pkg/adapters/memory"
	"github.com/mediaforge/sessiond/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()
	ports.RunStoreContract(t, store)
}

func TestMemoryStore_LockerContract(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()
	ports.RunLockerContract(t, store)
}

func TestMemoryStore_TTL_Expiration(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "ephemeral", []byte("x"), 30*time.Millisecond))

	_, ok, err := store.Get(ctx, "ephemeral")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok, err := store.Get(ctx, "ephemeral")
		return err == nil && !ok
	}, time.Second, 10*time.Millisecond, "key should expire")
}

func TestMemoryStore_Rewrite_ResetsTTL(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("short"), 30*time.Millisecond))
	require.NoError(t, store.Set(ctx, "k", []byte("long"), time.Minute))

	// The first entry's timer must not fire on the rewritten value.
	time.Sleep(80 * time.Millisecond)

	val, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok, "rewritten key should survive the old TTL")
	assert.Equal(t, "long", string(val))
}

func TestMemoryStore_Lock_LeaseExpiry(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()
	ctx := context.Background()

	ok, err := store.TryAcquire(ctx, "lock:r", "dead-holder", 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		ok, err := store.TryAcquire(ctx, "lock:r", "next-holder", time.Minute)
		return err == nil && ok
	}, time.Second, 10*time.Millisecond, "expired lease should become acquirable")
}
