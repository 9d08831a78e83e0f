package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreContract runs a suite of tests to verify that a Store
// implementation adheres to the interface contract. Adapter packages call it
// from their own tests so both backends stay behaviorally interchangeable.
func RunStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	key := "contract-test-" + time.Now().Format("20060102150405")

	t.Run("Set and Get", func(t *testing.T) {
		err := store.Set(ctx, key, []byte(`{"foo":"bar"}`), time.Minute)
		require.NoError(t, err, "Set should not return error")

		val, ok, err := store.Get(ctx, key)
		require.NoError(t, err, "Get should not return error")
		assert.True(t, ok)
		assert.JSONEq(t, `{"foo":"bar"}`, string(val))
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "non-existent-"+key)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Set Overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, key, []byte("v1"), time.Minute))
		require.NoError(t, store.Set(ctx, key, []byte("v2"), time.Minute))

		val, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v2", string(val))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, key, []byte("gone"), time.Minute))
		require.NoError(t, store.Delete(ctx, key))

		_, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, "Get after Delete should report absent")

		// Idempotent: deleting again is fine.
		assert.NoError(t, store.Delete(ctx, key))
	})

	t.Run("Set Membership", func(t *testing.T) {
		setKey := key + ":members"

		require.NoError(t, store.SetAdd(ctx, setKey, "a"))
		require.NoError(t, store.SetAdd(ctx, setKey, "b"))
		require.NoError(t, store.SetAdd(ctx, setKey, "b")) // duplicate

		n, err := store.SetCard(ctx, setKey)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		members, err := store.SetMembers(ctx, setKey)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, members)

		require.NoError(t, store.SetRemove(ctx, setKey, "a"))
		n, err = store.SetCard(ctx, setKey)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("SetCard Empty", func(t *testing.T) {
		n, err := store.SetCard(ctx, "empty-"+key)
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)
	})

	t.Run("Scan Prefix", func(t *testing.T) {
		prefix := key + ":scan:"
		require.NoError(t, store.Set(ctx, prefix+"1", []byte("x"), time.Minute))
		require.NoError(t, store.Set(ctx, prefix+"2", []byte("y"), time.Minute))
		require.NoError(t, store.Set(ctx, key+":other", []byte("z"), time.Minute))

		// Set keys are part of the keyspace too.
		require.NoError(t, store.SetAdd(ctx, prefix+"3", "m"))

		keys, err := store.Scan(ctx, prefix)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{prefix + "1", prefix + "2", prefix + "3"}, keys)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}

// RunLockerContract verifies the atomic locking primitive, in particular
// that Release is a compare-and-delete.
func RunLockerContract(t *testing.T, locker Locker) {
	ctx := context.Background()
	key := "contract-lock-" + time.Now().Format("20060102150405")

	t.Run("Acquire and Release", func(t *testing.T) {
		ok, err := locker.TryAcquire(ctx, key, "token-a", time.Minute)
		require.NoError(t, err)
		require.True(t, ok, "first acquisition should be granted")

		// Held: a second acquire is refused.
		ok, err = locker.TryAcquire(ctx, key, "token-b", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, locker.Release(ctx, key, "token-a"))

		// Released: acquirable again.
		ok, err = locker.TryAcquire(ctx, key, "token-c", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, locker.Release(ctx, key, "token-c"))
	})

	t.Run("Release Wrong Token", func(t *testing.T) {
		ok, err := locker.TryAcquire(ctx, key, "owner", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		// Simulates expiry-then-reacquire: a stale holder must not delete
		// the current owner's lock.
		require.NoError(t, locker.Release(ctx, key, "stale"))

		ok, err = locker.TryAcquire(ctx, key, "intruder", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, "lock should still be held by the original owner")

		require.NoError(t, locker.Release(ctx, key, "owner"))
	})
}
