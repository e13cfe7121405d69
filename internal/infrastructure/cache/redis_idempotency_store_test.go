package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisIdempotencyStore_Remember(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredis(t)
	store := NewRedisIdempotencyStore(client, "test:")

	value, claimed, err := store.Remember(ctx, "movement:abc", "id-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, "id-1", value)

	assert.True(t, mr.Exists("test:idempotency:movement:abc"))
	assert.Equal(t, time.Hour, mr.TTL("test:idempotency:movement:abc"))

	value, claimed, err = store.Remember(ctx, "movement:abc", "id-2", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "id-1", value)
}

func TestRedisIdempotencyStore_Expiry(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredis(t)
	store := NewRedisIdempotencyStore(client, "")

	_, _, err := store.Remember(ctx, "k", "id-1", time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	value, claimed, err := store.Remember(ctx, "k", "id-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, "id-2", value)
}

func TestRedisIdempotencyStore_Forget(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredis(t)
	store := NewRedisIdempotencyStore(client, "")

	_, _, err := store.Remember(ctx, "k", "id-1", time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Forget(ctx, "k"))
	assert.False(t, mr.Exists("idempotency:k"))
}

func TestRedisIdempotencyStore_ServerDown(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredis(t)
	store := NewRedisIdempotencyStore(client, "")
	mr.Close()

	_, _, err := store.Remember(ctx, "k", "v", time.Hour)
	assert.Error(t, err)
}

func TestIdempotencyStoreFactory(t *testing.T) {
	_, client := newMiniredis(t)

	t.Run("redis when a client is given", func(t *testing.T) {
		store, err := NewIdempotencyStoreFactory().CreateStore(client)
		require.NoError(t, err)
		assert.IsType(t, &RedisIdempotencyStore{}, store)
	})

	t.Run("in-memory fallback", func(t *testing.T) {
		store, err := NewIdempotencyStoreFactory().CreateStore(nil)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})

	t.Run("fallback disabled", func(t *testing.T) {
		_, err := NewIdempotencyStoreFactory(WithInMemoryFallback(false)).CreateStore(nil)
		assert.ErrorIs(t, err, ErrRedisRequired)
	})
}
