package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestStore(t *testing.T) (*InMemoryIdempotencyStore, *fakeNow) {
	t.Helper()
	clock := &fakeNow{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	store := newInMemoryIdempotencyStore(clock.now, time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

func TestInMemoryIdempotencyStore_Remember(t *testing.T) {
	ctx := context.Background()

	t.Run("first call claims the key", func(t *testing.T) {
		store, _ := newTestStore(t)

		value, claimed, err := store.Remember(ctx, "k1", "movement-1", time.Hour)
		require.NoError(t, err)
		assert.True(t, claimed)
		assert.Equal(t, "movement-1", value)
	})

	t.Run("second call returns the first value", func(t *testing.T) {
		store, _ := newTestStore(t)

		_, _, err := store.Remember(ctx, "k1", "movement-1", time.Hour)
		require.NoError(t, err)

		value, claimed, err := store.Remember(ctx, "k1", "movement-2", time.Hour)
		require.NoError(t, err)
		assert.False(t, claimed)
		assert.Equal(t, "movement-1", value)
	})

	t.Run("expired key can be claimed again", func(t *testing.T) {
		store, clock := newTestStore(t)

		_, _, err := store.Remember(ctx, "k1", "movement-1", time.Minute)
		require.NoError(t, err)
		clock.advance(time.Minute)

		value, claimed, err := store.Remember(ctx, "k1", "movement-2", time.Minute)
		require.NoError(t, err)
		assert.True(t, claimed)
		assert.Equal(t, "movement-2", value)
	})

	t.Run("cancelled context", func(t *testing.T) {
		store, _ := newTestStore(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, _, err := store.Remember(cctx, "k1", "v", time.Hour)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestInMemoryIdempotencyStore_Forget(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, _, err := store.Remember(ctx, "k1", "movement-1", time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Forget(ctx, "k1"))

	_, claimed, err := store.Remember(ctx, "k1", "movement-2", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)

	assert.NoError(t, store.Forget(ctx, "missing"))
}

func TestInMemoryIdempotencyStore_ConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	var claims atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, claimed, err := store.Remember(ctx, "shared", "v", time.Hour)
			assert.NoError(t, err)
			if claimed {
				claims.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), claims.Load())
}

func TestInMemoryIdempotencyStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	_, _, _ = store.Remember(ctx, "short", "v", time.Minute)
	_, _, _ = store.Remember(ctx, "long", "v", time.Hour)
	assert.Equal(t, 2, store.Size())

	clock.advance(2 * time.Minute)
	store.cleanup()
	assert.Equal(t, 1, store.Size())
}

func TestInMemoryIdempotencyStore_CloseTwice(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
