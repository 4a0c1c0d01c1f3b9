package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		client.Close()
		s.Close()
	})
	return s, client
}

func TestRedisLock(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	t.Run("LockAndUnlock", func(t *testing.T) {
		lk := NewRedisLock(client, "test:lock:1", 10*time.Second)
		require.NoError(t, lk.Lock(ctx))
		assert.Equal(t, lk.value, client.Get(ctx, "test:lock:1").Val())

		require.NoError(t, lk.Unlock(ctx))
		assert.Equal(t, int64(0), client.Exists(ctx, "test:lock:1").Val())
	})

	t.Run("SecondHolderIsRefused", func(t *testing.T) {
		first := NewRedisLock(client, "test:lock:2", 10*time.Second)
		second := NewRedisLock(client, "test:lock:2", 10*time.Second)

		require.NoError(t, first.Lock(ctx))
		assert.ErrorIs(t, second.Lock(ctx), ErrLockFailed)
		assert.ErrorIs(t, second.Unlock(ctx), ErrLockNotHeld, "only the holder may release")

		require.NoError(t, first.Unlock(ctx))
		require.NoError(t, second.Lock(ctx))
		require.NoError(t, second.Unlock(ctx))
	})
}

func TestLockerExpiry(t *testing.T) {
	s, client := setupTestRedis(t)
	ctx := context.Background()
	locker := NewLocker(client, "topup:", 5*time.Second)

	lk, err := locker.Acquire(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "topup:7", lk.key)
	assert.Greater(t, client.PTTL(ctx, "topup:7").Val(), 4*time.Second)

	_, err = locker.Acquire(ctx, "7")
	assert.ErrorIs(t, err, ErrLockFailed)

	s.FastForward(6 * time.Second)
	again, err := locker.Acquire(ctx, "7")
	require.NoError(t, err)
	require.NoError(t, again.Unlock(ctx))
}
