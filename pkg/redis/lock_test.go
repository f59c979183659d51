package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	client := NewClientFromRedis(rdb, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	return NewLocker(client, ""), mr
}

func TestLocker_Acquire(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "batch", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("fern:lock:batch"))

	_, err = locker.Acquire(ctx, "batch", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))
	assert.False(t, mr.Exists("fern:lock:batch"))
	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)
}

func TestLock_ExtendAfterExpiry(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "batch", time.Second)
	require.NoError(t, err)

	require.NoError(t, lock.Extend(ctx, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("fern:lock:batch"))

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, lock.Extend(ctx, time.Minute), ErrLockNotHeld)
}

func TestLocker_WithLock(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	t.Run("runs fn and releases", func(t *testing.T) {
		called := false
		err := locker.WithLock(ctx, "batch", time.Minute, func(context.Context) error {
			called = true
			assert.True(t, mr.Exists("fern:lock:batch"))
			return nil
		})
		require.NoError(t, err)
		assert.True(t, called)
		assert.False(t, mr.Exists("fern:lock:batch"))
	})

	t.Run("returns fn error and releases", func(t *testing.T) {
		boom := errors.New("boom")
		err := locker.WithLock(ctx, "batch", time.Minute, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.False(t, mr.Exists("fern:lock:batch"))
	})

	t.Run("second holder is refused", func(t *testing.T) {
		err := locker.WithLock(ctx, "batch", time.Minute, func(context.Context) error {
			inner := locker.WithLock(ctx, "batch", time.Minute, func(context.Context) error {
				t.Fatal("inner fn must not run")
				return nil
			})
			assert.ErrorIs(t, inner, ErrLockNotAcquired)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestLocker_WithLockLost(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	var fnCtxErr error
	err := locker.WithLock(ctx, "batch", 30*time.Millisecond, func(ctx context.Context) error {
		// another instance takes over once ours is gone
		require.NoError(t, mr.Set("fern:lock:batch", "other-instance"))

		select {
		case <-ctx.Done():
			fnCtxErr = context.Cause(ctx)
		case <-time.After(5 * time.Second):
		}
		return ctx.Err()
	})

	assert.ErrorIs(t, fnCtxErr, ErrLockNotHeld)
	assert.ErrorIs(t, err, ErrLockNotHeld)
	assert.ErrorIs(t, err, context.Canceled)

	val, getErr := mr.Get("fern:lock:batch")
	require.NoError(t, getErr)
	assert.Equal(t, "other-instance", val)
}
