package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrLockNotAcquired is returned when a lock is held by someone else
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing or extending a lock that has expired or changed hands
	ErrLockNotHeld = errors.New("lock not held")
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Lock is a held distributed lock
type Lock struct {
	client *Client
	key    string
	value  string
	ttl    time.Duration
}

// Locker provides distributed locking operations
type Locker struct {
	client    *Client
	keyPrefix string
}

// NewLocker creates a new Locker
func NewLocker(client *Client, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = "fern:lock:"
	}
	return &Locker{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Acquire takes the lock with SET NX, or returns ErrLockNotAcquired
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	start := time.Now()
	defer func() { metrics.RecordRedisOperation("lock_acquire", time.Since(start).Seconds()) }()

	lockKey := l.keyPrefix + key
	lockValue := uuid.New().String()

	ok, err := l.client.rdb.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock: %s", lockKey)

	return &Lock{
		client: l.client,
		key:    lockKey,
		value:  lockValue,
		ttl:    ttl,
	}, nil
}

// Release deletes the lock if this holder still owns it
func (lock *Lock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lock.client.rdb, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	lock.client.logger.WithContext(ctx).Debugf("Released lock: %s", lock.key)
	return nil
}

// Extend resets the lock's TTL if this holder still owns it
func (lock *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, lock.client.rdb, []string{lock.key}, lock.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	lock.ttl = ttl
	return nil
}

// WithLock runs fn while holding key. The lock is extended every ttl/3 until fn returns,
// so fn may run longer than ttl as long as this process stays alive. If an extension
// fails the context passed to fn is cancelled and WithLock returns ErrLockNotHeld
// together with fn's own error.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, "redis.Locker.WithLock")
	defer span.End()

	lock, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}

	lockCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	done := make(chan struct{})
	stopped := make(chan struct{})
	var lost error
	go func() {
		defer close(stopped)
		if err := lock.keepAlive(lockCtx, done); err != nil {
			lost = err
			cancel(err)
		}
	}()

	fnErr := fn(lockCtx)
	close(done)
	<-stopped

	if lost != nil {
		l.client.logger.WithContext(ctx).WithError(lost).Errorf("Lost lock while holding it: %s", lock.key)
		return errors.Join(fnErr, lost)
	}
	if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
		l.client.logger.WithContext(ctx).WithError(err).Warnf("Failed to release lock: %s", lock.key)
	}
	return fnErr
}

// keepAlive extends the lock until done is closed. It returns an error wrapping
// ErrLockNotHeld once the lock can no longer be extended.
func (lock *Lock) keepAlive(ctx context.Context, done <-chan struct{}) error {
	interval := lock.ttl / 3
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := lock.Extend(ctx, lock.ttl); err != nil {
				if errors.Is(err, ErrLockNotHeld) {
					return err
				}
				return errors.Join(ErrLockNotHeld, err)
			}
		}
	}
}
