package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker hands out short-lived distributed locks. The matching engine
// takes "lock:orders:<ticker>" around every pass so at most one worker
// mutates an instrument's book at a time, even across processes.
type Locker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewLocker builds a locker whose leases expire after ttl. The TTL is a
// crash backstop; holders release explicitly.
func NewLocker(rdb *redis.Client, ttl time.Duration) *Locker {
	return &Locker{rdb: rdb, ttl: ttl}
}

// Lease is a held lock. Release it when done; it self-expires if the
// holder dies.
type Lease struct {
	rdb   *redis.Client
	key   string
	token string
}

const lockRetryInterval = 25 * time.Millisecond

// Acquire blocks until the lock is taken or ctx expires. The token makes
// release safe: a lease that outlived its TTL cannot delete a successor's
// lock.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lease, error) {
	token := uuid.NewString()
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return &Lease{rdb: l.rdb, key: key, token: token}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}
}

// WithLock runs fn while holding the lock, releasing it afterwards.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lease, err := l.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer lease.Release(ctx)
	return fn(ctx)
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Release frees the lock. Safe to call after expiry.
func (le *Lease) Release(ctx context.Context) error {
	err := releaseScript.Run(context.WithoutCancel(ctx), le.rdb, []string{le.key}, le.token).Err()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", le.key, err)
	}
	return nil
}

// OrdersLockKey is the per-instrument matching lock key.
func OrdersLockKey(ticker string) string {
	return "lock:orders:" + ticker
}
