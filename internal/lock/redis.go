package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/spabooking/config"
	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still carries our token, so an
// expired holder cannot release a lock that has since been taken by someone
// else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry forward only while we still own the lock.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker serializes sections across API replicas sharing one Redis.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, wait: wait, retry: 25 * time.Millisecond}
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
}

// WithLock holds the lease for as long as fn runs, renewing it every third
// of the TTL. If a renewal finds the lease gone, fn's context is cancelled
// with ErrLockLost as the cause.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}
	defer func() {
		// Release with a fresh context: the caller's may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{lockKey(key)}, token).Err()
	}()

	if l.ttl <= 0 {
		return fn(ctx)
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		keepAlive(leaseCtx, max(l.ttl/3, time.Millisecond), func(ctx context.Context) (bool, error) {
			return l.extend(ctx, key, token)
		}, cancel)
	}()
	defer func() {
		cancel(nil)
		<-renewed
	}()

	err := fn(leaseCtx)
	if err != nil && errors.Is(context.Cause(leaseCtx), domain.ErrLockLost) {
		return &domain.InternalError{Op: "hold lock " + key, Err: errors.Join(domain.ErrLockLost, err)}
	}
	return err
}

func (l *RedisLocker) extend(ctx context.Context, key, token string) (bool, error) {
	n, err := extendScript.Run(ctx, l.client, []string{lockKey(key)}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// keepAlive calls extend every interval until ctx is done. A failed call is
// retried on the next tick; a lease reported gone calls lost and stops.
func keepAlive(ctx context.Context, interval time.Duration, extend func(context.Context) (bool, error), lost func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := extend(ctx)
			if err != nil {
				continue
			}
			if !ok {
				lost(domain.ErrLockLost)
				return
			}
		}
	}
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, lockKey(key), token, l.ttl).Result()
		if err != nil {
			return &domain.InternalError{Op: "acquire lock " + key, Err: err}
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return &domain.InternalError{Op: "acquire lock " + key, Err: domain.ErrLockTimeout}
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &domain.InternalError{Op: "acquire lock " + key, Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

var _ Locker = (*RedisLocker)(nil)
