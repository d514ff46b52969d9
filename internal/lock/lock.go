// Package lock serializes materialization per user, across processes when a
// Redis server is configured and within the process otherwise.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when somebody else holds the lock.
var ErrNotObtained = errors.New("lock not obtained")

// ReleaseFunc releases an obtained lock.
type ReleaseFunc func(ctx context.Context) error

// Local is an in-process try-lock keyed by string.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// Obtain takes key without waiting.
func (l *Local) Obtain(_ context.Context, key string) (ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}

// Redis is a distributed lock on top of redislock. Keys expire after ttl so a
// crashed worker cannot block a user forever; a held lock is refreshed every
// ttl/2 until released.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

func NewRedis(rdb redislock.RedisClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Redis{
		client: redislock.New(rdb),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 3),
	}
}

func (r *Redis) Obtain(ctx context.Context, key string) (ReleaseFunc, error) {
	l, err := r.client.Obtain(ctx, key, r.ttl, &redislock.Options{RetryStrategy: r.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain redis lock %s: %w", key, err)
	}
	stop := keepAlive(r.ttl/2, func(ctx context.Context) error {
		return l.Refresh(ctx, r.ttl, nil)
	})
	return func(ctx context.Context) error {
		stop()
		if err := l.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("release redis lock %s: %w", key, err)
		}
		return nil
	}, nil
}

// keepAlive calls refresh every interval until stop is called. It gives up
// after the first failed refresh since the lock is gone by then.
func keepAlive(interval time.Duration, refresh func(context.Context) error) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := refresh(ctx); err != nil {
					if ctx.Err() == nil {
						slog.Warn("Lock refresh failed, lock may be lost", "error", err)
					}
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// ConnectRedis opens a client for addr and verifies it answers.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return rdb, nil
}
