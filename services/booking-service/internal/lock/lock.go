package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker serialises bookings per key. Unlock is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// StaffDayKey is the lock key for one staff member's calendar on one date.
func StaffDayKey(clinicID, staffID, date string) string {
	return "booking:lock:" + clinicID + ":" + staffID + ":" + date
}

// LockAll takes every key in sorted order so concurrent callers cannot deadlock.
func LockAll(ctx context.Context, l Locker, keys []string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var unlocks []func()
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	prev := ""
	for _, k := range sorted {
		if k == prev {
			continue
		}
		prev = k
		unlock, err := l.Lock(ctx, k)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	rdb   *redis.Client
	ttl   time.Duration
	retry time.Duration
	wait  time.Duration
}

type RedisConfig struct {
	// TTL bounds how long a crashed holder keeps the lock.
	TTL time.Duration
	// Wait is the total time Lock keeps retrying before ErrNotAcquired.
	Wait  time.Duration
	Retry time.Duration
}

func NewRedisLocker(rdb *redis.Client, cfg RedisConfig) *RedisLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 3 * time.Second
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 50 * time.Millisecond
	}
	return &RedisLocker{rdb: rdb, ttl: cfg.TTL, wait: cfg.Wait, retry: cfg.Retry}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					// Release on a fresh context so a cancelled request still frees the key.
					rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = releaseScript.Run(rctx, l.rdb, []string{key}, token).Err()
				})
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotAcquired)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

// LocalLocker is an in-process keyed mutex for single-replica deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]chan struct{}{}}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		ch, busy := l.held[key]
		if !busy {
			ch = make(chan struct{})
			l.held[key] = ch
			l.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(ch)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}
