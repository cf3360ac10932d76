package httpx

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is MemoryLimiter's fixed window kept in Redis, so every replica
// behind the gateway draws from the same budget. Each window gets its own key
// that expires with it.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(rdb *redis.Client, limit int, per time.Duration, prefix string) *RedisLimiter {
	if limit <= 0 {
		limit = 60
	}
	if per <= 0 {
		per = time.Minute
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{rdb: rdb, limit: int64(limit), window: per, prefix: prefix, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := l.now().UnixMilli() / l.window.Milliseconds()
	k := l.prefix + ":" + key + ":" + strconv.FormatInt(bucket, 10)

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.PExpire(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() <= l.limit, nil
}
